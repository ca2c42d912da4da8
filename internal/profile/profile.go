package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Embedding endpoint configuration. Any OpenAI-compatible endpoint that
	// serves a CLIP-style image embedding model works; the vector dimension
	// must match the provisioned index (768 for clip-ViT-L-14).
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingModel      string
	EmbeddingDimensions int

	// Vision / generative AI configuration (Gemini).
	VisionAPIKey  string
	VisionModel   string
	VisionTimeout int // request timeout in seconds

	// VisionRequestsPerMinute bounds outbound generative AI calls.
	VisionRequestsPerMinute int

	Mode        string
	Addr        string
	Data        string
	Driver      string
	DSN         string
	InstanceURL string
	Version     string
	Port        int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the generative AI fallback is configured.
// Without it, intake of previously-unseen items degrades to an error entry.
func (p *Profile) IsAIEnabled() bool {
	return p.VisionAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.EmbeddingAPIKey = getEnvOrDefault("FRIDGESENSE_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("FRIDGESENSE_EMBEDDING_BASE_URL", "")
	p.EmbeddingModel = getEnvOrDefault("FRIDGESENSE_EMBEDDING_MODEL", "clip-ViT-L-14")
	p.EmbeddingDimensions = getEnvOrDefaultInt("FRIDGESENSE_EMBEDDING_DIMENSIONS", 768)

	p.VisionAPIKey = getEnvOrDefault("FRIDGESENSE_VISION_API_KEY", "")
	p.VisionModel = getEnvOrDefault("FRIDGESENSE_VISION_MODEL", "gemini-2.0-flash")
	p.VisionTimeout = getEnvOrDefaultInt("FRIDGESENSE_VISION_TIMEOUT_SECONDS", 60)
	p.VisionRequestsPerMinute = getEnvOrDefaultInt("FRIDGESENSE_VISION_RPM", 30)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "fridgesense")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/fridgesense"
		}
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			dbFile := fmt.Sprintf("fridgesense_%s.db", p.Mode)
			p.DSN = filepath.Join(p.Data, dbFile)
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for postgres driver")
		}
	default:
		return errors.Errorf("unsupported db driver: %s", p.Driver)
	}

	if p.EmbeddingDimensions <= 0 {
		return errors.Errorf("invalid embedding dimensions: %d", p.EmbeddingDimensions)
	}

	return nil
}
