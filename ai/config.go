package ai

import (
	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/internal/profile"
)

// EmbeddingConfig configures the image embedding endpoint.
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// LLMConfig configures the generative vision/text model.
type LLMConfig struct {
	APIKey            string
	Model             string
	RequestsPerMinute int
}

// Config is the full AI collaborator configuration.
type Config struct {
	Embedding EmbeddingConfig
	LLM       LLMConfig
}

// NewConfigFromProfile extracts AI configuration from the instance profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			APIKey:     p.EmbeddingAPIKey,
			BaseURL:    p.EmbeddingBaseURL,
			Model:      p.EmbeddingModel,
			Dimensions: p.EmbeddingDimensions,
		},
		LLM: LLMConfig{
			APIKey:            p.VisionAPIKey,
			Model:             p.VisionModel,
			RequestsPerMinute: p.VisionRequestsPerMinute,
		},
	}
}

// Validate checks that the embedding side is usable. The generative
// side is optional; without it, unseen-item identification degrades.
func (c *Config) Validate() error {
	if c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.Errorf("invalid embedding dimensions: %d", c.Embedding.Dimensions)
	}
	return nil
}
