package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingService maps an image to a fixed-length vector for
// similarity comparison.
type EmbeddingService interface {
	// EmbedImage generates the embedding vector for a single image.
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbeddingService creates an EmbeddingService backed by an
// OpenAI-compatible endpoint serving a CLIP-style image embedding
// model (clip-ViT-L-14 by default, 768 dimensions). The image is sent
// base64-encoded as the embedding input.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	client := openai.NewClientWithConfig(clientConfig)

	return &embeddingService{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (s *embeddingService) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	normalized, err := NormalizeImage(image)
	if err != nil {
		return nil, fmt.Errorf("normalize image: %w", err)
	}

	req := openai.EmbeddingRequest{
		Input: []string{base64.StdEncoding.EncodeToString(normalized)},
		Model: openai.EmbeddingModel(s.model),
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}

	vector := resp.Data[0].Embedding
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vector), s.dimensions)
	}

	return vector, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}
