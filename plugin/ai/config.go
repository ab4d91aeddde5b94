package ai

import (
	"errors"

	"github.com/carelink/medirank/internal/profile"
)

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // openai, or any OpenAI-compatible endpoint
	Model      string // text-embedding-3-small
	Dimensions int    // 1536
	APIKey     string
	BaseURL    string

	// RequestsPerSecond bounds calls against the gateway. Zero uses the default.
	RequestsPerSecond float64
	// Burst is the limiter burst size. Zero uses the default.
	Burst int
}

// NewEmbeddingConfigFromProfile creates embedding config from profile.
func NewEmbeddingConfigFromProfile(p *profile.Profile) *EmbeddingConfig {
	return &EmbeddingConfig{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		Dimensions: p.EmbeddingDimensions,
		APIKey:     p.OpenAIAPIKey,
		BaseURL:    p.OpenAIBaseURL,
	}
}

// Validate validates the configuration.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		return errors.New("embedding provider is required")
	}
	if c.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	if c.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}
	return nil
}
