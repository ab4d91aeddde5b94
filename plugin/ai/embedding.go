package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// ErrEmbeddingUnavailable reports that the embedding gateway could not serve
// the request. Retrieval must abort on this error rather than substitute a
// zero vector; only bulk index construction is allowed to degrade per item.
var ErrEmbeddingUnavailable = errors.New("embedding gateway unavailable")

const (
	defaultEmbedTimeout   = 15 * time.Second
	defaultEmbedRPS       = 10
	defaultEmbedBurst     = 20
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewEmbeddingService creates a new EmbeddingService.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var clientConfig openai.ClientConfig
	switch cfg.Provider {
	case "openai":
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultEmbedRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultEmbedBurst
	}

	return &embeddingService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		timeout:    defaultEmbedTimeout,
	}, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrEmbeddingUnavailable
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(ErrEmbeddingUnavailable, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, errors.Wrap(ErrEmbeddingUnavailable, err.Error())
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmbeddingUnavailable
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}
