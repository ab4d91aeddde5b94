package ai

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *EmbeddingConfig
		wantErr bool
	}{
		{
			name:    "valid openai config",
			cfg:     &EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536, APIKey: "sk-test"},
			wantErr: false,
		},
		{
			name:    "missing provider",
			cfg:     &EmbeddingConfig{Model: "text-embedding-3-small", Dimensions: 1536, APIKey: "sk-test"},
			wantErr: true,
		},
		{
			name:    "missing api key",
			cfg:     &EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536},
			wantErr: true,
		},
		{
			name:    "zero dimensions",
			cfg:     &EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", APIKey: "sk-test"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewEmbeddingServiceUnsupportedProvider(t *testing.T) {
	_, err := NewEmbeddingService(&EmbeddingConfig{
		Provider:   "cohere",
		Model:      "embed-v3",
		Dimensions: 1024,
		APIKey:     "key",
	})
	assert.Error(t, err)
}

func TestMockEmbeddingDeterminism(t *testing.T) {
	mock := NewMockEmbeddingService(64)

	a, err := mock.Embed(context.Background(), "headache")
	require.NoError(t, err)
	b, err := mock.Embed(context.Background(), "headache")
	require.NoError(t, err)
	c, err := mock.Embed(context.Background(), "fever")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestMockEmbeddingFailure(t *testing.T) {
	mock := NewMockEmbeddingService(8)
	mock.FailAll = true

	_, err := mock.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingUnavailable))
}
