package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, 32, cfg.BatchSize)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	t.Run("with custom values", func(t *testing.T) {
		cfg := NewConfig(
			WithProvider(ProviderOllama),
			WithEmbeddingHost("http://embed:11434"),
			WithEmbeddingModel("nomic-embed-text"),
			WithAPIToken("secret"),
			WithBatchSize(8),
		)
		assert.Equal(t, ProviderOllama, cfg.Provider)
		assert.Equal(t, "http://embed:11434", cfg.EmbeddingHost)
		assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
		assert.Equal(t, "secret", cfg.APIToken)
		assert.Equal(t, 8, cfg.BatchSize)
	})
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		host     string
		want     string
	}{
		{"openai adds v1", ProviderOpenAI, "http://localhost:8080", "http://localhost:8080/v1"},
		{"openai trailing slash", ProviderOpenAI, "http://localhost:8080/", "http://localhost:8080/v1"},
		{"openai keeps v1", ProviderOpenAI, "http://localhost:8080/v1", "http://localhost:8080/v1"},
		{"ollama strips v1", ProviderOllama, "http://localhost:11434/v1", "http://localhost:11434"},
		{"empty provider is openai", "", "http://host", "http://host/v1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Provider: tt.provider, EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown provider", func(c *Config) { c.Provider = "bedrock" }, true},
		{"missing host", func(c *Config) { c.EmbeddingHost = "" }, true},
		{"missing model", func(c *Config) { c.EmbeddingModel = "" }, true},
		{"bad batch size", func(c *Config) { c.BatchSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Provider = "bedrock"
	assert.ErrorIs(t, cfg.Validate(), ErrUnknownProvider)
}

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) EmbedText(context.Context, string) ([]float32, error) { return f.vec, f.err }
func (f fixedEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) {
	return [][]float32{f.vec}, f.err
}

func TestDimension(t *testing.T) {
	dim, err := Dimension(context.Background(), fixedEmbedder{vec: make([]float32, 768)})
	require.NoError(t, err)
	assert.Equal(t, 768, dim)

	_, err = Dimension(context.Background(), fixedEmbedder{})
	assert.ErrorIs(t, err, ErrEmptyEmbedding)

	boom := errors.New("model offline")
	_, err = Dimension(context.Background(), fixedEmbedder{err: boom})
	assert.ErrorIs(t, err, boom)
}
