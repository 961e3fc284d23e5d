package ai

import (
	"context"
	"fmt"
)

// Embedder computes vector embeddings for text.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFactory builds a new Embedder instance. Each call must return an
// instance that is independent of the ones returned before.
type EmbedderFactory func(ctx context.Context) (Embedder, error)

// probeText is embedded once to learn the model's vector size.
const probeText = "dimension probe"

// Dimension embeds a probe string and returns the vector length.
func Dimension(ctx context.Context, e Embedder) (int, error) {
	vec, err := e.EmbedText(ctx, probeText)
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vec) == 0 {
		return 0, ErrEmptyEmbedding
	}
	return len(vec), nil
}
