// Package mock provides test doubles for the ai package.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	embedder := mock.NewMockEmbedder()
//	vector, err := embedder.EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("model offline")
//	}
//
//	// One fresh embedder per worker, counting constructions
//	factory := mock.NewFactory(8)
//	e, err := factory.Build(ctx)
//	built := factory.Built()
//
// # Default Behavior
//
// MockEmbedder returns unit vectors derived from an FNV hash of the text,
// so the same text always produces the same vector.
package mock
