package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/poiesic/embedsync/ai"
)

// DefaultDimension is the vector size used when none is set.
const DefaultDimension = 384

// MockEmbedder is a test double for ai.Embedder. It is safe for concurrent use.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Dim is the vector size of the default behavior.
	Dim int

	mu        sync.Mutex
	callCount int
	texts     int
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dim: DefaultDimension}
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.record(1)
	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return Vector(text, m.dim()), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.record(len(texts))
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = Vector(text, m.dim())
	}
	return out, nil
}

func (m *MockEmbedder) record(texts int) {
	m.mu.Lock()
	m.callCount++
	m.texts += texts
	m.mu.Unlock()
}

func (m *MockEmbedder) dim() int {
	if m.Dim <= 0 {
		return DefaultDimension
	}
	return m.Dim
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// TextCount returns the number of texts embedded across all calls.
func (m *MockEmbedder) TextCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.texts
}

// Reset clears the counters and custom behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.texts = 0
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// Vector creates a deterministic unit vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func Vector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 - 0.5
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}

// Factory hands out MockEmbedders and counts how many were built.
type Factory struct {
	// Dim is passed to every embedder built.
	Dim int
	// Prepare, if set, customizes each new embedder.
	Prepare func(*MockEmbedder)
	// Err, if set, is returned instead of an embedder.
	Err error

	mu    sync.Mutex
	built []*MockEmbedder
}

// NewFactory returns a Factory building embedders of dimension dim.
func NewFactory(dim int) *Factory {
	return &Factory{Dim: dim}
}

// Build returns a new MockEmbedder.
func (f *Factory) Build(ctx context.Context) (ai.Embedder, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	e := NewMockEmbedder()
	e.Dim = f.Dim
	if f.Prepare != nil {
		f.Prepare(e)
	}
	f.mu.Lock()
	f.built = append(f.built, e)
	f.mu.Unlock()
	return e, nil
}

// EmbedderFactory adapts Build to ai.EmbedderFactory.
func (f *Factory) EmbedderFactory() ai.EmbedderFactory {
	return f.Build
}

// Built returns the number of embedders constructed so far.
func (f *Factory) Built() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

// Embedders returns the embedders constructed so far.
func (f *Factory) Embedders() []*MockEmbedder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockEmbedder(nil), f.built...)
}
