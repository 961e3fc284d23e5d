package chunking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/schema"

	"github.com/poiesic/embedsync/ai"
)

var sentenceEnd = regexp.MustCompile(`[.?!]\s+`)

// SemanticChunker breaks text between sentences whose embeddings are far
// apart. Each sentence is embedded together with BufferSize neighbours on
// either side; a break is placed wherever the cosine distance to the next
// window exceeds the BreakpointPercentile of all distances in the document.
type SemanticChunker struct {
	BufferSize           int
	BreakpointPercentile float64
}

// NewSemanticChunker returns a chunker with a one-sentence buffer and a
// 95th percentile breakpoint.
func NewSemanticChunker() *SemanticChunker {
	return &SemanticChunker{BufferSize: 1, BreakpointPercentile: 95}
}

// Split chunks each document independently.
func (s *SemanticChunker) Split(ctx context.Context, embedder ai.Embedder, docs []schema.Document) ([]schema.Document, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	var out []schema.Document
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		texts, err := s.splitText(ctx, embedder, doc.PageContent)
		if err != nil {
			return nil, err
		}
		for _, text := range texts {
			out = append(out, schema.Document{PageContent: text, Metadata: copyMetadata(doc.Metadata)})
		}
	}
	return out, nil
}

func (s *SemanticChunker) splitText(ctx context.Context, embedder ai.Embedder, text string) ([]string, error) {
	sentences := SplitSentences(text)
	if len(sentences) <= 1 {
		return sentences, nil
	}

	windows := combineSentences(sentences, s.BufferSize)
	vectors, err := embedder.EmbedTexts(ctx, windows)
	if err != nil {
		return nil, fmt.Errorf("embed sentence windows: %w", err)
	}
	if len(vectors) != len(windows) {
		return nil, errors.New("embedder returned wrong number of vectors")
	}

	distances := make([]float64, len(vectors)-1)
	for i := range distances {
		distances[i] = 1 - cosine(vectors[i], vectors[i+1])
	}
	threshold := Percentile(distances, s.BreakpointPercentile)

	var chunks []string
	start := 0
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	if start < len(sentences) {
		chunks = append(chunks, strings.Join(sentences[start:], " "))
	}
	return chunks, nil
}

// SplitSentences splits text after '.', '?' or '!' followed by whitespace.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func combineSentences(sentences []string, buffer int) []string {
	if buffer < 0 {
		buffer = 0
	}
	out := make([]string, len(sentences))
	for i := range sentences {
		lo := max(0, i-buffer)
		hi := min(len(sentences), i+buffer+1)
		out[i] = strings.Join(sentences[lo:hi], " ")
	}
	return out
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	p = math.Max(0, math.Min(100, p))
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
