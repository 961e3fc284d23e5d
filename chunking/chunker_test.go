package chunking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"

	"github.com/poiesic/embedsync/ai"
	"github.com/poiesic/embedsync/ai/mock"
)

// topicEmbedder maps sentences about cats and cars to orthogonal vectors.
func topicEmbedder() *mock.MockEmbedder {
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if strings.Contains(text, "Cat") {
				out[i] = []float32{1, 0}
			} else {
				out[i] = []float32{0, 1}
			}
		}
		return out, nil
	}
	return m
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("One. Two?  Three!\nFour")
	assert.Equal(t, []string{"One.", "Two?", "Three!", "Four"}, got)
	assert.Empty(t, SplitSentences("   "))
	assert.Equal(t, []string{"v1.2 is out."}, SplitSentences("v1.2 is out."))
}

func TestPercentile(t *testing.T) {
	assert.InDelta(t, 0.9, Percentile([]float64{0, 1, 0}, 95), 1e-9)
	assert.InDelta(t, 2.5, Percentile([]float64{4, 1, 3, 2}, 50), 1e-9)
	assert.Equal(t, 4.0, Percentile([]float64{4, 1, 3, 2}, 100))
	assert.Equal(t, 1.0, Percentile([]float64{4, 1, 3, 2}, 0))
	assert.Equal(t, 0.0, Percentile(nil, 95))
}

func TestSemanticChunker_BreaksOnTopicShift(t *testing.T) {
	c := &SemanticChunker{BufferSize: 0, BreakpointPercentile: 95}
	docs := []schema.Document{{
		PageContent: "Cats purr. Cats meow. Cars honk. Cars drive.",
		Metadata:    map[string]any{"page": 3},
	}}

	chunks, err := c.Split(context.Background(), topicEmbedder(), docs)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Cats purr. Cats meow.", chunks[0].PageContent)
	assert.Equal(t, "Cars honk. Cars drive.", chunks[1].PageContent)
	assert.Equal(t, 3, chunks[1].Metadata["page"])

	chunks[0].Metadata["page"] = 99
	assert.Equal(t, 3, docs[0].Metadata["page"], "chunk metadata is a copy")
}

func TestSemanticChunker_SingleSentence(t *testing.T) {
	m := topicEmbedder()
	chunks, err := NewSemanticChunker().Split(context.Background(), m, []schema.Document{{PageContent: "Only one sentence here"}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, m.CallCount())
}

func TestSemanticChunker_Errors(t *testing.T) {
	_, err := NewSemanticChunker().Split(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	boom := errors.New("model offline")
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) { return nil, boom }
	_, err = NewSemanticChunker().Split(context.Background(), m, []schema.Document{{PageContent: "A. B. C."}})
	assert.ErrorIs(t, err, boom)
}

func TestRecursiveChunker(t *testing.T) {
	text := strings.Repeat("word ", 100)
	chunks, err := NewRecursiveChunker(50, 0).Split(context.Background(), nil, []schema.Document{{
		PageContent: text,
		Metadata:    map[string]any{"entity_id": "Q1"},
	}})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.PageContent), 50)
		assert.Equal(t, "Q1", c.Metadata["entity_id"])
	}
}

func TestFilterShort(t *testing.T) {
	chunks := []schema.Document{
		{PageContent: "short"},
		{PageContent: strings.Repeat("x", 10)},
		{PageContent: strings.Repeat("é", 10)},
		{PageContent: strings.Repeat("y", 9)},
	}
	kept := FilterShort(chunks, 10)
	require.Len(t, kept, 2)
	assert.Equal(t, strings.Repeat("x", 10), kept[0].PageContent)
	assert.Empty(t, FilterShort(nil, 10))
}

type blockingChunker struct {
	release chan struct{}
}

func (b blockingChunker) Split(ctx context.Context, _ ai.Embedder, docs []schema.Document) ([]schema.Document, error) {
	<-b.release
	return docs, nil
}

func TestSplitWithTimeout_NeverReturns(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := SplitWithTimeout(context.Background(), blockingChunker{release: release}, nil,
		[]schema.Document{{PageContent: "x"}}, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSplitWithTimeout_FinishesInTime(t *testing.T) {
	docs := []schema.Document{{PageContent: "Cats purr. Cars honk."}}
	chunks, err := SplitWithTimeout(context.Background(), &SemanticChunker{BufferSize: 0, BreakpointPercentile: 50},
		topicEmbedder(), docs, time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

type panickingChunker struct{}

func (panickingChunker) Split(context.Context, ai.Embedder, []schema.Document) ([]schema.Document, error) {
	panic("bad pdf")
}

func TestSplitWithTimeout_RecoversPanic(t *testing.T) {
	_, err := SplitWithTimeout(context.Background(), panickingChunker{}, nil, nil, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad pdf")
}
