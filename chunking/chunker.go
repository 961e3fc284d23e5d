// Package chunking splits extracted pages into the chunks that get embedded.
//
// Two strategies are available. SemanticChunker places breaks where the
// embedding distance between neighbouring sentences spikes; it needs an
// embedder and its cost is not bounded by the input size, so callers run
// it through SplitWithTimeout. RecursiveChunker is the size-based
// langchaingo splitter.
package chunking

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/poiesic/embedsync/ai"
)

var (
	// ErrTimeout indicates chunking did not finish within the allowed time.
	ErrTimeout = errors.New("chunking timed out")

	// ErrEmbedderRequired indicates a semantic split without an embedder.
	ErrEmbedderRequired = errors.New("embedder required for semantic chunking")
)

// Chunker splits documents into chunks. Chunks inherit the metadata of the
// document they came from.
type Chunker interface {
	Split(ctx context.Context, embedder ai.Embedder, docs []schema.Document) ([]schema.Document, error)
}

// SplitWithTimeout runs c.Split and gives up after timeout, returning
// ErrTimeout. The split keeps running in the background until it notices
// the cancelled context, so the embedder passed in must not be reused
// after a timeout.
func SplitWithTimeout(ctx context.Context, c Chunker, embedder ai.Embedder, docs []schema.Document, timeout time.Duration) ([]schema.Document, error) {
	if timeout <= 0 {
		return c.Split(ctx, embedder, docs)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		chunks []schema.Document
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("chunker panic: %v", r)}
			}
		}()
		chunks, err := c.Split(ctx, embedder, docs)
		done <- result{chunks: chunks, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return res.chunks, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, ctx.Err()
	}
}

// FilterShort drops chunks whose content has fewer than minLength characters.
func FilterShort(chunks []schema.Document, minLength int) []schema.Document {
	out := chunks[:0:0]
	for _, c := range chunks {
		if utf8.RuneCountInString(c.PageContent) >= minLength {
			out = append(out, c)
		}
	}
	return out
}

// RecursiveChunker splits by size on paragraph, line and word boundaries.
type RecursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewRecursiveChunker returns a size-based chunker.
func NewRecursiveChunker(chunkSize, chunkOverlap int) *RecursiveChunker {
	return &RecursiveChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Split ignores the embedder.
func (r *RecursiveChunker) Split(ctx context.Context, _ ai.Embedder, docs []schema.Document) ([]schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return textsplitter.SplitDocuments(r.splitter, docs)
}

func copyMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
