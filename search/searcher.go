package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/embedsync/ai"
	"github.com/poiesic/embedsync/vectorstore"
)

// VerbatimBoost is added to the score of hits containing every query word.
const VerbatimBoost = 0.3

// Result is one ranked hit.
type Result struct {
	vectorstore.Hit
	// Verbatim is set when the chunk contains every significant query word.
	Verbatim bool
}

// Searcher runs similarity queries against a vector store.
type Searcher struct {
	vectors  vectorstore.Store
	embedder ai.Embedder
	minScore float32
	overscan int
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinScore drops hits whose similarity is below score.
func WithMinScore(score float32) Option {
	return func(s *Searcher) error {
		s.minScore = score
		return nil
	}
}

// WithOverscan fetches factor times the requested hits before re-ranking.
func WithOverscan(factor int) Option {
	return func(s *Searcher) error {
		if factor < 1 {
			return fmt.Errorf("overscan must be at least 1, got %d", factor)
		}
		s.overscan = factor
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(vectors vectorstore.Store, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	s := &Searcher{
		vectors:  vectors,
		embedder: embedder,
		overscan: 2,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FindSimilar returns up to maxHits chunks similar to query, ranked by score.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]Result, error) {
	return s.FindSimilarWithMonitor(ctx, query, maxHits, nil)
}

// FindSimilarWithMonitor is FindSimilar with callbacks at each stage.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query string, maxHits int, monitor SearchMonitor) ([]Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits < 1 {
		maxHits = 1
	}

	monitor.Start(query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	hits, err := s.vectors.Query(ctx, embedding, maxHits*s.overscan)
	if err != nil {
		s.logger.Error("error querying vector store", "err", err)
		return nil, err
	}
	monitor.AfterVectorQuery(hits)

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < s.minScore {
			continue
		}
		r := Result{Hit: hit}
		if containsAllQueryWords(hit.Content, query) {
			r.Verbatim = true
			r.Score += VerbatimBoost
			monitor.VerbatimHit(hit)
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)
	return results, nil
}
