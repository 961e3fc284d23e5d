// Package memory is an in-process vectorstore.Store for tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/poiesic/embedsync/vectorstore"
)

// Store keeps points in a map and answers queries by brute-force cosine
// similarity.
type Store struct {
	mu        sync.Mutex
	dimension int
	exists    bool
	points    map[string]vectorstore.Point
	upserts   int

	// Unavailable, when set, is returned from Available.
	Unavailable error
}

// New returns a store without a collection.
func New() *Store {
	return &Store{points: make(map[string]vectorstore.Point)}
}

func (s *Store) Available(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable != nil {
		return fmt.Errorf("%w: %w", vectorstore.ErrUnavailable, s.Unavailable)
	}
	return nil
}

func (s *Store) EnsureCollection(ctx context.Context, dimension int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exists {
		if s.dimension != dimension {
			return false, fmt.Errorf("%w: collection has %d, model has %d", vectorstore.ErrDimensionMismatch, s.dimension, dimension)
		}
		return false, nil
	}
	s.exists = true
	s.dimension = dimension
	return true, nil
}

func (s *Store) RecreateCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = make(map[string]vectorstore.Point)
	s.exists = true
	s.dimension = dimension
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return vectorstore.ErrCollectionNotFound
	}
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return fmt.Errorf("%w: point %s has %d, want %d", vectorstore.ErrDimensionMismatch, p.ID, len(p.Vector), s.dimension)
		}
	}
	for _, p := range points {
		s.points[p.ID] = p
	}
	s.upserts++
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, limit int) ([]vectorstore.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return nil, vectorstore.ErrCollectionNotFound
	}
	hits := make([]vectorstore.Hit, 0, len(s.points))
	for _, p := range s.points {
		content, _ := p.Payload[vectorstore.ContentField].(string)
		md := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			if k != vectorstore.ContentField {
				md[k] = v
			}
		}
		hits = append(hits, vectorstore.Hit{ID: p.ID, Score: cosine(vector, p.Vector), Content: content, Metadata: md})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return 0, vectorstore.ErrCollectionNotFound
	}
	return uint64(len(s.points)), nil
}

func (s *Store) Close() error { return nil }

// Upserts returns the number of successful Upsert calls.
func (s *Store) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

// Point returns the stored point with id.
func (s *Store) Point(id string) (vectorstore.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[id]
	return p, ok
}

// Points returns every stored point ordered by id.
func (s *Store) Points() []vectorstore.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vectorstore.Point, 0, len(s.points))
	for _, p := range s.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dimension returns the collection's vector size.
func (s *Store) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimension
}

func cosine(a, b []float32) float32 {
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
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ vectorstore.Store = (*Store)(nil)
