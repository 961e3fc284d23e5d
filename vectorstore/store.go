// Package vectorstore defines the collection-based vector database used to
// hold chunk embeddings.
package vectorstore

import (
	"context"
	"errors"
)

// ContentField is the payload key holding the chunk text. A full-text
// index is kept on it.
const ContentField = "page_content"

var (
	// ErrDimensionMismatch indicates a vector of the wrong size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCollectionNotFound indicates the collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrUnavailable indicates the vector store could not be reached.
	ErrUnavailable = errors.New("vector store unavailable")
)

// Point is one vector with its id and payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is one similarity search result.
type Hit struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Store manages a single collection.
type Store interface {
	// Available checks that the server answers.
	Available(ctx context.Context) error

	// EnsureCollection creates the collection with the given vector size
	// when it is missing, and makes sure the text index on ContentField
	// exists. It reports whether the collection was created.
	EnsureCollection(ctx context.Context, dimension int) (bool, error)

	// RecreateCollection drops the collection if present and creates it again.
	RecreateCollection(ctx context.Context, dimension int) error

	// Upsert writes points, replacing any with the same id.
	Upsert(ctx context.Context, points []Point) error

	// Query returns the limit points closest to vector.
	Query(ctx context.Context, vector []float32, limit int) ([]Hit, error)

	// Count returns the number of points in the collection.
	Count(ctx context.Context) (uint64, error)

	Close() error
}
