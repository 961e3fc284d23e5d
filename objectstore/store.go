// Package objectstore defines the versioned key-value object store that
// holds the documents, the State Store file and the plan documents.
//
// Keys are hierarchical slash-separated strings relative to a branch.
// Implementations report failures as *Error values classified by Kind,
// so callers never inspect error strings.
package objectstore

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key string
	// Size in bytes.
	Size int64
	// Checksum is the store's content checksum, hex encoded MD5 for
	// objects uploaded in one part.
	Checksum string
	ModTime  time.Time
}

// Store is a key-value object API over one branch of a versioned repository.
type Store interface {
	// Stat returns metadata for key, or an error of KindNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Get opens key for reading. Callers must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put uploads size bytes from r to key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Commit records pending uploads as a new version on the branch and
	// returns its reference. Returns an error of KindNoChanges when there
	// is nothing to commit.
	Commit(ctx context.Context, message string, metadata map[string]string) (string, error)
}
