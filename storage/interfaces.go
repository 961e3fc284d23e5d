package storage

import (
	"context"
	"time"

	"github.com/poiesic/embedsync/core"
)

// Table names accepted by CountByTable.
const (
	TableEntities   = "entities"
	TableArtifacts  = "artifacts"
	TableEmbeddings = "embeddings"
)

// Tables lists every table of the schema in creation order.
var Tables = []string{TableEntities, TableArtifacts, TableEmbeddings}

// Counts maps table names to row counts.
type Counts map[string]int

// Delta returns current minus baseline for every table in current.
func (c Counts) Delta(baseline Counts) Counts {
	out := make(Counts, len(c))
	for name, n := range c {
		out[name] = n - baseline[name]
	}
	return out
}

// StateStore provides the mutations and snapshots of the State Store.
// Implementations must be safe for concurrent use by multiple goroutines.
type StateStore interface {
	// EnsureSchema creates the tables if absent and migrates older layouts.
	// Safe to call on every startup.
	EnsureSchema(ctx context.Context) error

	// UpsertEntities inserts or refreshes entity rows with the given timestamp.
	UpsertEntities(ctx context.Context, ids []string, seenAt time.Time) error

	// UpsertArtifacts inserts or refreshes artifact rows with the given timestamp.
	UpsertArtifacts(ctx context.Context, refs []core.ArtifactRef, seenAt time.Time) error

	// RecordEmbeddingOutcome inserts or replaces the embedding record for ref.
	RecordEmbeddingOutcome(ctx context.Context, ref core.ArtifactRef, at time.Time, status core.Status) error

	// MarkPlanned records every ref as planned in a single transaction.
	MarkPlanned(ctx context.Context, refs []core.ArtifactRef, at time.Time) error

	// CountByTable returns row counts for the named tables, or for all
	// tables when no names are given. Returns ErrUnknownTable for names
	// outside the schema.
	CountByTable(ctx context.Context, names ...string) (Counts, error)

	// StatusCounts returns the number of embedding records per status.
	// Records without a status are reported under the empty status.
	StatusCounts(ctx context.Context) (map[core.Status]int, error)

	// OpenSession returns a Session bound to a dedicated connection.
	OpenSession(ctx context.Context) (Session, error)

	// Close releases the underlying database.
	Close() error
}

// Session is a single-goroutine handle used by one embedding worker for
// one item. Callers must Close it on every exit path.
type Session interface {
	// EmbeddingStatus returns the recorded status for ref and whether a
	// record exists at all.
	EmbeddingStatus(ctx context.Context, ref core.ArtifactRef) (core.Status, bool, error)

	// RecordEmbeddingOutcome inserts or replaces the embedding record for ref.
	RecordEmbeddingOutcome(ctx context.Context, ref core.ArtifactRef, at time.Time, status core.Status) error

	Close() error
}

// PendingQuery selects pending work.
type PendingQuery struct {
	// RetryFailed also returns artifacts whose last attempt ended in a
	// failed-* status.
	RetryFailed bool
	// Limit caps the number of returned refs. Zero means no limit.
	Limit int
}

// Resolver computes derived state with read-only join queries.
type Resolver interface {
	// PendingArtifacts returns artifacts of known entities that have no
	// embedding record, ordered by entity id then artifact key.
	PendingArtifacts(ctx context.Context, q PendingQuery) ([]core.ArtifactRef, error)

	// EntitiesWithArtifacts returns how many entities have at least one
	// artifact, plus up to sampleSize of their ids.
	EntitiesWithArtifacts(ctx context.Context, sampleSize int) (int, []string, error)
}

// Store combines the State Store and the Resolver over one database.
type Store interface {
	StateStore
	Resolver
}
