package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func refs(pairs ...string) []core.ArtifactRef {
	out := make([]core.ArtifactRef, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, core.ArtifactRef{EntityID: pairs[i], Key: pairs[i+1]})
	}
	return out
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(" ")
	assert.ErrorIs(t, err, storage.ErrPathRequired)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx))

	counts, err := s.CountByTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Counts{"entities": 0, "artifacts": 0, "embeddings": 0}, counts)
}

func TestEnsureSchema_MigratesStatusColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	ctx := context.Background()

	legacy, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`CREATE TABLE embeddings (
		entity_id TEXT NOT NULL, artifact_key TEXT NOT NULL, last_updated_at TEXT NOT NULL,
		PRIMARY KEY (entity_id, artifact_key))`)
	require.NoError(t, err)
	_, err = legacy.Exec(`INSERT INTO embeddings VALUES ('Q1', 'a.pdf', '2024-01-01T00:00:00Z')`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.EnsureSchema(ctx))

	sess, err := s.OpenSession(ctx)
	require.NoError(t, err)
	defer sess.Close()

	status, found, err := sess.EmbeddingStatus(ctx, core.ArtifactRef{EntityID: "Q1", Key: "a.pdf"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, core.Status(""), status)

	counts, err := s.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[core.Status]int{"": 1}, counts)
}

func TestUpserts_AreIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.UpsertEntities(ctx, []string{"Q1", "Q2"}, now))
	require.NoError(t, s.UpsertEntities(ctx, []string{"Q2", "Q3"}, now.Add(time.Minute)))
	require.NoError(t, s.UpsertArtifacts(ctx, refs("Q1", "a1", "Q2", "a2"), now))
	require.NoError(t, s.UpsertArtifacts(ctx, refs("Q1", "a1"), now))
	require.NoError(t, s.UpsertEntities(ctx, nil, now))

	counts, err := s.CountByTable(ctx, storage.TableEntities, storage.TableArtifacts)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[storage.TableEntities])
	assert.Equal(t, 2, counts[storage.TableArtifacts])
}

func TestCountByTable_UnknownTable(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CountByTable(context.Background(), "entities; DROP TABLE entities")
	assert.ErrorIs(t, err, storage.ErrUnknownTable)
}

func TestPendingArtifacts_Scenario(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.UpsertEntities(ctx, []string{"E1", "E2"}, now))
	require.NoError(t, s.UpsertArtifacts(ctx, refs("E1", "a1", "E2", "a2", "E9", "orphan"), now))

	pending, err := s.PendingArtifacts(ctx, storage.PendingQuery{})
	require.NoError(t, err)
	assert.Equal(t, refs("E1", "a1", "E2", "a2"), pending)

	for _, ref := range pending {
		require.NoError(t, s.RecordEmbeddingOutcome(ctx, ref, now, core.StatusOK))
	}

	pending, err = s.PendingArtifacts(ctx, storage.PendingQuery{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingArtifacts_FailurePolicy(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.UpsertEntities(ctx, []string{"E1"}, now))
	require.NoError(t, s.UpsertArtifacts(ctx, refs("E1", "ok", "E1", "planned", "E1", "slow", "E1", "big", "E1", "new"), now))
	require.NoError(t, s.RecordEmbeddingOutcome(ctx, core.ArtifactRef{EntityID: "E1", Key: "ok"}, now, core.StatusOK))
	require.NoError(t, s.MarkPlanned(ctx, refs("E1", "planned"), now))
	require.NoError(t, s.RecordEmbeddingOutcome(ctx, core.ArtifactRef{EntityID: "E1", Key: "slow"}, now, core.StatusFailedTimeout))
	require.NoError(t, s.RecordEmbeddingOutcome(ctx, core.ArtifactRef{EntityID: "E1", Key: "big"}, now, core.StatusFailedTooLarge))

	pending, err := s.PendingArtifacts(ctx, storage.PendingQuery{})
	require.NoError(t, err)
	assert.Equal(t, refs("E1", "new"), pending)

	pending, err = s.PendingArtifacts(ctx, storage.PendingQuery{RetryFailed: true})
	require.NoError(t, err)
	assert.Equal(t, refs("E1", "big", "E1", "new", "E1", "slow"), pending)

	pending, err = s.PendingArtifacts(ctx, storage.PendingQuery{RetryFailed: true, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	counts, err := s.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[core.Status]int{
		core.StatusOK:             1,
		core.StatusPlanned:        1,
		core.StatusFailedTimeout:  1,
		core.StatusFailedTooLarge: 1,
	}, counts)
}

func TestEntitiesWithArtifacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.UpsertEntities(ctx, []string{"Q1", "Q2", "Q3"}, now))
	require.NoError(t, s.UpsertArtifacts(ctx, refs("Q1", "a", "Q1", "b", "Q3", "c", "Q4", "d"), now))

	count, sample, err := s.EntitiesWithArtifacts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"Q1"}, sample)

	count, sample, err = s.EntitiesWithArtifacts(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Nil(t, sample)
}

func TestSession_StatusAndRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ref := core.ArtifactRef{EntityID: "Q7", Key: "raw_pdf/Q7/doc.pdf"}

	sess, err := s.OpenSession(ctx)
	require.NoError(t, err)
	defer sess.Close()

	_, found, err := sess.EmbeddingStatus(ctx, ref)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, sess.RecordEmbeddingOutcome(ctx, ref, time.Now(), core.StatusFailedTimeout))
	status, found, err := sess.EmbeddingStatus(ctx, ref)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, core.StatusFailedTimeout, status)

	require.NoError(t, sess.RecordEmbeddingOutcome(ctx, ref, time.Now(), core.StatusOK))
	status, _, err = sess.EmbeddingStatus(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, core.StatusOK, status)
}

func TestRecordEmbeddingOutcome_Rejects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.RecordEmbeddingOutcome(ctx, core.ArtifactRef{EntityID: "Q7"}, time.Now(), core.StatusOK)
	assert.ErrorIs(t, err, core.ErrInvalidArtifactRef)

	err = s.RecordEmbeddingOutcome(ctx, core.ArtifactRef{EntityID: "Q7", Key: "doc.pdf"}, time.Now(), core.Status("done"))
	assert.ErrorIs(t, err, core.ErrInvalidStatus)

	counts, err := s.CountByTable(ctx, storage.TableEmbeddings)
	require.NoError(t, err)
	assert.Zero(t, counts[storage.TableEmbeddings])
}

func TestSession_ConcurrentWorkers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const workers = 4
	const perWorker = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				sess, err := s.OpenSession(ctx)
				if err != nil {
					errs <- err
					return
				}
				ref := core.ArtifactRef{EntityID: fmt.Sprintf("Q%d", w), Key: fmt.Sprintf("doc%d.pdf", i)}
				errs <- sess.RecordEmbeddingOutcome(ctx, ref, time.Now(), core.StatusOK)
				_ = sess.Close()
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counts, err := s.CountByTable(ctx, storage.TableEmbeddings)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, counts[storage.TableEmbeddings])
}

func TestClosedStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.EnsureSchema(context.Background()), storage.ErrStorageClosed)
	_, err = s.OpenSession(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
