package planner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/embedsync/core"
	objmemory "github.com/poiesic/embedsync/objectstore/memory"
	"github.com/poiesic/embedsync/storage"
	"github.com/poiesic/embedsync/storage/sqlite"
)

var fixedNow = time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)

func seededStore(t *testing.T, pairs ...string) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(ctx))

	var ids []string
	var refs []core.ArtifactRef
	for i := 0; i+1 < len(pairs); i += 2 {
		ids = append(ids, pairs[i])
		refs = append(refs, core.ArtifactRef{EntityID: pairs[i], Key: pairs[i+1]})
	}
	require.NoError(t, s.UpsertEntities(ctx, ids, fixedNow))
	require.NoError(t, s.UpsertArtifacts(ctx, refs, fixedNow))
	return s
}

func TestParse_RoundTrip(t *testing.T) {
	doc := Document{
		PlannerVersion:  Version,
		CreatedAt:       fixedNow,
		StateDBChecksum: "d41d8cd98f00b204e9800998ecf8427e",
		PackageID:       "plan_localworker_01",
		Entries: []Entry{
			{QID: "Q2", Component: "b.pdf", DocumentType: "CRAN"},
			{QID: "Q1", Component: "a.pdf"},
			{QID: "Q3", Component: "c.pdf"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc))

	parsed, skipped, err := Parse(&buf, nil)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, doc.PackageID, parsed.PackageID)
	assert.Equal(t, doc.StateDBChecksum, parsed.StateDBChecksum)
	assert.True(t, doc.CreatedAt.Equal(parsed.CreatedAt))
	assert.Equal(t, doc.Entries, parsed.Entries)
	assert.Equal(t, []core.ArtifactRef{{EntityID: "Q2", Key: "b.pdf"}, {EntityID: "Q1", Key: "a.pdf"}, {EntityID: "Q3", Key: "c.pdf"}}, parsed.Refs())
}

func TestParse_SkipsIncompleteEntries(t *testing.T) {
	raw := `{
  "planner_version": "1.0",
  "created_at": "2025-06-02T08:30:00+00:00",
  "state_db_checksum": "abc",
  "package_id": "plan_localworker_02",
  "entries": [
    {"qid": "Q1", "component": "a.pdf"},
    {"qid": "", "component": "b.pdf"},
    {"component": "c.pdf"},
    {"qid": "Q4"},
    {"qid": "Q5", "component": "e.pdf", "document_type": "OTHER"}
  ]
}`
	doc, skipped, err := Parse(strings.NewReader(raw), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, doc.Entries, 2)
	assert.Equal(t, "Q1", doc.Entries[0].QID)
	assert.Equal(t, "OTHER", doc.Entries[1].DocumentType)
}

func TestParse_Invalid(t *testing.T) {
	_, _, err := Parse(strings.NewReader("{not json"), nil)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestFileNameAndKeys(t *testing.T) {
	assert.Equal(t, "plan_localworker_01.json", FileName("plan_localworker_01"))
	assert.Equal(t, "plan_localworker_01.json", FileName("plan_localworker_01.json"))
	assert.Equal(t, "plan_localworker_07", PackageID(DefaultWorkerPrefix, 7))
	assert.Equal(t, "state/planned/plan_x01.json", RemoteKey("/state/", "plan_x01"))
	assert.Equal(t, "planned/plan_x01.json", RemoteKey("", "plan_x01.json"))
}

func TestBatch(t *testing.T) {
	refs := []core.ArtifactRef{{EntityID: "Q1"}, {EntityID: "Q2"}, {EntityID: "Q3"}}
	batches := Batch(refs, 2)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
	assert.Empty(t, Batch(nil, 2))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	store := seededStore(t)
	_, err = New(store, WithPackageSize(0))
	assert.ErrorIs(t, err, ErrInvalidPackageSize)
	_, err = New(store, WithPackages(0))
	assert.ErrorIs(t, err, ErrInvalidPackages)
}

func TestPlan_ReservesOnlyRetainedPackages(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, "Q1", "a.pdf", "Q2", "b.pdf")
	dir := t.TempDir()

	p, err := New(store, WithPackageSize(1), WithPackages(1), WithOutputDir(dir), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	result, err := p.Plan(ctx, "checksum-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pending)
	assert.Equal(t, 1, result.Planned)
	require.Len(t, result.Files, 1)
	assert.Equal(t, filepath.Join(dir, "plan_localworker_01.json"), result.Files[0])

	f, err := os.Open(result.Files[0])
	require.NoError(t, err)
	defer f.Close()
	doc, skipped, err := Parse(f, nil)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, "checksum-1", doc.StateDBChecksum)
	assert.Equal(t, []core.ArtifactRef{{EntityID: "Q1", Key: "a.pdf"}}, doc.Refs())

	statuses, err := store.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, statuses[core.StatusPlanned])

	pending, err := store.PendingArtifacts(ctx, storage.PendingQuery{})
	require.NoError(t, err)
	assert.Equal(t, []core.ArtifactRef{{EntityID: "Q2", Key: "b.pdf"}}, pending)

	// A second pass picks up only the remainder.
	result, err = p.Plan(ctx, "checksum-2")
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "Q2", result.Documents[0].Entries[0].QID)
}

func TestPlan_NoPendingWork(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plans")
	p, err := New(seededStore(t), WithOutputDir(dir))
	require.NoError(t, err)

	result, err := p.Plan(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, result.Files)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestPublishAndFetch(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, "Q1", "a.pdf", "Q2", "b.pdf", "Q3", "c.pdf")
	p, err := New(store, WithPackageSize(2), WithPackages(5), WithOutputDir(t.TempDir()))
	require.NoError(t, err)
	result, err := p.Plan(ctx, "sum")
	require.NoError(t, err)
	require.Len(t, result.Files, 2)

	docs := objmemory.New()
	require.NoError(t, Publish(ctx, docs, "state", result.Files, nil))
	assert.Equal(t, 2, docs.Puts())

	ok, err := Exists(ctx, docs, "state", "plan_localworker_02")
	require.NoError(t, err)
	assert.True(t, ok)

	doc, err := Fetch(ctx, docs, "state", "plan_localworker_02", nil)
	require.NoError(t, err)
	assert.Equal(t, []core.ArtifactRef{{EntityID: "Q3", Key: "c.pdf"}}, doc.Refs())

	ok, err = Exists(ctx, docs, "state", "plan_localworker_09")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = Fetch(ctx, docs, "state", "plan_localworker_09", nil)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	assert.ErrorIs(t, Publish(ctx, nil, "state", result.Files, nil), ErrPublisherRequired)
}
