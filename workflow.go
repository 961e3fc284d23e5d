package embedsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/discovery"
	"github.com/poiesic/embedsync/ingestion"
	"github.com/poiesic/embedsync/planner"
	"github.com/poiesic/embedsync/statesync"
	"github.com/poiesic/embedsync/storage"
	"github.com/poiesic/embedsync/storage/sqlite"
)

// RunOptions controls a full sync run.
type RunOptions struct {
	// Iterations is the number of embedding loops. Zero means the
	// configured pipeline.iterations.
	Iterations int
	// PerLoop caps the artifacts embedded per loop. Zero means the
	// configured pipeline.per_loop.
	PerLoop int
	// SkipDiscovery leaves the entity and artifact tables as pulled.
	SkipDiscovery bool
}

// RunResult summarizes a run.
type RunResult struct {
	Pulled     bool
	Iterations int
	Processed  int
	Baseline   storage.Counts
	Final      storage.Counts
	Commits    []string
}

func (w *Workflow) statePath() string {
	return w.cfg.Pipeline.StatePath
}

func (w *Workflow) syncer() (*statesync.Syncer, error) {
	return statesync.New(w.stateObjs, w.cfg.LakeFS.StateKey(),
		statesync.WithLogger(w.logger),
		statesync.WithClock(w.now),
	)
}

func (w *Workflow) openState(ctx context.Context) (*sqlite.Store, error) {
	store, err := sqlite.Open(w.statePath(), sqlite.WithLogger(w.logger))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// pull fetches the remote State Store. With required set, a missing remote
// copy is ErrStateNotFound.
func (w *Workflow) pull(ctx context.Context, remote *statesync.Syncer, required bool) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(w.statePath()), 0o755); err != nil {
		return false, fmt.Errorf("create state dir: %w", err)
	}
	pulled, err := remote.Pull(ctx, w.statePath())
	if err != nil {
		return false, err
	}
	if !pulled && required {
		return false, fmt.Errorf("%w: %s", ErrStateNotFound, remote.RemoteKey())
	}
	if !pulled {
		w.logger.Info("starting from a fresh state store", "path", w.statePath())
	}
	return pulled, nil
}

// publish pushes the local State Store and commits it with a message built
// from the row-count deltas. It returns the commit id, empty when nothing
// changed.
func (w *Workflow) publish(ctx context.Context, remote *statesync.Syncer, store storage.StateStore, title string, baseline storage.Counts) (string, storage.Counts, error) {
	current, err := store.CountByTable(ctx)
	if err != nil {
		return "", nil, err
	}
	changed, err := remote.Push(ctx, w.statePath())
	if err != nil {
		return "", nil, err
	}
	if !changed {
		w.logger.Info("state store unchanged; skipping commit")
		return "", current, nil
	}
	id, err := remote.Commit(ctx,
		statesync.CommitMessage(title, baseline, current),
		statesync.CommitMetadata(baseline, current),
	)
	if err != nil {
		return "", nil, err
	}
	return id, current, nil
}

func (w *Workflow) discover(ctx context.Context, store storage.StateStore) error {
	refresher, err := discovery.NewEntityRefresher(w.entities, store,
		discovery.WithPageSize(w.cfg.Catalog.PageSize),
		discovery.WithPause(w.cfg.Catalog.Pause),
		discovery.WithIncremental(w.cfg.Catalog.Incremental),
		discovery.WithEntityLogger(w.logger),
		discovery.WithEntityClock(w.now),
	)
	if err != nil {
		return err
	}
	entities, err := refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh entities: %w", err)
	}

	scanner, err := discovery.NewArtifactScanner(w.dataObjs, store,
		discovery.WithPrefix(w.cfg.LakeFS.DataPrefix),
		discovery.WithExtensions(w.cfg.LakeFS.Extensions...),
		discovery.WithConcurrency(w.cfg.LakeFS.ListConcurrency),
		discovery.WithArtifactLogger(w.logger),
		discovery.WithArtifactClock(w.now),
	)
	if err != nil {
		return err
	}
	var artifacts discovery.ScanResult
	if w.cfg.LakeFS.PerEntityListing {
		artifacts, err = scanner.ScanEntities(ctx, entities.IDs)
	} else {
		artifacts, err = scanner.Scan(ctx)
	}
	if err != nil {
		return fmt.Errorf("scan artifacts: %w", err)
	}
	w.logger.Info("discovery finished",
		"entities", entities.Fetched,
		"artifacts", artifacts.Recorded,
		"skipped", artifacts.Skipped,
	)
	return nil
}

func (w *Workflow) newPipeline(store storage.StateStore) (*ingestion.Pipeline, error) {
	p := w.cfg.Pipeline
	return ingestion.NewPipeline(store, w.dataObjs, w.vectors, w.factory,
		ingestion.WithPoolSize(p.Workers),
		ingestion.WithMaxPages(p.MaxPages),
		ingestion.WithChunkTimeout(p.ChunkTimeout),
		ingestion.WithMinChunkLength(p.MinChunkLength),
		ingestion.WithRetryFailed(p.RetryFailed),
		ingestion.WithTempDir(p.TempDir),
		ingestion.WithProgressInterval(p.ProgressInterval),
		ingestion.WithExtractor(w.extractor),
		ingestion.WithChunker(Chunker(p)),
		ingestion.WithClock(w.now),
		ingestion.WithLogger(w.logger),
	)
}

// Refresh pulls the State Store, refreshes entities and artifacts, and
// pushes the result without embedding anything.
func (w *Workflow) Refresh(ctx context.Context) (RunResult, error) {
	var result RunResult
	remote, err := w.syncer()
	if err != nil {
		return result, err
	}
	if result.Pulled, err = w.pull(ctx, remote, false); err != nil {
		return result, err
	}
	store, err := w.openState(ctx)
	if err != nil {
		return result, err
	}
	defer store.Close()

	if result.Baseline, err = store.CountByTable(ctx); err != nil {
		return result, err
	}
	if err := w.discover(ctx, store); err != nil {
		return result, err
	}
	id, final, err := w.publish(ctx, remote, store, "refresh", result.Baseline)
	if err != nil {
		return result, err
	}
	result.Final = final
	if id != "" {
		result.Commits = append(result.Commits, id)
	}
	return result, nil
}

// Run performs a full sync: pull, discover, then a number of embedding
// loops, each followed by a push and commit of the State Store.
func (w *Workflow) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = w.cfg.Pipeline.Iterations
	}
	perLoop := opts.PerLoop
	if perLoop <= 0 {
		perLoop = w.cfg.Pipeline.PerLoop
	}
	w.logger.Info("starting run", "iterations", iterations, "per_loop", perLoop)

	var result RunResult
	remote, err := w.syncer()
	if err != nil {
		return result, err
	}
	if result.Pulled, err = w.pull(ctx, remote, false); err != nil {
		return result, err
	}
	store, err := w.openState(ctx)
	if err != nil {
		return result, err
	}
	defer store.Close()

	pipeline, err := w.newPipeline(store)
	if err != nil {
		return result, err
	}
	defer pipeline.Release()
	if _, err := pipeline.Prepare(ctx); err != nil {
		return result, err
	}

	if result.Baseline, err = store.CountByTable(ctx); err != nil {
		return result, err
	}
	if !opts.SkipDiscovery {
		if err := w.discover(ctx, store); err != nil {
			return result, err
		}
	}

	attempted := make(map[core.ArtifactRef]struct{})
	for i := 0; i < iterations; i++ {
		pending, err := w.nextBatch(ctx, store, perLoop, attempted)
		if err != nil {
			return result, err
		}

		batch, err := pipeline.Run(ctx, pending)
		if err != nil {
			return result, err
		}
		result.Processed += batch.Processed
		result.Iterations++

		title := fmt.Sprintf("embedding loop %d/%d", i+1, iterations)
		id, final, err := w.publish(ctx, remote, store, title, result.Baseline)
		if err != nil {
			return result, err
		}
		result.Final = final
		if id != "" {
			result.Commits = append(result.Commits, id)
		}
		w.logger.Info("completed iteration",
			"iteration", i+1,
			"of", iterations,
			"remaining", iterations-i-1,
			"processed", batch.Processed,
		)

		if len(pending) == 0 {
			w.logger.Info("no pending artifacts left")
			break
		}
	}
	return result, nil
}

// nextBatch returns up to limit pending refs not yet attempted in this run
// and marks them attempted. Items that end without a record stay pending,
// so they are skipped here instead of taking every later loop's slots.
func (w *Workflow) nextBatch(ctx context.Context, store storage.Resolver, limit int, attempted map[core.ArtifactRef]struct{}) ([]core.ArtifactRef, error) {
	rows, err := store.PendingArtifacts(ctx, storage.PendingQuery{
		RetryFailed: w.cfg.Pipeline.RetryFailed,
		Limit:       limit + len(attempted),
	})
	if err != nil {
		return nil, err
	}
	batch := make([]core.ArtifactRef, 0, limit)
	for _, ref := range rows {
		if len(batch) == limit {
			break
		}
		if _, seen := attempted[ref]; seen {
			continue
		}
		attempted[ref] = struct{}{}
		batch = append(batch, ref)
	}
	return batch, nil
}

// PlanRunOptions controls a plan-driven run.
type PlanRunOptions struct {
	// SyncState pulls the State Store first and pushes it afterwards.
	SyncState bool
}

// RunPlan embeds the entries of a published plan. The plan must exist
// before any other work starts.
func (w *Workflow) RunPlan(ctx context.Context, name string, opts PlanRunOptions) (RunResult, error) {
	var result RunResult
	stateDir := w.cfg.LakeFS.StateDir
	ok, err := planner.Exists(ctx, w.stateObjs, stateDir, name)
	if err != nil {
		return result, err
	}
	if !ok {
		return result, fmt.Errorf("%w: %s", planner.ErrPlanNotFound, planner.RemoteKey(stateDir, name))
	}

	remote, err := w.syncer()
	if err != nil {
		return result, err
	}
	if opts.SyncState {
		if result.Pulled, err = w.pull(ctx, remote, false); err != nil {
			return result, err
		}
	}

	doc, err := planner.Fetch(ctx, w.stateObjs, stateDir, name, w.logger)
	if err != nil {
		return result, err
	}
	w.logger.Info("running plan", "package_id", doc.PackageID, "entries", len(doc.Entries),
		"state_db_checksum", doc.StateDBChecksum)

	store, err := w.openState(ctx)
	if err != nil {
		return result, err
	}
	defer store.Close()
	if result.Baseline, err = store.CountByTable(ctx); err != nil {
		return result, err
	}

	pipeline, err := w.newPipeline(store)
	if err != nil {
		return result, err
	}
	defer pipeline.Release()
	if _, err := pipeline.Prepare(ctx); err != nil {
		return result, err
	}

	batch, err := pipeline.Run(ctx, doc.Refs())
	if err != nil {
		return result, err
	}
	result.Processed = batch.Processed
	result.Iterations = 1

	if !opts.SyncState {
		result.Final, err = store.CountByTable(ctx)
		return result, err
	}
	id, final, err := w.publish(ctx, remote, store, "plan "+doc.PackageID, result.Baseline)
	if err != nil {
		return result, err
	}
	result.Final = final
	if id != "" {
		result.Commits = append(result.Commits, id)
	}
	return result, nil
}

// PlanOptions controls plan generation.
type PlanOptions struct {
	// PackageSize and Packages override the configured values when positive.
	PackageSize int
	Packages    int
	// Publish pushes the reservation and uploads the plan files.
	Publish bool
}

// Plan pulls the State Store, reserves pending work, and writes plan
// files. With Publish, the reservation is pushed before the plans are
// uploaded so no other run can claim the same entries.
func (w *Workflow) Plan(ctx context.Context, opts PlanOptions) (planner.Result, error) {
	remote, err := w.syncer()
	if err != nil {
		return planner.Result{}, err
	}
	if _, err := w.pull(ctx, remote, true); err != nil {
		return planner.Result{}, err
	}
	checksum, err := statesync.FileChecksum(w.statePath())
	if err != nil {
		return planner.Result{}, err
	}

	store, err := w.openState(ctx)
	if err != nil {
		return planner.Result{}, err
	}
	defer store.Close()
	baseline, err := store.CountByTable(ctx)
	if err != nil {
		return planner.Result{}, err
	}

	packageSize := w.cfg.Planner.PackageSize
	if opts.PackageSize > 0 {
		packageSize = opts.PackageSize
	}
	packages := w.cfg.Planner.Packages
	if opts.Packages > 0 {
		packages = opts.Packages
	}
	p, err := planner.New(store,
		planner.WithPackageSize(packageSize),
		planner.WithPackages(packages),
		planner.WithOutputDir(w.cfg.Planner.OutputDir),
		planner.WithWorkerPrefix(w.cfg.Planner.WorkerPrefix),
		planner.WithRetryFailed(w.cfg.Pipeline.RetryFailed),
		planner.WithClock(w.now),
		planner.WithLogger(w.logger),
	)
	if err != nil {
		return planner.Result{}, err
	}
	result, err := p.Plan(ctx, checksum)
	if err != nil {
		return result, err
	}

	if !opts.Publish {
		if len(result.Files) > 0 {
			w.logger.Info("skipped upload; plans written locally only", "files", len(result.Files))
		}
		return result, nil
	}
	if len(result.Files) == 0 {
		return result, nil
	}
	title := fmt.Sprintf("planner: %d plan files", len(result.Files))
	if _, _, err := w.publish(ctx, remote, store, title, baseline); err != nil {
		return result, err
	}
	if err := planner.Publish(ctx, w.stateObjs, w.cfg.LakeFS.StateDir, result.Files, w.logger); err != nil {
		return result, err
	}
	if _, err := remote.Commit(ctx, title+" uploaded", nil); err != nil {
		return result, err
	}
	return result, nil
}

// IsStateNotFound reports whether err means the remote State Store is missing.
func IsStateNotFound(err error) bool {
	return errors.Is(err, ErrStateNotFound)
}
