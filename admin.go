package embedsync

import (
	"context"
	"fmt"

	"github.com/poiesic/embedsync/ai"
	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/search"
	"github.com/poiesic/embedsync/storage"
)

// StatusReport describes the local State Store and the vector collection.
type StatusReport struct {
	Counts                storage.Counts
	Statuses              map[core.Status]int
	EntitiesWithArtifacts int
	Sample                []string
	// Points is the collection size; PointsErr is set when it could not
	// be read.
	Points    uint64
	PointsErr error
}

// Status reads the local State Store, pulling it first when pull is set.
func (w *Workflow) Status(ctx context.Context, pull bool) (StatusReport, error) {
	var report StatusReport
	if pull {
		remote, err := w.syncer()
		if err != nil {
			return report, err
		}
		if _, err := w.pull(ctx, remote, false); err != nil {
			return report, err
		}
	}

	store, err := w.openState(ctx)
	if err != nil {
		return report, err
	}
	defer store.Close()

	if report.Counts, err = store.CountByTable(ctx); err != nil {
		return report, err
	}
	if report.Statuses, err = store.StatusCounts(ctx); err != nil {
		return report, err
	}
	if report.EntitiesWithArtifacts, report.Sample, err = store.EntitiesWithArtifacts(ctx, 5); err != nil {
		return report, err
	}
	report.Points, report.PointsErr = w.vectors.Count(ctx)
	return report, nil
}

func (w *Workflow) embedder(ctx context.Context) (ai.Embedder, error) {
	e, err := w.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	return e, nil
}

// RecreateCollection drops the vector collection and creates it again at
// the dimension of the configured model. It returns that dimension.
func (w *Workflow) RecreateCollection(ctx context.Context) (int, error) {
	if err := w.vectors.Available(ctx); err != nil {
		return 0, err
	}
	e, err := w.embedder(ctx)
	if err != nil {
		return 0, err
	}
	dim, err := ai.Dimension(ctx, e)
	if err != nil {
		return 0, err
	}
	if err := w.vectors.RecreateCollection(ctx, dim); err != nil {
		return 0, err
	}
	w.logger.Info("recreated vector collection", "collection", w.cfg.Qdrant.Collection, "dimension", dim)
	return dim, nil
}

// Search runs a similarity query against the vector collection.
func (w *Workflow) Search(ctx context.Context, query string, limit int, opts ...search.Option) ([]search.Result, error) {
	e, err := w.embedder(ctx)
	if err != nil {
		return nil, err
	}
	s, err := search.NewSearcher(w.vectors, e, append([]search.Option{search.WithLogger(w.logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return s.FindSimilar(ctx, query, limit)
}
