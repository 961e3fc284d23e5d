package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/embedsync/storage"
)

var (
	ErrSourceRequired = errors.New("entity source required")
	ErrStoreRequired  = errors.New("state store required")
)

// EntitySource returns one page of entity ids. An empty page ends the scan.
type EntitySource interface {
	EntityPage(ctx context.Context, offset, limit int) ([]string, error)
}

// EntityRefresher pages an EntitySource into the entities table.
type EntityRefresher struct {
	source      EntitySource
	store       storage.StateStore
	pageSize    int
	pause       time.Duration
	incremental bool
	logger      *slog.Logger
	now         func() time.Time
}

// EntityOption configures an EntityRefresher.
type EntityOption func(*EntityRefresher) error

// WithPageSize sets the page size. Zero or less requests everything at once.
func WithPageSize(n int) EntityOption {
	return func(r *EntityRefresher) error {
		r.pageSize = n
		return nil
	}
}

// WithPause sets the sleep between pages.
func WithPause(d time.Duration) EntityOption {
	return func(r *EntityRefresher) error {
		if d < 0 {
			return errors.New("pause cannot be negative")
		}
		r.pause = d
		return nil
	}
}

// WithIncremental starts paging at the number of entities already stored
// instead of at zero.
func WithIncremental(on bool) EntityOption {
	return func(r *EntityRefresher) error {
		r.incremental = on
		return nil
	}
}

// WithEntityLogger sets the logger.
func WithEntityLogger(logger *slog.Logger) EntityOption {
	return func(r *EntityRefresher) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithEntityClock overrides the timestamp source.
func WithEntityClock(now func() time.Time) EntityOption {
	return func(r *EntityRefresher) error {
		if now != nil {
			r.now = now
		}
		return nil
	}
}

// NewEntityRefresher returns a refresher writing to store.
func NewEntityRefresher(source EntitySource, store storage.StateStore, opts ...EntityOption) (*EntityRefresher, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	r := &EntityRefresher{
		source:   source,
		store:    store,
		pageSize: 1000,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "entity-refresh")
	return r, nil
}

// EntityResult summarizes a refresh.
type EntityResult struct {
	StartOffset int
	Pages       int
	Fetched     int
	IDs         []string
}

// Refresh pages through the source until an empty page, upserting each
// page with a single timestamp taken at the start of the run.
func (r *EntityRefresher) Refresh(ctx context.Context) (EntityResult, error) {
	var res EntityResult
	if r.incremental {
		counts, err := r.store.CountByTable(ctx, storage.TableEntities)
		if err != nil {
			return res, fmt.Errorf("count entities: %w", err)
		}
		res.StartOffset = counts[storage.TableEntities]
	}
	seenAt := r.now()
	offset := res.StartOffset
	r.logger.Info("refreshing entities", "offset", offset, "page_size", r.pageSize)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := r.source.EntityPage(ctx, offset, r.pageSize)
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			break
		}
		if err := r.store.UpsertEntities(ctx, page, seenAt); err != nil {
			return res, fmt.Errorf("store entity page at offset %d: %w", offset, err)
		}
		res.Pages++
		res.Fetched += len(page)
		res.IDs = append(res.IDs, page...)
		r.logger.Info("stored entity page", "offset", offset, "count", len(page), "total", res.Fetched)

		if r.pageSize <= 0 {
			// Unpaged query: the single response is the whole result.
			break
		}
		offset += r.pageSize

		if r.pause > 0 {
			timer := time.NewTimer(r.pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return res, ctx.Err()
			case <-timer.C:
			}
		}
	}
	r.logger.Info("entity refresh complete", "pages", res.Pages, "fetched", res.Fetched)
	return res, nil
}
