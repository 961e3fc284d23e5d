package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/objectstore"
	"github.com/poiesic/embedsync/storage"
)

// ErrObjectStoreRequired indicates a scanner without a document store.
var ErrObjectStoreRequired = errors.New("object store required")

// DefaultExtensions is the allowlist used when none is configured.
var DefaultExtensions = []string{".pdf"}

// ArtifactScanner lists the document store and records matching files.
type ArtifactScanner struct {
	docs        objectstore.Store
	store       storage.StateStore
	prefix      string
	extensions  map[string]struct{}
	batchSize   int
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// ArtifactOption configures an ArtifactScanner.
type ArtifactOption func(*ArtifactScanner) error

// WithPrefix limits full scans to keys under prefix.
func WithPrefix(prefix string) ArtifactOption {
	return func(s *ArtifactScanner) error {
		s.prefix = prefix
		return nil
	}
}

// WithExtensions replaces the extension allowlist. Matching is case-insensitive.
func WithExtensions(exts ...string) ArtifactOption {
	return func(s *ArtifactScanner) error {
		if len(exts) == 0 {
			return errors.New("at least one extension required")
		}
		s.extensions = extensionSet(exts)
		return nil
	}
}

// WithBatchSize sets how many artifacts are upserted per transaction.
func WithBatchSize(n int) ArtifactOption {
	return func(s *ArtifactScanner) error {
		if n <= 0 {
			return errors.New("batch size must be positive")
		}
		s.batchSize = n
		return nil
	}
}

// WithConcurrency sets the number of parallel listings in per-entity scans.
func WithConcurrency(n int) ArtifactOption {
	return func(s *ArtifactScanner) error {
		if n <= 0 {
			return errors.New("concurrency must be positive")
		}
		s.concurrency = n
		return nil
	}
}

// WithArtifactLogger sets the logger.
func WithArtifactLogger(logger *slog.Logger) ArtifactOption {
	return func(s *ArtifactScanner) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithArtifactClock overrides the timestamp source.
func WithArtifactClock(now func() time.Time) ArtifactOption {
	return func(s *ArtifactScanner) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// NewArtifactScanner returns a scanner reading docs and writing store.
func NewArtifactScanner(docs objectstore.Store, store storage.StateStore, opts ...ArtifactOption) (*ArtifactScanner, error) {
	if docs == nil {
		return nil, ErrObjectStoreRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	s := &ArtifactScanner{
		docs:        docs,
		store:       store,
		extensions:  extensionSet(DefaultExtensions),
		batchSize:   500,
		concurrency: 4,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "artifact-scan")
	return s, nil
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// Accepts reports whether key has an allowed extension.
func (s *ArtifactScanner) Accepts(key string) bool {
	_, ok := s.extensions[strings.ToLower(path.Ext(key))]
	return ok
}

// EntitySegment returns the first path segment of key that is an entity id.
func EntitySegment(key string) (string, bool) {
	for _, seg := range strings.Split(key, "/") {
		if core.IsEntityID(seg) {
			return seg, true
		}
	}
	return "", false
}

// ScanResult summarizes a scan.
type ScanResult struct {
	Listed   int
	Recorded int
	Skipped  int
}

// Scan lists every object under the configured prefix and records the
// ones with an allowed extension and an entity segment.
func (s *ArtifactScanner) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	objects, err := s.docs.List(ctx, s.prefix)
	if err != nil {
		return res, fmt.Errorf("list %q: %w", s.prefix, err)
	}
	res.Listed = len(objects)

	refs := make([]core.ArtifactRef, 0, len(objects))
	for _, obj := range objects {
		if !s.Accepts(obj.Key) {
			res.Skipped++
			continue
		}
		entity, ok := EntitySegment(obj.Key)
		if !ok {
			s.logger.Debug("no entity segment in key", "key", obj.Key)
			res.Skipped++
			continue
		}
		refs = append(refs, core.ArtifactRef{EntityID: entity, Key: obj.Key})
	}

	if err := s.record(ctx, refs); err != nil {
		return res, err
	}
	res.Recorded = len(refs)
	s.logger.Info("artifact scan complete", "listed", res.Listed, "recorded", res.Recorded, "skipped", res.Skipped)
	return res, nil
}

// ScanEntities lists the sharded component folder of each entity
// ("{shard}/components/") in parallel and records the matching files.
func (s *ArtifactScanner) ScanEntities(ctx context.Context, entityIDs []string) (ScanResult, error) {
	var (
		mu   sync.Mutex
		res  ScanResult
		refs []core.ArtifactRef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range entityIDs {
		g.Go(func() error {
			prefix := ComponentPrefix(id)
			objects, err := s.docs.List(gctx, prefix)
			if err != nil {
				if objectstore.IsNotFound(err) {
					return nil
				}
				return fmt.Errorf("list %q: %w", prefix, err)
			}
			var found []core.ArtifactRef
			skipped := 0
			for _, obj := range objects {
				if !s.Accepts(obj.Key) {
					skipped++
					continue
				}
				found = append(found, core.ArtifactRef{EntityID: id, Key: obj.Key})
			}
			mu.Lock()
			res.Listed += len(objects)
			res.Skipped += skipped
			refs = append(refs, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := s.record(ctx, refs); err != nil {
		return res, err
	}
	res.Recorded = len(refs)
	s.logger.Info("entity artifact scan complete",
		"entities", len(entityIDs), "listed", res.Listed, "recorded", res.Recorded)
	return res, nil
}

// ComponentPrefix returns the per-entity folder in the sharded layout.
func ComponentPrefix(entityID string) string {
	return core.ShardEntityID(entityID) + "/components/"
}

func (s *ArtifactScanner) record(ctx context.Context, refs []core.ArtifactRef) error {
	seenAt := s.now()
	for start := 0; start < len(refs); start += s.batchSize {
		end := min(start+s.batchSize, len(refs))
		if err := s.store.UpsertArtifacts(ctx, refs[start:end], seenAt); err != nil {
			return fmt.Errorf("store artifacts: %w", err)
		}
	}
	return nil
}
