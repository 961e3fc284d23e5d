package planner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/objectstore"
	"github.com/poiesic/embedsync/storage"
)

const (
	// DefaultPackageSize is the number of entries per plan.
	DefaultPackageSize = 10
	// DefaultWorkerPrefix names plan files plan_localworker_01.json and so on.
	DefaultWorkerPrefix = "localworker_"
	// DefaultRemoteDir is the directory plans are published under.
	DefaultRemoteDir = "planned"
)

// Planner builds plan documents from the pending work in a State Store.
type Planner struct {
	store        storage.Store
	packageSize  int
	packages     int
	outputDir    string
	workerPrefix string
	retryFailed  bool
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner) error

// WithPackageSize sets the number of entries per plan.
func WithPackageSize(n int) Option {
	return func(p *Planner) error {
		if n < 1 {
			return ErrInvalidPackageSize
		}
		p.packageSize = n
		return nil
	}
}

// WithPackages caps the number of plans written.
func WithPackages(n int) Option {
	return func(p *Planner) error {
		if n < 1 {
			return ErrInvalidPackages
		}
		p.packages = n
		return nil
	}
}

// WithOutputDir sets the local directory plan files are written to.
func WithOutputDir(dir string) Option {
	return func(p *Planner) error {
		p.outputDir = dir
		return nil
	}
}

// WithWorkerPrefix sets the prefix of generated package ids.
func WithWorkerPrefix(prefix string) Option {
	return func(p *Planner) error {
		p.workerPrefix = prefix
		return nil
	}
}

// WithRetryFailed includes failed artifacts in the pending work.
func WithRetryFailed(retry bool) Option {
	return func(p *Planner) error {
		p.retryFailed = retry
		return nil
	}
}

// WithClock sets the time source for created_at and reservations.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// New creates a Planner over store.
func New(store storage.Store, opts ...Option) (*Planner, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	p := &Planner{
		store:        store,
		packageSize:  DefaultPackageSize,
		packages:     1,
		outputDir:    "temp",
		workerPrefix: DefaultWorkerPrefix,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "planner")
	return p, nil
}

// Result describes one planning pass.
type Result struct {
	// Pending is the number of pending entries found.
	Pending int
	// Planned is the number of entries reserved.
	Planned int
	// Documents are the plans written, in package order.
	Documents []Document
	// Files are the local paths of the written plans.
	Files []string
}

// Plan reserves up to packages*packageSize pending entries and writes one
// plan file per package. stateChecksum is recorded in every document.
func (p *Planner) Plan(ctx context.Context, stateChecksum string) (Result, error) {
	pending, err := p.store.PendingArtifacts(ctx, storage.PendingQuery{RetryFailed: p.retryFailed})
	if err != nil {
		return Result{}, fmt.Errorf("list pending artifacts: %w", err)
	}
	result := Result{Pending: len(pending)}
	if len(pending) == 0 {
		p.logger.Info("no pending work found; no plan files generated")
		return result, nil
	}

	batches := Batch(pending, p.packageSize)
	if len(batches) > p.packages {
		batches = batches[:p.packages]
	}

	var reserved []core.ArtifactRef
	for _, b := range batches {
		reserved = append(reserved, b...)
	}
	createdAt := p.now().UTC()
	if err := p.store.MarkPlanned(ctx, reserved, createdAt); err != nil {
		return Result{}, fmt.Errorf("reserve planned work: %w", err)
	}
	result.Planned = len(reserved)

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create plan directory: %w", err)
	}
	for i, b := range batches {
		doc := Document{
			PlannerVersion:  Version,
			CreatedAt:       createdAt,
			StateDBChecksum: stateChecksum,
			PackageID:       PackageID(p.workerPrefix, i+1),
			Entries:         make([]Entry, len(b)),
		}
		for j, ref := range b {
			doc.Entries[j] = Entry{QID: ref.EntityID, Component: ref.Key, DocumentType: DefaultDocumentType}
		}
		file := filepath.Join(p.outputDir, FileName(doc.PackageID))
		if err := writeDocument(file, doc); err != nil {
			return Result{}, err
		}
		result.Documents = append(result.Documents, doc)
		result.Files = append(result.Files, file)
	}

	p.logger.Info("wrote plan files",
		"files", len(result.Files),
		"planned", result.Planned,
		"pending", result.Pending,
		"dir", p.outputDir,
	)
	return result, nil
}

func writeDocument(file string, doc Document) error {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return err
	}
	if err := os.WriteFile(file, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write plan %s: %w", file, err)
	}
	return nil
}

// Batch splits refs into consecutive batches of at most size entries.
func Batch(refs []core.ArtifactRef, size int) [][]core.ArtifactRef {
	if size < 1 {
		size = 1
	}
	var batches [][]core.ArtifactRef
	for start := 0; start < len(refs); start += size {
		end := min(start+size, len(refs))
		batches = append(batches, refs[start:end])
	}
	return batches
}

// RemoteKey returns the object key of a plan under stateDir.
func RemoteKey(stateDir, name string) string {
	parts := []string{}
	if d := strings.Trim(stateDir, "/"); d != "" {
		parts = append(parts, d)
	}
	parts = append(parts, DefaultRemoteDir, FileName(name))
	return path.Join(parts...)
}

// Publish uploads plan files under stateDir/planned/ in docs.
func Publish(ctx context.Context, docs objectstore.Store, stateDir string, files []string, logger *slog.Logger) error {
	if docs == nil {
		return ErrPublisherRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read plan %s: %w", file, err)
		}
		key := RemoteKey(stateDir, filepath.Base(file))
		if err := docs.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
			return fmt.Errorf("upload plan %s: %w", key, err)
		}
		logger.Info("uploaded plan file", "file", file, "key", key)
	}
	return nil
}

// Exists reports whether the named plan is present under stateDir/planned/.
func Exists(ctx context.Context, docs objectstore.Store, stateDir, name string) (bool, error) {
	_, err := docs.Stat(ctx, RemoteKey(stateDir, name))
	if objectstore.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Fetch downloads and parses the named plan. A missing plan yields
// ErrPlanNotFound.
func Fetch(ctx context.Context, docs objectstore.Store, stateDir, name string, logger *slog.Logger) (Document, error) {
	key := RemoteKey(stateDir, name)
	body, err := docs.Get(ctx, key)
	if objectstore.IsNotFound(err) {
		return Document{}, fmt.Errorf("%w: %s", ErrPlanNotFound, key)
	}
	if err != nil {
		return Document{}, fmt.Errorf("fetch plan %s: %w", key, err)
	}
	defer body.Close()

	doc, skipped, err := Parse(body, logger)
	if err != nil {
		return Document{}, err
	}
	if skipped > 0 && logger != nil {
		logger.Warn("plan contained incomplete entries", "key", key, "skipped", skipped)
	}
	return doc, nil
}
