package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/embedsync/ai"
	"github.com/poiesic/embedsync/chunking"
	"github.com/poiesic/embedsync/core"
	"github.com/poiesic/embedsync/extract"
	"github.com/poiesic/embedsync/objectstore"
	"github.com/poiesic/embedsync/storage"
	"github.com/poiesic/embedsync/vectorstore"
)

const (
	// DefaultPoolSize is the number of concurrent workers.
	DefaultPoolSize = 2
	// DefaultMaxPages is the page limit above which artifacts are refused.
	DefaultMaxPages = 100
	// DefaultChunkTimeout bounds chunking of a single artifact.
	DefaultChunkTimeout = 100 * time.Second
	// DefaultMinChunkLength is the shortest chunk, in characters, kept for embedding.
	DefaultMinChunkLength = 30
)

// Pipeline embeds artifacts on a fixed-size worker pool.
type Pipeline struct {
	state     storage.StateStore
	docs      objectstore.Store
	vectors   vectorstore.Store
	extractor extract.Extractor
	chunker   chunking.Chunker
	embedders *EmbedderPool
	factory   ai.EmbedderFactory
	pool      *ants.Pool
	poolSize  int

	maxPages       int
	chunkTimeout   time.Duration
	minChunkLength int
	retryFailed    bool
	tempDir        string
	reportEvery    int

	uploadMu sync.Mutex
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of concurrent workers.
// Default is DefaultPoolSize; values below 1 become 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithMaxPages sets the page limit. Artifacts with more pages are recorded
// as failed-too-large; exactly maxPages is accepted.
func WithMaxPages(maxPages int) Option {
	return func(p *Pipeline) error {
		if maxPages < 1 {
			return fmt.Errorf("max pages must be positive, got %d", maxPages)
		}
		p.maxPages = maxPages
		return nil
	}
}

// WithChunkTimeout sets the chunking time limit per artifact.
func WithChunkTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		if timeout <= 0 {
			return fmt.Errorf("chunk timeout must be positive, got %s", timeout)
		}
		p.chunkTimeout = timeout
		return nil
	}
}

// WithMinChunkLength sets the minimum chunk length in characters.
func WithMinChunkLength(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			n = 0
		}
		p.minChunkLength = n
		return nil
	}
}

// WithRetryFailed lets workers reprocess artifacts whose record is a failure.
func WithRetryFailed(retry bool) Option {
	return func(p *Pipeline) error {
		p.retryFailed = retry
		return nil
	}
}

// WithTempDir sets the directory for downloaded artifacts.
// Default is os.TempDir().
func WithTempDir(dir string) Option {
	return func(p *Pipeline) error {
		p.tempDir = dir
		return nil
	}
}

// WithExtractor replaces the default extract.Loader.
func WithExtractor(e extract.Extractor) Option {
	return func(p *Pipeline) error {
		if e != nil {
			p.extractor = e
		}
		return nil
	}
}

// WithChunker replaces the default semantic chunker.
func WithChunker(c chunking.Chunker) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.chunker = c
		}
		return nil
	}
}

// WithProgressInterval sets how many completed items pass between
// progress log lines.
func WithProgressInterval(n int) Option {
	return func(p *Pipeline) error {
		p.reportEvery = n
		return nil
	}
}

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}

// NewPipeline creates a new embedding pipeline.
func NewPipeline(
	state storage.StateStore,
	docs objectstore.Store,
	vectors vectorstore.Store,
	factory ai.EmbedderFactory,
	opts ...Option,
) (*Pipeline, error) {
	if state == nil {
		return nil, ErrStateStoreRequired
	}
	if docs == nil {
		return nil, ErrDocumentStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if factory == nil {
		return nil, ErrEmbedderFactoryRequired
	}

	p := &Pipeline{
		state:          state,
		docs:           docs,
		vectors:        vectors,
		factory:        factory,
		poolSize:       DefaultPoolSize,
		maxPages:       DefaultMaxPages,
		chunkTimeout:   DefaultChunkTimeout,
		minChunkLength: DefaultMinChunkLength,
		tempDir:        os.TempDir(),
		reportEvery:    10,
		now:            time.Now,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.extractor == nil {
		p.extractor = extract.NewLoader(extract.WithLogger(p.logger))
	}
	if p.chunker == nil {
		p.chunker = chunking.NewSemanticChunker()
	}

	pool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	p.embedders = NewEmbedderPool(factory, p.poolSize)
	p.logger = p.logger.With("component", "embedding-pipeline")

	return p, nil
}

// Prepare checks the vector store, probes the embedding dimension, and
// makes sure the target collection exists. It returns the dimension.
func (p *Pipeline) Prepare(ctx context.Context) (int, error) {
	if err := p.vectors.Available(ctx); err != nil {
		return 0, fmt.Errorf("vector store unavailable: %w", err)
	}

	lease, err := p.embedders.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	dim, err := ai.Dimension(ctx, lease.Embedder())
	lease.Release()
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}

	created, err := p.vectors.EnsureCollection(ctx, dim)
	if err != nil {
		return 0, err
	}
	if created {
		p.logger.Info("created vector collection", "dimension", dim)
	}
	return dim, nil
}

// Result summarizes one Run.
type Result struct {
	// Total is the number of items submitted.
	Total int
	// Processed is the number of items that wrote a terminal record.
	Processed int
	// Outcomes counts items per outcome.
	Outcomes map[Outcome]int
	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// Run processes refs on the worker pool and waits for all of them.
// Per-item failures are absorbed into the result; an error is returned only
// when items could not be submitted.
func (p *Pipeline) Run(ctx context.Context, refs []core.ArtifactRef) (Result, error) {
	result := Result{Total: len(refs), Outcomes: make(map[Outcome]int)}
	if len(refs) == 0 {
		return result, nil
	}

	progress := NewProgressTracker(p.logger, len(refs), p.reportEvery)
	progress.Start()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	var submitErr error
	for _, ref := range refs {
		ref := ref
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			outcome := p.processItem(ctx, ref)
			mu.Lock()
			result.Outcomes[outcome]++
			result.Processed += outcome.Value()
			mu.Unlock()
			progress.Done(outcome.Recorded())
		})
		if err != nil {
			wg.Done()
			submitErr = fmt.Errorf("submit %s: %w", ref, err)
			break
		}
	}
	wg.Wait()

	result.Elapsed = progress.Elapsed()
	p.logger.Info("embedding batch finished",
		"total", result.Total,
		"processed", result.Processed,
		"elapsed", result.Elapsed.Round(time.Millisecond),
	)
	return result, submitErr
}

// Release shuts down the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// ProcessOne handles a single item synchronously on the calling goroutine.
func (p *Pipeline) ProcessOne(ctx context.Context, ref core.ArtifactRef) Outcome {
	return p.processItem(ctx, ref)
}

func isTimeout(err error) bool {
	return errors.Is(err, chunking.ErrTimeout)
}
