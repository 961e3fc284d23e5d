package ingestion

import (
	"log/slog"
	"sync"
	"time"
)

// ProgressTracker logs throughput and ETA of a batch.
type ProgressTracker struct {
	logger         *slog.Logger
	total          int
	completed      int
	processed      int
	reportInterval int
	lastReported   int
	startTime      time.Time
	now            func() time.Time
	mu             sync.Mutex
}

// NewProgressTracker creates a tracker that logs every reportInterval items.
func NewProgressTracker(logger *slog.Logger, total, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		logger:         logger,
		total:          total,
		reportInterval: reportInterval,
		now:            time.Now,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = p.now()
	p.completed = 0
	p.processed = 0
	p.lastReported = 0
}

// Done records one completed item and whether it wrote a record.
func (p *ProgressTracker) Done(recorded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed++
	if recorded {
		p.processed++
	}
	if p.completed-p.lastReported >= p.reportInterval || p.completed == p.total {
		p.report()
		p.lastReported = p.completed
	}
}

// Snapshot returns completed items, recorded items, and the ETA.
func (p *ProgressTracker) Snapshot() (completed, processed int, eta time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.processed, p.eta()
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startTime.IsZero() {
		return 0
	}
	return p.now().Sub(p.startTime)
}

// eta extrapolates the remaining time from the mean time per completed item.
// Must be called with lock held.
func (p *ProgressTracker) eta() time.Duration {
	if p.completed == 0 || p.startTime.IsZero() {
		return 0
	}
	elapsed := p.now().Sub(p.startTime)
	remaining := p.total - p.completed
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(elapsed) / float64(p.completed) * float64(remaining))
}

// report logs the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := p.now().Sub(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.completed) / elapsed.Seconds()
	}
	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.completed) / float64(p.total) * 100.0
	}
	p.logger.Info("embedding progress",
		"completed", p.completed,
		"total", p.total,
		"processed", p.processed,
		"percent", percentage,
		"rate", rate,
		"eta", p.eta().Round(time.Second),
	)
}
