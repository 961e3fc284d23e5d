package ingestion

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/embedsync/ai"
)

// EmbedderPool lends embedder instances to workers, one per slot.
type EmbedderPool struct {
	factory ai.EmbedderFactory
	slots   chan *embedderSlot
	initMu  sync.Mutex
}

type embedderSlot struct {
	embedder ai.Embedder
}

// NewEmbedderPool returns a pool of size slots. Embedders are built lazily.
func NewEmbedderPool(factory ai.EmbedderFactory, size int) *EmbedderPool {
	if size < 1 {
		size = 1
	}
	p := &EmbedderPool{factory: factory, slots: make(chan *embedderSlot, size)}
	for i := 0; i < size; i++ {
		p.slots <- &embedderSlot{}
	}
	return p
}

// Lease is exclusive use of one slot's embedder.
type Lease struct {
	pool *EmbedderPool
	slot *embedderSlot
	once sync.Once
}

// Acquire waits for a free slot and returns a lease on its embedder,
// building the embedder if the slot has none.
func (p *EmbedderPool) Acquire(ctx context.Context) (*Lease, error) {
	var slot *embedderSlot
	select {
	case slot = <-p.slots:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if slot.embedder == nil {
		p.initMu.Lock()
		e, err := p.factory(ctx)
		p.initMu.Unlock()
		if err != nil {
			p.slots <- slot
			return nil, fmt.Errorf("build embedder: %w", err)
		}
		slot.embedder = e
	}
	return &Lease{pool: p, slot: slot}, nil
}

// Embedder returns the leased embedder.
func (l *Lease) Embedder() ai.Embedder {
	return l.slot.embedder
}

// Release returns the slot with its embedder for reuse. Calls after the
// first Release or Discard are ignored.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.slots <- l.slot
	})
}

// Discard drops the embedder and returns an empty slot, so the next
// holder builds a fresh instance.
func (l *Lease) Discard() {
	l.once.Do(func() {
		l.pool.slots <- &embedderSlot{}
	})
}
