// Package feed turns streaming price sources into coalesced tick batches.
package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// TickHandler receives a batch of ticks holding at most one tick per symbol.
type TickHandler func(ctx context.Context, ticks []domain.Tick)

// Coalescer buffers ticks and flushes the latest tick per symbol once no new
// tick has arrived for the debounce window. A non-zero maxDelay bounds how
// long a continuous stream can postpone a flush.
type Coalescer struct {
	window   time.Duration
	maxDelay time.Duration
	handler  TickHandler
	ctx      context.Context

	mu      sync.Mutex
	pending map[string]domain.Tick
	first   time.Time
	timer   *time.Timer
	stopped bool
}

// NewCoalescer creates a Coalescer that calls handler with ctx on each flush.
func NewCoalescer(ctx context.Context, window, maxDelay time.Duration, handler TickHandler) *Coalescer {
	return &Coalescer{
		window:   window,
		maxDelay: maxDelay,
		handler:  handler,
		ctx:      ctx,
		pending:  make(map[string]domain.Tick),
	}
}

// Add buffers ticks, replacing any pending tick for the same symbol, and
// re-arms the flush timer.
func (c *Coalescer) Add(ticks ...domain.Tick) {
	if len(ticks) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	now := time.Now()
	if len(c.pending) == 0 {
		c.first = now
	}
	for _, t := range ticks {
		c.pending[t.Symbol] = t
	}

	wait := c.window
	if c.maxDelay > 0 {
		if remaining := c.first.Add(c.maxDelay).Sub(now); remaining < wait {
			wait = max(remaining, 0)
		}
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(wait, c.fire)
		return
	}
	c.timer.Reset(wait)
}

// Flush delivers pending ticks immediately.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	c.fire()
}

// Stop discards pending ticks and disables the coalescer.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	c.pending = make(map[string]domain.Tick)
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Coalescer) fire() {
	c.mu.Lock()
	if c.stopped || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	batch := make([]domain.Tick, 0, len(c.pending))
	for _, t := range c.pending {
		batch = append(batch, t)
	}
	c.pending = make(map[string]domain.Tick)
	c.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Symbol < batch[j].Symbol })
	c.handler(c.ctx, batch)
}
