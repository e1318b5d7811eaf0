// Package writer provides an in-memory accumulator that coalesces many small
// results into bulk writes.
package writer

import (
	"sync"
	"time"
)

const (
	defaultMaxItems      = 100
	defaultFlushInterval = 5 * time.Second
)

// Config controls when the buffer signals a flush.
type Config struct {
	// MaxItems is the size threshold. Default 100.
	MaxItems int
	// FlushInterval is the time threshold since the last flush. Default 5s.
	FlushInterval time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	return cfg
}

// Batch buffers items and reports when a flush threshold is reached.
//
// Add only signals; the actual write happens outside the buffer's lock via
// Drain, so a slow sink never extends the critical section.
type Batch[T any] struct {
	mu        sync.Mutex
	cfg       Config
	buf       []T
	lastFlush time.Time
}

// NewBatch creates a buffer with a fresh flush window.
func NewBatch[T any](cfg Config) *Batch[T] {
	cfg = cfg.withDefaults()
	return &Batch[T]{
		cfg:       cfg,
		buf:       make([]T, 0, cfg.MaxItems),
		lastFlush: time.Now(),
	}
}

// Add appends an item and reports whether the caller should flush now,
// either because the size threshold is met or the flush interval elapsed.
// Reporting true starts a fresh flush window.
func (b *Batch[T]) Add(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, item)

	now := time.Now()
	shouldFlush := len(b.buf) >= b.cfg.MaxItems || now.Sub(b.lastFlush) >= b.cfg.FlushInterval
	if shouldFlush {
		b.lastFlush = now
	}
	return shouldFlush
}

// Drain atomically copies out the buffered items and clears the buffer.
func (b *Batch[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 {
		return nil
	}
	out := make([]T, len(b.buf))
	copy(out, b.buf)
	b.buf = b.buf[:0]
	return out
}

// Len reports the number of buffered items.
func (b *Batch[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
