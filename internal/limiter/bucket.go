package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
)

var (
	ErrTooManyTokens = errors.New("requested tokens exceed burst capacity")
)

// maxWait bounds a single sleep so interleaved acquirers recompute
// their deficit instead of oversleeping a stale estimate.
const maxWait = time.Second

// Bucket is a token-bucket rate limiter shared by concurrent acquirers.
//
// Tokens refill lazily on every touch, proportional to elapsed time, and
// never exceed the burst capacity. There is no background refill goroutine.
type Bucket struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time
}

// NewBucket creates a limiter allowing rate tokens per second with the given
// burst capacity. The bucket starts full.
func NewBucket(rate float64, burst int) *Bucket {
	if rate <= 0 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Bucket{
		rate:       rate,
		burst:      float64(burst),
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// Acquire blocks until one token is available, then deducts it.
func (b *Bucket) Acquire(ctx context.Context) error {
	return b.AcquireN(ctx, 1)
}

// AcquireN blocks until n tokens are available, then deducts them atomically.
// Acquirers are serialized; the order they are served in is not guaranteed.
func (b *Bucket) AcquireN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	need := float64(n)
	if need > b.burst {
		return ErrTooManyTokens
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	for b.tokens < need {
		deficit := need - b.tokens
		wait := time.Duration(deficit / b.rate * float64(time.Second))
		if wait > maxWait {
			wait = maxWait
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), "acquire tokens")
		case <-timer.C:
		}

		b.refill(time.Now())
	}

	b.tokens -= need
	return nil
}

// Tokens reports the currently available token count after a refill.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(time.Now())
	return b.tokens
}

func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
}
