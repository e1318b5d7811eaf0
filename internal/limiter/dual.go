package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"golang.org/x/sync/semaphore"
)

// Dual combines a bounded concurrency gate with a minimum inter-acquisition
// interval. It is used where outbound calls also pin local resources, so a
// pure rate ceiling is not enough.
type Dual struct {
	slots *semaphore.Weighted

	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewDual creates a limiter allowing at most maxConcurrent holders with
// acquisitions spaced at least 1/ratePerSecond apart.
func NewDual(maxConcurrent int, ratePerSecond float64) *Dual {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Dual{
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		interval: time.Duration(float64(time.Second) / ratePerSecond),
	}
}

// Acquire obtains a concurrency slot, then delays until the minimum interval
// since the previous acquisition has passed. The two controls are independent:
// the slot is held while the caller is rate-delayed.
func (d *Dual) Acquire(ctx context.Context) error {
	if err := d.slots.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "acquire concurrency slot")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if wait := d.interval - now.Sub(d.last); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.slots.Release(1)
			return errors.Wrap(ctx.Err(), "rate delay")
		case <-timer.C:
		}
	}
	d.last = time.Now()
	return nil
}

// Release frees the concurrency slot. The rate timer is unaffected.
func (d *Dual) Release() {
	d.slots.Release(1)
}
