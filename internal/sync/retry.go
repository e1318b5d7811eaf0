package sync

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	defaultAttempts       = 3
	defaultAttemptTimeout = 60 * time.Second
	backoffStep           = 3 * time.Second
)

// Retrier wraps unreliable provider calls with a per-attempt timeout and a
// fixed linear backoff (3s, 6s, 9s between attempts).
type Retrier struct {
	// Attempts is the max number of tries. Default 3.
	Attempts int
	// AttemptTimeout bounds a single try. Default 60s.
	AttemptTimeout time.Duration
}

func (r Retrier) withDefaults() Retrier {
	if r.Attempts <= 0 {
		r.Attempts = defaultAttempts
	}
	if r.AttemptTimeout <= 0 {
		r.AttemptTimeout = defaultAttemptTimeout
	}
	return r
}

// Do runs op until it succeeds, attempts run out, or ctx is cancelled.
func (r Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	r = r.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.AttemptTimeout)
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), name)
		}
		if attempt == r.Attempts {
			break
		}

		wait := time.Duration(attempt) * backoffStep
		logs.Warnf("%s failed, retrying in %s (%d/%d): %v", name, wait, attempt, r.Attempts, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), name)
		case <-timer.C:
		}
	}
	return errors.Wrap(lastErr, name)
}
