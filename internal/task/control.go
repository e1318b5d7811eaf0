package task

import (
	"context"
	"sync"

	"github.com/yanun0323/errors"
)

// Control is the cooperative cancel/pause handle owned by a single task.
//
// Cancellation is one-way and best-effort: it only takes effect when the
// executor next checks the flag, so latency is bounded by one unit of work.
type Control struct {
	mu        sync.Mutex
	cancelled bool
	paused    bool
	resume    chan struct{}
}

// NewControl creates a control in the running (not paused) state.
func NewControl() *Control {
	return &Control{}
}

// RequestCancel flips the cancellation flag. It never unflips.
func (c *Control) RequestCancel() {
	c.mu.Lock()
	c.cancelled = true
	resume := c.resume
	c.paused = false
	c.resume = nil
	c.mu.Unlock()

	// a paused executor must wake up to observe the cancel
	if resume != nil {
		close(resume)
	}
}

// Cancelled reports whether cancellation was requested.
func (c *Control) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Pause asks the executor to hold at its next safe point.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.cancelled {
		return
	}
	c.paused = true
	c.resume = make(chan struct{})
}

// Resume releases a paused executor.
func (c *Control) Resume() {
	c.mu.Lock()
	resume := c.resume
	c.paused = false
	c.resume = nil
	c.mu.Unlock()

	if resume != nil {
		close(resume)
	}
}

// Paused reports whether a pause is requested.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// WaitIfPaused blocks while the task is paused. Executors call this at safe
// points, typically once per unit of work.
func (c *Control) WaitIfPaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		if !c.paused {
			c.mu.Unlock()
			return nil
		}
		resume := c.resume
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "wait for resume")
		case <-resume:
		}
	}
}
