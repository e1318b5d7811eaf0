package task

import (
	"context"
	"sync"

	"github.com/yanun0323/errors"

	"main/internal/limiter"
)

var (
	ErrUnknownJobKind     = errors.New("unknown job kind")
	ErrDuplicateJobKind   = errors.New("job kind already registered")
	ErrDuplicateJobOfKind = errors.New("a job of this kind is already in flight")
)

// Handler executes one job kind. Unlike a raw Executor, a handler is
// registered once and resolved by kind at submission time, so callers pass a
// job description instead of constructing closures.
type Handler func(ctx context.Context, t *Task, limit *limiter.Bucket, params Params) error

// Registry maps job kinds to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a kind to a handler. Registering a kind twice is an error.
func (r *Registry) Register(kind string, h Handler) error {
	if kind == "" || h == nil {
		return ErrUnknownJobKind
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[kind]; ok {
		return ErrDuplicateJobKind
	}
	r.handlers[kind] = h
	return nil
}

// Handler resolves a kind.
func (r *Registry) Handler(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// SubmitKind resolves the kind in reg and submits it to the queue. An unknown
// kind is rejected synchronously, before any task record is created.
//
// When exclusive is true the submission is refused while another job of the
// same kind is still active. The check-then-submit is advisory, not atomic.
func (q *Queue) SubmitKind(reg *Registry, kind string, params Params, exclusive bool) (string, error) {
	h, ok := reg.Handler(kind)
	if !ok {
		return "", ErrUnknownJobKind
	}
	if exclusive && q.HasRunningOfType(kind) {
		return "", ErrDuplicateJobOfKind
	}
	return q.Submit(kind, params, func(ctx context.Context, t *Task, limit *limiter.Bucket) error {
		return h(ctx, t, limit, params)
	})
}
