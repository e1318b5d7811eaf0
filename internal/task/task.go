package task

import (
	"context"
	"sync"
	"time"

	"main/internal/limiter"
)

// Params carries the arbitrary key-value inputs a task was submitted with.
type Params map[string]any

// Executor performs a task's work. It receives the task for progress updates
// and the queue's shared rate limiter for outbound request pacing. Returning
// an error marks the task failed; cancellation is observed via t.Control().
type Executor func(ctx context.Context, t *Task, limit *limiter.Bucket) error

// Task is one submitted unit of work tracked by a Queue.
//
// Exactly one worker mutates a task while it runs. Concurrent readers take a
// Snapshot, so they always see a self-consistent aggregate.
type Task struct {
	mu sync.Mutex

	id          string
	kind        string
	params      Params
	status      Status
	progress    float64
	message     string
	result      map[string]any
	errText     string
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	control  *Control
	executor Executor
}

// Snapshot is a consistent copy of a task's queryable state.
type Snapshot struct {
	ID          string         `json:"task_id"`
	Kind        string         `json:"task_type"`
	Params      Params         `json:"params"`
	Status      Status         `json:"status"`
	Progress    float64        `json:"progress"`
	Message     string         `json:"message"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
}

func newTask(id, kind string, params Params, executor Executor) *Task {
	return &Task{
		id:        id,
		kind:      kind,
		params:    params,
		status:    StatusPending,
		message:   "queued, waiting for a worker",
		createdAt: time.Now(),
		control:   NewControl(),
		executor:  executor,
	}
}

// ID returns the task's unique id.
func (t *Task) ID() string { return t.id }

// Kind returns the task-type tag.
func (t *Task) Kind() string { return t.kind }

// Control returns the task's cancel/pause handle.
func (t *Task) Control() *Control { return t.control }

// Params returns the submitted parameters.
func (t *Task) Params() Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetProgress records progress in [0,100] with an optional message.
// Executors call this as they advance.
func (t *Task) SetProgress(progress float64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	t.progress = progress
	if message != "" {
		t.message = message
	}
}

// SetResult stores the executor's result payload.
func (t *Task) SetResult(result map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = result
}

// Snapshot copies the task's state under its lock.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:          t.id,
		Kind:        t.kind,
		Params:      t.params,
		Status:      t.status,
		Progress:    t.progress,
		Message:     t.message,
		Result:      t.result,
		Error:       t.errText,
		CreatedAt:   t.createdAt,
		StartedAt:   t.startedAt,
		CompletedAt: t.completedAt,
	}
}

// transition moves the task to the next state if the edge is valid.
func (t *Task) transition(to Status, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(to, message)
}

func (t *Task) transitionLocked(to Status, message string) bool {
	if !validTransition(t.status, to) {
		return false
	}
	t.status = to
	if message != "" {
		t.message = message
	}
	switch to {
	case StatusRunning:
		if t.startedAt.IsZero() {
			t.startedAt = time.Now()
			t.progress = 0
		}
	case StatusSuccess:
		t.completedAt = time.Now()
		t.progress = 100
	case StatusFailed, StatusCancelled:
		t.completedAt = time.Now()
	}
	return true
}

// finalize forces the task into a terminal state from whatever live state it
// is in; a paused task is bounced through running first.
func (t *Task) finalize(to Status, message, errText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusPaused {
		t.transitionLocked(StatusRunning, "")
	}
	if t.transitionLocked(to, message) && errText != "" {
		t.errText = errText
	}
}
