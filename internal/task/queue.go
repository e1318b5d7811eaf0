package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/limiter"
)

var (
	ErrNilExecutor = errors.New("executor is nil")
	ErrQueueFull   = errors.New("task queue full")
	ErrQueueClosed = errors.New("task queue closed")
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 1024
	defaultRate      = 0.2
	defaultBurst     = 3
)

// Config sizes a Queue.
type Config struct {
	// Workers is the worker pool size. Default 2.
	Workers int
	// QueueSize bounds the pending channel. Default 1024.
	QueueSize int
	// RatePerSecond and Burst configure the single rate limiter shared by
	// every task running on this queue. Defaults 0.2/s, burst 3.
	RatePerSecond float64
	Burst         int
}

func (cfg Config) withDefaults() Config {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	return cfg
}

// Queue runs submitted tasks on a fixed worker pool with a shared rate
// limiter. State is in-memory only; task records do not survive a restart.
type Queue struct {
	cfg   Config
	limit *limiter.Bucket

	mu      sync.Mutex
	tasks   map[string]*Task
	ch      chan *Task
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue creates a stopped queue; workers start lazily on first submit.
func NewQueue(cfg Config) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:   cfg,
		limit: limiter.NewBucket(cfg.RatePerSecond, cfg.Burst),
		tasks: make(map[string]*Task),
		ch:    make(chan *Task, cfg.QueueSize),
	}
}

// Submit enqueues a task and returns its id immediately. Workers are started
// on the first submission. A malformed executor surfaces as a failed task,
// not a submission error; only a nil executor is rejected up front.
func (q *Queue) Submit(kind string, params Params, executor Executor) (string, error) {
	if executor == nil {
		return "", ErrNilExecutor
	}

	t := newTask(uuid.NewString(), kind, params, executor)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	select {
	case q.ch <- t:
	default:
		q.mu.Unlock()
		return "", ErrQueueFull
	}
	q.tasks[t.id] = t
	q.startLocked()
	q.mu.Unlock()

	logs.Infof("task submitted: %s - %s", kind, t.id)
	return t.id, nil
}

func (q *Queue) startLocked() {
	if q.running {
		return
	}
	q.running = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	for i := range q.cfg.Workers {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	logs.Infof("task queue started with %d workers", q.cfg.Workers)
}

// Stop shuts the queue down and waits for in-flight tasks, bounded by ctx.
// Queued tasks that never started remain pending in the record map.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running || q.closed {
		q.closed = true
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	cancel := q.cancel
	q.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "stop task queue")
	case <-done:
		logs.Info("task queue stopped")
		return nil
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	logs.Infof("worker #%d started", id)

	for {
		select {
		case <-ctx.Done():
			logs.Infof("worker #%d exiting", id)
			return
		case t := <-q.ch:
			q.runTask(ctx, t)
		}
	}
}

func (q *Queue) runTask(ctx context.Context, t *Task) {
	// a cancel may have landed while the task sat in the queue
	if t.Control().Cancelled() || t.Status() == StatusCancelled {
		t.finalize(StatusCancelled, "cancelled before start", "")
		return
	}
	if !t.transition(StatusRunning, "task running") {
		return
	}

	err := q.invoke(ctx, t)

	switch {
	case t.Control().Cancelled():
		// cancellation wins even if the executor ran to completion
		t.finalize(StatusCancelled, "task cancelled", "")
		logs.Infof("task cancelled: %s - %s", t.kind, t.id)
	case err != nil:
		t.finalize(StatusFailed, fmt.Sprintf("task failed: %v", err), err.Error())
		logs.Errorf("task failed: %s - %s: %v", t.kind, t.id, err)
	default:
		t.finalize(StatusSuccess, "task completed", "")
		logs.Infof("task completed: %s - %s", t.kind, t.id)
	}
}

// invoke runs the executor, converting a panic into an error so one bad task
// never takes down the worker loop.
func (q *Queue) invoke(ctx context.Context, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("executor panic: %v", r)
		}
	}()
	return t.executor(ctx, t, q.limit)
}

// Cancel requests cancellation. A pending task is cancelled outright and its
// executor never runs; a running task gets its flag set and terminates at the
// executor's next poll point. Terminal tasks return false.
func (q *Queue) Cancel(id string) bool {
	t := q.task(id)
	if t == nil {
		return false
	}

	switch t.Status() {
	case StatusPending:
		t.Control().RequestCancel()
		return t.transition(StatusCancelled, "cancelled before start")
	case StatusRunning:
		t.Control().RequestCancel()
		t.SetProgress(t.Snapshot().Progress, "cancelling...")
		return true
	default:
		return false
	}
}

// Pause asks a running task to hold at its next safe point.
func (q *Queue) Pause(id string) bool {
	t := q.task(id)
	if t == nil {
		return false
	}
	if !t.transition(StatusPaused, "task paused") {
		return false
	}
	t.Control().Pause()
	return true
}

// Resume releases a paused task.
func (q *Queue) Resume(id string) bool {
	t := q.task(id)
	if t == nil || t.Status() != StatusPaused {
		return false
	}
	if !t.transition(StatusRunning, "task resumed") {
		return false
	}
	t.Control().Resume()
	return true
}

// HasRunningOfType reports whether any task of the given kind is pending,
// running or paused. Advisory only: nothing stops a submit racing the check.
func (q *Queue) HasRunningOfType(kind string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.Kind() == kind && t.Status().IsActive() {
			return true
		}
	}
	return false
}

// Task returns a snapshot of one task.
func (q *Queue) Task(id string) (Snapshot, bool) {
	t := q.task(id)
	if t == nil {
		return Snapshot{}, false
	}
	return t.Snapshot(), true
}

// Tasks returns snapshots of every task the queue has seen.
func (q *Queue) Tasks() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Snapshot, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.Snapshot())
	}
	return out
}

func (q *Queue) task(id string) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks[id]
}
