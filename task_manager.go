// task_manager.go - Cancellable build/run/reduce tasks on a bounded worker pool

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskCompleted
	TaskFailed
	TaskCancelling
	TaskCancelled
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelling:
		return "cancelling"
	case TaskCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transition can happen in this run.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ProgressEvent is emitted after every finished unit and on every status change.
type ProgressEvent struct {
	TaskID    string
	Status    TaskStatus
	Completed int
	Total     int
	Current   string
}

// ProgressFunc receives progress events. Events of one run are delivered
// from a single goroutine, in order.
type ProgressFunc func(ProgressEvent)

// TaskSpec describes the three phases of a task.
type TaskSpec[U, R any] struct {
	Name    string
	Workers int // 0 means one per CPU

	// Build lists the units of work.
	Build func(ctx context.Context) ([]U, error)
	// Run processes one unit. It must return promptly once ctx is done.
	Run func(ctx context.Context, unit U) (R, error)
	// Reduce receives every result in unit order once all units succeeded.
	Reduce func(ctx context.Context, results []R) error

	// Describe labels a unit for progress events.
	Describe func(unit U) string
	// OnUnit is called by the monitor for every finished unit, in completion
	// order, until the task is cancelled.
	OnUnit func(index int, unit U, result R, err error)
	// ContinueOnError keeps going after a unit error; failed units leave a
	// zero result and are reported through OnUnit only.
	ContinueOnError bool

	Progress ProgressFunc
}

type unitResult[R any] struct {
	index  int
	result R
	err    error
}

// Task runs a TaskSpec. It may be restarted once it reaches a terminal state.
type Task[U, R any] struct {
	spec TaskSpec[U, R]
	log  *slog.Logger

	mu        sync.Mutex
	status    TaskStatus
	id        string
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
	err       error
	results   []R
}

// NewTask creates a pending task.
func NewTask[U, R any](spec TaskSpec[U, R]) *Task[U, R] {
	if spec.Name == "" {
		spec.Name = "task"
	}
	return &Task[U, R]{
		spec: spec,
		log:  slog.Default().With("component", "task", "task", spec.Name),
	}
}

// ID is the identifier of the current or last run.
func (t *Task[U, R]) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// Status returns the current status.
func (t *Task[U, R]) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// IsRunning is true while workers may still be active.
func (t *Task[U, R]) IsRunning() bool {
	s := t.Status()
	return s == TaskRunning || s == TaskCancelling
}

// IsCancelling is true between Cancel and the pool draining.
func (t *Task[U, R]) IsCancelling() bool {
	return t.Status() == TaskCancelling
}

// Start launches the task. It returns ErrTaskRunning while a previous run
// is still active.
func (t *Task[U, R]) Start(parent context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == TaskRunning || t.status == TaskCancelling {
		return ErrTaskRunning
	}
	ctx, cancel := context.WithCancel(parent)
	t.id = uuid.NewString()
	t.cancel = cancel
	t.cancelled.Store(false)
	t.done = make(chan struct{})
	t.err = nil
	t.results = nil
	t.status = TaskRunning
	t.log.Info("task started", "id", t.id)

	go t.supervise(ctx, t.id, t.done)
	return nil
}

// Cancel requests cancellation and returns immediately. Units not yet
// started are discarded; the supervisor drains the pool in the background.
func (t *Task[U, R]) Cancel() {
	t.mu.Lock()
	switch {
	case t.status == TaskPending:
		t.status = TaskCancelled
		id := t.id
		t.mu.Unlock()
		t.emit(ProgressEvent{TaskID: id, Status: TaskCancelled})
		return
	case t.status.Terminal() || t.status == TaskCancelling:
		t.mu.Unlock()
		return
	}
	t.cancelled.Store(true)
	t.status = TaskCancelling
	cancel := t.cancel
	t.mu.Unlock()
	t.log.Info("task cancelling", "id", t.ID())
	cancel()
}

// Wait blocks until the run ends. It returns nil when completed,
// ErrTaskCancelled when cancelled, or the failure.
func (t *Task[U, R]) Wait() error {
	t.mu.Lock()
	done := t.done
	status := t.status
	t.mu.Unlock()
	if done == nil {
		if status == TaskCancelled {
			return ErrTaskCancelled
		}
		return fmt.Errorf("task %s not started", t.spec.Name)
	}
	<-done

	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case TaskCancelled:
		return ErrTaskCancelled
	case TaskFailed:
		return t.err
	}
	return nil
}

// Results returns unit results of a completed run, in unit order.
func (t *Task[U, R]) Results() []R {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TaskCompleted {
		return nil
	}
	return t.results
}

func (t *Task[U, R]) emit(ev ProgressEvent) {
	if t.spec.Progress != nil {
		t.spec.Progress(ev)
	}
}

func (t *Task[U, R]) supervise(ctx context.Context, id string, done chan struct{}) {
	defer close(done)

	t.emit(ProgressEvent{TaskID: id, Status: TaskRunning})

	units, err := t.spec.Build(ctx)
	if err != nil {
		t.finish(ctx, id, nil, fmt.Errorf("building %s: %w", t.spec.Name, err), 0, 0)
		return
	}
	total := len(units)
	t.emit(ProgressEvent{TaskID: id, Status: TaskRunning, Total: total})

	workers := t.spec.Workers
	if workers <= 0 {
		workers = DefaultConfig().WorkerCount()
	}

	events := make(chan unitResult[R], total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	go func() {
		for i, u := range units {
			if gctx.Err() != nil {
				break
			}
			i, u := i, u
			g.Go(func() error {
				// Discard units dispatched after cancellation.
				if gctx.Err() != nil {
					return nil
				}
				r, err := t.spec.Run(gctx, u)
				events <- unitResult[R]{index: i, result: r, err: err}
				if err != nil && !t.spec.ContinueOnError {
					return err
				}
				return nil
			})
		}
		g.Wait()
		close(events)
	}()

	results := make([]R, total)
	completed := 0
	var firstErr error
	cancelSeen := false

monitor:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break monitor
			}
			if t.cancelled.Load() {
				continue
			}
			completed++
			if ev.err != nil && firstErr == nil && !t.spec.ContinueOnError {
				firstErr = fmt.Errorf("%s unit %d: %w", t.spec.Name, ev.index, ev.err)
			}
			if ev.err == nil {
				results[ev.index] = ev.result
			}
			if t.spec.OnUnit != nil {
				t.spec.OnUnit(ev.index, units[ev.index], ev.result, ev.err)
			}
			current := ""
			if t.spec.Describe != nil {
				current = t.spec.Describe(units[ev.index])
			}
			if !t.cancelled.Load() {
				t.emit(ProgressEvent{TaskID: id, Status: TaskRunning, Completed: completed, Total: total, Current: current})
			}
		case <-ctx.Done():
			if !cancelSeen {
				cancelSeen = true
				t.markCancelling()
				t.emit(ProgressEvent{TaskID: id, Status: TaskCancelling, Completed: completed, Total: total})
			}
			// Keep draining until the pool has joined.
			for range events {
			}
			break monitor
		}
	}

	t.finish(ctx, id, results, firstErr, completed, total)
}

func (t *Task[U, R]) markCancelling() {
	t.cancelled.Store(true)
	t.mu.Lock()
	if t.status == TaskRunning {
		t.status = TaskCancelling
	}
	t.mu.Unlock()
}

func (t *Task[U, R]) finish(ctx context.Context, id string, results []R, runErr error, completed, total int) {
	status := TaskCompleted
	var err error
	switch {
	case t.cancelled.Load() || ctx.Err() != nil:
		status = TaskCancelled
	case runErr != nil:
		status = TaskFailed
		err = runErr
	case t.spec.Reduce != nil:
		if rerr := t.spec.Reduce(ctx, results); rerr != nil {
			if errors.Is(rerr, context.Canceled) {
				status = TaskCancelled
			} else {
				status = TaskFailed
				err = fmt.Errorf("reducing %s: %w", t.spec.Name, rerr)
			}
		}
	}

	t.mu.Lock()
	t.status = status
	t.err = err
	if status == TaskCompleted {
		t.results = results
	}
	cancel := t.cancel
	t.mu.Unlock()
	cancel()

	if err != nil {
		t.log.Warn("task failed", "id", id, "err", err)
	} else {
		t.log.Info("task finished", "id", id, "status", status, "completed", completed, "total", total)
	}
	t.emit(ProgressEvent{TaskID: id, Status: status, Completed: completed, Total: total})
}
