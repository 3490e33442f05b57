package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (l *eventLog) record(ev ProgressEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ProgressEvent(nil), l.events...)
}

func squareSpec(n, workers int, log *eventLog) TaskSpec[int, int] {
	var sum int
	return TaskSpec[int, int]{
		Name:    "squares",
		Workers: workers,
		Build: func(ctx context.Context) ([]int, error) {
			units := make([]int, n)
			for i := range units {
				units[i] = i
			}
			return units, nil
		},
		Run: func(ctx context.Context, u int) (int, error) {
			return u * u, nil
		},
		Reduce: func(ctx context.Context, results []int) error {
			for _, r := range results {
				sum += r
			}
			return nil
		},
		Progress: log.record,
	}
}

func TestTask_Completes(t *testing.T) {
	log := &eventLog{}
	task := NewTask(squareSpec(50, 4, log))
	assert.Equal(t, TaskPending, task.Status())

	require.NoError(t, task.Start(context.Background()))
	require.NoError(t, task.Wait())
	assert.Equal(t, TaskCompleted, task.Status())
	assert.False(t, task.IsRunning())
	assert.NotEmpty(t, task.ID())

	results := task.Results()
	require.Len(t, results, 50)
	for i, r := range results {
		require.Equal(t, i*i, r, "results must stay in unit order")
	}

	events := log.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, TaskRunning, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, TaskCompleted, last.Status)
	assert.Equal(t, 50, last.Completed)
	assert.Equal(t, 50, last.Total)
	prev := 0
	for _, ev := range events {
		require.Equal(t, task.ID(), ev.TaskID)
		require.GreaterOrEqual(t, ev.Completed, prev, "progress must not go backwards")
		prev = ev.Completed
	}
}

func TestTask_DoubleStart(t *testing.T) {
	release := make(chan struct{})
	task := NewTask(TaskSpec[int, int]{
		Workers: 1,
		Build:   func(ctx context.Context) ([]int, error) { return []int{1}, nil },
		Run: func(ctx context.Context, u int) (int, error) {
			<-release
			return u, nil
		},
	})
	require.NoError(t, task.Start(context.Background()))
	assert.True(t, task.IsRunning())
	assert.ErrorIs(t, task.Start(context.Background()), ErrTaskRunning)
	firstID := task.ID()

	close(release)
	require.NoError(t, task.Wait())

	// A finished task can run again under a new ID.
	require.NoError(t, task.Start(context.Background()))
	require.NoError(t, task.Wait())
	assert.NotEqual(t, firstID, task.ID())
}

func TestTask_CancelPending(t *testing.T) {
	log := &eventLog{}
	task := NewTask(squareSpec(5, 1, log))
	task.Cancel()
	assert.Equal(t, TaskCancelled, task.Status())
	assert.ErrorIs(t, task.Wait(), ErrTaskCancelled)

	events := log.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, TaskCancelled, events[0].Status)
}

func TestTask_CancelRunning(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	log := &eventLog{}
	task := NewTask(TaskSpec[int, int]{
		Workers: 2,
		Build: func(ctx context.Context) ([]int, error) {
			return make([]int, 100), nil
		},
		Run: func(ctx context.Context, u int) (int, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return 0, ctx.Err()
		},
		Reduce: func(ctx context.Context, results []int) error {
			t.Errorf("Reduce must not run after cancellation")
			return nil
		},
		Progress: log.record,
	})
	require.NoError(t, task.Start(context.Background()))
	<-started
	task.Cancel()
	task.Cancel() // idempotent

	assert.ErrorIs(t, task.Wait(), ErrTaskCancelled)
	assert.Equal(t, TaskCancelled, task.Status())
	assert.Nil(t, task.Results())

	events := log.snapshot()
	assert.Equal(t, TaskCancelled, events[len(events)-1].Status)
	for _, ev := range events {
		assert.Zero(t, ev.Completed, "no unit may be reported after cancel")
	}
}

func TestTask_ParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := NewTask(TaskSpec[int, int]{
		Workers: 1,
		Build:   func(ctx context.Context) ([]int, error) { return []int{1, 2, 3}, nil },
		Run: func(ctx context.Context, u int) (int, error) {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(5 * time.Second):
				return u, nil
			}
		},
	})
	require.NoError(t, task.Start(ctx))
	cancel()
	assert.ErrorIs(t, task.Wait(), ErrTaskCancelled)
}

func TestTask_Failure(t *testing.T) {
	boom := errors.New("boom")
	task := NewTask(TaskSpec[int, int]{
		Name:    "failing",
		Workers: 1,
		Build:   func(ctx context.Context) ([]int, error) { return []int{0, 1, 2, 3}, nil },
		Run: func(ctx context.Context, u int) (int, error) {
			if u == 2 {
				return 0, boom
			}
			return u, nil
		},
	})
	require.NoError(t, task.Start(context.Background()))
	err := task.Wait()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing unit 2")
	assert.Equal(t, TaskFailed, task.Status())
	assert.Nil(t, task.Results())
}

func TestTask_ContinueOnError(t *testing.T) {
	var mu sync.Mutex
	failed := map[int]bool{}
	task := NewTask(TaskSpec[int, int]{
		Workers:         3,
		ContinueOnError: true,
		Build:           func(ctx context.Context) ([]int, error) { return []int{1, 2, 3, 4, 5, 6}, nil },
		Run: func(ctx context.Context, u int) (int, error) {
			if u%2 == 0 {
				return 0, errors.New("even")
			}
			return u * 10, nil
		},
		OnUnit: func(index, unit, result int, err error) {
			if err != nil {
				mu.Lock()
				failed[unit] = true
				mu.Unlock()
			}
		},
	})
	require.NoError(t, task.Start(context.Background()))
	require.NoError(t, task.Wait())
	assert.Equal(t, []int{10, 0, 30, 0, 50, 0}, task.Results())
	assert.Equal(t, map[int]bool{2: true, 4: true, 6: true}, failed)
}

func TestTask_BuildAndReduceErrors(t *testing.T) {
	build := NewTask(TaskSpec[int, int]{
		Build: func(ctx context.Context) ([]int, error) { return nil, errors.New("no units") },
		Run:   func(ctx context.Context, u int) (int, error) { return u, nil },
	})
	require.NoError(t, build.Start(context.Background()))
	assert.ErrorContains(t, build.Wait(), "no units")
	assert.Equal(t, TaskFailed, build.Status())

	reduce := NewTask(TaskSpec[int, int]{
		Build:  func(ctx context.Context) ([]int, error) { return []int{1}, nil },
		Run:    func(ctx context.Context, u int) (int, error) { return u, nil },
		Reduce: func(ctx context.Context, results []int) error { return errors.New("disk full") },
	})
	require.NoError(t, reduce.Start(context.Background()))
	assert.ErrorContains(t, reduce.Wait(), "disk full")
}

func TestTask_WaitBeforeStart(t *testing.T) {
	task := NewTask(squareSpec(1, 1, &eventLog{}))
	assert.ErrorContains(t, task.Wait(), "not started")
}

func TestTaskStatus_String(t *testing.T) {
	assert.Equal(t, "cancelling", TaskCancelling.String())
	assert.True(t, TaskFailed.Terminal())
	assert.False(t, TaskCancelling.Terminal())
}
