package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/jakesower/gtfs-import/contracts"
)

// WorkFunc is the deferred work of a task. upstream holds the values of the
// task's dependencies, in declaration order.
type WorkFunc func(ctx context.Context, upstream []any) (any, error)

// Task is a single unit of deferred work with zero or more dependencies.
// Its result slot is written exactly once; readers block until it is.
//
// Thread-safety: state transitions are guarded by mu. Value and Err may be
// called from any goroutine.
type Task struct {
	ID   contracts.TaskID
	Seq  int
	Step contracts.StepName

	deps []*Task
	work WorkFunc

	mu    sync.Mutex
	state contracts.TaskState
	value any
	err   error
	done  chan struct{}
}

// NewTask declares a task that runs work once every task in deps succeeded.
// Nothing runs until the task is handed to an Executor.
func NewTask(id contracts.TaskID, step contracts.StepName, work WorkFunc, deps ...*Task) *Task {
	d := make([]*Task, len(deps))
	copy(d, deps)
	return &Task{
		ID:    id,
		Step:  step,
		deps:  d,
		work:  work,
		state: contracts.TaskPending,
		done:  make(chan struct{}),
	}
}

// Deps returns the declared dependencies in order.
func (t *Task) Deps() []*Task {
	d := make([]*Task, len(t.deps))
	copy(d, t.deps)
	return d
}

// State returns the current state without blocking.
func (t *Task) State() contracts.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed once the task is terminal.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task is terminal and returns its value or error.
// If ctx ends first, only the caller gives up; the task is unaffected.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Value blocks until the task is terminal and returns its value.
func (t *Task) Value() any {
	<-t.done
	return t.value
}

// Err blocks until the task is terminal and returns its error.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// start moves the task from Pending to Running.
func (t *Task) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != contracts.TaskPending {
		return fmt.Errorf("task %s: %s -> %s: %w", t.ID, t.state, contracts.TaskRunning, contracts.ErrInvalidTransition)
	}
	t.state = contracts.TaskRunning
	return nil
}

// finish stores the outcome of work and moves the task from Running to a terminal state.
func (t *Task) finish(value any, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != contracts.TaskRunning {
		return fmt.Errorf("task %s: finish from %s: %w", t.ID, t.state, contracts.ErrInvalidTransition)
	}
	t.resolve(value, err)
	return nil
}

// abort fails a task that never started.
func (t *Task) abort(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != contracts.TaskPending {
		return fmt.Errorf("task %s: abort from %s: %w", t.ID, t.state, contracts.ErrInvalidTransition)
	}
	t.resolve(nil, err)
	return nil
}

// resolve must be called with mu held.
func (t *Task) resolve(value any, err error) {
	if err != nil {
		t.state = contracts.TaskFailed
		t.err = err
	} else {
		t.state = contracts.TaskSucceeded
		t.value = value
	}
	close(t.done)
}

// upstreamFailure returns the cause for short-circuiting this task, or nil if
// every dependency succeeded. Dependencies must already be terminal.
func (t *Task) upstreamFailure() error {
	for _, dep := range t.deps {
		if err := dep.Err(); err != nil {
			return &contracts.UpstreamError{Task: dep.ID, Err: err}
		}
	}
	return nil
}

// upstreamValues collects dependency values in declaration order.
func (t *Task) upstreamValues() []any {
	values := make([]any, len(t.deps))
	for i, dep := range t.deps {
		values[i] = dep.Value()
	}
	return values
}

// invoke runs work, converting a panic into the task's error.
func (t *Task) invoke(ctx context.Context, upstream []any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.ID, r)
		}
	}()
	if t.work == nil {
		return nil, nil
	}
	return t.work(ctx, upstream)
}

// upstreamAs extracts the i-th upstream value as T.
func upstreamAs[T any](upstream []any, i int) (T, error) {
	var zero T
	if i >= len(upstream) {
		return zero, fmt.Errorf("upstream value %d missing: %w", i, contracts.ErrInvalidInput)
	}
	v, ok := upstream[i].(T)
	if !ok {
		return zero, fmt.Errorf("upstream value %d is %T, want %T: %w", i, upstream[i], zero, contracts.ErrInvalidInput)
	}
	return v, nil
}
