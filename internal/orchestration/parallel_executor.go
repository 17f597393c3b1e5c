package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jakesower/gtfs-import/contracts"
	"github.com/jakesower/gtfs-import/internal/audit"
)

// ExecutorOptions configures a ParallelExecutor.
type ExecutorOptions struct {
	// MaxParallelism bounds the number of concurrently running tasks.
	// Zero or negative means one worker per task, i.e. no bound from the executor.
	MaxParallelism int

	// OnTaskDone is called after each task becomes terminal (optional).
	// It may be called concurrently from several workers.
	OnTaskDone func(*Task)
}

// ParallelExecutor runs every task of a WorkflowSet, respecting dependency order.
// CRITICAL: This component handles concurrent task execution.
//
// Thread-safety: resolving a task and enqueueing the dependents it unblocks
// happen under a single mutex, so concurrent completions never lose an update.
type ParallelExecutor struct {
	resolver       *DependencyResolver
	maxParallelism int
	onTaskDone     func(*Task)
}

// NewParallelExecutor creates a ParallelExecutor.
func NewParallelExecutor(opts ExecutorOptions) *ParallelExecutor {
	return &ParallelExecutor{
		resolver:       NewDependencyResolver(),
		maxParallelism: opts.MaxParallelism,
		onTaskDone:     opts.OnTaskDone,
	}
}

// execution is the state of a single Run call.
type execution struct {
	mu    sync.Mutex
	cond  *sync.Cond
	sched *Scheduler
	queue *ReadyQueue
	byID  map[contracts.TaskID]*Task
	errs  []error

	onTaskDone func(*Task)
}

// Run executes all tasks in set and returns once every task is terminal.
// Task failures are recorded on the tasks, not returned; use a ResultCollector.
//
// Returns error if:
// - set is nil (ErrInvalidInput)
// - the dependency graph is malformed (ErrDAGInvalid, ErrDepNotFound, ErrDAGCycle)
// - a task was already executed (ErrInvalidTransition)
//
// Cancelling ctx fails tasks that have not started with ErrTaskCancelled.
// Work that already started runs to completion with a context that is never cancelled.
func (p *ParallelExecutor) Run(ctx context.Context, set *WorkflowSet) error {
	if set == nil {
		return contracts.ErrInvalidInput
	}

	tasks := set.Tasks()
	dag, err := p.resolver.BuildDAG(tasks)
	if err != nil {
		return err
	}
	if err := p.resolver.Validate(dag); err != nil {
		return err
	}
	sched, err := NewScheduler(dag)
	if err != nil {
		return err
	}

	ex := &execution{
		sched:      sched,
		queue:      NewReadyQueue(),
		byID:       make(map[contracts.TaskID]*Task, len(tasks)),
		onTaskDone: p.onTaskDone,
	}
	ex.cond = sync.NewCond(&ex.mu)
	for _, task := range tasks {
		if task.State() != contracts.TaskPending {
			return fmt.Errorf("task %s is %s: %w", task.ID, task.State(), contracts.ErrInvalidTransition)
		}
		ex.byID[task.ID] = task
	}
	for _, id := range sched.Initial() {
		ex.queue.Enqueue(ex.byID[id])
	}

	workers := p.maxParallelism
	if workers <= 0 || workers > len(tasks) {
		workers = len(tasks)
	}
	audit.Log("executing workflow set", "chains", len(set.Chains()), "tasks", len(tasks), "workers", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex.work(ctx)
		}()
	}
	wg.Wait()

	return errors.Join(ex.errs...)
}

// work pulls eligible tasks until every task of the set is resolved.
func (ex *execution) work(ctx context.Context) {
	for {
		ex.mu.Lock()
		for ex.queue.Len() == 0 && ex.sched.Remaining() > 0 {
			ex.cond.Wait()
		}
		if ex.sched.Remaining() == 0 {
			ex.mu.Unlock()
			return
		}
		task, _ := ex.queue.Dequeue()
		ex.mu.Unlock()

		if err := ex.execute(ctx, task); err != nil {
			ex.mu.Lock()
			ex.errs = append(ex.errs, err)
			ex.mu.Unlock()
		}
		ex.complete(task)
	}
}

// complete resolves task and enqueues the dependents it unblocked, atomically
// with respect to other completions.
func (ex *execution) complete(task *Task) {
	ex.mu.Lock()
	next, err := ex.sched.Resolve(task.ID)
	if err != nil {
		ex.errs = append(ex.errs, err)
	}
	for _, id := range next {
		ex.queue.Enqueue(ex.byID[id])
	}
	ex.cond.Broadcast()
	ex.mu.Unlock()

	if ex.onTaskDone != nil {
		ex.onTaskDone(task)
	}
}

// execute drives one task to a terminal state. Dependencies are terminal here.
func (ex *execution) execute(ctx context.Context, task *Task) error {
	if cause := task.upstreamFailure(); cause != nil {
		audit.Log("task skipped", "task", task.ID, "step", task.Step, "cause", cause)
		return task.abort(cause)
	}
	if err := ctx.Err(); err != nil {
		audit.Log("task cancelled", "task", task.ID, "step", task.Step)
		return task.abort(fmt.Errorf("task %s: %w: %w", task.ID, contracts.ErrTaskCancelled, err))
	}

	if err := task.start(); err != nil {
		return err
	}
	audit.Debug("task started", "task", task.ID, "step", task.Step)

	value, err := task.invoke(context.WithoutCancel(ctx), task.upstreamValues())
	if err != nil {
		audit.Warn("task failed", "task", task.ID, "step", task.Step, "error", err)
	} else {
		audit.Log("task succeeded", "task", task.ID, "step", task.Step)
	}
	return task.finish(value, err)
}
