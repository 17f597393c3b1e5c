package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jakesower/gtfs-import/contracts"
)

func TestParallelExecutor_InvalidInput(t *testing.T) {
	executor := NewParallelExecutor(ExecutorOptions{})
	if err := executor.Run(context.Background(), nil); !errors.Is(err, contracts.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParallelExecutor_EmptySet(t *testing.T) {
	executor := NewParallelExecutor(ExecutorOptions{})
	if err := executor.Run(context.Background(), NewWorkflowSet()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestParallelExecutor_UpstreamValuesInDeclaredOrder(t *testing.T) {
	create := NewTask("create", contracts.StepCreate, okWork("created"))
	analyze := NewTask("analyze", contracts.StepAnalyze, func(ctx context.Context, upstream []any) (any, error) {
		return fmt.Sprintf("analyzed(%v)", upstream[0]), nil
	}, create)

	var got []any
	publish := NewTask("publish", contracts.StepPublish, func(ctx context.Context, upstream []any) (any, error) {
		got = upstream
		return "published", nil
	}, create, analyze)

	set := NewWorkflowSet(singleChain("stops", create, analyze, publish))
	if err := NewParallelExecutor(ExecutorOptions{}).Run(context.Background(), set); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(got) != 2 || got[0] != "created" || got[1] != "analyzed(created)" {
		t.Fatalf("publish upstream = %v, want [created analyzed(created)]", got)
	}
	if publish.State() != contracts.TaskSucceeded || publish.Value() != "published" {
		t.Fatalf("publish = %s %v", publish.State(), publish.Value())
	}
}

func TestParallelExecutor_DependentsStartAfterDependencies(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	step := func(name string) WorkFunc {
		return func(ctx context.Context, upstream []any) (any, error) {
			record("start:" + name)
			time.Sleep(5 * time.Millisecond)
			record("end:" + name)
			return name, nil
		}
	}

	a := NewTask("a", contracts.StepCreate, step("a"))
	b := NewTask("b", contracts.StepAnalyze, step("b"), a)
	c := NewTask("c", contracts.StepShare, step("c"), b)

	set := NewWorkflowSet(singleChain("x", a, b, c))
	if err := NewParallelExecutor(ExecutorOptions{}).Run(context.Background(), set); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"start:a", "end:a", "start:b", "end:b", "start:c", "end:c"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestParallelExecutor_IndependentChainsRunConcurrently(t *testing.T) {
	const chains = 3
	var arrived sync.WaitGroup
	arrived.Add(chains)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	barrier := func(ctx context.Context, upstream []any) (any, error) {
		arrived.Done()
		select {
		case <-release:
			return "ok", nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("roots did not run concurrently")
		}
	}

	set := NewWorkflowSet()
	for i := 0; i < chains; i++ {
		id := contracts.TaskID(fmt.Sprintf("root-%d", i))
		set.Add(singleChain(string(id), NewTask(id, contracts.StepCreate, barrier)))
	}

	if err := NewParallelExecutor(ExecutorOptions{}).Run(context.Background(), set); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, c := range set.Chains() {
		if c.Terminal.State() != contracts.TaskSucceeded {
			t.Fatalf("%s: %s (%v)", c.Terminal.ID, c.Terminal.State(), c.Terminal.Err())
		}
	}
}

func TestParallelExecutor_MaxParallelism(t *testing.T) {
	var running, peak int32
	work := func(ctx context.Context, upstream []any) (any, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	set := NewWorkflowSet()
	for i := 0; i < 6; i++ {
		id := contracts.TaskID(fmt.Sprintf("t-%d", i))
		set.Add(singleChain(string(id), NewTask(id, contracts.StepCreate, work)))
	}

	if err := NewParallelExecutor(ExecutorOptions{MaxParallelism: 2}).Run(context.Background(), set); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
}

func TestParallelExecutor_ShortCircuitsEveryLaterTask(t *testing.T) {
	for failAt := 0; failAt < 4; failAt++ {
		t.Run(fmt.Sprintf("fail at %d", failAt), func(t *testing.T) {
			boom := &contracts.RemoteError{Op: "step", Message: "boom"}
			var calls [4]int32

			tasks := make([]*Task, 4)
			for i := range tasks {
				i := i
				work := func(ctx context.Context, upstream []any) (any, error) {
					atomic.AddInt32(&calls[i], 1)
					if i == failAt {
						return nil, boom
					}
					return i, nil
				}
				var deps []*Task
				if i > 0 {
					deps = []*Task{tasks[i-1]}
				}
				tasks[i] = NewTask(contracts.TaskID(fmt.Sprintf("t%d", i)), contracts.StepCreate, work, deps...)
			}

			set := NewWorkflowSet(singleChain("chain", tasks...))
			if err := NewParallelExecutor(ExecutorOptions{}).Run(context.Background(), set); err != nil {
				t.Fatalf("Run: %v", err)
			}

			for i, task := range tasks {
				switch {
				case i < failAt:
					if task.State() != contracts.TaskSucceeded {
						t.Errorf("t%d: %s, want succeeded", i, task.State())
					}
				case i == failAt:
					if task.State() != contracts.TaskFailed || !errors.Is(task.Err(), boom) {
						t.Errorf("t%d: %s %v, want failed with boom", i, task.State(), task.Err())
					}
				default:
					if task.State() != contracts.TaskFailed {
						t.Errorf("t%d: %s, want failed", i, task.State())
					}
					if !errors.Is(task.Err(), contracts.ErrUpstreamFailure) || !errors.Is(task.Err(), boom) {
						t.Errorf("t%d: err = %v, want upstream failure carrying boom", i, task.Err())
					}
					if n := atomic.LoadInt32(&calls[i]); n != 0 {
						t.Errorf("t%d: work called %d times, want 0", i, n)
					}
				}
			}
		})
	}
}

func TestParallelExecutor_CancelledBeforeStart(t *testing.T) {
	var calls int32
	work := func(ctx context.Context, upstream []any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	a := NewTask("a", contracts.StepCreate, work)
	b := NewTask("b", contracts.StepShare, work, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewParallelExecutor(ExecutorOptions{}).Run(ctx, NewWorkflowSet(singleChain("x", a, b))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 0 {
		t.Fatalf("work called %d times, want 0", calls)
	}
	if !errors.Is(a.Err(), contracts.ErrTaskCancelled) {
		t.Fatalf("a: expected ErrTaskCancelled, got %v", a.Err())
	}
	if !errors.Is(b.Err(), contracts.ErrUpstreamFailure) {
		t.Fatalf("b: expected ErrUpstreamFailure, got %v", b.Err())
	}
}

func TestParallelExecutor_RunningWorkIsNotCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workCtxErr error
	var bCalls int32
	a := NewTask("a", contracts.StepCreate, func(wctx context.Context, upstream []any) (any, error) {
		cancel()
		workCtxErr = wctx.Err()
		return "created", nil
	})
	b := NewTask("b", contracts.StepShare, func(ctx context.Context, upstream []any) (any, error) {
		atomic.AddInt32(&bCalls, 1)
		return nil, nil
	}, a)

	if err := NewParallelExecutor(ExecutorOptions{}).Run(ctx, NewWorkflowSet(singleChain("x", a, b))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if workCtxErr != nil {
		t.Fatalf("running work saw cancellation: %v", workCtxErr)
	}
	if a.State() != contracts.TaskSucceeded {
		t.Fatalf("a: %s, want succeeded", a.State())
	}
	if bCalls != 0 || !errors.Is(b.Err(), contracts.ErrTaskCancelled) {
		t.Fatalf("b: calls=%d err=%v, want not started and cancelled", bCalls, b.Err())
	}
}

func TestParallelExecutor_RejectsRerun(t *testing.T) {
	set := NewWorkflowSet(singleChain("x", NewTask("a", contracts.StepCreate, okWork(1))))
	executor := NewParallelExecutor(ExecutorOptions{})

	if err := executor.Run(context.Background(), set); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := executor.Run(context.Background(), set); !errors.Is(err, contracts.ErrInvalidTransition) {
		t.Fatalf("second Run: expected ErrInvalidTransition, got %v", err)
	}
}

func TestParallelExecutor_CycleRunsNothing(t *testing.T) {
	var calls int32
	work := func(ctx context.Context, upstream []any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	a := NewTask("a", contracts.StepCreate, work)
	b := NewTask("b", contracts.StepShare, work, a)
	a.deps = []*Task{b}

	err := NewParallelExecutor(ExecutorOptions{}).Run(context.Background(), NewWorkflowSet(singleChain("x", a, b)))
	if !errors.Is(err, contracts.ErrDAGCycle) {
		t.Fatalf("expected ErrDAGCycle, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("work called %d times, want 0", calls)
	}
}

func TestParallelExecutor_OnTaskDone(t *testing.T) {
	var done int32
	a := NewTask("a", contracts.StepCreate, okWork(1))
	b := NewTask("b", contracts.StepShare, errWork(errors.New("x")), a)
	c := NewTask("c", contracts.StepCreate, okWork(2))

	executor := NewParallelExecutor(ExecutorOptions{
		MaxParallelism: 1,
		OnTaskDone: func(task *Task) {
			if !task.State().Terminal() {
				t.Errorf("OnTaskDone(%s) with state %s", task.ID, task.State())
			}
			atomic.AddInt32(&done, 1)
		},
	})
	set := NewWorkflowSet(singleChain("x", a, b), singleChain("y", c))
	if err := executor.Run(context.Background(), set); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done != 3 {
		t.Fatalf("OnTaskDone called %d times, want 3", done)
	}
}
