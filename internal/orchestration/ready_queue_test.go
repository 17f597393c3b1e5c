package orchestration

import (
	"sync"
	"testing"

	"github.com/jakesower/gtfs-import/contracts"
)

func TestReadyQueue_FIFO(t *testing.T) {
	q := NewReadyQueue()

	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue() from empty queue should return false")
	}

	ids := []contracts.TaskID{"task-a", "task-b", "task-c"}
	for _, id := range ids {
		q.Enqueue(NewTask(id, contracts.StepCreate, nil))
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	for i, want := range ids {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() %d should return true", i)
		}
		if got.ID != want {
			t.Errorf("Dequeue() %d = %s, want %s", i, got.ID, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
}

func TestReadyQueue_Concurrent(t *testing.T) {
	q := NewReadyQueue()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(NewTask("t", contracts.StepCreate, nil))
		}()
	}
	wg.Wait()

	if q.Len() != n {
		t.Fatalf("Len() = %d, want %d", q.Len(), n)
	}

	var got int
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.Dequeue(); ok {
				mu.Lock()
				got++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if got != n {
		t.Fatalf("dequeued %d, want %d", got, n)
	}
}
