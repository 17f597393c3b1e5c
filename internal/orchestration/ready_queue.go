package orchestration

import (
	"sync"
)

// ReadyQueue is a FIFO of tasks whose dependencies are all resolved.
// Thread-safe for concurrent access using sync.Mutex.
type ReadyQueue struct {
	mu    sync.Mutex
	items []*Task
}

// NewReadyQueue creates an empty ReadyQueue.
func NewReadyQueue() *ReadyQueue {
	return &ReadyQueue{
		items: make([]*Task, 0),
	}
}

// Enqueue adds tasks to the back of the queue.
func (q *ReadyQueue) Enqueue(tasks ...*Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, tasks...)
}

// Dequeue removes and returns the next task from the queue.
// Returns (nil, false) if the queue is empty.
func (q *ReadyQueue) Dequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	task := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return task, true
}

// Len returns the number of tasks in the queue.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
