package orchestration

import (
	"fmt"
	"sort"

	"github.com/jakesower/gtfs-import/contracts"
)

// Scheduler tracks which tasks of a DAG have all dependencies resolved.
// It uses TaskID as tie-breaker so eligible tasks come out in a stable order.
//
// Thread-safety: The scheduler assumes the caller holds appropriate locks.
type Scheduler struct {
	dag      *contracts.DAG
	resolved map[contracts.TaskID]bool
}

// NewScheduler creates a Scheduler over dag. The DAG's Pending counters are
// consumed as tasks resolve, so a DAG backs exactly one execution.
func NewScheduler(dag *contracts.DAG) (*Scheduler, error) {
	if dag == nil || dag.Nodes == nil {
		return nil, contracts.ErrInvalidInput
	}
	return &Scheduler{
		dag:      dag,
		resolved: make(map[contracts.TaskID]bool, len(dag.Nodes)),
	}, nil
}

// Initial returns the tasks with no dependencies at all.
func (s *Scheduler) Initial() []contracts.TaskID {
	var ready []contracts.TaskID
	for taskID, node := range s.dag.Nodes {
		if len(node.Deps) == 0 {
			ready = append(ready, taskID)
		}
	}
	sortIDs(ready)
	return ready
}

// Resolve records that taskID reached a terminal state and returns the
// dependents that just became eligible. Failure resolves a task too: its
// dependents become eligible so they can short-circuit.
func (s *Scheduler) Resolve(taskID contracts.TaskID) ([]contracts.TaskID, error) {
	node, exists := s.dag.Nodes[taskID]
	if !exists {
		return nil, fmt.Errorf("task %s: %w", taskID, contracts.ErrDepNotFound)
	}
	if s.resolved[taskID] {
		return nil, fmt.Errorf("task %s already resolved: %w", taskID, contracts.ErrInvalidTransition)
	}
	s.resolved[taskID] = true

	var ready []contracts.TaskID
	for _, nextID := range node.Next {
		nextNode, ok := s.dag.Nodes[nextID]
		if !ok || nextNode.Pending == 0 {
			continue
		}
		nextNode.Pending--
		if nextNode.Pending == 0 {
			ready = append(ready, nextID)
		}
	}
	sortIDs(ready)
	return ready, nil
}

// Remaining returns the number of tasks not yet resolved.
func (s *Scheduler) Remaining() int {
	return len(s.dag.Nodes) - len(s.resolved)
}

func sortIDs(ids []contracts.TaskID) {
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i]) < string(ids[j])
	})
}
