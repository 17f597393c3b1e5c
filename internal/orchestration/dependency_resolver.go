package orchestration

import (
	"fmt"

	"github.com/jakesower/gtfs-import/contracts"
)

// DependencyResolver builds a DAG from declared task dependencies and
// validates it for cycles, duplicate ids and dependencies outside the set.
//
// The implementation uses depth-first search (DFS) with color marking
// to detect cycles.
//
// Thread-safety: The resolver is stateless and thread-safe.
type DependencyResolver struct{}

// NewDependencyResolver creates a new DependencyResolver.
func NewDependencyResolver() *DependencyResolver {
	return &DependencyResolver{}
}

// BuildDAG constructs a DAG from a list of tasks.
// Creates DAGNodes with Deps, Next, and Pending counts.
// Returns a valid empty DAG for empty task lists.
func (dr *DependencyResolver) BuildDAG(tasks []*Task) (*contracts.DAG, error) {
	if tasks == nil {
		return nil, contracts.ErrInvalidInput
	}

	dag := &contracts.DAG{
		Nodes: make(map[contracts.TaskID]*contracts.DAGNode, len(tasks)),
		Edges: make(map[contracts.TaskID][]contracts.TaskID, len(tasks)),
	}

	// First pass: one node per task, rejecting nil tasks and duplicate ids
	members := make(map[contracts.TaskID]*Task, len(tasks))
	for _, task := range tasks {
		if task == nil {
			return nil, fmt.Errorf("nil task in set: %w", contracts.ErrInvalidInput)
		}
		if _, dup := members[task.ID]; dup {
			return nil, fmt.Errorf("task %s declared twice: %w", task.ID, contracts.ErrDAGInvalid)
		}
		members[task.ID] = task

		deps := make([]contracts.TaskID, len(task.deps))
		for i, dep := range task.deps {
			if dep == nil {
				return nil, fmt.Errorf("task %s has a nil dependency: %w", task.ID, contracts.ErrDepNotFound)
			}
			deps[i] = dep.ID
		}
		dag.Nodes[task.ID] = &contracts.DAGNode{
			ID:      task.ID,
			Deps:    deps,
			Next:    []contracts.TaskID{},
			Pending: len(deps),
		}
		dag.Edges[task.ID] = []contracts.TaskID{}
	}

	// Second pass: forward edges. A dependency must be the very task in the set,
	// not merely one with the same id.
	for _, task := range tasks {
		for _, dep := range task.deps {
			if members[dep.ID] != dep {
				return nil, fmt.Errorf("task %s depends on %s which is not in the set: %w",
					task.ID, dep.ID, contracts.ErrDepNotFound)
			}
			dag.Edges[dep.ID] = append(dag.Edges[dep.ID], task.ID)
			depNode := dag.Nodes[dep.ID]
			depNode.Next = append(depNode.Next, task.ID)
		}
	}

	return dag, nil
}

// Validate checks the DAG for cycles.
// Uses DFS with color marking: white (unvisited), gray (visiting), black (visited).
// Returns ErrDAGCycle if a cycle is detected.
func (dr *DependencyResolver) Validate(dag *contracts.DAG) error {
	if dag == nil {
		return contracts.ErrInvalidInput
	}
	if dag.Nodes == nil {
		return fmt.Errorf("DAG has nil Nodes: %w", contracts.ErrDAGInvalid)
	}
	if dag.Edges == nil {
		return fmt.Errorf("DAG has nil Edges: %w", contracts.ErrDAGInvalid)
	}

	colors := make(map[contracts.TaskID]int, len(dag.Nodes))
	for taskID := range dag.Nodes {
		if colors[taskID] == white {
			if hasCycle(taskID, colors, dag) {
				return fmt.Errorf("reached from %s: %w", taskID, contracts.ErrDAGCycle)
			}
		}
	}
	return nil
}

const (
	white = iota
	gray
	black
)

// hasCycle follows Next edges from node and reports whether a gray node is reached.
func hasCycle(node contracts.TaskID, colors map[contracts.TaskID]int, dag *contracts.DAG) bool {
	colors[node] = gray

	dagNode, exists := dag.Nodes[node]
	if exists {
		for _, nextID := range dagNode.Next {
			switch colors[nextID] {
			case gray:
				return true
			case white:
				if hasCycle(nextID, colors, dag) {
					return true
				}
			}
		}
	}

	colors[node] = black
	return false
}
