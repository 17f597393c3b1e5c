package orchestration

import (
	"fmt"

	"github.com/jakesower/gtfs-import/contracts"
)

// Chain is the ordered task list of one file's publish workflow.
type Chain struct {
	Item     contracts.ImportItem
	Shape    contracts.ChainShape
	Tasks    []*Task
	Terminal *Task
}

// Task returns the chain's task for step, or nil.
func (c *Chain) Task(step contracts.StepName) *Task {
	for _, t := range c.Tasks {
		if t.Step == step {
			return t
		}
	}
	return nil
}

// PublishedID blocks until the chain is terminal and returns the id of the
// item that was shared, i.e. what the last step returned.
func (c *Chain) PublishedID() (string, error) {
	if err := c.Terminal.Err(); err != nil {
		return "", err
	}
	share, ok := c.Terminal.Value().(*contracts.ShareResult)
	if !ok || share == nil {
		return "", fmt.Errorf("chain %s: terminal value is %T: %w", c.Item.FileName, c.Terminal.Value(), contracts.ErrInvalidInput)
	}
	return share.ItemID, nil
}

// WorkflowSet holds all chains of one import run, in discovery order.
type WorkflowSet struct {
	chains []*Chain
}

// NewWorkflowSet creates a set from chains.
func NewWorkflowSet(chains ...*Chain) *WorkflowSet {
	s := &WorkflowSet{}
	for _, c := range chains {
		s.Add(c)
	}
	return s
}

// Add appends a chain.
func (s *WorkflowSet) Add(c *Chain) {
	if c != nil {
		s.chains = append(s.chains, c)
	}
}

// Chains returns the chains in insertion order.
func (s *WorkflowSet) Chains() []*Chain {
	cp := make([]*Chain, len(s.chains))
	copy(cp, s.chains)
	return cp
}

// Tasks returns every task of every chain.
func (s *WorkflowSet) Tasks() []*Task {
	tasks := make([]*Task, 0, len(s.chains)*4)
	for _, c := range s.chains {
		tasks = append(tasks, c.Tasks...)
	}
	return tasks
}

// Len returns the number of chains.
func (s *WorkflowSet) Len() int {
	return len(s.chains)
}
