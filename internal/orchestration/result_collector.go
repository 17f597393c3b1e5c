package orchestration

import (
	"errors"
	"fmt"

	"github.com/jakesower/gtfs-import/contracts"
)

// ResultCollector partitions the terminal tasks of a WorkflowSet into
// successes and failures. It only reads task state, so collecting the same
// set twice yields the same Outcome.
type ResultCollector struct{}

// NewResultCollector creates a new ResultCollector.
func NewResultCollector() *ResultCollector {
	return &ResultCollector{}
}

// Collect returns one ChainFailure per chain whose terminal task failed, in
// chain order. Returns ErrTaskNotTerminal if any terminal task is still pending
// or running; it never blocks.
func (c *ResultCollector) Collect(set *WorkflowSet) (contracts.Outcome, error) {
	if set == nil {
		return contracts.Outcome{}, contracts.ErrInvalidInput
	}

	var failures []contracts.ChainFailure
	for _, chain := range set.Chains() {
		if chain.Terminal == nil {
			return contracts.Outcome{}, fmt.Errorf("chain %s has no terminal task: %w", chain.Item.FileName, contracts.ErrDAGInvalid)
		}
		state := chain.Terminal.State()
		if !state.Terminal() {
			return contracts.Outcome{}, fmt.Errorf("chain %s: %s is %s: %w",
				chain.Item.FileName, chain.Terminal.ID, state, contracts.ErrTaskNotTerminal)
		}
		if state == contracts.TaskSucceeded {
			continue
		}

		origin := failedOrigin(chain)
		failures = append(failures, contracts.ChainFailure{
			FileName: chain.Item.FileName,
			Name:     chain.Item.Name,
			Task:     origin.ID,
			Step:     origin.Step,
			Err:      chain.Terminal.Err(),
		})
	}
	return contracts.NewOutcome(failures), nil
}

// failedOrigin returns the first task of a failed chain that failed on its own
// rather than by short-circuit.
func failedOrigin(chain *Chain) *Task {
	for _, t := range chain.Tasks {
		if t.State() != contracts.TaskFailed {
			continue
		}
		if !errors.Is(t.Err(), contracts.ErrUpstreamFailure) {
			return t
		}
	}
	return chain.Terminal
}
