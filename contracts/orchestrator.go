package contracts

import "context"

// Importer runs one import of a GTFS archive.
type Importer interface {
	// Import extracts archive, validates it against the manifest and runs
	// every file's publish workflow.
	//
	// Returns the aggregate Outcome once every chain is terminal.
	// Returns error (with an empty Outcome) on:
	// - *PreconditionError: a required file is missing; nothing was scheduled
	// - *ExtractionError: the archive could not be read
	// - ErrDAGCycle / ErrDepNotFound: the workflow set is malformed
	// - errors from group creation, which precedes all tasks
	Import(ctx context.Context, archive string) (RunID, Outcome, error)
}
