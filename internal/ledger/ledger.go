// Package ledger persists import runs and per-file chain outcomes, so an
// operator can see which files of a partially failed run need a retry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jakesower/gtfs-import/contracts"
)

// ErrRunNotFound is returned when a run id is not in the ledger.
var ErrRunNotFound = errors.New("run not found in ledger")

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// RunRecord is one import run.
type RunRecord struct {
	ID         contracts.RunID
	Archive    string
	State      contracts.RunState
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ChainRecord is the terminal outcome of one file's chain.
type ChainRecord struct {
	RunID       contracts.RunID
	FileName    string
	Name        string
	Shape       contracts.ChainShape
	State       contracts.TaskState
	FailedStep  contracts.StepName
	ErrorCode   contracts.ErrorCode
	Error       string
	PublishedID string
	RecordedAt  time.Time
}

// Store records runs. Implementations are safe for concurrent use.
type Store interface {
	BeginRun(ctx context.Context, run RunRecord) error
	RecordChain(ctx context.Context, rec ChainRecord) error
	FinishRun(ctx context.Context, id contracts.RunID, state contracts.RunState, errMsg string) error
	GetRun(ctx context.Context, id contracts.RunID) (RunRecord, error)
	ListChains(ctx context.Context, id contracts.RunID) ([]ChainRecord, error)
	FailedFiles(ctx context.Context, id contracts.RunID) ([]string, error)
	Close() error
}

// Open opens a Store for driver ("sqlite" or "mysql").
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(dsn)
	case DriverMySQL:
		return OpenMySQL(dsn)
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q: %w", driver, contracts.ErrInvalidInput)
	}
}

func parseRunState(s string) contracts.RunState {
	for st := contracts.RunPending; st <= contracts.RunAborted; st++ {
		if st.String() == s {
			return st
		}
	}
	return contracts.RunPending
}

func parseTaskState(s string) contracts.TaskState {
	for st := contracts.TaskPending; st <= contracts.TaskFailed; st++ {
		if st.String() == s {
			return st
		}
	}
	return contracts.TaskPending
}
