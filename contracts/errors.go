package contracts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the import runtime.
var (
	// Run errors
	ErrPrecondition = errors.New("invalid GTFS feed")
	ErrExtraction   = errors.New("archive extraction failed")

	// Task errors
	ErrRemote            = errors.New("remote request failed")
	ErrUpstreamFailure   = errors.New("upstream task failed")
	ErrTaskCancelled     = errors.New("task cancelled before start")
	ErrTaskNotTerminal   = errors.New("task has not reached a terminal state")
	ErrInvalidTransition = errors.New("invalid task state transition")

	// DAG errors
	ErrDAGCycle    = errors.New("cycle detected in task dependencies")
	ErrDAGInvalid  = errors.New("invalid DAG structure")
	ErrDepNotFound = errors.New("dependency task not found")

	// Input validation errors
	ErrInvalidInput = errors.New("invalid input: nil or malformed")
)

// PreconditionError reports required manifest files absent from the feed.
type PreconditionError struct {
	Missing []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: missing required files %s; no files were uploaded",
		ErrPrecondition, strings.Join(e.Missing, ", "))
}

func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}

// ExtractionError reports an archive that could not be opened or unpacked.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExtraction, e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}

// RemoteError is returned by a PublishClient for any non-success response.
type RemoteError struct {
	Op      string
	Status  int
	Code    int
	Message string
	Details []string
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	} else if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	return ErrRemote
}

// UpstreamError is the cause attached to a task whose dependency failed.
// It unwraps to the dependency's own error, so the root cause stays reachable.
type UpstreamError struct {
	Task TaskID
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUpstreamFailure, e.Task, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamFailure, e.Err}
}

// Root follows a chain of upstream failures to the error that started it.
func (e *UpstreamError) Root() error {
	err := e.Err
	for {
		var up *UpstreamError
		if !errors.As(err, &up) {
			return err
		}
		err = up.Err
	}
}

// ErrorCode is a stable classification of an error for reporting and storage.
type ErrorCode string

const (
	CodeNone         ErrorCode = ""
	CodePrecondition ErrorCode = "precondition"
	CodeExtraction   ErrorCode = "extraction"
	CodeRemote       ErrorCode = "remote"
	CodeUpstream     ErrorCode = "upstream"
	CodeCancelled    ErrorCode = "cancelled"
	CodeDAGInvalid   ErrorCode = "dag_invalid"
	CodeInvalidInput ErrorCode = "invalid_input"
	CodeInternal     ErrorCode = "internal_error"
)

// CodeOf maps an error to its ErrorCode. Upstream failures are classified by
// the upstream marker, not by the root cause they carry.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrPrecondition):
		return CodePrecondition
	case errors.Is(err, ErrExtraction):
		return CodeExtraction
	case errors.Is(err, ErrUpstreamFailure):
		return CodeUpstream
	case errors.Is(err, ErrRemote):
		return CodeRemote
	case errors.Is(err, ErrTaskCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	case errors.Is(err, ErrDAGCycle),
		errors.Is(err, ErrDAGInvalid),
		errors.Is(err, ErrDepNotFound):
		return CodeDAGInvalid
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}
