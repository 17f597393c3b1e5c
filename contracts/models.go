package contracts

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ImportItem describes one file discovered in the feed archive.
// It is immutable once extracted.
type ImportItem struct {
	Name     string // display name, e.g. "Stop Times"
	FileName string // canonical file name, e.g. "stop_times.txt"
	Path     string // extracted location on disk
}

// PublishParameters are the feature service parameters sent to publish.
type PublishParameters map[string]any

// Clone returns a shallow copy of p. A nil p yields an empty map.
func (p PublishParameters) Clone() PublishParameters {
	out := make(PublishParameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// DeepClone copies p along with any nested maps and slices, so the copy can be
// modified without touching p.
func (p PublishParameters) DeepClone() PublishParameters {
	out := make(PublishParameters, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case PublishParameters:
		return t.DeepClone()
	case map[string]any:
		return map[string]any(PublishParameters(t).DeepClone())
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}

// FileSpec is one entry of the manifest/policy table.
// A non-nil Publish selects the publish chain for the file.
type FileSpec struct {
	Required bool
	Publish  PublishParameters
}

// Manifest maps canonical file names to their FileSpec.
type Manifest map[string]FileSpec

// ItemRequest describes a raw asset upload.
type ItemRequest struct {
	Title    string
	Type     string
	Tags     []string
	FileName string
	File     io.Reader
}

// CreatedItem is the result of an asset upload.
type CreatedItem struct {
	ID string
}

// Analysis is the result of analyzing an uploaded asset.
type Analysis struct {
	PublishParameters PublishParameters
}

// PublishRequest asks the remote platform to materialize a feature service.
type PublishRequest struct {
	ItemID            string
	FileType          string
	PublishParameters PublishParameters
}

// PublishedService describes one service created by a publish call.
type PublishedService struct {
	ServiceItemID string
	ServiceURL    string
	Type          string
}

// PublishResult is the result of a publish call.
type PublishResult struct {
	Services []PublishedService
}

// SharePolicy is the visibility applied to every shared item of a run.
type SharePolicy struct {
	Everyone bool
	Org      bool
}

// DefaultSharePolicy marks items public to everyone and the organization.
func DefaultSharePolicy() SharePolicy {
	return SharePolicy{Everyone: true, Org: true}
}

// ShareRequest shares an item with groups and the given visibility.
type ShareRequest struct {
	ItemID   string
	Groups   []string
	Everyone bool
	Org      bool
}

// ShareResult acknowledges a share call.
type ShareResult struct {
	ItemID        string
	NotSharedWith []string
}

// GroupRequest describes a group to create for the import.
type GroupRequest struct {
	Title       string
	Access      string
	Description string
	Tags        []string
}

// ChainFailure is the failure cause of one chain's terminal task.
type ChainFailure struct {
	FileName string
	Name     string
	Task     TaskID
	Step     StepName
	Err      error
}

// Error names the file and the step that failed on its own, with the root cause.
func (f ChainFailure) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.FileName, f.Step, f.Cause())
}

// Cause returns the root cause, looking through upstream failures.
func (f ChainFailure) Cause() error {
	var up *UpstreamError
	if errors.As(f.Err, &up) {
		return up.Root()
	}
	return f.Err
}

func (f ChainFailure) Unwrap() error {
	return f.Err
}

// Outcome aggregates the terminal results of every chain of a run.
// The zero value is a successful outcome.
type Outcome struct {
	failures []ChainFailure
}

// NewOutcome builds an Outcome from failures in chain order.
func NewOutcome(failures []ChainFailure) Outcome {
	if len(failures) == 0 {
		return Outcome{}
	}
	cp := make([]ChainFailure, len(failures))
	copy(cp, failures)
	return Outcome{failures: cp}
}

// Success reports whether every chain's terminal task succeeded.
func (o Outcome) Success() bool {
	return len(o.failures) == 0
}

// Failures returns a copy of the per-chain failure causes.
func (o Outcome) Failures() []ChainFailure {
	cp := make([]ChainFailure, len(o.failures))
	copy(cp, o.failures)
	return cp
}

// FailedFiles lists the canonical file names that need a retry.
func (o Outcome) FailedFiles() []string {
	files := make([]string, len(o.failures))
	for i, f := range o.failures {
		files[i] = f.FileName
	}
	return files
}

// Err returns nil on success, otherwise a multierror with one entry per failed chain.
func (o Outcome) Err() error {
	if o.Success() {
		return nil
	}
	var result *multierror.Error
	for _, f := range o.failures {
		result = multierror.Append(result, f)
	}
	result.ErrorFormat = formatFailures
	return result
}

func formatFailures(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = "  * " + err.Error()
	}
	return fmt.Sprintf("%d of the import chains failed:\n%s", len(errs), strings.Join(lines, "\n"))
}

// DAG represents the directed acyclic graph of task dependencies of a run.
type DAG struct {
	Nodes map[TaskID]*DAGNode
	Edges map[TaskID][]TaskID
}

// DAGNode represents a node in the dependency graph.
type DAGNode struct {
	ID      TaskID
	Deps    []TaskID
	Next    []TaskID
	Pending int
}
