// Package importer drives a full GTFS import: extraction, manifest checks,
// chain construction, concurrent execution and result aggregation.
package importer

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jakesower/gtfs-import/contracts"
	"github.com/jakesower/gtfs-import/internal/audit"
	"github.com/jakesower/gtfs-import/internal/ledger"
	"github.com/jakesower/gtfs-import/internal/manifest"
	"github.com/jakesower/gtfs-import/internal/orchestration"
)

// DefaultGroup is the group created when no target group is configured.
var DefaultGroup = contracts.GroupRequest{
	Title:       "GTFS Import",
	Access:      "account",
	Description: "An import of GTFS data",
	Tags:        []string{"gtfs"},
}

// Options contains the collaborators of an Importer.
type Options struct {
	Client    contracts.RemoteClient
	Extractor contracts.Extractor

	// Manifest defaults to manifest.GTFS().
	Manifest contracts.Manifest

	// Ledger records run outcomes (optional).
	Ledger ledger.Store

	// GroupID receives shared items; empty creates DefaultGroup.
	GroupID string
	Share   contracts.SharePolicy

	// MaxParallelism bounds concurrent remote calls; zero is unbounded.
	MaxParallelism int

	// WorkDir is the parent of the per-run temporary directory (optional).
	WorkDir string

	// OnTaskDone reports each task as it becomes terminal (optional).
	// It may be called concurrently.
	OnTaskDone func(runID contracts.RunID, task contracts.TaskID, state contracts.TaskState)
}

// Importer implements contracts.Importer.
type Importer struct {
	client    contracts.RemoteClient
	extractor contracts.Extractor
	manifest  contracts.Manifest
	ledger    ledger.Store
	groupID   string
	share     contracts.SharePolicy
	workDir   string

	maxParallelism int
	onTaskDone     func(contracts.RunID, contracts.TaskID, contracts.TaskState)
	collector      *orchestration.ResultCollector
}

var _ contracts.Importer = (*Importer)(nil)

// New creates an Importer.
func New(opts Options) (*Importer, error) {
	if opts.Client == nil || opts.Extractor == nil {
		return nil, fmt.Errorf("importer needs a client and an extractor: %w", contracts.ErrInvalidInput)
	}
	m := opts.Manifest
	if m == nil {
		m = manifest.GTFS()
	}
	return &Importer{
		client:    opts.Client,
		extractor: opts.Extractor,
		manifest:  m,
		ledger:    opts.Ledger,
		groupID:   opts.GroupID,
		share:     opts.Share,
		workDir:   opts.WorkDir,

		maxParallelism: opts.MaxParallelism,
		onTaskDone:     opts.OnTaskDone,
		collector:      orchestration.NewResultCollector(),
	}, nil
}

// Import runs one import of archive. Precondition and extraction failures
// abort before any remote call; chain failures are reported in the Outcome.
func (im *Importer) Import(ctx context.Context, archive string) (contracts.RunID, contracts.Outcome, error) {
	runID := contracts.RunID(uuid.NewString())
	log := audit.Logger().With("run_id", runID)
	im.beginRun(ctx, runID, archive)

	dir, err := os.MkdirTemp(im.workDir, "gtfs-import-*")
	if err != nil {
		err = fmt.Errorf("creating working directory: %w", err)
		im.finishRun(ctx, runID, contracts.RunAborted, err)
		return runID, contracts.Outcome{}, err
	}
	defer os.RemoveAll(dir)

	set, err := im.prepare(ctx, runID, archive, dir)
	if err != nil {
		log.Error("import aborted", "error", err)
		im.finishRun(ctx, runID, contracts.RunAborted, err)
		return runID, contracts.Outcome{}, err
	}

	if err := im.executor(runID, set).Run(ctx, set); err != nil {
		log.Error("workflow execution failed", "error", err)
		im.finishRun(ctx, runID, contracts.RunAborted, err)
		return runID, contracts.Outcome{}, err
	}

	outcome, err := im.collector.Collect(set)
	if err != nil {
		im.finishRun(ctx, runID, contracts.RunAborted, err)
		return runID, contracts.Outcome{}, err
	}
	im.recordChains(ctx, runID, set, outcome)

	if outcome.Success() {
		log.Info("import succeeded", "chains", set.Len())
		im.finishRun(ctx, runID, contracts.RunSucceeded, nil)
	} else {
		log.Warn("import finished with failures", "chains", set.Len(), "failed", len(outcome.Failures()))
		im.finishRun(ctx, runID, contracts.RunFailed, outcome.Err())
	}
	return runID, outcome, nil
}

// prepare extracts the archive into dir, validates and filters it, resolves
// the target group and builds the workflow set. Nothing remote happens before
// the manifest check passes.
func (im *Importer) prepare(ctx context.Context, runID contracts.RunID, archive, dir string) (*orchestration.WorkflowSet, error) {
	log := audit.Logger().With("run_id", runID)

	items, err := im.extractor.Extract(archive, dir)
	if err != nil {
		return nil, err
	}

	if err := manifest.Check(im.manifest, items); err != nil {
		return nil, err
	}
	kept, dropped := manifest.Filter(im.manifest, items)
	for _, item := range dropped {
		log.Info("ignoring nonstandard file", "file", item.FileName)
	}

	groupID, err := im.resolveGroup(ctx, runID)
	if err != nil {
		return nil, err
	}

	builder, err := orchestration.NewChainBuilder(orchestration.ChainConfig{
		Client:   im.client,
		Manifest: im.manifest,
		GroupID:  groupID,
		Share:    im.share,
	})
	if err != nil {
		return nil, err
	}

	set := orchestration.NewWorkflowSet()
	for _, item := range kept {
		chain, err := builder.Build(item)
		if err != nil {
			return nil, err
		}
		log.Debug("chain built", "file", item.FileName, "shape", chain.Shape, "tasks", len(chain.Tasks))
		set.Add(chain)
	}
	return set, nil
}

// executor returns the executor of one run, reporting progress per task.
func (im *Importer) executor(runID contracts.RunID, set *orchestration.WorkflowSet) *orchestration.ParallelExecutor {
	total := len(set.Tasks())
	var done atomic.Int64
	return orchestration.NewParallelExecutor(orchestration.ExecutorOptions{
		MaxParallelism: im.maxParallelism,
		OnTaskDone: func(task *orchestration.Task) {
			state := task.State()
			audit.Debug("task done", "run_id", runID, "task", task.ID, "state", state, "done", done.Add(1), "total", total)
			if im.onTaskDone != nil {
				im.onTaskDone(runID, task.ID, state)
			}
		},
	})
}

func (im *Importer) resolveGroup(ctx context.Context, runID contracts.RunID) (string, error) {
	if im.groupID != "" {
		return im.groupID, nil
	}
	audit.Log("creating group", "run_id", runID, "title", DefaultGroup.Title)
	id, err := im.client.CreateGroup(ctx, DefaultGroup)
	if err != nil {
		return "", fmt.Errorf("creating group %q: %w", DefaultGroup.Title, err)
	}
	return id, nil
}

func (im *Importer) beginRun(ctx context.Context, runID contracts.RunID, archive string) {
	if im.ledger == nil {
		return
	}
	err := im.ledger.BeginRun(ctx, ledger.RunRecord{
		ID:        runID,
		Archive:   archive,
		State:     contracts.RunRunning,
		StartedAt: time.Now(),
	})
	if err != nil {
		audit.Warn("ledger: begin run", "run_id", runID, "error", err)
	}
}

func (im *Importer) finishRun(ctx context.Context, runID contracts.RunID, state contracts.RunState, cause error) {
	if im.ledger == nil {
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := im.ledger.FinishRun(context.WithoutCancel(ctx), runID, state, msg); err != nil {
		audit.Warn("ledger: finish run", "run_id", runID, "error", err)
	}
}

func (im *Importer) recordChains(ctx context.Context, runID contracts.RunID, set *orchestration.WorkflowSet, outcome contracts.Outcome) {
	if im.ledger == nil {
		return
	}
	failed := make(map[string]contracts.ChainFailure)
	for _, f := range outcome.Failures() {
		failed[f.FileName] = f
	}

	ctx = context.WithoutCancel(ctx)
	for _, chain := range set.Chains() {
		rec := ledger.ChainRecord{
			RunID:      runID,
			FileName:   chain.Item.FileName,
			Name:       chain.Item.Name,
			Shape:      chain.Shape,
			State:      chain.Terminal.State(),
			RecordedAt: time.Now(),
		}
		if f, ok := failed[chain.Item.FileName]; ok {
			rec.FailedStep = f.Step
			rec.ErrorCode = contracts.CodeOf(f.Cause())
			rec.Error = f.Error()
		} else if id, err := chain.PublishedID(); err == nil {
			rec.PublishedID = id
		}
		if err := im.ledger.RecordChain(ctx, rec); err != nil {
			audit.Warn("ledger: record chain", "run_id", runID, "file", rec.FileName, "error", err)
		}
	}
}
