// Package contracts defines the core types and interfaces shared by the importer.
package contracts

// RunID uniquely identifies an import run.
type RunID string

// TaskID uniquely identifies a task within a run.
type TaskID string

// StepName names a step of a publish workflow.
type StepName string

// Workflow steps in the order they appear in a chain.
const (
	StepCreate  StepName = "create"
	StepAnalyze StepName = "analyze"
	StepPublish StepName = "publish"
	StepShare   StepName = "share"
)

// ChainShape identifies which workflow a file goes through.
type ChainShape string

const (
	// ShapeSimple uploads the raw file and shares it.
	ShapeSimple ChainShape = "simple"
	// ShapePublish uploads, analyzes, publishes a feature service and shares it.
	ShapePublish ChainShape = "publish"
)
