package contracts

// RunState represents the state of an import run.
type RunState int

const (
	RunPending RunState = iota
	RunRunning
	RunSucceeded
	RunFailed
	RunAborted
)

func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunRunning:
		return "running"
	case RunSucceeded:
		return "succeeded"
	case RunFailed:
		return "failed"
	case RunAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// TaskState represents the state of a task.
// Valid transitions: Pending -> Running -> {Succeeded, Failed}, and
// Pending -> Failed for short-circuited or cancelled tasks.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}
