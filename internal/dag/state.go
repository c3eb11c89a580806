package dag

// ChainState is the runtime state of a node. It lives outside the immutable
// TaskGraph so one graph can be executed many times (every watch rebuild).
type ChainState string

const (
	ChainPending   ChainState = "PENDING"
	ChainRunning   ChainState = "RUNNING"
	ChainCompleted ChainState = "COMPLETED"
	ChainFailed    ChainState = "FAILED"
	ChainSkipped   ChainState = "SKIPPED"
	ChainCached    ChainState = "CACHED"
)

// ExecutionState maps chain name to its current state. It is a plain map so
// the scheduler stays a pure function.
type ExecutionState map[string]ChainState
