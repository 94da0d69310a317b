package dispatch

import "time"

// RunStatus is the lifecycle state of a function run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// FunctionRun is one execution of a named recurring function. At most one
// logical current run exists per run key; rows left RUNNING past the
// staleness threshold indicate a crashed or killed execution and are
// reclaimed by RecoverStaleRuns.
type FunctionRun struct {
	ID           string     `json:"id"`
	FunctionName string     `json:"function_name"`
	RunKey       string     `json:"run_key"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
}

// RecoveryResult reports what a stale-run sweep recovered.
type RecoveryResult struct {
	Recovered int      `json:"recovered"`
	RunKeys   []string `json:"run_keys,omitempty"`
}
