package model

// RunStatus is the lifecycle state of a staged pipeline run.
type RunStatus string

const (
	StatusRunning   RunStatus = "RUNNING"
	StatusOK        RunStatus = "OK"
	StatusChallenge RunStatus = "CHALLENGE"
	StatusError     RunStatus = "ERROR"
)

// StepResult is one ledger entry of a staged pipeline run.
type StepResult struct {
	Step     string `json:"step"`
	ExitCode int    `json:"exit_code"`
	OK       bool   `json:"ok"`
}

// RunPaths records where a staged run reads and writes artifacts.
type RunPaths struct {
	RunDir     string `json:"run_dir"`
	LatestDir  string `json:"latest_dir"`
	HistoryDir string `json:"history_dir"`
}

// PipelineRunRecord is the persisted ledger of one staged pipeline run.
// It is created with status RUNNING, appended to as steps complete, and
// finalized exactly once into OK, CHALLENGE, or ERROR.
type PipelineRunRecord struct {
	RunID         string       `json:"run_id"`
	RunUUID       string       `json:"run_uuid"`
	StartedAtUTC  string       `json:"started_at_utc"`
	FinishedAtUTC string       `json:"finished_at_utc,omitempty"`
	Status        RunStatus    `json:"status"`
	Steps         []StepResult `json:"steps"`
	Error         string       `json:"error,omitempty"`
	Paths         RunPaths     `json:"paths"`
}
