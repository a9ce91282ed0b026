package runs

import "time"

// State mirrors pipeline.State with one extra value for runs whose process
// disappeared.
type State string

const (
	StateRunning     State = "RUNNING"
	StateSucceeded   State = "SUCCEEDED"
	StateAborted     State = "ABORTED"
	StateCancelled   State = "CANCELLED"
	StateInterrupted State = "INTERRUPTED"
)

// StageSummary is the per-stage snapshot stored with a run.
type StageSummary struct {
	Name       string `json:"name"`
	Policy     string `json:"policy"`
	Status     string `json:"status"`
	Resumed    bool   `json:"resumed,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`
	Reason     string `json:"reason,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Record is one archived run.
type Record struct {
	RunID        string
	SourcePath   string
	State        State
	CurrentStage string
	Resumed      bool
	ErrorMessage string
	Attempts     int
	Stages       []StageSummary
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// IsTerminal reports whether the run has stopped.
func (r Record) IsTerminal() bool {
	return r.State != StateRunning
}

// Resumable reports whether `scribe run --resume` makes sense for the run.
func (r Record) Resumable() bool {
	switch r.State {
	case StateAborted, StateCancelled, StateInterrupted:
		return true
	default:
		return false
	}
}

// StageEvent is one recorded stage transition.
type StageEvent struct {
	ID         int64
	RunID      string
	Stage      string
	Status     string
	Resumed    bool
	Degraded   bool
	Reason     string
	Duration   time.Duration
	RecordedAt time.Time
}
