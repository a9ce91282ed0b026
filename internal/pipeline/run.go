package pipeline

import (
	"fmt"
	"time"
)

// Status is a stage's position in its lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusRunning  Status = "RUNNING"
	StatusComplete Status = "COMPLETE"
	StatusFailed   Status = "FAILED"
	StatusSkipped  Status = "SKIPPED"
)

// State is the overall run outcome.
type State string

const (
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateAborted   State = "ABORTED"
	StateCancelled State = "CANCELLED"
)

// StageState records one stage of a run.
type StageState struct {
	Name       string
	Policy     Policy
	Status     Status
	Resumed    bool
	Degraded   bool
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the stage ran, zero if it never started.
func (s StageState) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Run is the state of one pipeline execution.
type Run struct {
	RunID      string
	Stages     []StageState
	Current    int
	State      State
	Resume     bool
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Run) clone() Run {
	out := r
	out.Stages = append([]StageState(nil), r.Stages...)
	return out
}

// Result is returned by Executor.Run.
type Result struct {
	Run     Run
	Outputs *Outputs
}

// Degraded returns the stages that were skipped, with the reason for each.
func (r Result) Degraded() []StageState {
	var out []StageState
	for _, s := range r.Run.Stages {
		if s.Status == StatusSkipped {
			out = append(out, s)
		}
	}
	return out
}

// StageError reports a critical stage failure.
type StageError struct {
	Stage  string
	Policy Policy
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v (checkpoints through the previous stage are intact; rerun with --resume)", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Event is a progress notification for presentation layers.
type Event struct {
	Stage   string
	Index   int
	Total   int
	Status  Status
	Message string
	// Percent is -1 when unknown.
	Percent float64
}

// Observer receives run lifecycle transitions. Implementations must not block.
type Observer interface {
	RunStarted(run Run)
	StageChanged(run Run, stage StageState)
	RunFinished(run Run)
}
