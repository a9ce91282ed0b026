package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"scribe/internal/logging"
	"scribe/internal/services"
)

// Policy decides what a stage failure does to the run.
type Policy string

const (
	// PolicyCritical aborts the run when the stage fails.
	PolicyCritical Policy = "critical"
	// PolicyOptional substitutes degraded output and continues.
	PolicyOptional Policy = "optional"
)

// Handler is the contract every stage implements.
type Handler interface {
	// SchemaVersion tags the checkpoint payload; a stored payload with any
	// other version is rejected and the stage re-runs.
	SchemaVersion() int
	Execute(ctx context.Context, env *Env) (any, error)
	// Decode restores a payload written by Execute at SchemaVersion.
	Decode(raw json.RawMessage) (any, error)
}

// Degrader supplies the placeholder output used when an optional stage is
// skipped or fails.
type Degrader interface {
	Degrade(env *Env, cause error) any
}

// Definition places a handler in the run.
type Definition struct {
	Name    string
	Policy  Policy
	Enabled bool
	Handler Handler
}

// Outputs holds the results of stages that already ran or were resumed.
type Outputs struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewOutputs returns an empty output set.
func NewOutputs() *Outputs {
	return &Outputs{values: make(map[string]any)}
}

// Get returns the output recorded for stage.
func (o *Outputs) Get(stage string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[stage]
	return v, ok
}

// Set records the output for stage.
func (o *Outputs) Set(stage string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[stage] = value
}

// OutputAs returns the output of stage as T.
func OutputAs[T any](o *Outputs, stage string) (T, error) {
	var zero T
	if o == nil {
		return zero, services.Wrap(services.ErrValidation, stage, "read output", "no outputs available", nil)
	}
	v, ok := o.Get(stage)
	if !ok {
		return zero, services.Wrap(services.ErrValidation, stage, "read output", "stage has not produced output", nil)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, services.Wrap(services.ErrValidation, stage, "read output",
			fmt.Sprintf("output has type %T, want %T", v, zero), nil)
	}
	return typed, nil
}

// Env is what a stage sees while executing.
type Env struct {
	RunID       string
	ArtifactDir string
	Outputs     *Outputs
	Logger      *slog.Logger

	emit    func(message string, percent float64)
	sampler *logging.ProgressSampler
	stage   string
}

// Tick reports intra-stage progress without a known completion fraction.
func (e *Env) Tick(message string) {
	if e == nil || e.emit == nil {
		return
	}
	e.emit(message, -1)
}

// Progress reports done of total units of work.
func (e *Env) Progress(done, total int, message string) {
	if e == nil {
		return
	}
	percent := -1.0
	if total > 0 {
		percent = float64(done) * 100 / float64(total)
	}
	if e.sampler.ShouldLog(e.stage, percent) && e.Logger != nil {
		e.Logger.Info("stage progress",
			logging.String(logging.FieldProgressMessage, message),
			logging.Float64(logging.FieldProgressPercent, percent),
		)
	}
	if e.emit != nil {
		e.emit(message, percent)
	}
}
