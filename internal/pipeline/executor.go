package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/internal/checkpoint"
	"scribe/internal/logging"
	"scribe/internal/services"
)

// Options configures an Executor.
type Options struct {
	RunID     string
	Stages    []Definition
	Store     *checkpoint.Store
	Logger    *slog.Logger
	Progress  func(Event)
	Observers []Observer
}

// Executor runs a fixed stage list for one run.
type Executor struct {
	runID     string
	stages    []Definition
	store     *checkpoint.Store
	logger    *slog.Logger
	progress  func(Event)
	observers []Observer
	now       func() time.Time
}

// NewExecutor validates opts and returns an executor. The stage list is
// copied; later changes to opts have no effect.
func NewExecutor(opts Options) (*Executor, error) {
	if opts.Store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "checkpoint store is required", nil)
	}
	if len(opts.Stages) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "no stages configured", nil)
	}
	seen := make(map[string]struct{}, len(opts.Stages))
	for _, def := range opts.Stages {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "stage name is empty", nil)
		}
		if _, dup := seen[name]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init",
				fmt.Sprintf("stage %q listed twice", name), nil)
		}
		seen[name] = struct{}{}
		if def.Handler == nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init",
				fmt.Sprintf("stage %q has no handler", name), nil)
		}
		if def.Policy != PolicyCritical && def.Policy != PolicyOptional {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init",
				fmt.Sprintf("stage %q has unknown policy %q", name, def.Policy), nil)
		}
	}
	runID := opts.RunID
	if runID == "" {
		runID = opts.Store.RunID()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		runID:     runID,
		stages:    append([]Definition(nil), opts.Stages...),
		store:     opts.Store,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		progress:  opts.Progress,
		observers: append([]Observer(nil), opts.Observers...),
		now:       time.Now,
	}, nil
}

// Run executes the stages in order. With resume set, stages whose
// checkpoints load cleanly are not executed again; the first stage that has
// to run ends trust in every later checkpoint.
//
// The returned error is nil on success, a *StageError when a critical stage
// failed, and context.Canceled (wrapped) when ctx ended between stages.
func (e *Executor) Run(ctx context.Context, resume bool) (Result, error) {
	lock, err := e.store.Lock()
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			e.logger.Warn("run lock release failed", logging.Error(err))
		}
	}()

	ctx = services.WithRunID(ctx, e.runID)
	outputs := NewOutputs()
	run := Run{
		RunID:     e.runID,
		Stages:    make([]StageState, len(e.stages)),
		State:     StateRunning,
		Resume:    resume,
		StartedAt: e.now(),
	}
	for i, def := range e.stages {
		run.Stages[i] = StageState{Name: def.Name, Policy: def.Policy, Status: StatusPending}
	}
	if removed := e.store.RemovedTemps(); len(removed) > 0 {
		e.logger.Info("removed partial checkpoint writes",
			logging.Int("count", len(removed)),
			logging.String(logging.FieldEventType, "checkpoint_temps_removed"),
		)
	}
	e.logger.Info("run started",
		logging.String(logging.FieldRunID, e.runID),
		logging.Bool("resume", resume),
		logging.Int("stage_count", len(e.stages)),
		logging.String(logging.FieldEventType, "run_start"),
	)
	e.notifyStarted(run)

	trusting := resume
	parent := ""
	for i, def := range e.stages {
		run.Current = i
		if err := ctx.Err(); err != nil {
			return e.cancel(run, outputs, def.Name, err)
		}

		stageCtx := services.WithStage(ctx, def.Name)
		stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
		logger := logging.WithContext(stageCtx, e.logger)
		env := e.newEnv(i, def, outputs, logger)
		seq := i + 1

		if !def.Enabled {
			e.skip(&run, i, env, nil, "disabled by configuration")
			logger.Info("stage skipped",
				logging.String(logging.FieldEventType, "stage_skipped"),
				logging.String("reason", "disabled by configuration"),
			)
			continue
		}

		if trusting {
			loaded, ok := e.tryResume(logger, seq, def, parent)
			if ok {
				outputs.Set(def.Name, loaded.Value)
				parent = loaded.Digest
				state := &run.Stages[i]
				state.Status = StatusComplete
				state.Resumed = true
				e.stageChanged(run, i, "resumed from checkpoint")
				logger.Info("stage resumed from checkpoint",
					logging.String(logging.FieldEventType, "stage_resumed"),
					logging.Bool("resumed", true),
				)
				continue
			}
			trusting = false
		}

		state := &run.Stages[i]
		state.Status = StatusRunning
		state.StartedAt = e.now()
		e.stageChanged(run, i, "started")
		logger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String("policy", string(def.Policy)),
		)

		value, execErr := e.execute(stageCtx, def, env)
		if execErr == nil {
			digest, werr := e.store.Write(seq, def.Name, def.Handler.SchemaVersion(), parent, value)
			if werr != nil {
				execErr = werr
			} else {
				parent = digest
			}
		}
		state.FinishedAt = e.now()

		if execErr == nil {
			outputs.Set(def.Name, value)
			state.Status = StatusComplete
			e.stageChanged(run, i, "completed")
			logger.Info("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.Duration("stage_duration", state.Duration()),
			)
			continue
		}

		details := services.Details(execErr)
		if def.Policy == PolicyOptional {
			logging.WarnWithContext(logger, "optional stage failed; continuing with placeholder output", "stage_degraded",
				logging.Error(execErr),
				logging.String(logging.FieldErrorKind, details.Kind),
				logging.String(logging.FieldErrorHint, details.Hint),
				logging.String(logging.FieldImpact, "transcript is produced without "+def.Name+" results"),
			)
			e.skip(&run, i, env, execErr, details.Message)
			continue
		}

		state.Status = StatusFailed
		state.Reason = details.Message
		e.stageChanged(run, i, details.Message)
		logging.ErrorWithContext(logger, "stage failed", "stage_failure",
			logging.Error(execErr),
			logging.String("error_message", details.Message),
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.Duration("stage_duration", state.Duration()),
		)
		stageErr := &StageError{Stage: def.Name, Policy: def.Policy, Err: execErr}
		run.State = StateAborted
		run.Error = stageErr.Error()
		e.finish(&run)
		return Result{Run: run.clone(), Outputs: outputs}, stageErr
	}

	run.State = StateSucceeded
	e.finish(&run)
	return Result{Run: run.clone(), Outputs: outputs}, nil
}

func (e *Executor) tryResume(logger *slog.Logger, seq int, def Definition, parent string) (checkpoint.Loaded, bool) {
	loaded, err := e.store.Load(seq, def.Name, checkpoint.Expect{
		SchemaVersion: def.Handler.SchemaVersion(),
		Parent:        parent,
		Decode:        def.Handler.Decode,
	})
	if err == nil {
		return loaded, true
	}
	if errors.Is(err, services.ErrNotFound) {
		logger.Debug("no checkpoint to resume from")
		return checkpoint.Loaded{}, false
	}
	var corrupt *checkpoint.CorruptionError
	if errors.As(err, &corrupt) {
		moved, qerr := e.store.Quarantine(seq, def.Name)
		attrs := []logging.Attr{
			logging.String("reason", corrupt.Reason),
			logging.String("checkpoint_path", corrupt.Path),
			logging.String(logging.FieldErrorKind, "checkpoint"),
			logging.String(logging.FieldErrorHint, "the stage will run again; the old file is kept for inspection"),
		}
		if corrupt.Err != nil {
			attrs = append(attrs, logging.Error(corrupt.Err))
		}
		if qerr != nil {
			attrs = append(attrs, logging.String("quarantine_error", qerr.Error()))
		} else {
			attrs = append(attrs, logging.String("quarantine_path", moved))
		}
		logging.ErrorWithContext(logger, "checkpoint rejected", "checkpoint_corrupt", attrs...)
		return checkpoint.Loaded{}, false
	}
	logging.WarnWithContext(logger, "checkpoint could not be read; running stage", "checkpoint_unreadable",
		logging.Error(err),
		logging.String(logging.FieldImpact, "stage runs again"),
	)
	return checkpoint.Loaded{}, false
}

// execute runs the handler shielded from cancellation and converts panics
// into errors.
func (e *Executor) execute(ctx context.Context, def Definition, env *Env) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			env.Logger.Debug("stage panic stack", logging.String("stack", string(debug.Stack())))
			value = nil
			err = services.Wrap(services.ErrValidation, def.Name, "execute", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	value, err = def.Handler.Execute(context.WithoutCancel(ctx), env)
	if err == nil && value == nil {
		err = services.Wrap(services.ErrValidation, def.Name, "execute", "stage returned no output", nil)
	}
	return value, err
}

func (e *Executor) skip(run *Run, i int, env *Env, cause error, reason string) {
	def := e.stages[i]
	env.Outputs.Set(def.Name, e.degrade(def, env, cause))
	state := &run.Stages[i]
	state.Status = StatusSkipped
	state.Degraded = true
	state.Reason = reason
	if !state.StartedAt.IsZero() {
		state.FinishedAt = e.now()
	}
	e.stageChanged(*run, i, reason)
}

func (e *Executor) degrade(def Definition, env *Env, cause error) (value any) {
	d, ok := def.Handler.(Degrader)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			env.Logger.Error("placeholder output failed", logging.String("panic", fmt.Sprint(r)))
			value = nil
		}
	}()
	return d.Degrade(env, cause)
}

func (e *Executor) cancel(run Run, outputs *Outputs, stage string, cause error) (Result, error) {
	run.State = StateCancelled
	run.Error = "cancelled before " + stage
	e.logger.Info("run cancelled between stages",
		logging.String("next_stage", stage),
		logging.String(logging.FieldEventType, "run_cancelled"),
	)
	e.finish(&run)
	return Result{Run: run.clone(), Outputs: outputs}, fmt.Errorf("run %s cancelled before stage %s: %w", e.runID, stage, cause)
}

func (e *Executor) finish(run *Run) {
	run.FinishedAt = e.now()
	e.logger.Info("run finished",
		logging.String(logging.FieldRunID, run.RunID),
		logging.String("status", string(run.State)),
		logging.Duration("run_duration", run.FinishedAt.Sub(run.StartedAt)),
		logging.String(logging.FieldEventType, "run_finish"),
	)
	snapshot := run.clone()
	for _, o := range e.observers {
		o.RunFinished(snapshot)
	}
}

func (e *Executor) notifyStarted(run Run) {
	snapshot := run.clone()
	for _, o := range e.observers {
		o.RunStarted(snapshot)
	}
}

func (e *Executor) stageChanged(run Run, i int, message string) {
	snapshot := run.clone()
	for _, o := range e.observers {
		o.StageChanged(snapshot, snapshot.Stages[i])
	}
	percent := -1.0
	switch run.Stages[i].Status {
	case StatusComplete, StatusSkipped:
		percent = 100
	}
	e.emit(Event{
		Stage:   run.Stages[i].Name,
		Index:   i,
		Total:   len(run.Stages),
		Status:  run.Stages[i].Status,
		Message: message,
		Percent: percent,
	})
}

func (e *Executor) emit(evt Event) {
	if e.progress != nil {
		e.progress(evt)
	}
}

func (e *Executor) newEnv(i int, def Definition, outputs *Outputs, logger *slog.Logger) *Env {
	total := len(e.stages)
	return &Env{
		RunID:       e.runID,
		ArtifactDir: e.store.ArtifactDir(),
		Outputs:     outputs,
		Logger:      logger,
		sampler:     logging.NewProgressSampler(10),
		stage:       def.Name,
		emit: func(message string, percent float64) {
			e.emit(Event{
				Stage:   def.Name,
				Index:   i,
				Total:   total,
				Status:  StatusRunning,
				Message: message,
				Percent: percent,
			})
		},
	}
}
