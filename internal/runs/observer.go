package runs

import (
	"context"
	"log/slog"
	"time"

	"scribe/internal/logging"
	"scribe/internal/pipeline"
)

const observerWriteTimeout = 5 * time.Second

// Observer archives executor transitions into the registry. Registry errors
// are logged and never interrupt the run.
type Observer struct {
	registry *Registry
	source   string
	logger   *slog.Logger
}

// NewObserver returns an observer that records runs of source.
func NewObserver(registry *Registry, source string, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Observer{registry: registry, source: source, logger: logging.NewComponentLogger(logger, "runs")}
}

func (o *Observer) RunStarted(run pipeline.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), observerWriteTimeout)
	defer cancel()
	o.report(o.registry.Start(ctx, run.RunID, o.source, run.Resume, Summaries(run.Stages)), "start")
}

func (o *Observer) StageChanged(run pipeline.Run, stage pipeline.StageState) {
	ctx, cancel := context.WithTimeout(context.Background(), observerWriteTimeout)
	defer cancel()
	o.report(o.registry.RecordStage(ctx, run.RunID, Summary(stage), Summaries(run.Stages)), "stage")
}

func (o *Observer) RunFinished(run pipeline.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), observerWriteTimeout)
	defer cancel()
	o.report(o.registry.Finish(ctx, run.RunID, State(run.State), run.Error, Summaries(run.Stages)), "finish")
}

func (o *Observer) report(err error, op string) {
	if err == nil {
		return
	}
	logging.WarnWithContext(o.logger, "run registry update failed", "registry_write_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldImpact, "run history may be incomplete; checkpoints are unaffected"),
		logging.String(logging.FieldErrorHint, "check the state directory is writable"),
	)
}

// Summary converts a pipeline stage state for storage.
func Summary(s pipeline.StageState) StageSummary {
	return StageSummary{
		Name:       s.Name,
		Policy:     string(s.Policy),
		Status:     string(s.Status),
		Resumed:    s.Resumed,
		Degraded:   s.Degraded,
		Reason:     s.Reason,
		DurationMs: s.Duration().Milliseconds(),
	}
}

// Summaries converts every stage state.
func Summaries(stages []pipeline.StageState) []StageSummary {
	out := make([]StageSummary, len(stages))
	for i, s := range stages {
		out[i] = Summary(s)
	}
	return out
}
