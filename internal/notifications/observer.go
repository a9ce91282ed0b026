package notifications

import (
	"context"
	"log/slog"
	"time"

	"scribe/internal/logging"
	"scribe/internal/pipeline"
)

const observerSendTimeout = 15 * time.Second

// Observer sends a message when a run finishes. Delivery failures are logged
// and never change the run outcome.
type Observer struct {
	service Service
	source  string
	logger  *slog.Logger
}

// NewObserver adapts service to pipeline.Observer.
func NewObserver(service Service, source string, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Observer{service: service, source: source, logger: logging.NewComponentLogger(logger, "notifications")}
}

func (o *Observer) RunStarted(pipeline.Run) {}

func (o *Observer) StageChanged(pipeline.Run, pipeline.StageState) {}

func (o *Observer) RunFinished(run pipeline.Run) {
	if o.service == nil {
		return
	}
	summary := RunSummary{
		RunID:  run.RunID,
		Source: o.source,
		State:  string(run.State),
		Error:  run.Error,
	}
	if !run.StartedAt.IsZero() && run.FinishedAt.After(run.StartedAt) {
		summary.Duration = run.FinishedAt.Sub(run.StartedAt)
	}
	for _, stage := range run.Stages {
		if stage.Degraded {
			summary.Degraded = append(summary.Degraded, stage.Name)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), observerSendTimeout)
	defer cancel()
	if err := o.service.NotifyRunFinished(ctx, summary); err != nil {
		logging.WarnWithContext(o.logger, "run notification failed", "notification_failed",
			logging.String("run_id", run.RunID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no ntfy message for this run"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic is reachable"),
		)
	}
}
