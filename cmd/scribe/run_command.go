package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"scribe/internal/checkpoint"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/metrics"
	"scribe/internal/notifications"
	"scribe/internal/pipeline"
	"scribe/internal/preflight"
	"scribe/internal/runs"
	"scribe/internal/services"
	"scribe/internal/stages"
	"scribe/internal/textutil"
)

var errInterrupted = errors.New("run interrupted")

type runOptions struct {
	runID      string
	resume     bool
	jsonOutput bool
	skipChecks bool
	noProgress bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Transcribe a recording",
		Long: "Run every enabled stage against the source recording. With --resume and the\n" +
			"run id of an earlier attempt, stages whose checkpoints are still valid are not repeated.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runPipeline(cmd, cfg, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.runID, "run-id", "", "Run identifier (generated when omitted; required with --resume)")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Reuse valid checkpoints from an earlier attempt")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the run summary as JSON")
	cmd.Flags().BoolVar(&opts.skipChecks, "skip-checks", false, "Do not run preflight checks first")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Do not render stage progress")
	return cmd
}

func runPipeline(cmd *cobra.Command, cfg *config.Config, source string, opts runOptions) error {
	runID, err := resolveRunID(opts)
	if err != nil {
		return err
	}

	logger, err := newCommandLogger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	baseCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.skipChecks {
		results := preflight.RunAll(baseCtx, cfg)
		if blocked := preflight.Blocked(results); len(blocked) > 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), renderChecks(blocked))
			return services.Wrap(services.ErrConfiguration, "preflight", "run",
				fmt.Sprintf("%d blocking check(s) failed", len(blocked)), nil)
		}
		for _, r := range results {
			if !r.Passed {
				logger.Info("preflight check not passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			}
		}
	}

	store, err := checkpoint.Open(cfg.Paths.StateDir, runID)
	if err != nil {
		return err
	}
	registry, err := openRegistry(cmd, cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	deps, err := stages.NewDeps(cfg, source, store.ArtifactDir(), logger)
	if err != nil {
		return err
	}
	defs, err := stages.Build(deps)
	if err != nil {
		return err
	}

	collector := metrics.New()
	observers := []pipeline.Observer{
		runs.NewObserver(registry, deps.Source, logger),
		collector,
		notifications.NewObserver(notifications.NewService(cfg), deps.Source, logger),
	}
	if cfg.Metrics.Enabled {
		srv, err := metrics.Serve(cfg.Metrics.Listen, collector, logger)
		if err != nil {
			logging.WarnWithContext(logger, "metrics endpoint unavailable", "metrics_listen_failed",
				logging.Error(err),
				logging.String("listen", cfg.Metrics.Listen),
				logging.String(logging.FieldImpact, "run continues without /metrics"),
			)
		} else {
			defer shutdownMetrics(srv, logger)
		}
	}

	execOpts := pipeline.Options{
		RunID:     store.RunID(),
		Stages:    defs,
		Store:     store,
		Logger:    logger,
		Observers: observers,
	}
	var renderer *progressRenderer
	if !opts.noProgress && !opts.jsonOutput {
		renderer = newProgressRenderer(cmd.ErrOrStderr())
		execOpts.Progress = renderer.Handle
	}
	executor, err := pipeline.NewExecutor(execOpts)
	if err != nil {
		return err
	}

	result, runErr := executor.Run(baseCtx, opts.resume)
	if renderer != nil {
		renderer.Finish()
	}
	if result.Run.RunID == "" {
		// The executor never started, typically because another process
		// holds the run lock.
		return runErr
	}

	if opts.jsonOutput {
		if err := writeJSON(cmd, newRunView(result, runErr)); err != nil {
			return err
		}
	} else {
		printRunSummary(cmd, result)
	}

	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("%w; continue with `scribe run --resume --run-id %s %s`", errInterrupted, store.RunID(), source)
	}
	return runErr
}

func resolveRunID(opts runOptions) (string, error) {
	raw := strings.TrimSpace(opts.runID)
	if raw == "" {
		if opts.resume {
			return "", services.Wrap(services.ErrValidation, "cli", "run", "--resume requires --run-id", nil)
		}
		return uuid.NewString(), nil
	}
	id, err := textutil.SanitizeRunID(raw)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "cli", "run", "invalid --run-id", err)
	}
	return id, nil
}

func shutdownMetrics(srv *metrics.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Debug("metrics shutdown", logging.Error(err))
	}
}

func printRunSummary(cmd *cobra.Command, result pipeline.Result) {
	out := cmd.OutOrStdout()
	run := result.Run
	fmt.Fprintf(out, "Run %s: %s\n", run.RunID, run.State)
	fmt.Fprintln(out, renderStageStates(run.Stages))

	if degraded := result.Degraded(); len(degraded) > 0 {
		fmt.Fprintln(out, "Skipped stages:")
		for _, s := range degraded {
			fmt.Fprintf(out, "  - %s: %s\n", s.Name, s.Reason)
		}
	}
	if exported, err := pipeline.OutputAs[stages.ExportResult](result.Outputs, config.StageExport); err == nil && !exported.Skipped {
		fmt.Fprintf(out, "Transcript written to %s\n", exported.Dir)
	}
}

func renderStageStates(states []pipeline.StageState) string {
	rows := make([][]string, 0, len(states))
	for _, s := range states {
		rows = append(rows, []string{
			s.Name,
			strings.ToLower(string(s.Policy)),
			string(s.Status),
			yesNo(s.Resumed),
			formatDuration(s.Duration()),
			s.Reason,
		})
	}
	return renderTable(
		[]string{"Stage", "Policy", "Status", "Resumed", "Duration", "Note"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

type stageView struct {
	Name       string  `json:"name"`
	Policy     string  `json:"policy"`
	Status     string  `json:"status"`
	Resumed    bool    `json:"resumed"`
	Degraded   bool    `json:"degraded"`
	Reason     string  `json:"reason,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

type runView struct {
	RunID     string      `json:"run_id"`
	State     string      `json:"state"`
	Resume    bool        `json:"resume"`
	Error     string      `json:"error,omitempty"`
	OutputDir string      `json:"output_dir,omitempty"`
	Files     []string    `json:"files,omitempty"`
	Stages    []stageView `json:"stages"`
}

func newRunView(result pipeline.Result, runErr error) runView {
	view := runView{
		RunID:  result.Run.RunID,
		State:  string(result.Run.State),
		Resume: result.Run.Resume,
		Error:  result.Run.Error,
		Stages: make([]stageView, 0, len(result.Run.Stages)),
	}
	if view.Error == "" && runErr != nil {
		view.Error = runErr.Error()
	}
	for _, s := range result.Run.Stages {
		view.Stages = append(view.Stages, stageView{
			Name:       s.Name,
			Policy:     string(s.Policy),
			Status:     string(s.Status),
			Resumed:    s.Resumed,
			Degraded:   s.Degraded,
			Reason:     s.Reason,
			DurationMs: float64(s.Duration().Microseconds()) / 1000,
		})
	}
	if result.Outputs != nil {
		if exported, err := pipeline.OutputAs[stages.ExportResult](result.Outputs, config.StageExport); err == nil {
			view.OutputDir = exported.Dir
			view.Files = exported.Files
		}
	}
	return view
}
