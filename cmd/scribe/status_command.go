package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/checkpoint"
	"scribe/internal/runs"
	"scribe/internal/services"
	"scribe/internal/textutil"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the stages and checkpoints of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runID, err := textutil.SanitizeRunID(args[0])
			if err != nil {
				return services.Wrap(services.ErrValidation, "cli", "status", "invalid run id", err)
			}

			registry, err := openRegistry(cmd, cfg)
			if err != nil {
				return err
			}
			defer registry.Close()

			record, err := registry.Get(cmd.Context(), runID)
			if err != nil {
				return err
			}
			entries, hasCheckpoints, err := listCheckpoints(cfg.Paths.StateDir, runID)
			if err != nil {
				return err
			}
			if record == nil && !hasCheckpoints {
				return services.Wrap(services.ErrNotFound, "cli", "status", fmt.Sprintf("run %s not found", runID), nil)
			}
			var events []runs.StageEvent
			if showEvents && record != nil {
				if events, err = registry.Events(cmd.Context(), runID); err != nil {
					return err
				}
			}

			if jsonOutput {
				return writeJSON(cmd, newStatusView(runID, record, entries, events))
			}
			printStatus(cmd, runID, record, entries, events)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	cmd.Flags().BoolVar(&showEvents, "events", false, "Include the stage transition history")
	return cmd
}

// listCheckpoints reads the run's checkpoint directory without creating it
// or cleaning up after a run that may still be writing.
func listCheckpoints(stateDir, runID string) ([]checkpoint.Entry, bool, error) {
	store, err := checkpoint.OpenExisting(stateDir, runID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	entries, err := store.List()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, true, nil
		}
		return nil, false, err
	}
	return entries, true, nil
}

func printStatus(cmd *cobra.Command, runID string, record *runs.Record, entries []checkpoint.Entry, events []runs.StageEvent) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run: %s\n", runID)
	if record == nil {
		fmt.Fprintln(out, "Registry: no record (checkpoints only)")
	} else {
		fmt.Fprintf(out, "State: %s\n", record.State)
		fmt.Fprintf(out, "Source: %s\n", record.SourcePath)
		fmt.Fprintf(out, "Attempts: %d (last resumed: %s)\n", record.Attempts, yesNo(record.Resumed))
		fmt.Fprintf(out, "Updated: %s\n", formatTimestamp(record.UpdatedAt))
		if record.ErrorMessage != "" {
			fmt.Fprintf(out, "Error: %s\n", record.ErrorMessage)
		}
		if record.Resumable() {
			fmt.Fprintf(out, "Resume with: scribe run --resume --run-id %s %s\n", runID, record.SourcePath)
		}
		if len(record.Stages) > 0 {
			fmt.Fprintln(out, renderStageSummaries(record.Stages))
		}
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "Checkpoints: none")
	} else {
		fmt.Fprintln(out, "Checkpoints:")
		fmt.Fprintln(out, renderCheckpoints(entries))
	}

	if len(events) > 0 {
		fmt.Fprintln(out, "History:")
		rows := make([][]string, 0, len(events))
		for _, e := range events {
			rows = append(rows, []string{formatTimestamp(e.RecordedAt), e.Stage, e.Status, e.Reason})
		}
		fmt.Fprintln(out, renderTable([]string{"Recorded", "Stage", "Status", "Note"}, rows, nil))
	}
}

func renderStageSummaries(stages []runs.StageSummary) string {
	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		rows = append(rows, []string{
			s.Name,
			strings.ToLower(s.Policy),
			s.Status,
			yesNo(s.Resumed),
			formatDuration(time.Duration(s.DurationMs) * time.Millisecond),
			s.Reason,
		})
	}
	return renderTable(
		[]string{"Stage", "Policy", "Status", "Resumed", "Duration", "Note"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderCheckpoints(entries []checkpoint.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		state := "ok"
		if e.Err != nil {
			state = "unreadable"
		}
		rows = append(rows, []string{
			strconv.Itoa(e.Sequence),
			e.Stage,
			strconv.Itoa(e.SchemaVersion),
			formatTimestamp(e.WrittenAt),
			strconv.FormatInt(e.Size, 10),
			state,
		})
	}
	return renderTable(
		[]string{"Seq", "Stage", "Schema", "Written", "Bytes", "State"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	)
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

type checkpointView struct {
	Sequence      int       `json:"sequence"`
	Stage         string    `json:"stage"`
	SchemaVersion int       `json:"schema_version"`
	WrittenAt     time.Time `json:"written_at"`
	Size          int64     `json:"size"`
	Path          string    `json:"path"`
	Error         string    `json:"error,omitempty"`
}

type statusView struct {
	RunID       string              `json:"run_id"`
	State       string              `json:"state,omitempty"`
	Source      string              `json:"source,omitempty"`
	Attempts    int                 `json:"attempts,omitempty"`
	Error       string              `json:"error,omitempty"`
	Resumable   bool                `json:"resumable"`
	Stages      []runs.StageSummary `json:"stages,omitempty"`
	Checkpoints []checkpointView    `json:"checkpoints"`
	Events      []runs.StageEvent   `json:"events,omitempty"`
}

func newStatusView(runID string, record *runs.Record, entries []checkpoint.Entry, events []runs.StageEvent) statusView {
	view := statusView{RunID: runID, Checkpoints: make([]checkpointView, 0, len(entries)), Events: events}
	if record != nil {
		view.State = string(record.State)
		view.Source = record.SourcePath
		view.Attempts = record.Attempts
		view.Error = record.ErrorMessage
		view.Resumable = record.Resumable()
		view.Stages = record.Stages
	}
	for _, e := range entries {
		cv := checkpointView{
			Sequence:      e.Sequence,
			Stage:         e.Stage,
			SchemaVersion: e.SchemaVersion,
			WrittenAt:     e.WrittenAt,
			Size:          e.Size,
			Path:          e.Path,
		}
		if e.Err != nil {
			cv.Error = e.Err.Error()
		}
		view.Checkpoints = append(view.Checkpoints, cv)
	}
	return view
}
