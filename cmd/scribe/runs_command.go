package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/checkpoint"
	"scribe/internal/runs"
	"scribe/internal/services"
	"scribe/internal/textutil"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := openRegistry(cmd, cfg)
			if err != nil {
				return err
			}
			defer registry.Close()

			records, err := registry.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				views := make([]runListView, 0, len(records))
				for _, r := range records {
					views = append(views, newRunListView(r))
				}
				return writeJSON(cmd, views)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.RunID,
					string(r.State),
					r.CurrentStage,
					strconv.Itoa(r.Attempts),
					formatTimestamp(r.UpdatedAt),
					r.SourcePath,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "State", "Stage", "Attempts", "Updated", "Source"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))

			stats, err := registry.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, formatStats(stats))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")
	cmd.AddCommand(newRunsRemoveCommand(ctx))
	return cmd
}

func newRunsRemoveCommand(ctx *commandContext) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "remove <run-id>...",
		Short: "Forget runs, optionally deleting their checkpoints and chunk audio",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := openRegistry(cmd, cfg)
			if err != nil {
				return err
			}
			defer registry.Close()

			out := cmd.OutOrStdout()
			for _, arg := range args {
				runID, err := textutil.SanitizeRunID(arg)
				if err != nil {
					return services.Wrap(services.ErrValidation, "cli", "runs remove", "invalid run id", err)
				}
				record, err := registry.Get(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if record != nil && record.State == runs.StateRunning {
					return fmt.Errorf("run %s is still running", runID)
				}
				removed, err := registry.Remove(cmd.Context(), runID)
				if err != nil {
					return err
				}
				purged := false
				if purge {
					if purged, err = purgeRun(cfg.Paths.StateDir, runID); err != nil {
						return err
					}
				}
				switch {
				case removed && purged:
					fmt.Fprintf(out, "Removed run %s and its checkpoints\n", runID)
				case removed:
					fmt.Fprintf(out, "Removed run %s\n", runID)
				case purged:
					fmt.Fprintf(out, "Deleted checkpoints for %s (no registry record)\n", runID)
				default:
					fmt.Fprintf(out, "Run %s not found\n", runID)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the run's checkpoint and artifact directory")
	return cmd
}

// purgeRun deletes a run directory unless another process holds its lock.
func purgeRun(stateDir, runID string) (bool, error) {
	store, err := checkpoint.OpenExisting(stateDir, runID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	lock, err := store.Lock()
	if err != nil {
		return false, err
	}
	defer func() { _ = lock.Unlock() }()
	if err := os.RemoveAll(store.Dir()); err != nil {
		return false, fmt.Errorf("delete run directory: %w", err)
	}
	return true, nil
}

func formatStats(stats map[runs.State]int) string {
	states := make([]string, 0, len(stats))
	for state := range stats {
		states = append(states, string(state))
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	total := 0
	for _, state := range states {
		n := stats[runs.State(state)]
		total += n
		parts = append(parts, fmt.Sprintf("%s %d", strings.ToLower(state), n))
	}
	return fmt.Sprintf("Total: %d (%s)", total, strings.Join(parts, ", "))
}

type runListView struct {
	RunID        string `json:"run_id"`
	State        string `json:"state"`
	CurrentStage string `json:"current_stage,omitempty"`
	Attempts     int    `json:"attempts"`
	Source       string `json:"source"`
	Error        string `json:"error,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

func newRunListView(r runs.Record) runListView {
	return runListView{
		RunID:        r.RunID,
		State:        string(r.State),
		CurrentStage: r.CurrentStage,
		Attempts:     r.Attempts,
		Source:       r.SourcePath,
		Error:        r.ErrorMessage,
		UpdatedAt:    r.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
