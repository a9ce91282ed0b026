package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/preflight"
	"scribe/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories, external programs, and API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			blocked := preflight.Blocked(results)

			if jsonOutput {
				views := make([]checkView, 0, len(results))
				for _, r := range results {
					views = append(views, checkView{Name: r.Name, Passed: r.Passed, Blocking: r.Blocking, Detail: r.Detail})
				}
				if err := writeJSON(cmd, views); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderChecks(results))
				if len(blocked) == 0 {
					fmt.Fprintln(out, "Ready to run")
				}
			}
			if len(blocked) > 0 {
				return services.Wrap(services.ErrConfiguration, "preflight", "check",
					fmt.Sprintf("%d blocking check(s) failed", len(blocked)), nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

type checkView struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Blocking bool   `json:"blocking"`
	Detail   string `json:"detail"`
}

func renderChecks(results []preflight.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		switch {
		case r.Passed:
		case r.Blocking:
			status = "FAIL"
		default:
			status = "warn"
		}
		rows = append(rows, []string{r.Name, status, r.Detail})
	}
	return renderTable([]string{"Check", "Result", "Detail"}, rows, nil)
}
