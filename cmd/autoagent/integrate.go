package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jingkaihe/autonomous-agent/pkg/integration"
	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newIntegrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integrate",
		Short: "Merge subtask results into the session's integration report",
		Long: `Merge subtask results into the session's integration report. --results takes a
JSON array of {"task_id", "success", "output", "error", "artifacts"} objects, or
an object with a "results" array. Pass "-" to read it from stdin. Results for a
task id that was integrated before replace the earlier ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			raw, _ := cmd.Flags().GetString("results")
			if raw == "-" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return errors.Wrap(err, "failed to read results from stdin")
				}
				raw = string(data)
			}

			results, err := integration.ParseResults(raw)
			if err != nil {
				return err
			}
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			report, err := k.Integrator.Integrate(cmd.Context(), session, results)
			if err != nil {
				return err
			}

			return render(cmd, report, func() {
				presenter.KeyValues(map[string]string{
					"session":   report.SessionID,
					"succeeded": fmt.Sprint(report.Succeeded),
					"failed":    fmt.Sprint(report.Failed),
					"artifacts": fmt.Sprint(len(report.Artifacts)),
				})
				for _, id := range report.FailedTasks {
					presenter.Warning("subtask failed: " + id)
				}
			})
		},
	}
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().String("results", "", "Subtask results as JSON, or - for stdin")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("results")
	return cmd
}
