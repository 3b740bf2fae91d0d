package main

import (
	"fmt"
	"strings"

	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/spf13/cobra"
)

func newReflexionCmds(a *app) []*cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Remember the fix for an error",
		Long: `Remember the fix for an error. Errors that differ only in paths, numbers,
quoted values or hex ids share one entry, whose occurrence count grows with each
record.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			errMsg, _ := cmd.Flags().GetString("error")
			fix, _ := cmd.Flags().GetString("fix")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			f, err := k.Reflexion.Record(cmd.Context(), errMsg, fix)
			if err != nil {
				return err
			}
			return render(cmd, f, func() {
				presenter.Success(fmt.Sprintf("Recorded fix for %s (seen %d times)", f.Signature, f.Occurrences))
			})
		},
	}
	recordCmd.Flags().String("error", "", "Error message")
	recordCmd.Flags().String("fix", "", "Fix that resolved the error")
	recordCmd.MarkFlagRequired("error")
	recordCmd.MarkFlagRequired("fix")

	reflectCmd := &cobra.Command{
		Use:   "reflect",
		Short: "Look up known fixes for an error",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			errMsg, _ := cmd.Flags().GetString("error")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			r, err := k.Reflexion.Reflect(cmd.Context(), errMsg)
			if err != nil {
				return err
			}
			return render(cmd, r, func() {
				if len(r.Matches) == 0 {
					presenter.Info("No known fixes for this error")
					return
				}
				for _, m := range r.Matches {
					presenter.Section(fmt.Sprintf("%s (seen %d times)", m.Pattern, m.Occurrences))
					presenter.Info("  - " + strings.Join(m.Fixes, "\n  - "))
				}
			})
		},
	}
	reflectCmd.Flags().String("error", "", "Error message")
	reflectCmd.MarkFlagRequired("error")

	knownCmd := &cobra.Command{
		Use:   "known-errors",
		Short: "List every recorded error pattern, most frequent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			fixes, err := k.Reflexion.Known(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, fixes, func() {
				if len(fixes) == 0 {
					presenter.Info("No errors recorded")
					return
				}
				rows := make([][]string, 0, len(fixes))
				for _, f := range fixes {
					rows = append(rows, []string{fmt.Sprint(f.Occurrences), f.Pattern, fmt.Sprint(len(f.Fixes))})
				}
				presenter.Table([]string{"SEEN", "PATTERN", "FIXES"}, rows)
			})
		},
	}

	return []*cobra.Command{recordCmd, reflectCmd, knownCmd}
}
