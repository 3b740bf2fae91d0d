package main

import (
	"fmt"

	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the runtime directory tree",
		Long: `Create every missing directory of the runtime tree under the project root.
Existing directories are left untouched, so running init again reports nothing
new.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}

			result, err := k.Init(cmd.Context())
			if err != nil {
				return err
			}

			return render(cmd, result, func() {
				if result.Initialized == 0 {
					presenter.Info(fmt.Sprintf("Runtime directories already exist under %s", k.Layout.RuntimeDir()))
					return
				}
				presenter.Success(fmt.Sprintf("Initialized %d directories", result.Initialized))
				for _, dir := range result.Directories {
					presenter.Info("  " + k.Layout.RelativeToRoot(dir))
				}
			})
		},
	}
}
