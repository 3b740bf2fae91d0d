package main

import (
	"fmt"

	"github.com/jingkaihe/autonomous-agent/pkg/version"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		// version never needs config or logging
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			info := version.Get()
			switch format {
			case "text":
				fmt.Fprintln(cmd.OutOrStdout(), info.String())
			case "json":
				out, err := info.JSON()
				if err != nil {
					return errors.Wrap(err, "failed to format version info")
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			default:
				return errors.Errorf("unknown format %q, expected text or json", format)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "text", "Output format (text or json)")
	return cmd
}
