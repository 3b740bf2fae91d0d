package main

import (
	"time"

	"github.com/jingkaihe/autonomous-agent/pkg/kernel"
	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/spf13/cobra"
)

// MonitorCmdConfig holds configuration for the monitor command
type MonitorCmdConfig struct {
	Session  string
	Ignore   []string
	Include  []string
	Debounce time.Duration
}

// NewMonitorCmdConfig creates a new MonitorCmdConfig with default values
func NewMonitorCmdConfig() *MonitorCmdConfig {
	return &MonitorCmdConfig{}
}

func newMonitorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch the project and track file changes",
		Long: `Watch the project root and record every created, modified or deleted file in
the tracker session. Bursts of events for one file are merged within the
debounce window. Runs until interrupted.

Ignore patterns are doublestar globs relative to the project root. The runtime
directory is always skipped; without --ignore, .git and node_modules are too. Include patterns match the
file name, e.g. "*.go".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := getMonitorCmdConfigFromFlags(cmd)
			ctx := cmd.Context()

			k, err := a.Kernel(ctx)
			if err != nil {
				return err
			}
			m, err := k.Monitor(ctx, kernel.MonitorConfig{
				SessionID: config.Session,
				Ignore:    config.Ignore,
				Include:   config.Include,
				Debounce:  config.Debounce,
			})
			if err != nil {
				return err
			}

			go func() {
				select {
				case <-m.Ready():
					presenter.Info("Watching " + k.Layout.Root() + " (Ctrl+C to stop)")
				case <-ctx.Done():
				}
			}()

			return m.Run(ctx)
		},
	}

	cmd.Flags().String("session", "", "Session id (defaults to the current session)")
	cmd.Flags().StringSlice("ignore", nil, "Ignore pattern (repeatable)")
	cmd.Flags().StringSlice("include", nil, "Only track files matching this pattern (repeatable)")
	cmd.Flags().Duration("debounce", 0, "Debounce window (defaults to monitor.debounce_ms)")
	return cmd
}

func getMonitorCmdConfigFromFlags(cmd *cobra.Command) *MonitorCmdConfig {
	config := NewMonitorCmdConfig()
	if session, err := cmd.Flags().GetString("session"); err == nil {
		config.Session = session
	}
	if ignore, err := cmd.Flags().GetStringSlice("ignore"); err == nil {
		config.Ignore = ignore
	}
	if include, err := cmd.Flags().GetStringSlice("include"); err == nil {
		config.Include = include
	}
	if debounce, err := cmd.Flags().GetDuration("debounce"); err == nil {
		config.Debounce = debounce
	}
	return config
}
