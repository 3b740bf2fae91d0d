package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/jingkaihe/autonomous-agent/pkg/tracker"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// TrackFileConfig holds configuration for the track-file command
type TrackFileConfig struct {
	Session string
	Path    string
	Action  string
	Diff    string
}

// NewTrackFileConfig creates a new TrackFileConfig with default values
func NewTrackFileConfig() *TrackFileConfig {
	return &TrackFileConfig{Action: string(tracker.ActionModify)}
}

// TrackCommandConfig holds configuration for the track-command command
type TrackCommandConfig struct {
	Session  string
	Command  string
	ExitCode int
	Output   string
	Error    string
}

// NewTrackCommandConfig creates a new TrackCommandConfig with default values
func NewTrackCommandConfig() *TrackCommandConfig {
	return &TrackCommandConfig{}
}

// TrackCheckConfig holds configuration for track-test and track-verification
type TrackCheckConfig struct {
	Session string
	Name    string
	Passed  string
	Details string
	Error   string
	Manual  bool
}

// NewTrackCheckConfig creates a new TrackCheckConfig with default values
func NewTrackCheckConfig() *TrackCheckConfig {
	return &TrackCheckConfig{Passed: "true"}
}

func newTrackerCmds(a *app) []*cobra.Command {
	trackFileCmd := &cobra.Command{
		Use:   "track-file",
		Short: "Record a file change in the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := getTrackFileConfigFromFlags(cmd)
			action, err := tracker.ParseFileAction(config.Action)
			if err != nil {
				return err
			}
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			s, err := k.Tracker.TrackFile(cmd.Context(), config.Session, config.Path, action, config.Diff)
			if err != nil {
				return err
			}
			return tracked(cmd, s, fmt.Sprintf("Tracked %s of %s", action, config.Path))
		},
	}
	fileDefaults := NewTrackFileConfig()
	trackFileCmd.Flags().String("session", "", "Session id (defaults to the current session)")
	trackFileCmd.Flags().String("path", "", "Path of the changed file")
	trackFileCmd.Flags().String("action", fileDefaults.Action, "Change kind: create, modify or delete")
	trackFileCmd.Flags().String("diff", "", "Optional diff or change summary")
	trackFileCmd.MarkFlagRequired("path")

	trackCommandCmd := &cobra.Command{
		Use:   "track-command",
		Short: "Record a command execution in the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := getTrackCommandConfigFromFlags(cmd)
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			s, err := k.Tracker.TrackCommand(cmd.Context(), config.Session, config.Command, config.ExitCode, config.Output, config.Error)
			if err != nil {
				return err
			}
			return tracked(cmd, s, fmt.Sprintf("Tracked command %q (exit %d)", config.Command, config.ExitCode))
		},
	}
	trackCommandCmd.Flags().String("session", "", "Session id (defaults to the current session)")
	trackCommandCmd.Flags().String("cmd", "", "Command line that was run")
	trackCommandCmd.Flags().Int("exit", 0, "Exit code of the command")
	trackCommandCmd.Flags().String("output", "", "Captured output")
	trackCommandCmd.Flags().String("error", "", "Error message, if any")
	trackCommandCmd.MarkFlagRequired("cmd")

	trackTestCmd := &cobra.Command{
		Use:   "track-test",
		Short: "Record a test result in the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := getTrackCheckConfigFromFlags(cmd)
			passed, err := parsePassed(config.Passed)
			if err != nil {
				return err
			}
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			s, err := k.Tracker.TrackTest(cmd.Context(), config.Session, config.Name, passed, config.Details, config.Error)
			if err != nil {
				return err
			}
			return tracked(cmd, s, fmt.Sprintf("Tracked test %s (%s)", config.Name, verdict(passed)))
		},
	}
	trackTestCmd.Flags().String("session", "", "Session id (defaults to the current session)")
	trackTestCmd.Flags().String("name", "", "Test name")
	trackTestCmd.Flags().String("passed", NewTrackCheckConfig().Passed, "Whether the test passed (true or false)")
	trackTestCmd.Flags().String("details", "", "Optional details")
	trackTestCmd.Flags().String("error-msg", "", "Failure message")
	trackTestCmd.MarkFlagRequired("name")

	trackVerificationCmd := &cobra.Command{
		Use:   "track-verification",
		Short: "Record a verification check in the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := getTrackCheckConfigFromFlags(cmd)
			passed, err := parsePassed(config.Passed)
			if err != nil {
				return err
			}
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			s, err := k.Tracker.TrackVerification(cmd.Context(), config.Session, config.Name, passed, config.Details, !config.Manual)
			if err != nil {
				return err
			}
			return tracked(cmd, s, fmt.Sprintf("Tracked verification %s (%s)", config.Name, verdict(passed)))
		},
	}
	trackVerificationCmd.Flags().String("session", "", "Session id (defaults to the current session)")
	trackVerificationCmd.Flags().String("name", "", "Check name")
	trackVerificationCmd.Flags().String("passed", NewTrackCheckConfig().Passed, "Whether the check passed (true or false)")
	trackVerificationCmd.Flags().String("details", "", "Optional details")
	trackVerificationCmd.Flags().Bool("manual", false, "The check was performed manually")
	trackVerificationCmd.MarkFlagRequired("name")

	addFindingCmd := &cobra.Command{
		Use:   "add-finding",
		Short: "Record a key finding in the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			finding, _ := cmd.Flags().GetString("finding")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			s, err := k.Tracker.AddFinding(cmd.Context(), session, finding)
			if err != nil {
				return err
			}
			return tracked(cmd, s, "Finding recorded")
		},
	}
	addFindingCmd.Flags().String("session", "", "Session id (defaults to the current session)")
	addFindingCmd.Flags().String("finding", "", "Finding text")
	addFindingCmd.MarkFlagRequired("finding")

	summaryCmd := &cobra.Command{
		Use:   "tracker-summary",
		Short: "Summarize a tracked session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			sum, err := k.Tracker.Summary(cmd.Context(), session)
			if err != nil {
				return err
			}
			return render(cmd, sum, func() { printSummary(sum) })
		},
	}
	summaryCmd.Flags().String("session", "", "Session id (defaults to the current session)")

	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Snapshot a session into long-term memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			m, err := k.Tracker.Save(cmd.Context(), session)
			if err != nil {
				return err
			}
			return render(cmd, m, func() {
				presenter.Success(fmt.Sprintf("Session %s saved to %s", m.Session.ID, k.Layout.RelativeToRoot(k.Layout.LTMDir())))
			})
		},
	}
	saveCmd.Flags().String("session", "", "Session id (defaults to the current session)")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List tracked sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := k.Tracker.List(cmd.Context())
			if err != nil {
				return err
			}
			current, err := k.Tracker.CurrentID(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, ids, func() {
				if len(ids) == 0 {
					presenter.Info("No sessions tracked")
					return
				}
				for _, id := range ids {
					if id == current {
						presenter.Info(id + " (current)")
						continue
					}
					presenter.Info(id)
				}
			})
		},
	}

	return []*cobra.Command{
		trackFileCmd,
		trackCommandCmd,
		trackTestCmd,
		trackVerificationCmd,
		addFindingCmd,
		summaryCmd,
		saveCmd,
		sessionsCmd,
	}
}

func getTrackFileConfigFromFlags(cmd *cobra.Command) *TrackFileConfig {
	config := NewTrackFileConfig()
	if session, err := cmd.Flags().GetString("session"); err == nil {
		config.Session = session
	}
	if path, err := cmd.Flags().GetString("path"); err == nil {
		config.Path = path
	}
	if action, err := cmd.Flags().GetString("action"); err == nil {
		config.Action = action
	}
	if diff, err := cmd.Flags().GetString("diff"); err == nil {
		config.Diff = diff
	}
	return config
}

func getTrackCommandConfigFromFlags(cmd *cobra.Command) *TrackCommandConfig {
	config := NewTrackCommandConfig()
	if session, err := cmd.Flags().GetString("session"); err == nil {
		config.Session = session
	}
	if command, err := cmd.Flags().GetString("cmd"); err == nil {
		config.Command = command
	}
	if exitCode, err := cmd.Flags().GetInt("exit"); err == nil {
		config.ExitCode = exitCode
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}
	if errMsg, err := cmd.Flags().GetString("error"); err == nil {
		config.Error = errMsg
	}
	return config
}

func getTrackCheckConfigFromFlags(cmd *cobra.Command) *TrackCheckConfig {
	config := NewTrackCheckConfig()
	if session, err := cmd.Flags().GetString("session"); err == nil {
		config.Session = session
	}
	if name, err := cmd.Flags().GetString("name"); err == nil {
		config.Name = name
	}
	if passed, err := cmd.Flags().GetString("passed"); err == nil {
		config.Passed = passed
	}
	if details, err := cmd.Flags().GetString("details"); err == nil {
		config.Details = details
	}
	if errMsg, err := cmd.Flags().GetString("error-msg"); err == nil {
		config.Error = errMsg
	}
	if manual, err := cmd.Flags().GetBool("manual"); err == nil {
		config.Manual = manual
	}
	return config
}

// parsePassed accepts the boolean spellings agents tend to emit
func parsePassed(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "pass", "passed", "ok":
		return true, nil
	case "no", "n", "fail", "failed":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.Errorf("invalid --passed value %q (expected true or false)", s)
	}
	return v, nil
}

func verdict(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func tracked(cmd *cobra.Command, s *tracker.Session, message string) error {
	return render(cmd, s, func() {
		presenter.Success(message)
		presenter.Info("Session: " + s.ID)
	})
}

func printSummary(sum tracker.Summary) {
	presenter.Section("Session " + sum.SessionID)
	values := map[string]string{
		"files changed": strconv.Itoa(sum.FilesChanged),
		"commands":      fmt.Sprintf("%d (%d failed)", sum.Commands, len(sum.FailedCommands)),
		"tests":         fmt.Sprintf("%d passed, %d failed", sum.TestsPassed, sum.TestsFailed),
		"verifications": fmt.Sprintf("%d passed, %d failed", sum.VerificationsPassed, sum.VerificationsFailed),
	}
	if sum.Task != "" {
		values["task"] = sum.Task
	}
	presenter.KeyValues(values)

	for _, c := range sum.FailedCommands {
		presenter.Warning(fmt.Sprintf("command failed (exit %d): %s", c.ExitCode, c.Command))
	}
	for _, name := range sum.FailedTests {
		presenter.Warning("test failed: " + name)
	}
	for _, name := range sum.FailedVerifications {
		presenter.Warning("verification failed: " + name)
	}
	for _, f := range sum.Findings {
		presenter.Info("• " + f)
	}
	if sum.AllChecksPassed {
		presenter.Success("All checks passed")
	}
}
