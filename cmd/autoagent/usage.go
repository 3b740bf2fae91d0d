package main

import (
	"fmt"
	"sort"

	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/jingkaihe/autonomous-agent/pkg/usage"
	"github.com/spf13/cobra"
)

// RecordToolsConfig holds configuration for the record-tools command
type RecordToolsConfig struct {
	Session      string
	ToolCalls    string
	TaskType     string
	InputTokens  int
	OutputTokens int
}

// NewRecordToolsConfig creates a new RecordToolsConfig with default values
func NewRecordToolsConfig() *RecordToolsConfig {
	return &RecordToolsConfig{TaskType: usage.DefaultTaskType}
}

func newUsageCmds(a *app) []*cobra.Command {
	defaults := NewRecordToolsConfig()

	recordCmd := &cobra.Command{
		Use:   "record-tools",
		Short: "Record the token usage of a batch of tool calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := getRecordToolsConfigFromFlags(cmd)
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			r, err := k.RecordTools(cmd.Context(), usage.Record{
				SessionID:    config.Session,
				ToolCalls:    config.ToolCalls,
				TaskType:     config.TaskType,
				InputTokens:  config.InputTokens,
				OutputTokens: config.OutputTokens,
			})
			if err != nil {
				return err
			}
			return render(cmd, r, func() {
				presenter.Success(fmt.Sprintf("Recorded %s tokens (%s)", usage.FormatNumber(r.Total()), r.TaskType))
			})
		},
	}
	recordCmd.Flags().String("session", "", "Session id (defaults to the current session)")
	recordCmd.Flags().String("tool-calls", "", "Description of the tool calls")
	recordCmd.Flags().String("type", defaults.TaskType, "Task type")
	recordCmd.Flags().Int("input", 0, "Input tokens")
	recordCmd.Flags().Int("output", 0, "Output tokens")

	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Summarize recorded token usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := k.Usage.Summary(cmd.Context(), session)
			if err != nil {
				return err
			}
			return render(cmd, stats, func() { printStats(stats) })
		},
	}
	tokensCmd.Flags().String("session", "", "Only count this session")

	estimateCmd := &cobra.Command{
		Use:   "estimate-session",
		Short: "Estimate the token usage of a session",
		Long: `Estimate the token usage of a session from its description. Without
--description the task of the session is used. Tokens already recorded for the
session are reported alongside the projection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			description, _ := cmd.Flags().GetString("description")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			est, err := k.EstimateSession(cmd.Context(), session, description)
			if err != nil {
				return err
			}
			return render(cmd, est, func() {
				values := map[string]string{
					"description tokens": usage.FormatNumber(est.DescriptionTokens),
					"estimated input":    usage.FormatNumber(est.EstimatedInput),
					"estimated output":   usage.FormatNumber(est.EstimatedOutput),
					"recorded input":     usage.FormatNumber(est.RecordedInput),
					"recorded output":    usage.FormatNumber(est.RecordedOutput),
				}
				if est.SessionID != "" {
					values["session"] = est.SessionID
				}
				presenter.KeyValues(values)
			})
		},
	}
	estimateCmd.Flags().String("session", "", "Session id (defaults to the current session)")
	estimateCmd.Flags().String("description", "", "Task description to estimate")

	return []*cobra.Command{recordCmd, tokensCmd, estimateCmd}
}

func getRecordToolsConfigFromFlags(cmd *cobra.Command) *RecordToolsConfig {
	config := NewRecordToolsConfig()
	if session, err := cmd.Flags().GetString("session"); err == nil {
		config.Session = session
	}
	if calls, err := cmd.Flags().GetString("tool-calls"); err == nil {
		config.ToolCalls = calls
	}
	if taskType, err := cmd.Flags().GetString("type"); err == nil && taskType != "" {
		config.TaskType = taskType
	}
	if input, err := cmd.Flags().GetInt("input"); err == nil {
		config.InputTokens = input
	}
	if output, err := cmd.Flags().GetInt("output"); err == nil {
		config.OutputTokens = output
	}
	return config
}

func printStats(stats *usage.Stats) {
	if stats.Total.Calls == 0 {
		presenter.Info("No token usage recorded")
		return
	}

	presenter.Stats("Total", presenter.Tokens{
		Input:  int64(stats.Total.Input),
		Output: int64(stats.Total.Output),
		Calls:  int64(stats.Total.Calls),
	})

	presenter.Section("By task type")
	presenter.Table([]string{"TYPE", "CALLS", "INPUT", "OUTPUT", "TOTAL"}, tokenRows(stats.ByTaskType))

	presenter.Section("By session")
	presenter.Table([]string{"SESSION", "CALLS", "INPUT", "OUTPUT", "TOTAL"}, tokenRows(stats.BySession))
}

func tokenRows(m map[string]usage.Tokens) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		t := m[k]
		label := k
		if label == "" {
			label = "(none)"
		}
		rows = append(rows, []string{
			label,
			usage.FormatNumber(t.Calls),
			usage.FormatNumber(t.Input),
			usage.FormatNumber(t.Output),
			usage.FormatNumber(t.Total),
		})
	}
	return rows
}
