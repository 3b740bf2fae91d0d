package main

import (
	"fmt"
	"strings"

	"github.com/jingkaihe/autonomous-agent/pkg/closedloop"
	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/spf13/cobra"
)

// ClosedLoopPhaseConfig holds configuration for the closed-loop-phase command
type ClosedLoopPhaseConfig struct {
	Session string
	Phase   string
	Data    string
}

// NewClosedLoopPhaseConfig creates a new ClosedLoopPhaseConfig with default values
func NewClosedLoopPhaseConfig() *ClosedLoopPhaseConfig {
	return &ClosedLoopPhaseConfig{}
}

func newClosedLoopCmds(a *app) []*cobra.Command {
	phaseNames := make([]string, 0, len(closedloop.Phases))
	for _, p := range closedloop.Phases {
		phaseNames = append(phaseNames, string(p))
	}

	startCmd := &cobra.Command{
		Use:   "closed-loop-start <task>",
		Short: "Start a closed loop for a task",
		Long: `Start a closed loop for a task. The loop runs execute, integrate, validate and
deliver; a failed validation goes through research and fix before validating
again, up to closed_loop.max_iterations fix rounds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			loop, err := k.ClosedLoop.Start(cmd.Context(), strings.Join(args, " "), session)
			if err != nil {
				return err
			}
			return render(cmd, loop, func() { printLoop(loop) })
		},
	}
	startCmd.Flags().String("session", "", "Session id (generated when empty)")

	phaseCmd := &cobra.Command{
		Use:   "closed-loop-phase",
		Short: "Complete the next phase of a closed loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := getClosedLoopPhaseConfigFromFlags(cmd)
			phase, err := closedloop.ParsePhase(config.Phase)
			if err != nil {
				return err
			}
			data, err := closedloop.DecodePhaseData(config.Data)
			if err != nil {
				return err
			}
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			loop, err := k.ClosedLoop.Advance(cmd.Context(), config.Session, phase, data)
			if err != nil {
				return err
			}
			return render(cmd, loop, func() { printLoop(loop) })
		},
	}
	phaseCmd.Flags().String("session", "", "Session id of the loop")
	phaseCmd.Flags().String("phase", "", "Completed phase: "+strings.Join(phaseNames, ", "))
	phaseCmd.Flags().String("data", "", `Phase result as JSON, e.g. {"passed": false, "issues": ["..."]}`)
	phaseCmd.MarkFlagRequired("session")
	phaseCmd.MarkFlagRequired("phase")

	statusCmd := &cobra.Command{
		Use:   "closed-loop-status",
		Short: "Show the state of a closed loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			loop, err := k.ClosedLoop.Status(cmd.Context(), session)
			if err != nil {
				return err
			}
			return render(cmd, loop, func() {
				printLoop(loop)
				for _, h := range loop.History {
					line := fmt.Sprintf("  %-9s iteration %d  %s", h.Phase, h.Iteration, h.CompletedAt.Format("2006-01-02 15:04:05"))
					if h.Data.Summary != "" {
						line += "  " + h.Data.Summary
					}
					presenter.Info(line)
				}
			})
		},
	}
	statusCmd.Flags().String("session", "", "Session id of the loop")
	statusCmd.MarkFlagRequired("session")

	resumeCmd := &cobra.Command{
		Use:   "closed-loop-resume",
		Short: "Show the phase an in-progress loop expects next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			loop, err := k.ClosedLoop.Resume(cmd.Context(), session)
			if err != nil {
				return err
			}
			return render(cmd, loop, func() { printLoop(loop) })
		},
	}
	resumeCmd.Flags().String("session", "", "Session id of the loop")
	resumeCmd.MarkFlagRequired("session")

	return []*cobra.Command{startCmd, phaseCmd, statusCmd, resumeCmd}
}

func getClosedLoopPhaseConfigFromFlags(cmd *cobra.Command) *ClosedLoopPhaseConfig {
	config := NewClosedLoopPhaseConfig()
	if session, err := cmd.Flags().GetString("session"); err == nil {
		config.Session = session
	}
	if phase, err := cmd.Flags().GetString("phase"); err == nil {
		config.Phase = phase
	}
	if data, err := cmd.Flags().GetString("data"); err == nil {
		config.Data = data
	}
	return config
}

func printLoop(loop *closedloop.Loop) {
	values := map[string]string{
		"session":   loop.SessionID,
		"task":      loop.Task,
		"status":    string(loop.Status),
		"iteration": fmt.Sprintf("%d/%d", loop.Iteration, loop.MaxIterations),
	}
	if loop.NextPhase != "" {
		values["next phase"] = string(loop.NextPhase)
	}
	presenter.KeyValues(values)

	switch loop.Status {
	case closedloop.StatusCompleted:
		presenter.Success("Loop completed")
	case closedloop.StatusFailed:
		presenter.Warning("Loop failed: fix rounds exhausted")
	}
}
