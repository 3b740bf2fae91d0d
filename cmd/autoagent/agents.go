package main

import (
	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/jingkaihe/autonomous-agent/pkg/swarm"
	"github.com/spf13/cobra"
)

func newAgentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage the agent registry",
	}

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent, or update the role of an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			agent, err := k.Swarm.Register(cmd.Context(), name, role)
			if err != nil {
				return err
			}
			return render(cmd, agent, func() {
				presenter.Success("Registered agent " + agent.Name + " (" + agent.ID + ")")
			})
		},
	}
	registerCmd.Flags().String("name", "", "Agent name")
	registerCmd.Flags().String("role", "", "Agent role")
	registerCmd.MarkFlagRequired("name")
	registerCmd.MarkFlagRequired("role")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			agents, err := k.Swarm.List(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, agents, func() {
				if len(agents) == 0 {
					presenter.Info("No agents registered")
					return
				}
				rows := make([][]string, 0, len(agents))
				for _, ag := range agents {
					rows = append(rows, []string{ag.Name, ag.Role, ag.Status, ag.ID})
				}
				presenter.Table([]string{"NAME", "ROLE", "STATUS", "ID"}, rows)
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Set the status of a registered agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			status, _ := cmd.Flags().GetString("status")
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			agent, err := k.Swarm.SetStatus(cmd.Context(), name, status)
			if err != nil {
				return err
			}
			return render(cmd, agent, func() {
				presenter.Success("Agent " + agent.Name + " is " + agent.Status)
			})
		},
	}
	statusCmd.Flags().String("name", "", "Agent name")
	statusCmd.Flags().String("status", swarm.StatusActive, "New status ("+swarm.StatusIdle+" or "+swarm.StatusActive+")")
	statusCmd.MarkFlagRequired("name")

	cmd.AddCommand(registerCmd, listCmd, statusCmd)
	return cmd
}
