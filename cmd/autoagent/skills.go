package main

import (
	"fmt"
	"strings"

	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/jingkaihe/autonomous-agent/pkg/skills"
	"github.com/spf13/cobra"
)

func newListSkillsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-skills [name...]",
		Short: "List the skills installed under .trae/skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}

			found, err := k.Skills.DiscoverSkills()
			if err != nil {
				return err
			}
			list := skills.Sorted(skills.FilterByAllowlist(found, args))

			return render(cmd, list, func() {
				if len(list) == 0 {
					presenter.Info(fmt.Sprintf("No skills found in %s", k.Layout.SkillsDir()))
					return
				}
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					rows = append(rows, []string{s.Name, s.Description, k.Layout.RelativeToRoot(s.Directory)})
				}
				presenter.Table([]string{"NAME", "DESCRIPTION", "DIRECTORY"}, rows)
			})
		},
	}
}

func newRepairCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <" + strings.Join(skills.Actions, "|") + ">",
		Short: "Reconcile the skill registry with the installed skills",
		Long: `Reconcile config/skill-registry.json with the skills installed under .trae/skills.

  scan        list installed and registered skills
  validate    report registered skills whose directory or SKILL.md is gone and
              installed skills whose SKILL.md cannot be loaded
  detect-new  report installed skills that are not registered
  sync        rewrite the registry from the installed skills
  full        validate, then sync

Every run writes a report to memory/repair_reports.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: skills.Actions,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}

			report, err := k.Repairer.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return render(cmd, report, func() {
				presenter.Section("Skill registry: " + report.Action)
				presenter.KeyValues(map[string]string{
					"discovered": joinOrNone(report.Discovered),
					"registered": joinOrNone(report.Registered),
				})
				if report.Action == skills.ActionDetectNew {
					presenter.Info("New: " + joinOrNone(report.New))
				}
				if len(report.Added) > 0 || len(report.Removed) > 0 {
					presenter.Info(fmt.Sprintf("Added: %s | Removed: %s", joinOrNone(report.Added), joinOrNone(report.Removed)))
				}
				for _, issue := range report.Issues {
					presenter.Warning(issue)
				}
				if report.Healthy {
					presenter.Success("Skill registry is healthy")
				}
			})
		},
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
