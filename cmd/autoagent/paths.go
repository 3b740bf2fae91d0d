package main

import (
	"os"

	"github.com/jingkaihe/autonomous-agent/pkg/paths"
	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/spf13/cobra"
)

// PathsOutput is the JSON form of the paths command
type PathsOutput struct {
	Root        string         `json:"root"`
	Strategy    paths.Strategy `json:"strategy"`
	Degraded    bool           `json:"degraded"`
	Initialized bool           `json:"initialized"`
	Roles       []RoleOutput   `json:"roles"`
}

// RoleOutput is one addressable role and whether it exists on disk
type RoleOutput struct {
	paths.Role
	Exists bool `json:"exists"`
}

func newPathsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show the resolved project root and runtime layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}

			out := PathsOutput{
				Root:        k.Resolution.Root,
				Strategy:    k.Resolution.Strategy,
				Degraded:    k.Resolution.Degraded(),
				Initialized: k.Initialized(),
			}
			for _, role := range k.Layout.Roles() {
				_, statErr := os.Stat(role.Path)
				out.Roles = append(out.Roles, RoleOutput{Role: role, Exists: statErr == nil})
			}

			return render(cmd, out, func() {
				presenter.KeyValues(map[string]string{
					"root":     out.Root,
					"strategy": string(out.Strategy),
					"store":    k.Backend(),
				})
				if !out.Initialized {
					presenter.Info("Runtime directory not initialized; run autoagent init")
				}
				if out.Degraded {
					presenter.Warning("No marker directory was found; the root above is a guess")
				}
				presenter.Separator()

				rows := make([][]string, 0, len(out.Roles))
				for _, r := range out.Roles {
					state := "missing"
					if r.Exists {
						state = "ok"
					}
					rows = append(rows, []string{r.Name, k.Layout.RelativeToRoot(r.Path), state})
				}
				presenter.Table([]string{"ROLE", "PATH", "STATE"}, rows)
			})
		},
	}
}
