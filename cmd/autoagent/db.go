package main

import (
	"fmt"

	"github.com/jingkaihe/autonomous-agent/pkg/db"
	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/spf13/cobra"
)

// DBStatusOutput is the JSON form of the db status command
type DBStatusOutput struct {
	Database   string               `json:"database"`
	Backend    string               `json:"backend"`
	Migrations []db.MigrationStatus `json:"migrations"`
}

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the SQLite state database",
		Long: `Manage the SQLite state database used when store.backend is sqlite. The
database lives in the runtime directory as state.db.`,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			dbPath := db.PathIn(k.Layout.RuntimeDir())
			migrations, err := db.Status(cmd.Context(), dbPath)
			if err != nil {
				return err
			}

			out := DBStatusOutput{Database: dbPath, Backend: k.Backend(), Migrations: migrations}
			return render(cmd, out, func() {
				presenter.KeyValues(map[string]string{
					"database": k.Layout.RelativeToRoot(dbPath),
					"backend":  out.Backend,
				})
				applied := 0
				rows := make([][]string, 0, len(migrations))
				for _, m := range migrations {
					state := "pending"
					if m.Applied {
						state = "applied"
						applied++
					}
					rows = append(rows, []string{fmt.Sprint(m.Version), m.Description, state})
				}
				presenter.Table([]string{"VERSION", "DESCRIPTION", "STATE"}, rows)
				presenter.Info(fmt.Sprintf("Applied: %d/%d migrations", applied, len(migrations)))
			})
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recently applied migration",
		Long: `Roll back the most recently applied migration. The next command that uses the
sqlite backend applies it again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := a.Kernel(cmd.Context())
			if err != nil {
				return err
			}
			m, err := db.RollbackLatest(cmd.Context(), db.PathIn(k.Layout.RuntimeDir()))
			if err != nil {
				return err
			}
			var out *db.MigrationStatus
			if m != nil {
				out = &db.MigrationStatus{Version: m.Version, Description: m.Description}
			}
			return render(cmd, out, func() {
				if m == nil {
					presenter.Warning("No migrations to roll back")
					return
				}
				presenter.Success(fmt.Sprintf("Rolled back migration %d: %s", m.Version, m.Description))
			})
		},
	}

	cmd.AddCommand(statusCmd, rollbackCmd)
	return cmd
}
