package db

import (
	"context"
	"database/sql"
	"os"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Migration is a schema change identified by a timestamp version (YYYYMMDDHHmmss).
type Migration struct {
	Version     int64
	Description string
	Up          func(*sql.Tx) error
	Down        func(*sql.Tx) error
}

// Migrations returns the schema history of the state database.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     20260301090000,
			Description: "Create documents table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS documents (
						collection TEXT NOT NULL,
						id TEXT NOT NULL,
						body TEXT NOT NULL,
						updated_at DATETIME NOT NULL,
						PRIMARY KEY (collection, id)
					)
				`)
				return errors.Wrap(err, "failed to create documents table")
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec("DROP TABLE IF EXISTS documents")
				return errors.Wrap(err, "failed to drop documents table")
			},
		},
		{
			Version:     20260301090100,
			Description: "Index documents by collection and update time",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_collection_updated
					ON documents(collection, updated_at)`)
				return errors.Wrap(err, "failed to create documents index")
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec("DROP INDEX IF EXISTS idx_documents_collection_updated")
				return errors.Wrap(err, "failed to drop documents index")
			},
		},
	}
}

// MigrationRunner applies migrations to a database
type MigrationRunner struct {
	db *sqlx.DB
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sqlx.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Run applies every pending migration in version order
func (r *MigrationRunner) Run(ctx context.Context, migrations []Migration) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	applied, err := r.appliedSet(ctx)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, m := range sorted {
		if applied[m.Version] {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
		}
	}

	return nil
}

// Rollback reverts the most recently applied migration
func (r *MigrationRunner) Rollback(ctx context.Context, migrations []Migration) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	var version int64
	if err := r.db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return errors.Wrap(err, "failed to get latest migration version")
	}
	if version == 0 {
		return nil
	}

	for _, m := range migrations {
		if m.Version != version {
			continue
		}
		if m.Down == nil {
			return errors.Errorf("migration %d has no rollback function", version)
		}
		return r.inTx(ctx, func(tx *sqlx.Tx) error {
			if err := m.Down(tx.Tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
			return errors.Wrap(err, "failed to remove migration record")
		})
	}

	return errors.Errorf("migration %d not found in provided migrations", version)
}

// AppliedVersions returns the applied versions in ascending order
func (r *MigrationRunner) AppliedVersions(ctx context.Context) ([]int64, error) {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	var versions []int64
	if err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"); err != nil {
		return nil, errors.Wrap(err, "failed to get applied versions")
	}
	return versions, nil
}

func (r *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL,
			description TEXT
		)
	`)
	return errors.Wrap(err, "failed to create schema_migrations table")
}

func (r *MigrationRunner) appliedSet(ctx context.Context) (map[int64]bool, error) {
	var versions []int64
	if err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, errors.Wrap(err, "failed to get applied migrations")
	}

	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (r *MigrationRunner) apply(ctx context.Context, m Migration) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := m.Up(tx.Tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now(), m.Description)
		return errors.Wrap(err, "failed to record migration")
	})
}

func (r *MigrationRunner) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// MigrationStatus is one known migration and whether it has been applied
type MigrationStatus struct {
	Version     int64  `json:"version"`
	Description string `json:"description"`
	Applied     bool   `json:"applied"`
}

// Status reports every known migration against the database at dbPath. A
// database that does not exist yet has nothing applied and is not created.
func Status(ctx context.Context, dbPath string) ([]MigrationStatus, error) {
	applied := map[int64]bool{}
	if _, err := os.Stat(dbPath); err == nil {
		db, err := Open(ctx, dbPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		versions, err := NewMigrationRunner(db).AppliedVersions(ctx)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			applied[v] = true
		}
	}

	out := []MigrationStatus{}
	for _, m := range Migrations() {
		out = append(out, MigrationStatus{Version: m.Version, Description: m.Description, Applied: applied[m.Version]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// RollbackLatest reverts the newest applied migration of the database at
// dbPath and returns it. It returns nil when nothing is applied or the
// database does not exist.
func RollbackLatest(ctx context.Context, dbPath string) (*Migration, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to stat database")
	}

	db, err := Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	runner := NewMigrationRunner(db)
	versions, err := runner.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	latest := versions[len(versions)-1]

	migrations := Migrations()
	if err := runner.Rollback(ctx, migrations); err != nil {
		return nil, err
	}
	for _, m := range migrations {
		if m.Version == latest {
			return &m, nil
		}
	}
	return &Migration{Version: latest}, nil
}
