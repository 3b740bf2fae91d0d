package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, VerifyConfiguration(context.Background(), db))
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", FileName))
	assert.Error(t, err)
}

func TestPathIn(t *testing.T) {
	assert.Equal(t, filepath.Join("/project/runtime", "state.db"), PathIn("/project/runtime"))
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.True(t, IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsBusy(errors.Wrap(errors.New("SQLITE_LOCKED"), "put")))
	assert.False(t, IsBusy(errors.New("no such table: documents")))
}

func TestMigrations_CreateDocumentsTable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run(ctx, Migrations()))

	var exists bool
	require.NoError(t, db.Get(&exists, `
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type='table' AND name='documents'
	`))
	assert.True(t, exists)

	versions, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20260301090000, 20260301090100}, versions)
}

func TestMigrationRunner_IdempotentAndOrdered(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	migrations := []Migration{
		{
			Version:     20240101000002,
			Description: "Add column",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("ALTER TABLE test_table ADD COLUMN name TEXT")
				return err
			},
		},
		{
			Version:     20240101000001,
			Description: "Create test table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE TABLE test_table (id INTEGER PRIMARY KEY)")
				return err
			},
		},
	}

	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run(ctx, migrations))
	require.NoError(t, runner.Run(ctx, migrations))

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM schema_migrations"))
	assert.Equal(t, 2, count)

	versions, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20240101000001, 20240101000002}, versions)
}

func TestMigrationRunner_Rollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run(ctx, Migrations()))
	require.NoError(t, runner.Rollback(ctx, Migrations()))

	versions, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20260301090000}, versions)

	var exists bool
	require.NoError(t, db.Get(&exists, `
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type='index' AND name='idx_documents_collection_updated'
	`))
	assert.False(t, exists)
}

func TestMigrationRunner_RollbackWithoutDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	migrations := []Migration{
		{
			Version:     20240101000001,
			Description: "Irreversible",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE TABLE t (id INTEGER)")
				return err
			},
		},
	}

	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run(ctx, migrations))

	err := runner.Rollback(ctx, migrations)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rollback function")
}

func TestStatusAndRollbackLatest(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), FileName)

	status, err := Status(ctx, dbPath)
	require.NoError(t, err)
	require.Len(t, status, 2)
	for _, s := range status {
		assert.False(t, s.Applied)
	}
	assert.NoFileExists(t, dbPath)

	m, err := RollbackLatest(ctx, dbPath)
	require.NoError(t, err)
	assert.Nil(t, m)

	db, err := Open(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, NewMigrationRunner(db).Run(ctx, Migrations()))
	require.NoError(t, db.Close())

	status, err = Status(ctx, dbPath)
	require.NoError(t, err)
	assert.True(t, status[0].Applied)
	assert.True(t, status[1].Applied)

	m, err = RollbackLatest(ctx, dbPath)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(20260301090100), m.Version)

	status, err = Status(ctx, dbPath)
	require.NoError(t, err)
	assert.True(t, status[0].Applied)
	assert.False(t, status[1].Applied)
}
