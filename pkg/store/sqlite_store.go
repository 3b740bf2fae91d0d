package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jingkaihe/autonomous-agent/pkg/db"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// SQLiteStore keeps the documents of one collection in the shared state
// database. Several collections share one *sqlx.DB, obtained through conn on
// every call.
type SQLiteStore struct {
	conn       func(context.Context) (*sqlx.DB, error)
	collection string
}

// OpenSQLiteDB opens the state database and brings its schema up to date
func OpenSQLiteDB(ctx context.Context, dbPath string) (*sqlx.DB, error) {
	sqlDB, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.NewMigrationRunner(sqlDB).Run(ctx, db.Migrations()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

// NewSQLiteStore creates a store for collection over an already migrated
// database. Close does not close the shared database.
func NewSQLiteStore(sqlDB *sqlx.DB, collection string) *SQLiteStore {
	return &SQLiteStore{
		conn:       func(context.Context) (*sqlx.DB, error) { return sqlDB, nil },
		collection: collection,
	}
}

func withBusyRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(db.IsBusy),
		retry.LastErrorOnly(true),
	)
}

// Put upserts the document
func (s *SQLiteStore) Put(ctx context.Context, id string, doc any) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal document %s", id)
	}
	sqlDB, err := s.conn(ctx)
	if err != nil {
		return err
	}

	err = withBusyRetry(ctx, func() error {
		_, err := sqlDB.ExecContext(ctx, `
			INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
		`, s.collection, id, string(body), time.Now().UTC())
		return err
	})
	return errors.Wrapf(err, "failed to store document %s/%s", s.collection, id)
}

// Get decodes the stored document into out
func (s *SQLiteStore) Get(ctx context.Context, id string, out any) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	sqlDB, err := s.conn(ctx)
	if err != nil {
		return err
	}

	var body string
	err = sqlDB.GetContext(ctx, &body,
		"SELECT body FROM documents WHERE collection = ? AND id = ?",
		s.collection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrNotFound, "%s", id)
		}
		return errors.Wrapf(err, "failed to load document %s/%s", s.collection, id)
	}

	if err := json.Unmarshal([]byte(body), out); err != nil {
		return errors.Wrapf(err, "failed to unmarshal document %s", id)
	}
	return nil
}

// List returns the ids of the collection in ascending order
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	sqlDB, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	ids := []string{}
	err = sqlDB.SelectContext(ctx, &ids,
		"SELECT id FROM documents WHERE collection = ? ORDER BY id", s.collection)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list collection %s", s.collection)
	}
	return ids, nil
}

// Delete removes the document
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	sqlDB, err := s.conn(ctx)
	if err != nil {
		return err
	}

	var res sql.Result
	err = withBusyRetry(ctx, func() error {
		var err error
		res, err = sqlDB.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?", s.collection, id)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete document %s/%s", s.collection, id)
	}

	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "%s", id)
	}
	return nil
}

// Close is a no-op; the shared database is closed by its owner
func (s *SQLiteStore) Close() error {
	return nil
}
