package store

import (
	"context"
	"sync"

	"github.com/jingkaihe/autonomous-agent/pkg/db"
	"github.com/jingkaihe/autonomous-agent/pkg/paths"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Backend names accepted by the store.backend setting.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Factory hands out one Store per memory role. JSON stores map a role to
// memory/<role>; SQLite stores map it to a collection of the shared state
// database, which is opened on the first document access.
type Factory struct {
	layout  *paths.Layout
	backend string

	mu    sync.Mutex
	sqlDB *sqlx.DB
}

// NewFactory prepares stores for the given backend. An empty backend means
// JSON. Nothing is created on disk until a store is used.
func NewFactory(_ context.Context, layout *paths.Layout, backend string) (*Factory, error) {
	f := &Factory{layout: layout, backend: backend}

	switch backend {
	case "", BackendJSON:
		f.backend = BackendJSON
	case BackendSQLite:
	default:
		return nil, errors.Errorf("unknown store backend %q (expected %s or %s)", backend, BackendJSON, BackendSQLite)
	}

	return f, nil
}

// database opens and migrates the state database once
func (f *Factory) database(ctx context.Context) (*sqlx.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sqlDB != nil {
		return f.sqlDB, nil
	}
	if _, err := paths.EnsureDirectory(f.layout.RuntimeDir()); err != nil {
		return nil, err
	}
	sqlDB, err := OpenSQLiteDB(ctx, db.PathIn(f.layout.RuntimeDir()))
	if err != nil {
		return nil, err
	}
	f.sqlDB = sqlDB
	return sqlDB, nil
}

// Backend returns the resolved backend name
func (f *Factory) Backend() string {
	return f.backend
}

// Open returns the store for a memory role such as paths.MemorySessions
func (f *Factory) Open(role string) Store {
	if f.backend == BackendSQLite {
		return &SQLiteStore{conn: f.database, collection: role}
	}
	return NewJSONStore(f.layout.MemorySubdir(role))
}

// Close releases the shared database, if any
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sqlDB == nil {
		return nil
	}
	err := f.sqlDB.Close()
	f.sqlDB = nil
	return err
}
