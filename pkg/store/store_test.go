package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jingkaihe/autonomous-agent/pkg/paths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	layout := paths.NewLayout(t.TempDir())

	jsonFactory, err := NewFactory(ctx, layout, BackendJSON)
	require.NoError(t, err)

	sqliteFactory, err := NewFactory(ctx, layout, BackendSQLite)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteFactory.Close() })

	return map[string]Store{
		BackendJSON:   jsonFactory.Open(paths.MemorySessions),
		BackendSQLite: sqliteFactory.Open(paths.MemorySessions),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ids, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)

			require.NoError(t, s.Put(ctx, "b", sample{Name: "second", Count: 2}))
			require.NoError(t, s.Put(ctx, "a", sample{Name: "first", Count: 1, Tags: []string{"x"}}))

			var got sample
			require.NoError(t, s.Get(ctx, "a", &got))
			assert.Equal(t, sample{Name: "first", Count: 1, Tags: []string{"x"}}, got)

			require.NoError(t, s.Put(ctx, "a", sample{Name: "replaced", Count: 3}))
			got = sample{}
			require.NoError(t, s.Get(ctx, "a", &got))
			assert.Equal(t, "replaced", got.Name)

			ids, err = s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, ids)

			require.NoError(t, s.Delete(ctx, "b"))
			err = s.Get(ctx, "b", &got)
			assert.True(t, IsNotFound(err))

			err = s.Delete(ctx, "b")
			assert.True(t, IsNotFound(err))

			assert.Error(t, s.Put(ctx, "../escape", sample{}))
			assert.Error(t, s.Get(ctx, "", &got))
		})
	}
}

func TestJSONStore_LayoutOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "memory", "errors")
	s := NewJSONStore(dir)

	require.NoError(t, s.Put(ctx, "e1", sample{Name: "boom"}))
	assert.FileExists(t, filepath.Join(dir, "e1.json"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not linger")
}

func TestJSONStore_ListSkipsForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewJSONStore(dir)

	require.NoError(t, s.Put(ctx, "doc", sample{}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".doc.123.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested.json"), 0o755))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc"}, ids)
}

func TestJSONStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o644))

	var out sample
	err := NewJSONStore(dir).Get(context.Background(), "bad", &out)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestSQLiteStore_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	f, err := NewFactory(ctx, paths.NewLayout(t.TempDir()), BackendSQLite)
	require.NoError(t, err)
	defer f.Close()

	sessions := f.Open(paths.MemorySessions)
	errs := f.Open(paths.MemoryErrors)

	require.NoError(t, sessions.Put(ctx, "same", sample{Name: "session"}))
	require.NoError(t, errs.Put(ctx, "same", sample{Name: "error"}))

	var got sample
	require.NoError(t, errs.Get(ctx, "same", &got))
	assert.Equal(t, "error", got.Name)

	ids, err := sessions.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"same"}, ids)
}

func TestSQLiteFactory_OpensDatabaseOnFirstUse(t *testing.T) {
	ctx := context.Background()
	layout := paths.NewLayout(t.TempDir())

	f, err := NewFactory(ctx, layout, BackendSQLite)
	require.NoError(t, err)
	defer f.Close()

	s := f.Open(paths.MemorySessions)
	assert.NoDirExists(t, layout.RuntimeDir())

	require.NoError(t, s.Put(ctx, "first", sample{Name: "first"}))
	assert.FileExists(t, filepath.Join(layout.RuntimeDir(), "state.db"))

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}

func TestNewFactory(t *testing.T) {
	ctx := context.Background()
	layout := paths.NewLayout(t.TempDir())

	f, err := NewFactory(ctx, layout, "")
	require.NoError(t, err)
	assert.Equal(t, BackendJSON, f.Backend())
	assert.IsType(t, &JSONStore{}, f.Open(paths.MemoryTasks))
	assert.Equal(t, layout.TasksDir(), f.Open(paths.MemoryTasks).(*JSONStore).Dir())

	_, err = NewFactory(ctx, layout, "redis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"abc", "2026-10-18", "a.b", "current"} {
		assert.NoError(t, ValidateID(id), id)
	}
	for _, id := range []string{"", "  ", ".", "..", "a/b", `a\b`} {
		assert.Error(t, ValidateID(id), id)
	}
}
