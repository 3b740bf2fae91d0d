package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jingkaihe/autonomous-agent/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	session string
	path    string
	action  tracker.FileAction
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recorded
}

func (f *fakeRecorder) TrackFile(_ context.Context, sessionID, path string, action tracker.FileAction, _ string) (*tracker.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recorded{session: sessionID, path: path, action: action})
	return &tracker.Session{ID: sessionID}, nil
}

func (f *fakeRecorder) snapshot() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.events...)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Root: t.TempDir(), Ignore: []string{"[unclosed"}}, &fakeRecorder{})
	assert.Error(t, err)

	_, err = New(Config{Root: t.TempDir(), Include: []string{"[unclosed"}}, &fakeRecorder{})
	assert.Error(t, err)

	_, err = New(Config{Root: t.TempDir(), Debounce: -time.Second}, &fakeRecorder{})
	assert.Error(t, err)

	m, err := New(Config{Root: t.TempDir()}, &fakeRecorder{})
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, m.cfg.Debounce)
}

func TestIgnored(t *testing.T) {
	m, err := New(Config{Root: "/project", Ignore: DefaultIgnore("runtime")}, &fakeRecorder{})
	require.NoError(t, err)

	tests := []struct {
		path    string
		ignored bool
	}{
		{".git/HEAD", true},
		{".git/objects/ab/cdef", true},
		{"node_modules/left-pad/index.js", true},
		{"runtime/memory/sessions/s1.json", true},
		{"main.go", false},
		{"pkg/node_modules.go", false},
		{"docs/.github/workflow.yml", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ignored, m.Ignored(tt.path))
		})
	}
}

func TestIncluded(t *testing.T) {
	m, err := New(Config{Root: "/project", Include: []string{"*.go", "*.{yaml,yml}"}}, &fakeRecorder{})
	require.NoError(t, err)

	assert.True(t, m.Included("cmd/main.go"))
	assert.True(t, m.Included("deploy/values.yml"))
	assert.False(t, m.Included("README.md"))

	all, err := New(Config{Root: "/project"}, &fakeRecorder{})
	require.NoError(t, err)
	assert.True(t, all.Included("README.md"))
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		op     fsnotify.Op
		action tracker.FileAction
		ok     bool
	}{
		{fsnotify.Create, tracker.ActionCreate, true},
		{fsnotify.Write, tracker.ActionModify, true},
		{fsnotify.Remove, tracker.ActionDelete, true},
		{fsnotify.Rename, tracker.ActionDelete, true},
		{fsnotify.Chmod, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			action, ok := ActionFor(tt.op)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Event, 10)
	d := newDebouncer(ctx, 30*time.Millisecond, out)
	defer d.stop()

	d.push(Event{Path: "a.go", Action: tracker.ActionCreate})
	d.push(Event{Path: "a.go", Action: tracker.ActionModify})
	d.push(Event{Path: "a.go", Action: tracker.ActionModify})
	d.push(Event{Path: "b.go", Action: tracker.ActionModify})

	got := map[string]tracker.FileAction{}
	for len(got) < 2 {
		select {
		case e := <-out:
			got[e.Path] = e.Action
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for debounced events")
		}
	}

	assert.Equal(t, tracker.ActionCreate, got["a.go"])
	assert.Equal(t, tracker.ActionModify, got["b.go"])

	select {
	case e := <-out:
		t.Fatalf("unexpected extra event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMonitor_RecordsChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "runtime"), 0o755))

	rec := &fakeRecorder{}
	m, err := New(Config{
		Root:      root,
		SessionID: "s1",
		Ignore:    DefaultIgnore("runtime"),
		Debounce:  20 * time.Millisecond,
	}, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-m.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not start")
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "runtime", "state.json"), []byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "util.go"), []byte("package pkg\n"), 0o644))

	assert.Eventually(t, func() bool {
		for _, e := range rec.snapshot() {
			if e.path == "pkg/util.go" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	for _, e := range rec.snapshot() {
		assert.Equal(t, "s1", e.session)
		assert.NotContains(t, e.path, "runtime/")
	}
}
