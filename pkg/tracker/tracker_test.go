package tracker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	base := t.TempDir()
	clock := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	n := 0
	return New(
		store.NewJSONStore(base+"/sessions"),
		store.NewJSONStore(base+"/ltm"),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("s%d", n)
		}),
	)
}

func TestParseFileAction(t *testing.T) {
	for _, a := range []string{"create", "modify", "delete"} {
		got, err := ParseFileAction(a)
		require.NoError(t, err)
		assert.Equal(t, FileAction(a), got)
	}
	_, err := ParseFileAction("rename")
	assert.Error(t, err)
}

func TestTracker_LazySessionCreation(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	current, err := tr.CurrentID(ctx)
	require.NoError(t, err)
	assert.Empty(t, current)

	s, err := tr.AddFinding(ctx, "", "config is loaded twice")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)

	current, err = tr.CurrentID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", current)

	s, err = tr.TrackFile(ctx, "", "main.go", ActionModify, "+3 -1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
	assert.Len(t, s.Files, 1)
	assert.Len(t, s.Findings, 1)
}

func TestTracker_ExplicitSessionBecomesCurrent(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	_, err := tr.TrackCommand(ctx, "build-42", "go build ./...", 0, "", "")
	require.NoError(t, err)

	current, err := tr.CurrentID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "build-42", current)

	ids, err := tr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"build-42"}, ids)
}

func TestTracker_ReservedID(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	_, err := tr.AddFinding(ctx, CurrentID, "x")
	assert.Error(t, err)
	_, err = tr.Load(ctx, CurrentID)
	assert.Error(t, err)
}

func TestTracker_Summary(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	s, err := tr.Start(ctx, "add retry to uploader")
	require.NoError(t, err)

	_, err = tr.TrackFile(ctx, s.ID, "uploader.go", ActionModify, "")
	require.NoError(t, err)
	_, err = tr.TrackFile(ctx, s.ID, "uploader.go", ActionModify, "")
	require.NoError(t, err)
	_, err = tr.TrackFile(ctx, s.ID, "retry.go", ActionCreate, "")
	require.NoError(t, err)
	_, err = tr.TrackCommand(ctx, s.ID, "go vet ./...", 1, "", "shadowed err")
	require.NoError(t, err)
	_, err = tr.TrackCommand(ctx, s.ID, "go build ./...", 0, "", "")
	require.NoError(t, err)
	_, err = tr.TrackTest(ctx, s.ID, "TestUpload", true, "", "")
	require.NoError(t, err)
	_, err = tr.TrackTest(ctx, s.ID, "TestRetry", false, "", "timeout")
	require.NoError(t, err)
	_, err = tr.TrackVerification(ctx, s.ID, "lint", true, "", true)
	require.NoError(t, err)
	_, err = tr.AddFinding(ctx, s.ID, "retries were unbounded")
	require.NoError(t, err)

	sum, err := tr.Summary(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, s.ID, sum.SessionID)
	assert.Equal(t, "add retry to uploader", sum.Task)
	assert.Equal(t, 2, sum.FilesChanged)
	assert.Equal(t, map[string]int{"modify": 2, "create": 1}, sum.FileActions)
	assert.Equal(t, 2, sum.Commands)
	require.Len(t, sum.FailedCommands, 1)
	assert.Equal(t, "go vet ./...", sum.FailedCommands[0].Command)
	assert.Equal(t, 1, sum.TestsPassed)
	assert.Equal(t, []string{"TestRetry"}, sum.FailedTests)
	assert.Equal(t, 1, sum.VerificationsPassed)
	assert.Equal(t, []string{"retries were unbounded"}, sum.Findings)
	assert.False(t, sum.AllChecksPassed)
}

func TestTracker_SummaryWithoutSession(t *testing.T) {
	_, err := newTestTracker(t).Summary(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no current session")
}

func TestTracker_RequiredFields(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	_, err := tr.TrackFile(ctx, "", "", ActionCreate, "")
	assert.Error(t, err)
	_, err = tr.TrackCommand(ctx, "", "", 0, "", "")
	assert.Error(t, err)
	_, err = tr.TrackTest(ctx, "", "", true, "", "")
	assert.Error(t, err)
	_, err = tr.TrackVerification(ctx, "", "", true, "", true)
	assert.Error(t, err)
	_, err = tr.AddFinding(ctx, "", "")
	assert.Error(t, err)
}

func TestTracker_Save(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	s, err := tr.Start(ctx, "task")
	require.NoError(t, err)
	_, err = tr.TrackTest(ctx, s.ID, "TestA", true, "", "")
	require.NoError(t, err)

	m, err := tr.Save(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, m.Summary.AllChecksPassed)

	var stored Memory
	require.NoError(t, tr.ltm.Get(ctx, s.ID, &stored))
	assert.Equal(t, s.ID, stored.Session.ID)
	assert.Len(t, stored.Session.Tests, 1)

	_, err = tr.Save(ctx, "missing")
	assert.Error(t, err)
}
