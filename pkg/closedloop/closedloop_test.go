package closedloop

import (
	"context"
	"testing"

	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func newTestEngine(t *testing.T, maxIterations int) *Engine {
	t.Helper()
	return NewEngine(store.NewJSONStore(t.TempDir()), maxIterations)
}

func TestDecodePhaseData(t *testing.T) {
	data, err := DecodePhaseData(`{"summary":"ok","passed":"true","issues":["a","b"],"coverage":0.8}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", data.Summary)
	require.NotNil(t, data.Passed)
	assert.True(t, *data.Passed)
	assert.Equal(t, []string{"a", "b"}, data.Issues)
	assert.Equal(t, 0.8, data.Extra["coverage"])

	empty, err := DecodePhaseData("")
	require.NoError(t, err)
	assert.Nil(t, empty.Passed)

	_, err = DecodePhaseData("[1,2]")
	assert.Error(t, err)
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("research")
	require.NoError(t, err)
	assert.Equal(t, PhaseResearch, p)

	_, err = ParsePhase("deploy")
	assert.Error(t, err)
}

func TestEngine_HappyPath(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 0)

	loop, err := e.Start(ctx, "ship feature", "s1")
	require.NoError(t, err)
	assert.Equal(t, PhaseExecute, loop.NextPhase)
	assert.Equal(t, DefaultMaxIterations, loop.MaxIterations)

	steps := []struct {
		phase Phase
		data  PhaseData
		next  Phase
	}{
		{PhaseExecute, PhaseData{}, PhaseIntegrate},
		{PhaseIntegrate, PhaseData{}, PhaseValidate},
		{PhaseValidate, PhaseData{Passed: boolPtr(true)}, PhaseDeliver},
	}
	for _, step := range steps {
		loop, err = e.Advance(ctx, "s1", step.phase, step.data)
		require.NoError(t, err)
		assert.Equal(t, step.next, loop.NextPhase)
		assert.Equal(t, StatusRunning, loop.Status)
	}

	loop, err = e.Advance(ctx, "s1", PhaseDeliver, PhaseData{Summary: "done"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, loop.Status)
	assert.Len(t, loop.History, 4)

	_, err = e.Resume(ctx, "s1")
	assert.Error(t, err)
}

func TestEngine_FixRoundsUntilFailure(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2)

	_, err := e.Start(ctx, "flaky task", "s2")
	require.NoError(t, err)
	_, err = e.Advance(ctx, "s2", PhaseExecute, PhaseData{})
	require.NoError(t, err)
	_, err = e.Advance(ctx, "s2", PhaseIntegrate, PhaseData{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		loop, err := e.Advance(ctx, "s2", PhaseValidate, PhaseData{Passed: boolPtr(false)})
		require.NoError(t, err)
		assert.Equal(t, PhaseResearch, loop.NextPhase)

		_, err = e.Advance(ctx, "s2", PhaseResearch, PhaseData{})
		require.NoError(t, err)
		loop, err = e.Advance(ctx, "s2", PhaseFix, PhaseData{})
		require.NoError(t, err)
		assert.Equal(t, i+1, loop.Iteration)
		assert.Equal(t, PhaseValidate, loop.NextPhase)
	}

	loop, err := e.Advance(ctx, "s2", PhaseValidate, PhaseData{Passed: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, loop.Status)
	assert.Empty(t, loop.NextPhase)
}

func TestEngine_RejectsOutOfOrderPhase(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 0)

	_, err := e.Start(ctx, "task", "s3")
	require.NoError(t, err)

	_, err = e.Advance(ctx, "s3", PhaseDeliver, PhaseData{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects execute")

	_, err = e.Advance(ctx, "s3", PhaseExecute, PhaseData{})
	require.NoError(t, err)
	_, err = e.Advance(ctx, "s3", PhaseIntegrate, PhaseData{})
	require.NoError(t, err)
	_, err = e.Advance(ctx, "s3", PhaseValidate, PhaseData{})
	require.Error(t, err, "validate needs a verdict")

	loop, err := e.Status(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, PhaseValidate, loop.NextPhase)
	assert.Len(t, loop.History, 2)
}

func TestEngine_StartAndResume(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 0)

	loop, err := e.Start(ctx, "task", "")
	require.NoError(t, err)
	assert.NotEmpty(t, loop.SessionID)

	_, err = e.Start(ctx, "task again", loop.SessionID)
	assert.Error(t, err)

	resumed, err := e.Resume(ctx, loop.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseExecute, resumed.NextPhase)

	_, err = e.Start(ctx, "", "x")
	assert.Error(t, err)
	_, err = e.Status(ctx, "unknown")
	assert.Error(t, err)
	_, err = e.Status(ctx, "")
	assert.Error(t, err)
}
