package usage

import (
	"context"
	"testing"
	"time"

	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	day1 := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	stats := Calculate([]Record{
		{SessionID: "s1", TaskType: "tool_calls", InputTokens: 100, OutputTokens: 20, Timestamp: day1},
		{SessionID: "s1", TaskType: "review", InputTokens: 50, OutputTokens: 5, Timestamp: day2},
		{SessionID: "s2", TaskType: "tool_calls", InputTokens: 10, OutputTokens: 1, Timestamp: day2},
		{TaskType: "tool_calls", InputTokens: 1, OutputTokens: 1, Timestamp: day2},
	})

	assert.Equal(t, Tokens{Input: 161, Output: 27, Total: 188, Calls: 4}, stats.Total)
	assert.Equal(t, 3, stats.ByTaskType["tool_calls"].Calls)
	assert.Equal(t, 55, stats.ByTaskType["review"].Total)
	assert.Equal(t, 175, stats.BySession["s1"].Total)
	assert.Len(t, stats.BySession, 2)

	require.Len(t, stats.Daily, 2)
	assert.Equal(t, "2026-10-18", stats.Daily[0].Date)
	assert.Equal(t, 3, stats.Daily[0].Tokens.Calls)
}

func TestCalculate_Empty(t *testing.T) {
	stats := Calculate(nil)
	assert.Zero(t, stats.Total.Total)
	assert.Empty(t, stats.Daily)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(store.NewJSONStore(t.TempDir()))

	r, err := l.Add(ctx, Record{SessionID: "s1", InputTokens: 300, OutputTokens: 40, ToolCalls: "Read x3"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTaskType, r.TaskType)
	assert.NotEmpty(t, r.ID)

	_, err = l.Add(ctx, Record{SessionID: "s2", InputTokens: 10, TaskType: "search"})
	require.NoError(t, err)

	_, err = l.Add(ctx, Record{InputTokens: -1})
	assert.Error(t, err)

	all, err := l.Summary(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 350, all.Total.Total)

	one, err := l.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 340, one.Total.Total)
	assert.Equal(t, 1, one.Total.Calls)
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
		-12:      "-12",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatNumber(in))
	}
}

func TestEstimateFast(t *testing.T) {
	assert.Equal(t, 0, EstimateFast("   "))
	assert.Equal(t, 1, EstimateFast("a"))
	assert.Equal(t, 3, EstimateFast("a b c"))
	assert.Equal(t, 5, EstimateFast("abcdefghijklmnopqrst"))
}

func TestEstimateSession(t *testing.T) {
	est := EstimateSession("s1", "refactor the storage layer to use sqlite", []Record{
		{InputTokens: 100, OutputTokens: 10},
		{InputTokens: 50, OutputTokens: 5},
	})

	assert.Positive(t, est.DescriptionTokens)
	assert.Equal(t, baseInput+est.DescriptionTokens*inputMultiplier, est.EstimatedInput)
	assert.Equal(t, baseOutput+est.DescriptionTokens*outputMultiplier, est.EstimatedOutput)
	assert.Equal(t, 150, est.RecordedInput)
	assert.Equal(t, 15, est.RecordedOutput)

	empty := EstimateSession("", "", nil)
	assert.Equal(t, 0, empty.DescriptionTokens)
	assert.Equal(t, baseInput, empty.EstimatedInput)
}
