package reflexion

import (
	"context"
	"testing"

	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	base := t.TempDir()
	return New(store.NewJSONStore(base+"/errors"), store.NewJSONStore(base+"/reflexion"))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "open /tmp/a.txt: no such file", want: "open <path>: no such file"},
		{in: `key "user_42" not found`, want: "key <str> not found"},
		{in: "Timeout after 30s", want: "timeout after <n>s"},
		{in: "bad pointer 0xdeadbeef", want: "bad pointer <hex>"},
		{in: "  many   spaces  ", want: "many spaces"},
		{in: "first line \r\n\n  second\tline", want: "first line\nsecond line"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSignature_StableAcrossVariableParts(t *testing.T) {
	a := Signature("open /tmp/a.txt: no such file or directory")
	b := Signature("open /var/data/b.txt: no such file or directory")
	c := Signature("permission denied")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	f, err := m.Record(ctx, "open /tmp/a.txt: no such file", "create the file first")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Occurrences)
	assert.Equal(t, []string{"create the file first"}, f.Fixes)

	f, err = m.Record(ctx, "open /tmp/b.txt: no such file", "create the file first")
	require.NoError(t, err)
	assert.Equal(t, 2, f.Occurrences)
	assert.Len(t, f.Fixes, 1)

	f, err = m.Record(ctx, "open /tmp/c.txt: no such file", "check the working directory")
	require.NoError(t, err)
	assert.Equal(t, 3, f.Occurrences)
	assert.Len(t, f.Fixes, 2)

	_, err = m.Record(ctx, "", "x")
	assert.Error(t, err)
	_, err = m.Record(ctx, "x", " ")
	assert.Error(t, err)
}

func TestReflect_ExactMatch(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	_, err := m.Record(ctx, "open /tmp/a.txt: no such file", "create the file first")
	require.NoError(t, err)

	r, err := m.Reflect(ctx, "open /home/x/b.txt: no such file")
	require.NoError(t, err)
	require.Len(t, r.Matches, 1)
	assert.Equal(t, []string{"create the file first"}, r.Matches[0].Fixes)

	ids, err := m.reflections.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestReflect_PrefixMatch(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	_, err := m.Record(ctx, "connection refused", "start the database")
	require.NoError(t, err)
	_, err = m.Record(ctx, "disk full", "clean tmp")
	require.NoError(t, err)

	r, err := m.Reflect(ctx, "connection refused by peer 10.0.0.1")
	require.NoError(t, err)
	require.Len(t, r.Matches, 1)
	assert.Equal(t, "connection refused", r.Matches[0].Error)
}

func TestReflect_MultiLineSharesFirstLine(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	_, err := m.Record(ctx, "panic: assignment to entry in nil map\nin handler alpha", "initialize the map")
	require.NoError(t, err)

	r, err := m.Reflect(ctx, "panic: assignment to entry in nil map\nin handler beta")
	require.NoError(t, err)
	require.Len(t, r.Matches, 1)
	assert.Equal(t, []string{"initialize the map"}, r.Matches[0].Fixes)
	assert.NotEqual(t, r.Signature, r.Matches[0].Signature)
}

func TestReflect_NoMatch(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	r, err := m.Reflect(ctx, "segmentation fault")
	require.NoError(t, err)
	assert.Empty(t, r.Matches)

	_, err = m.Reflect(ctx, "")
	assert.Error(t, err)
}

func TestKnown_SortedByOccurrences(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	_, err := m.Record(ctx, "disk full", "clean tmp")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = m.Record(ctx, "connection refused", "start the database")
		require.NoError(t, err)
	}

	known, err := m.Known(ctx)
	require.NoError(t, err)
	require.Len(t, known, 2)
	assert.Equal(t, "connection refused", known[0].Error)
	assert.Equal(t, 3, known[0].Occurrences)
}
