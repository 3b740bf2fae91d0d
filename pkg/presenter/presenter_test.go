package presenter

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresenter() (*TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewWithOptions(&out, &errOut, ColorNever), &out, &errOut
}

func TestNew(t *testing.T) {
	p := New()
	assert.Equal(t, os.Stdout, p.output)
	assert.Equal(t, os.Stderr, p.errorOutput)
	assert.False(t, p.IsQuiet())
}

func TestDetectColorMode(t *testing.T) {
	tests := []struct {
		name     string
		noColor  string
		envColor string
		expected ColorMode
	}{
		{"NO_COLOR set", "1", "", ColorNever},
		{"always", "", "always", ColorAlways},
		{"force", "", "force", ColorAlways},
		{"never", "", "never", ColorNever},
		{"off", "", "off", ColorNever},
		{"auto", "", "auto", ColorAuto},
		{"default", "", "", ColorAuto},
		{"unknown value", "", "rainbow", ColorAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("AUTOAGENT_COLOR", tt.envColor)
			if tt.noColor == "" {
				os.Unsetenv("NO_COLOR")
			}
			assert.Equal(t, tt.expected, detectColorMode())
		})
	}
}

func TestError(t *testing.T) {
	p, out, errOut := newTestPresenter()

	p.Error(errors.New("disk full"), "Failed to save session")
	assert.Equal(t, "[ERROR] Failed to save session: disk full\n", errOut.String())
	assert.Empty(t, out.String())

	errOut.Reset()
	p.Error(errors.New("disk full"), "")
	assert.Equal(t, "[ERROR] disk full\n", errOut.String())

	errOut.Reset()
	p.Error(nil, "ignored")
	assert.Empty(t, errOut.String())
}

func TestStatusLines(t *testing.T) {
	p, out, _ := newTestPresenter()

	p.Success("initialized 22 directories")
	p.Warning("project root could not be located")
	p.Info("plain")

	assert.Equal(t, "✓ initialized 22 directories\n⚠ project root could not be located\nplain\n", out.String())
}

func TestSection(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.Section("Runtime")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Runtime", lines[0])
	assert.Equal(t, "-------", lines[1])
}

func TestKeyValues(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.KeyValues(map[string]string{"root": "/project", "backend": "json"})

	assert.Equal(t, "backend:  json\nroot:     /project\n", out.String())
}

func TestTable(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.Table([]string{"NAME", "ROLE"}, [][]string{{"coder", "implementer"}, {"qa", "tester"}})

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME   ROLE", lines[0])
	assert.Equal(t, "coder  implementer", lines[1])
	assert.Equal(t, "qa     tester", lines[2])
}

func TestJSON(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.SetQuiet(true)

	require.NoError(t, p.JSON(map[string]int{"initialized": 2}))
	assert.Equal(t, "{\n  \"initialized\": 2\n}\n", out.String())

	assert.Error(t, p.JSON(func() {}))
}

func TestStats(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.Stats("Tokens", Tokens{Input: 100, Output: 50, Calls: 3})

	assert.Equal(t, "[Tokens] Input tokens: 100 | Output tokens: 50 | Total: 150 | Calls: 3\n", out.String())
}

func TestQuietMode(t *testing.T) {
	p, out, errOut := newTestPresenter()
	p.SetQuiet(true)

	p.Success("x")
	p.Warning("x")
	p.Info("x")
	p.Section("x")
	p.KeyValues(map[string]string{"a": "b"})
	p.Table(nil, [][]string{{"a"}})
	p.Stats("x", Tokens{})
	p.Separator()
	assert.Empty(t, out.String())

	p.Error(errors.New("still shown"), "")
	assert.NotEmpty(t, errOut.String())
}

func TestGlobalFunctions(t *testing.T) {
	original := defaultPresenter
	defer func() { defaultPresenter = original }()

	p, out, errOut := newTestPresenter()
	defaultPresenter = p

	Error(errors.New("boom"), "ctx")
	assert.Contains(t, errOut.String(), "[ERROR] ctx: boom")

	Success("done")
	Info("info")
	Separator()
	assert.Contains(t, out.String(), "✓ done")
	assert.Contains(t, out.String(), strings.Repeat("-", 60))

	var redirected bytes.Buffer
	SetOutput(&redirected, errOut)
	require.NoError(t, JSON([]string{"a"}))
	assert.Equal(t, "[\n  \"a\"\n]\n", redirected.String())

	SetQuiet(true)
	assert.True(t, IsQuiet())
	SetQuiet(false)
}
