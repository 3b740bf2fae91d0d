// Package reflexion remembers how errors were fixed and looks those fixes up
// again when a similar error shows up.
package reflexion

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/pkg/errors"
)

var (
	hexPattern    = regexp.MustCompile(`0x[0-9a-fA-F]+|\b[0-9a-f]{8,}\b`)
	numberPattern = regexp.MustCompile(`\d+`)
	pathPattern   = regexp.MustCompile(`(?:[A-Za-z]:)?(?:[\\/][\w.\-]+)+`)
	quotedPattern = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	spacePattern  = regexp.MustCompile(`[ \t\f\v]+`)
	breakPattern  = regexp.MustCompile(` ?(\r?\n ?)+`)
)

// Normalize reduces an error message to its stable shape: lowercased, with
// paths, quoted values, hex and decimal numbers replaced by placeholders.
// Runs of spaces collapse to one; line breaks are kept, blank lines dropped.
func Normalize(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	s = quotedPattern.ReplaceAllString(s, "<str>")
	s = pathPattern.ReplaceAllString(s, "<path>")
	s = hexPattern.ReplaceAllString(s, "<hex>")
	s = numberPattern.ReplaceAllString(s, "<n>")
	s = spacePattern.ReplaceAllString(s, " ")
	return breakPattern.ReplaceAllString(s, "\n")
}

// Signature returns the document id of an error message
func Signature(msg string) string {
	sum := sha1.Sum([]byte(Normalize(msg)))
	return hex.EncodeToString(sum[:])[:16]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Fix is a recorded remedy for one error signature
type Fix struct {
	Signature   string    `json:"signature"`
	Pattern     string    `json:"pattern"`
	Error       string    `json:"error"`
	Fixes       []string  `json:"fixes"`
	Occurrences int       `json:"occurrences"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Reflection is a logged lookup for an error
type Reflection struct {
	ID        string    `json:"id"`
	Error     string    `json:"error"`
	Signature string    `json:"signature"`
	Matches   []Fix     `json:"matches"`
	Timestamp time.Time `json:"timestamp"`
}

// Memory stores fixes in memory/errors and reflections in memory/reflexion
type Memory struct {
	errors      store.Store
	reflections store.Store
	now         func() time.Time
}

// New creates a reflexion memory
func New(errorStore, reflectionStore store.Store) *Memory {
	return &Memory{errors: errorStore, reflections: reflectionStore, now: time.Now}
}

// Record stores fix for errMsg. Recording the same error again bumps its
// occurrence count and appends the fix if it is new.
func (m *Memory) Record(ctx context.Context, errMsg, fix string) (*Fix, error) {
	if strings.TrimSpace(errMsg) == "" {
		return nil, errors.New("error message is required")
	}
	if strings.TrimSpace(fix) == "" {
		return nil, errors.New("fix is required")
	}

	sig := Signature(errMsg)
	now := m.now()

	var f Fix
	err := m.errors.Get(ctx, sig, &f)
	switch {
	case err == nil:
	case store.IsNotFound(err):
		f = Fix{
			Signature: sig,
			Pattern:   Normalize(errMsg),
			Error:     errMsg,
			Fixes:     []string{},
			FirstSeen: now,
		}
	default:
		return nil, err
	}

	f.Occurrences++
	f.LastSeen = now
	if !contains(f.Fixes, fix) {
		f.Fixes = append(f.Fixes, fix)
	}

	if err := m.errors.Put(ctx, sig, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Reflect looks up fixes for errMsg: an exact signature match wins,
// otherwise every fix whose normalized first line shares a prefix with the
// error's. The lookup itself is logged.
func (m *Memory) Reflect(ctx context.Context, errMsg string) (*Reflection, error) {
	if strings.TrimSpace(errMsg) == "" {
		return nil, errors.New("error message is required")
	}

	sig := Signature(errMsg)
	matches := []Fix{}

	var exact Fix
	err := m.errors.Get(ctx, sig, &exact)
	switch {
	case err == nil:
		matches = append(matches, exact)
	case store.IsNotFound(err):
		similar, err := m.similar(ctx, errMsg)
		if err != nil {
			return nil, err
		}
		matches = similar
	default:
		return nil, err
	}

	now := m.now()
	r := &Reflection{
		ID:        now.UTC().Format("20060102T150405.000000000") + "-" + sig,
		Error:     errMsg,
		Signature: sig,
		Matches:   matches,
		Timestamp: now,
	}
	if err := m.reflections.Put(ctx, r.ID, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *Memory) similar(ctx context.Context, errMsg string) ([]Fix, error) {
	head := firstLine(Normalize(errMsg))
	ids, err := m.errors.List(ctx)
	if err != nil {
		return nil, err
	}

	out := []Fix{}
	for _, id := range ids {
		var f Fix
		if err := m.errors.Get(ctx, id, &f); err != nil {
			continue
		}
		other := firstLine(f.Pattern)
		if other == "" || head == "" {
			continue
		}
		if strings.HasPrefix(head, other) || strings.HasPrefix(other, head) {
			out = append(out, f)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Occurrences > out[j].Occurrences
	})
	return out, nil
}

// Known returns every recorded fix, most frequent first
func (m *Memory) Known(ctx context.Context) ([]Fix, error) {
	ids, err := m.errors.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Fix, 0, len(ids))
	for _, id := range ids {
		var f Fix
		if err := m.errors.Get(ctx, id, &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Occurrences > out[j].Occurrences
	})
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
