// Package usage records token consumption of tool calls per session and
// aggregates it by task type, by session and by day.
package usage

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jingkaihe/autonomous-agent/pkg/logger"
	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/pkg/errors"
)

// DefaultTaskType labels records without an explicit type.
const DefaultTaskType = "tool_calls"

// Record is one accounted batch of tool calls
type Record struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id,omitempty"`
	ToolCalls    string    `json:"tool_calls,omitempty"`
	TaskType     string    `json:"task_type"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Timestamp    time.Time `json:"timestamp"`
}

// Total returns input plus output tokens
func (r Record) Total() int {
	return r.InputTokens + r.OutputTokens
}

// Tokens is an input/output pair
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
	Calls  int `json:"calls"`
}

func (t *Tokens) add(r Record) {
	t.Input += r.InputTokens
	t.Output += r.OutputTokens
	t.Total += r.Total()
	t.Calls++
}

// DailyUsage is the usage of one calendar day (UTC)
type DailyUsage struct {
	Date   string `json:"date"`
	Tokens Tokens `json:"tokens"`
}

// Stats aggregates records
type Stats struct {
	Total      Tokens            `json:"total"`
	ByTaskType map[string]Tokens `json:"by_task_type"`
	BySession  map[string]Tokens `json:"by_session"`
	Daily      []DailyUsage      `json:"daily"`
}

// Calculate aggregates records. Daily entries are sorted newest first.
func Calculate(records []Record) *Stats {
	stats := &Stats{
		ByTaskType: map[string]Tokens{},
		BySession:  map[string]Tokens{},
		Daily:      []DailyUsage{},
	}
	daily := map[string]*Tokens{}

	for _, r := range records {
		stats.Total.add(r)

		byType := stats.ByTaskType[r.TaskType]
		byType.add(r)
		stats.ByTaskType[r.TaskType] = byType

		if r.SessionID != "" {
			bySession := stats.BySession[r.SessionID]
			bySession.add(r)
			stats.BySession[r.SessionID] = bySession
		}

		day := r.Timestamp.UTC().Format("2006-01-02")
		if daily[day] == nil {
			daily[day] = &Tokens{}
		}
		daily[day].add(r)
	}

	for day, tokens := range daily {
		stats.Daily = append(stats.Daily, DailyUsage{Date: day, Tokens: *tokens})
	}
	sort.Slice(stats.Daily, func(i, j int) bool {
		return stats.Daily[i].Date > stats.Daily[j].Date
	})

	return stats
}

// Ledger persists records in memory/execution_tracks
type Ledger struct {
	store store.Store
	now   func() time.Time
}

// NewLedger creates a ledger
func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s, now: time.Now}
}

// Add stores a record, filling in id, timestamp and task type
func (l *Ledger) Add(ctx context.Context, r Record) (*Record, error) {
	if r.InputTokens < 0 || r.OutputTokens < 0 {
		return nil, errors.New("token counts must not be negative")
	}
	if r.TaskType == "" {
		r.TaskType = DefaultTaskType
	}
	r.Timestamp = l.now()
	r.ID = "usage-" + r.Timestamp.UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]

	if err := l.store.Put(ctx, r.ID, r); err != nil {
		return nil, err
	}

	logger.G(ctx).WithField("session", r.SessionID).
		WithField("input_tokens", r.InputTokens).
		WithField("output_tokens", r.OutputTokens).
		Debug("token usage recorded")
	return &r, nil
}

// Records returns all usage records, optionally limited to one session
func (l *Ledger) Records(ctx context.Context, sessionID string) ([]Record, error) {
	ids, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}

	records := []Record{}
	for _, id := range ids {
		if !strings.HasPrefix(id, "usage-") {
			continue
		}
		var r Record
		if err := l.store.Get(ctx, id, &r); err != nil {
			return nil, err
		}
		if sessionID != "" && r.SessionID != sessionID {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// Summary aggregates the stored records
func (l *Ledger) Summary(ctx context.Context, sessionID string) (*Stats, error) {
	records, err := l.Records(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Calculate(records), nil
}

// FormatNumber formats large numbers with commas for readability
func FormatNumber(n int) string {
	str := strconv.Itoa(n)
	neg := strings.HasPrefix(str, "-")
	if neg {
		str = str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	var result strings.Builder
	if neg {
		result.WriteString("-")
	}
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return result.String()
}
