// Package integration collects the results of parallel subtasks for a
// session and totals them.
package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/pkg/errors"
)

// SubtaskResult is the outcome of one subtask as reported by the host agent
type SubtaskResult struct {
	TaskID    string   `json:"task_id"`
	Success   bool     `json:"success"`
	Output    string   `json:"output,omitempty"`
	Error     string   `json:"error,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Report is the stored integration of a session
type Report struct {
	SessionID    string          `json:"session_id"`
	Results      []SubtaskResult `json:"results"`
	Succeeded    int             `json:"succeeded"`
	Failed       int             `json:"failed"`
	FailedTasks  []string        `json:"failed_tasks"`
	Artifacts    []string        `json:"artifacts"`
	IntegratedAt time.Time       `json:"integrated_at"`
}

// ParseResults accepts either a JSON array of results or an object with a
// "results" array.
func ParseResults(raw string) ([]SubtaskResult, error) {
	var list []SubtaskResult
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Results []SubtaskResult `json:"results"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, errors.Wrap(err, "results must be a JSON array or an object with a results array")
	}
	if wrapped.Results == nil {
		return nil, errors.New("results object has no results array")
	}
	return wrapped.Results, nil
}

// Integrator stores reports in memory/integration
type Integrator struct {
	store store.Store
	now   func() time.Time
}

// New creates an integrator
func New(s store.Store) *Integrator {
	return &Integrator{store: s, now: time.Now}
}

// Integrate merges results into the session's report. Results for a task id
// already present replace the earlier entry.
func (i *Integrator) Integrate(ctx context.Context, sessionID string, results []SubtaskResult) (*Report, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	report := &Report{SessionID: sessionID}
	if err := i.store.Get(ctx, sessionID, report); err != nil && !store.IsNotFound(err) {
		return nil, err
	}

	index := map[string]int{}
	for n, r := range report.Results {
		if r.TaskID != "" {
			index[r.TaskID] = n
		}
	}
	for _, r := range results {
		if n, ok := index[r.TaskID]; ok && r.TaskID != "" {
			report.Results[n] = r
			continue
		}
		if r.TaskID != "" {
			index[r.TaskID] = len(report.Results)
		}
		report.Results = append(report.Results, r)
	}

	report.total()
	report.IntegratedAt = i.now()

	if err := i.store.Put(ctx, sessionID, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Get returns the stored report of a session
func (i *Integrator) Get(ctx context.Context, sessionID string) (*Report, error) {
	var report Report
	if err := i.store.Get(ctx, sessionID, &report); err != nil {
		if store.IsNotFound(err) {
			return nil, errors.Errorf("no integration results for session %s", sessionID)
		}
		return nil, err
	}
	return &report, nil
}

func (r *Report) total() {
	r.Succeeded, r.Failed = 0, 0
	r.FailedTasks = []string{}
	r.Artifacts = []string{}
	seen := map[string]struct{}{}

	for _, res := range r.Results {
		if res.Success {
			r.Succeeded++
		} else {
			r.Failed++
			r.FailedTasks = append(r.FailedTasks, res.TaskID)
		}
		for _, a := range res.Artifacts {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			r.Artifacts = append(r.Artifacts, a)
		}
	}
}
