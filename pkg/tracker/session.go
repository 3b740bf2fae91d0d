// Package tracker records what happens during an agent session: file
// changes, commands, tests, verification checks and findings. Sessions are
// stored as documents in memory/sessions and can be snapshotted into
// long-term memory.
package tracker

import (
	"time"

	"github.com/pkg/errors"
)

// FileAction is the kind of change applied to a tracked file
type FileAction string

const (
	ActionCreate FileAction = "create"
	ActionModify FileAction = "modify"
	ActionDelete FileAction = "delete"
)

// ParseFileAction validates a user supplied action
func ParseFileAction(s string) (FileAction, error) {
	switch a := FileAction(s); a {
	case ActionCreate, ActionModify, ActionDelete:
		return a, nil
	default:
		return "", errors.Errorf("invalid file action %q (expected create, modify or delete)", s)
	}
}

// FileChange is a tracked file modification
type FileChange struct {
	Path      string     `json:"path"`
	Action    FileAction `json:"action"`
	Diff      string     `json:"diff,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// CommandRun is a tracked shell command
type CommandRun struct {
	Command   string    `json:"command"`
	ExitCode  int       `json:"exit_code"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Succeeded reports whether the command exited with status 0
func (c CommandRun) Succeeded() bool {
	return c.ExitCode == 0
}

// TestResult is a tracked test outcome
type TestResult struct {
	Name      string    `json:"name"`
	Passed    bool      `json:"passed"`
	Details   string    `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Verification is a tracked verification check
type Verification struct {
	Name      string    `json:"name"`
	Passed    bool      `json:"passed"`
	Details   string    `json:"details,omitempty"`
	Automated bool      `json:"automated"`
	Timestamp time.Time `json:"timestamp"`
}

// Finding is a free-form key finding
type Finding struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the persisted execution record of one agent session
type Session struct {
	ID            string         `json:"id"`
	Task          string         `json:"task,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Files         []FileChange   `json:"files"`
	Commands      []CommandRun   `json:"commands"`
	Tests         []TestResult   `json:"tests"`
	Verifications []Verification `json:"verifications"`
	Findings      []Finding      `json:"findings"`
}

func newSession(id, task string, now time.Time) *Session {
	return &Session{
		ID:            id,
		Task:          task,
		CreatedAt:     now,
		UpdatedAt:     now,
		Files:         []FileChange{},
		Commands:      []CommandRun{},
		Tests:         []TestResult{},
		Verifications: []Verification{},
		Findings:      []Finding{},
	}
}

// Summary condenses a session for reporting
type Summary struct {
	SessionID           string         `json:"session_id"`
	Task                string         `json:"task,omitempty"`
	FilesChanged        int            `json:"files_changed"`
	FileActions         map[string]int `json:"file_actions"`
	Commands            int            `json:"commands"`
	FailedCommands      []CommandRun   `json:"failed_commands"`
	TestsPassed         int            `json:"tests_passed"`
	TestsFailed         int            `json:"tests_failed"`
	FailedTests         []string       `json:"failed_tests"`
	VerificationsPassed int            `json:"verifications_passed"`
	VerificationsFailed int            `json:"verifications_failed"`
	FailedVerifications []string       `json:"failed_verifications"`
	Findings            []string       `json:"findings"`
	AllChecksPassed     bool           `json:"all_checks_passed"`
}

// Summarize computes the summary of s. Files are counted once per path.
func (s *Session) Summarize() Summary {
	sum := Summary{
		SessionID:           s.ID,
		Task:                s.Task,
		FileActions:         map[string]int{},
		Commands:            len(s.Commands),
		FailedCommands:      []CommandRun{},
		FailedTests:         []string{},
		FailedVerifications: []string{},
		Findings:            []string{},
	}

	paths := map[string]struct{}{}
	for _, f := range s.Files {
		paths[f.Path] = struct{}{}
		sum.FileActions[string(f.Action)]++
	}
	sum.FilesChanged = len(paths)

	for _, c := range s.Commands {
		if !c.Succeeded() {
			sum.FailedCommands = append(sum.FailedCommands, c)
		}
	}

	for _, tr := range s.Tests {
		if tr.Passed {
			sum.TestsPassed++
		} else {
			sum.TestsFailed++
			sum.FailedTests = append(sum.FailedTests, tr.Name)
		}
	}

	for _, v := range s.Verifications {
		if v.Passed {
			sum.VerificationsPassed++
		} else {
			sum.VerificationsFailed++
			sum.FailedVerifications = append(sum.FailedVerifications, v.Name)
		}
	}

	for _, f := range s.Findings {
		sum.Findings = append(sum.Findings, f.Text)
	}

	sum.AllChecksPassed = len(sum.FailedCommands) == 0 && sum.TestsFailed == 0 && sum.VerificationsFailed == 0
	return sum
}
