package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jingkaihe/autonomous-agent/pkg/logger"
	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/pkg/errors"
)

// CurrentID is the id of the pointer document naming the active session.
const CurrentID = "current"

type currentPointer struct {
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker reads and mutates sessions
type Tracker struct {
	sessions store.Store
	ltm      store.Store
	now      func() time.Time
	newID    func() string
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithIDGenerator overrides session id generation
func WithIDGenerator(gen func() string) Option {
	return func(t *Tracker) {
		t.newID = gen
	}
}

// New creates a tracker over the sessions store and the long-term memory store
func New(sessions, ltm store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		sessions: sessions,
		ltm:      ltm,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start creates a new session for task and makes it current
func (t *Tracker) Start(ctx context.Context, task string) (*Session, error) {
	s := newSession(t.newID(), task, t.now())
	if err := t.sessions.Put(ctx, s.ID, s); err != nil {
		return nil, err
	}
	if err := t.setCurrent(ctx, s.ID); err != nil {
		return nil, err
	}
	logger.G(ctx).WithField("session", s.ID).Info("session started")
	return s, nil
}

// CurrentID returns the id of the current session, or "" when there is none
func (t *Tracker) CurrentID(ctx context.Context) (string, error) {
	var ptr currentPointer
	if err := t.sessions.Get(ctx, CurrentID, &ptr); err != nil {
		if store.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return ptr.SessionID, nil
}

func (t *Tracker) setCurrent(ctx context.Context, id string) error {
	return t.sessions.Put(ctx, CurrentID, currentPointer{SessionID: id, UpdatedAt: t.now()})
}

// Load returns an existing session. An empty id means the current session.
func (t *Tracker) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		current, err := t.CurrentID(ctx)
		if err != nil {
			return nil, err
		}
		if current == "" {
			return nil, errors.New("no current session; pass --session or start one")
		}
		id = current
	}
	if id == CurrentID {
		return nil, errors.Errorf("%q is reserved and cannot be used as a session id", CurrentID)
	}

	var s Session
	if err := t.sessions.Get(ctx, id, &s); err != nil {
		if store.IsNotFound(err) {
			return nil, errors.Errorf("session %s not found", id)
		}
		return nil, err
	}
	return &s, nil
}

// obtain loads the session named by id, creating it when it does not exist.
// An empty id selects the current session, starting one if none is current.
func (t *Tracker) obtain(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		current, err := t.CurrentID(ctx)
		if err != nil {
			return nil, err
		}
		if current == "" {
			return t.Start(ctx, "")
		}
		id = current
	}
	if id == CurrentID {
		return nil, errors.Errorf("%q is reserved and cannot be used as a session id", CurrentID)
	}

	var s Session
	err := t.sessions.Get(ctx, id, &s)
	if err == nil {
		return &s, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}

	created := newSession(id, "", t.now())
	if err := t.setCurrent(ctx, id); err != nil {
		return nil, err
	}
	return created, nil
}

func (t *Tracker) update(ctx context.Context, id string, mutate func(*Session, time.Time)) (*Session, error) {
	s, err := t.obtain(ctx, id)
	if err != nil {
		return nil, err
	}
	now := t.now()
	mutate(s, now)
	s.UpdatedAt = now
	if err := t.sessions.Put(ctx, s.ID, s); err != nil {
		return nil, err
	}
	return s, nil
}

// TrackFile records a file change
func (t *Tracker) TrackFile(ctx context.Context, sessionID, path string, action FileAction, diff string) (*Session, error) {
	if path == "" {
		return nil, errors.New("file path is required")
	}
	return t.update(ctx, sessionID, func(s *Session, now time.Time) {
		s.Files = append(s.Files, FileChange{Path: path, Action: action, Diff: diff, Timestamp: now})
	})
}

// TrackCommand records a command execution
func (t *Tracker) TrackCommand(ctx context.Context, sessionID, command string, exitCode int, output, errMsg string) (*Session, error) {
	if command == "" {
		return nil, errors.New("command is required")
	}
	return t.update(ctx, sessionID, func(s *Session, now time.Time) {
		s.Commands = append(s.Commands, CommandRun{
			Command:   command,
			ExitCode:  exitCode,
			Output:    output,
			Error:     errMsg,
			Timestamp: now,
		})
	})
}

// TrackTest records a test result
func (t *Tracker) TrackTest(ctx context.Context, sessionID, name string, passed bool, details, errMsg string) (*Session, error) {
	if name == "" {
		return nil, errors.New("test name is required")
	}
	return t.update(ctx, sessionID, func(s *Session, now time.Time) {
		s.Tests = append(s.Tests, TestResult{Name: name, Passed: passed, Details: details, Error: errMsg, Timestamp: now})
	})
}

// TrackVerification records a verification check
func (t *Tracker) TrackVerification(ctx context.Context, sessionID, name string, passed bool, details string, automated bool) (*Session, error) {
	if name == "" {
		return nil, errors.New("check name is required")
	}
	return t.update(ctx, sessionID, func(s *Session, now time.Time) {
		s.Verifications = append(s.Verifications, Verification{
			Name:      name,
			Passed:    passed,
			Details:   details,
			Automated: automated,
			Timestamp: now,
		})
	})
}

// AddFinding records a key finding
func (t *Tracker) AddFinding(ctx context.Context, sessionID, text string) (*Session, error) {
	if text == "" {
		return nil, errors.New("finding text is required")
	}
	return t.update(ctx, sessionID, func(s *Session, now time.Time) {
		s.Findings = append(s.Findings, Finding{Text: text, Timestamp: now})
	})
}

// Summary summarizes an existing session
func (t *Tracker) Summary(ctx context.Context, sessionID string) (Summary, error) {
	s, err := t.Load(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return s.Summarize(), nil
}

// Memory is the long-term memory snapshot of a session
type Memory struct {
	SavedAt time.Time `json:"saved_at"`
	Summary Summary   `json:"summary"`
	Session *Session  `json:"session"`
}

// Save snapshots a session into long-term memory, replacing older snapshots
// of the same session.
func (t *Tracker) Save(ctx context.Context, sessionID string) (*Memory, error) {
	s, err := t.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m := &Memory{SavedAt: t.now(), Summary: s.Summarize(), Session: s}
	if err := t.ltm.Put(ctx, s.ID, m); err != nil {
		return nil, err
	}
	logger.G(ctx).WithField("session", s.ID).Info("session saved to long-term memory")
	return m, nil
}

// List returns the ids of all stored sessions
func (t *Tracker) List(ctx context.Context) ([]string, error) {
	ids, err := t.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != CurrentID {
			out = append(out, id)
		}
	}
	return out, nil
}
