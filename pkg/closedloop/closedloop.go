// Package closedloop drives the closed-loop execution cycle of a task:
// execute, integrate, validate and deliver, with research and fix rounds
// after a failed validation. Loop state lives in memory/closed_loop, one
// document per session, so an interrupted loop can be resumed by a later
// invocation.
package closedloop

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jingkaihe/autonomous-agent/pkg/logger"
	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Phase is one step of the loop
type Phase string

const (
	PhaseExecute   Phase = "execute"
	PhaseIntegrate Phase = "integrate"
	PhaseValidate  Phase = "validate"
	PhaseResearch  Phase = "research"
	PhaseFix       Phase = "fix"
	PhaseDeliver   Phase = "deliver"
)

// Phases lists every phase accepted on the command line
var Phases = []Phase{PhaseExecute, PhaseIntegrate, PhaseValidate, PhaseResearch, PhaseFix, PhaseDeliver}

// ParsePhase validates a phase name
func ParsePhase(s string) (Phase, error) {
	for _, p := range Phases {
		if string(p) == s {
			return p, nil
		}
	}
	return "", errors.Errorf("unknown phase %q", s)
}

// Status is the lifecycle state of a loop
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultMaxIterations bounds the number of fix rounds.
const DefaultMaxIterations = 3

// PhaseData is the payload a caller attaches to a phase. Unknown keys are
// preserved in Extra.
type PhaseData struct {
	Summary   string         `mapstructure:"summary" json:"summary,omitempty"`
	Passed    *bool          `mapstructure:"passed" json:"passed,omitempty"`
	Issues    []string       `mapstructure:"issues" json:"issues,omitempty"`
	Artifacts []string       `mapstructure:"artifacts" json:"artifacts,omitempty"`
	Extra     map[string]any `mapstructure:",remain" json:"extra,omitempty"`
}

// DecodePhaseData parses the --data JSON of a phase. Empty input yields an
// empty payload.
func DecodePhaseData(raw string) (PhaseData, error) {
	var data PhaseData
	if raw == "" {
		return data, nil
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return data, errors.Wrap(err, "phase data must be a JSON object")
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &data,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return data, errors.Wrap(err, "failed to create phase data decoder")
	}
	if err := decoder.Decode(generic); err != nil {
		return data, errors.Wrap(err, "invalid phase data")
	}
	return data, nil
}

// PhaseRecord is one completed phase
type PhaseRecord struct {
	Phase       Phase     `json:"phase"`
	Iteration   int       `json:"iteration"`
	Data        PhaseData `json:"data"`
	CompletedAt time.Time `json:"completed_at"`
}

// Loop is the persisted state of a closed loop
type Loop struct {
	SessionID     string        `json:"session_id"`
	Task          string        `json:"task"`
	Status        Status        `json:"status"`
	NextPhase     Phase         `json:"next_phase,omitempty"`
	Iteration     int           `json:"iteration"`
	MaxIterations int           `json:"max_iterations"`
	History       []PhaseRecord `json:"history"`
	StartedAt     time.Time     `json:"started_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Engine runs loops over a store
type Engine struct {
	store         store.Store
	maxIterations int
	now           func() time.Time
}

// NewEngine creates an engine. maxIterations <= 0 selects DefaultMaxIterations.
func NewEngine(s store.Store, maxIterations int) *Engine {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Engine{store: s, maxIterations: maxIterations, now: time.Now}
}

// Start begins a loop for task. An empty sessionID gets a fresh one; an
// existing running loop for the session is an error.
func (e *Engine) Start(ctx context.Context, task, sessionID string) (*Loop, error) {
	if task == "" {
		return nil, errors.New("task description is required")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	existing, err := e.Status(ctx, sessionID)
	if err == nil && existing.Status == StatusRunning {
		return nil, errors.Errorf("closed loop for session %s is already running (next phase: %s)", sessionID, existing.NextPhase)
	}

	now := e.now()
	loop := &Loop{
		SessionID:     sessionID,
		Task:          task,
		Status:        StatusRunning,
		NextPhase:     PhaseExecute,
		MaxIterations: e.maxIterations,
		History:       []PhaseRecord{},
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.Put(ctx, sessionID, loop); err != nil {
		return nil, err
	}

	logger.G(ctx).WithField("session", sessionID).Info("closed loop started")
	return loop, nil
}

// Status loads the loop of a session
func (e *Engine) Status(ctx context.Context, sessionID string) (*Loop, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	var loop Loop
	if err := e.store.Get(ctx, sessionID, &loop); err != nil {
		if store.IsNotFound(err) {
			return nil, errors.Errorf("no closed loop for session %s", sessionID)
		}
		return nil, err
	}
	return &loop, nil
}

// Resume returns a running loop so the caller can continue at NextPhase
func (e *Engine) Resume(ctx context.Context, sessionID string) (*Loop, error) {
	loop, err := e.Status(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if loop.Status != StatusRunning {
		return nil, errors.Errorf("closed loop for session %s is %s and cannot be resumed", sessionID, loop.Status)
	}
	return loop, nil
}

// Advance records the completion of phase and moves the loop forward. The
// phase must be the loop's next phase.
func (e *Engine) Advance(ctx context.Context, sessionID string, phase Phase, data PhaseData) (*Loop, error) {
	loop, err := e.Resume(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if phase != loop.NextPhase {
		return nil, errors.Errorf("cannot run phase %s: closed loop expects %s", phase, loop.NextPhase)
	}

	now := e.now()
	loop.History = append(loop.History, PhaseRecord{
		Phase:       phase,
		Iteration:   loop.Iteration,
		Data:        data,
		CompletedAt: now,
	})
	loop.UpdatedAt = now

	if err := transition(loop, phase, data); err != nil {
		return nil, err
	}

	if err := e.store.Put(ctx, sessionID, loop); err != nil {
		return nil, err
	}

	logger.G(ctx).WithField("session", sessionID).
		WithField("phase", phase).
		WithField("next", loop.NextPhase).
		WithField("status", loop.Status).
		Info("closed loop advanced")
	return loop, nil
}

func transition(loop *Loop, phase Phase, data PhaseData) error {
	switch phase {
	case PhaseExecute:
		loop.NextPhase = PhaseIntegrate
	case PhaseIntegrate:
		loop.NextPhase = PhaseValidate
	case PhaseValidate:
		if data.Passed == nil {
			return errors.New(`validate phase requires "passed" in its data`)
		}
		switch {
		case *data.Passed:
			loop.NextPhase = PhaseDeliver
		case loop.Iteration >= loop.MaxIterations:
			loop.Status = StatusFailed
			loop.NextPhase = ""
		default:
			loop.NextPhase = PhaseResearch
		}
	case PhaseResearch:
		loop.NextPhase = PhaseFix
	case PhaseFix:
		loop.Iteration++
		loop.NextPhase = PhaseValidate
	case PhaseDeliver:
		loop.Status = StatusCompleted
		loop.NextPhase = ""
	default:
		return errors.Errorf("unknown phase %q", phase)
	}
	return nil
}
