// Package swarm keeps the registry of agents taking part in a multi-agent run.
package swarm

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jingkaihe/autonomous-agent/pkg/logger"
	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/pkg/errors"
)

// Agent status values
const (
	StatusIdle   = "idle"
	StatusActive = "active"
)

// ParseStatus validates an agent status
func ParseStatus(s string) (string, error) {
	switch s {
	case StatusIdle, StatusActive:
		return s, nil
	}
	return "", errors.Errorf("invalid agent status %q (expected %s or %s)", s, StatusIdle, StatusActive)
}

// Agent is one registered agent
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Registry is the persisted swarm/agent_registry.json document
type Registry struct {
	Agents map[string]*Agent `json:"agents"`
}

// Swarm reads and writes the agent registry file
type Swarm struct {
	file *store.JSONStore
	id   string
	now  func() time.Time
}

// New creates a Swarm over the registry file at path
func New(path string) *Swarm {
	return &Swarm{
		file: store.NewJSONStore(filepath.Dir(path)),
		id:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		now:  time.Now,
	}
}

func (s *Swarm) load(ctx context.Context) (*Registry, error) {
	reg := &Registry{}
	if err := s.file.Get(ctx, s.id, reg); err != nil && !store.IsNotFound(err) {
		return nil, errors.Wrap(err, "failed to load agent registry")
	}
	if reg.Agents == nil {
		reg.Agents = make(map[string]*Agent)
	}
	return reg, nil
}

// Register adds an agent, or updates the role of an agent with the same name
func (s *Swarm) Register(ctx context.Context, name, role string) (*Agent, error) {
	name = strings.TrimSpace(name)
	role = strings.TrimSpace(role)
	if name == "" {
		return nil, errors.New("agent name is required")
	}
	if role == "" {
		return nil, errors.New("agent role is required")
	}

	reg, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	agent, exists := reg.Agents[name]
	if !exists {
		agent = &Agent{
			ID:           uuid.New().String(),
			Name:         name,
			Status:       StatusIdle,
			RegisteredAt: now,
		}
		reg.Agents[name] = agent
	}
	agent.Role = role
	agent.UpdatedAt = now

	if err := s.file.Put(ctx, s.id, reg); err != nil {
		return nil, errors.Wrap(err, "failed to save agent registry")
	}

	logger.G(ctx).WithField("agent", name).WithField("role", role).Debug("agent registered")
	return agent, nil
}

// SetStatus updates the status of a registered agent
func (s *Swarm) SetStatus(ctx context.Context, name, status string) (*Agent, error) {
	status, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	reg, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	agent, ok := reg.Agents[name]
	if !ok {
		return nil, errors.Errorf("agent '%s' is not registered", name)
	}
	agent.Status = status
	agent.UpdatedAt = s.now()

	if err := s.file.Put(ctx, s.id, reg); err != nil {
		return nil, errors.Wrap(err, "failed to save agent registry")
	}
	return agent, nil
}

// List returns the registered agents ordered by name
func (s *Swarm) List(ctx context.Context) ([]*Agent, error) {
	reg, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	agents := make([]*Agent, 0, len(reg.Agents))
	for _, a := range reg.Agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}
