// Package kernel wires the runtime layout to the stateful components every
// command operates on. One Kernel is built per process invocation.
package kernel

import (
	"context"
	"os"
	"time"

	"github.com/jingkaihe/autonomous-agent/pkg/closedloop"
	"github.com/jingkaihe/autonomous-agent/pkg/integration"
	"github.com/jingkaihe/autonomous-agent/pkg/logger"
	"github.com/jingkaihe/autonomous-agent/pkg/monitor"
	"github.com/jingkaihe/autonomous-agent/pkg/paths"
	"github.com/jingkaihe/autonomous-agent/pkg/reflexion"
	"github.com/jingkaihe/autonomous-agent/pkg/skills"
	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/jingkaihe/autonomous-agent/pkg/swarm"
	"github.com/jingkaihe/autonomous-agent/pkg/tracker"
	"github.com/jingkaihe/autonomous-agent/pkg/usage"
	"github.com/pkg/errors"
)

// Config holds the settings a Kernel is built from
type Config struct {
	// Root pins the project root and skips resolution when set
	Root          string
	StoreBackend  string
	MaxIterations int
	Debounce      time.Duration
}

// Kernel owns the layout and the components built on top of it
type Kernel struct {
	Resolution paths.Resolution
	Layout     *paths.Layout

	Tracker    *tracker.Tracker
	Reflexion  *reflexion.Memory
	ClosedLoop *closedloop.Engine
	Integrator *integration.Integrator
	Usage      *usage.Ledger
	Skills     *skills.Discovery
	Repairer   *skills.Repairer
	Swarm      *swarm.Swarm

	stores *store.Factory
	cfg    Config
}

// Resolve finds the project root, honouring root as an override. A degraded
// resolution is logged at warn level and still returned.
func Resolve(ctx context.Context, root string, opts ...paths.ResolverOption) paths.Resolution {
	opts = append(opts, paths.WithOverride(root))
	resolution := paths.NewResolver(opts...).Resolve()

	log := logger.G(ctx).WithField("root", resolution.Root).WithField("strategy", resolution.Strategy)
	if resolution.Degraded() {
		log.Warnf("no %s directory found; using %s as project root", paths.MarkerDirName, resolution.Root)
	} else {
		log.Debug("project root resolved")
	}
	return resolution
}

// New resolves the project root and builds every component. Extra resolver
// options are applied before the configured root override.
func New(ctx context.Context, cfg Config, opts ...paths.ResolverOption) (*Kernel, error) {
	resolution := Resolve(ctx, cfg.Root, opts...)
	return NewWithLayout(ctx, cfg, resolution, paths.NewLayout(resolution.Root))
}

// NewWithLayout builds the components over an already resolved layout
func NewWithLayout(ctx context.Context, cfg Config, resolution paths.Resolution, layout *paths.Layout) (*Kernel, error) {
	stores, err := store.NewFactory(ctx, layout, cfg.StoreBackend)
	if err != nil {
		return nil, err
	}

	discovery, err := skills.NewDiscovery(skills.WithLayout(layout))
	if err != nil {
		stores.Close()
		return nil, err
	}

	return &Kernel{
		Resolution: resolution,
		Layout:     layout,
		Tracker:    tracker.New(stores.Open(paths.MemorySessions), stores.Open(paths.MemoryLTM)),
		Reflexion:  reflexion.New(stores.Open(paths.MemoryErrors), stores.Open(paths.MemoryReflexion)),
		ClosedLoop: closedloop.NewEngine(stores.Open(paths.MemoryClosedLoop), cfg.MaxIterations),
		Integrator: integration.New(stores.Open(paths.MemoryIntegration)),
		Usage:      usage.NewLedger(stores.Open(paths.MemoryExecutionTracks)),
		Skills:     discovery,
		Repairer:   skills.NewRepairer(layout, discovery, stores.Open(paths.MemoryRepairReports)),
		Swarm:      swarm.New(layout.AgentRegistryPath()),
		stores:     stores,
		cfg:        cfg,
	}, nil
}

// Close releases the store backend
func (k *Kernel) Close() error {
	return k.stores.Close()
}

// Backend returns the name of the active store backend
func (k *Kernel) Backend() string {
	return k.stores.Backend()
}

// Init creates the missing runtime directories
func (k *Kernel) Init(ctx context.Context) (paths.InitResult, error) {
	result, err := k.Layout.InitRuntimeDirectories()
	if err != nil {
		return result, err
	}
	logger.G(ctx).WithField("initialized", result.Initialized).Info("runtime directories initialized")
	return result, nil
}

// Initialized reports whether the runtime directory exists
func (k *Kernel) Initialized() bool {
	info, err := os.Stat(k.Layout.RuntimeDir())
	return err == nil && info.IsDir()
}

// SessionOrCurrent returns id, or the current tracker session when id is empty.
// An empty result means no session is active.
func (k *Kernel) SessionOrCurrent(ctx context.Context, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	return k.Tracker.CurrentID(ctx)
}

// RecordTools appends a usage record to the session, defaulting to the
// current one.
func (k *Kernel) RecordTools(ctx context.Context, r usage.Record) (*usage.Record, error) {
	sessionID, err := k.SessionOrCurrent(ctx, r.SessionID)
	if err != nil {
		return nil, err
	}
	r.SessionID = sessionID
	return k.Usage.Add(ctx, r)
}

// EstimateSession projects token usage from a description and adds what the
// session has already recorded.
func (k *Kernel) EstimateSession(ctx context.Context, sessionID, description string) (*usage.Estimate, error) {
	sessionID, err := k.SessionOrCurrent(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if description == "" && sessionID != "" {
		if s, err := k.Tracker.Load(ctx, sessionID); err == nil {
			description = s.Task
		}
	}

	var recorded []usage.Record
	if sessionID != "" {
		if recorded, err = k.Usage.Records(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	est := usage.EstimateSession(sessionID, description, recorded)
	return &est, nil
}

// MonitorConfig holds the options of a monitor run
type MonitorConfig struct {
	SessionID string
	Ignore    []string
	Include   []string
	Debounce  time.Duration
}

// Monitor builds a project monitor that records into the tracker. The runtime
// directory is always skipped; without explicit ignore patterns the VCS and
// dependency directories are skipped too.
func (k *Kernel) Monitor(ctx context.Context, cfg MonitorConfig) (*monitor.Monitor, error) {
	runtimeDir := k.Layout.RelativeToRoot(k.Layout.RuntimeDir())
	ignore := monitor.DefaultIgnore(runtimeDir)
	if len(cfg.Ignore) > 0 {
		// the runtime tree is written by the recorder itself
		ignore = append(monitor.RuntimeIgnore(runtimeDir), cfg.Ignore...)
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = k.cfg.Debounce
	}

	sessionID, err := k.SessionOrCurrent(ctx, cfg.SessionID)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		s, err := k.Tracker.Start(ctx, "monitor "+k.Layout.Root())
		if err != nil {
			return nil, errors.Wrap(err, "failed to start monitor session")
		}
		sessionID = s.ID
	}

	return monitor.New(monitor.Config{
		Root:      k.Layout.Root(),
		SessionID: sessionID,
		Ignore:    ignore,
		Include:   cfg.Include,
		Debounce:  debounce,
	}, k.Tracker)
}
