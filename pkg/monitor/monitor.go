// Package monitor watches the project tree and records file changes into the
// execution tracker.
package monitor

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/jingkaihe/autonomous-agent/pkg/logger"
	"github.com/jingkaihe/autonomous-agent/pkg/tracker"
	"github.com/pkg/errors"
)

// DefaultDebounce is used when Config.Debounce is zero
const DefaultDebounce = 500 * time.Millisecond

// Recorder receives debounced file changes
type Recorder interface {
	TrackFile(ctx context.Context, sessionID, path string, action tracker.FileAction, diff string) (*tracker.Session, error)
}

// Config holds configuration for a Monitor
type Config struct {
	Root      string
	SessionID string
	Ignore    []string
	// Include restricts tracking to files whose base name matches one of
	// these globs. Empty means every file.
	Include  []string
	Debounce time.Duration
}

// RuntimeIgnore returns the pattern that excludes the runtime directory.
// runtimeDir is relative to the root.
func RuntimeIgnore(runtimeDir string) []string {
	return []string{filepath.ToSlash(runtimeDir) + "/**"}
}

// DefaultIgnore returns the patterns ignored when the caller gives none
func DefaultIgnore(runtimeDir string) []string {
	return append([]string{".git/**", "node_modules/**"}, RuntimeIgnore(runtimeDir)...)
}

// Event is one change under the root. Path is slash-separated and relative
// to the root.
type Event struct {
	Path   string
	Action tracker.FileAction
	Time   time.Time
}

// Monitor records file changes under a root directory
type Monitor struct {
	cfg      Config
	recorder Recorder
	include  []glob.Glob
	ready    chan struct{}
}

// New validates the configuration and creates a Monitor
func New(cfg Config, recorder Recorder) (*Monitor, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve monitor root")
	}
	cfg.Root = root

	for _, pattern := range cfg.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid ignore pattern %q", pattern)
		}
	}
	include := make([]glob.Glob, 0, len(cfg.Include))
	for _, pattern := range cfg.Include {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid include pattern %q", pattern)
		}
		include = append(include, g)
	}
	if cfg.Debounce < 0 {
		return nil, errors.Errorf("debounce cannot be negative: %s", cfg.Debounce)
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Monitor{cfg: cfg, recorder: recorder, include: include, ready: make(chan struct{})}, nil
}

// Ready is closed once the initial directory tree is being watched
func (m *Monitor) Ready() <-chan struct{} {
	return m.ready
}

// Ignored reports whether a root-relative, slash-separated path matches an
// ignore pattern.
func (m *Monitor) Ignored(rel string) bool {
	for _, pattern := range m.cfg.Ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Included reports whether a file passes the include globs
func (m *Monitor) Included(rel string) bool {
	if len(m.include) == 0 {
		return true
	}
	base := path.Base(rel)
	for _, g := range m.include {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// ActionFor maps a filesystem operation onto a tracked file action.
// Attribute-only changes are not tracked.
func ActionFor(op fsnotify.Op) (tracker.FileAction, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return tracker.ActionCreate, true
	case op.Has(fsnotify.Write):
		return tracker.ActionModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return tracker.ActionDelete, true
	default:
		return "", false
	}
}

func (m *Monitor) relative(p string) (string, bool) {
	rel, err := filepath.Rel(m.cfg.Root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Run watches the root until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	if err := m.addTree(ctx, watcher, m.cfg.Root); err != nil {
		return err
	}
	close(m.ready)

	log := logger.G(ctx).WithField("root", m.cfg.Root)
	log.WithField("ignore", m.cfg.Ignore).Info("monitor started")

	debounced := make(chan Event)
	d := newDebouncer(ctx, m.cfg.Debounce, debounced)
	defer d.stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			rel, ok := m.relative(event.Name)
			if !ok || m.Ignored(rel) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := m.addTree(ctx, watcher, event.Name); err != nil {
						log.WithError(err).WithField("directory", rel).Warn("failed to watch new directory")
					}
					continue
				}
			}
			action, ok := ActionFor(event.Op)
			if !ok || !m.Included(rel) {
				continue
			}
			d.push(Event{Path: rel, Action: action, Time: time.Now()})
		case event := <-debounced:
			if _, err := m.recorder.TrackFile(ctx, m.cfg.SessionID, event.Path, event.Action, ""); err != nil {
				log.WithError(err).WithField("file", event.Path).Error("failed to record file change")
				continue
			}
			log.WithField("file", event.Path).WithField("action", event.Action).Debug("file change recorded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("error watching files")
		case <-ctx.Done():
			log.Info("monitor stopped")
			return nil
		}
	}
}

func (m *Monitor) addTree(ctx context.Context, watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if rel, ok := m.relative(p); ok && m.Ignored(rel) {
			logger.G(ctx).WithField("directory", rel).Debug("skipping ignored directory")
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return errors.Wrapf(err, "failed to watch %s", p)
		}
		return nil
	})
}

// debouncer collapses bursts of events on the same path into one. A create
// followed by writes stays a create.
type debouncer struct {
	ctx     context.Context
	delay   time.Duration
	out     chan<- Event
	done    chan struct{}
	mu      sync.Mutex
	pending map[string]*pendingEvent
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

func newDebouncer(ctx context.Context, delay time.Duration, out chan<- Event) *debouncer {
	return &debouncer{
		ctx:     ctx,
		delay:   delay,
		out:     out,
		done:    make(chan struct{}),
		pending: make(map[string]*pendingEvent),
	}
}

func (d *debouncer) push(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[event.Path]; ok {
		p.timer.Stop()
		if p.event.Action == tracker.ActionCreate && event.Action == tracker.ActionModify {
			event.Action = tracker.ActionCreate
		}
	}

	p := &pendingEvent{event: event}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(p) })
	d.pending[event.Path] = p
}

func (d *debouncer) fire(p *pendingEvent) {
	d.mu.Lock()
	if d.pending[p.event.Path] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, p.event.Path)
	d.mu.Unlock()

	select {
	case d.out <- p.event:
	case <-d.done:
	case <-d.ctx.Done():
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	close(d.done)
	for path, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, path)
	}
}
