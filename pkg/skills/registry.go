package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jingkaihe/autonomous-agent/pkg/logger"
	"github.com/jingkaihe/autonomous-agent/pkg/paths"
	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/pkg/errors"
)

// Repair actions accepted by Repairer.Run
const (
	ActionScan      = "scan"
	ActionValidate  = "validate"
	ActionDetectNew = "detect-new"
	ActionSync      = "sync"
	ActionFull      = "full"
)

// Actions lists the repair actions in the order they are documented
var Actions = []string{ActionScan, ActionValidate, ActionDetectNew, ActionSync, ActionFull}

// Entry is one registered skill. Directory is relative to the project root
// when the skill lives inside it.
type Entry struct {
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Directory    string    `json:"directory"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry is the persisted config/skill-registry.json document
type Registry struct {
	UpdatedAt time.Time         `json:"updated_at"`
	Skills    map[string]*Entry `json:"skills"`
}

// Names returns the registered skill names in order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Skills))
	for name := range r.Skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Report is the outcome of a repair action
type Report struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Discovered []string  `json:"discovered"`
	Registered []string  `json:"registered"`
	New        []string  `json:"new,omitempty"`
	Added      []string  `json:"added,omitempty"`
	Removed    []string  `json:"removed,omitempty"`
	Issues     []string  `json:"issues,omitempty"`
	Healthy    bool      `json:"healthy"`
	CreatedAt  time.Time `json:"created_at"`
}

// Repairer reconciles the skill registry with the skills found on disk
type Repairer struct {
	layout    *paths.Layout
	discovery *Discovery
	registry  *store.JSONStore
	reports   store.Store
	now       func() time.Time
}

// NewRepairer creates a repairer for the layout. Reports of every run are
// written to reports.
func NewRepairer(layout *paths.Layout, discovery *Discovery, reports store.Store) *Repairer {
	return &Repairer{
		layout:    layout,
		discovery: discovery,
		registry:  store.NewJSONStore(filepath.Dir(layout.SkillRegistryPath())),
		reports:   reports,
		now:       time.Now,
	}
}

func (r *Repairer) registryID() string {
	return strings.TrimSuffix(filepath.Base(r.layout.SkillRegistryPath()), filepath.Ext(r.layout.SkillRegistryPath()))
}

// LoadRegistry reads the registry, returning an empty one if it does not exist yet
func (r *Repairer) LoadRegistry(ctx context.Context) (*Registry, error) {
	reg := &Registry{}
	if err := r.registry.Get(ctx, r.registryID(), reg); err != nil {
		if !store.IsNotFound(err) {
			return nil, errors.Wrap(err, "failed to load skill registry")
		}
	}
	if reg.Skills == nil {
		reg.Skills = make(map[string]*Entry)
	}
	return reg, nil
}

func (r *Repairer) saveRegistry(ctx context.Context, reg *Registry) error {
	reg.UpdatedAt = r.now()
	return errors.Wrap(r.registry.Put(ctx, r.registryID(), reg), "failed to save skill registry")
}

// Run executes one repair action and persists its report
func (r *Repairer) Run(ctx context.Context, action string) (*Report, error) {
	var (
		report *Report
		err    error
	)

	switch action {
	case ActionScan:
		report, err = r.Scan(ctx)
	case ActionValidate:
		report, err = r.Validate(ctx)
	case ActionDetectNew:
		report, err = r.DetectNew(ctx)
	case ActionSync:
		report, err = r.Sync(ctx)
	case ActionFull:
		report, err = r.Full(ctx)
	default:
		return nil, errors.Errorf("unknown repair action %q (expected one of %s)", action, strings.Join(Actions, ", "))
	}
	if err != nil {
		return nil, err
	}

	if err := r.reports.Put(ctx, report.ID, report); err != nil {
		return nil, errors.Wrap(err, "failed to save repair report")
	}
	return report, nil
}

func (r *Repairer) newReport(action string, discovered map[string]*Skill, reg *Registry) *Report {
	now := r.now()
	return &Report{
		ID:         fmt.Sprintf("repair-%s-%s", action, now.UTC().Format("20060102T150405.000000000")),
		Action:     action,
		Discovered: sortedNames(discovered),
		Registered: reg.Names(),
		Healthy:    true,
		CreatedAt:  now,
	}
}

// Scan lists the skills found on disk next to the registered ones
func (r *Repairer) Scan(ctx context.Context) (*Report, error) {
	discovered, _ := r.discovery.Inspect()
	reg, err := r.LoadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return r.newReport(ActionScan, discovered, reg), nil
}

// Validate reports registry entries whose directory or SKILL.md vanished and
// skill directories whose SKILL.md cannot be loaded.
func (r *Repairer) Validate(ctx context.Context) (*Report, error) {
	discovered, problems := r.discovery.scan()
	reg, err := r.LoadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range reg.Names() {
		entry := reg.Skills[name]
		dir := r.absolute(entry.Directory)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			problems = multierror.Append(problems, errors.Errorf("registered skill %s: directory %s is missing", name, entry.Directory))
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			problems = multierror.Append(problems, errors.Errorf("registered skill %s: %s is missing", name, FileName))
		}
	}

	report := r.newReport(ActionValidate, discovered, reg)
	if err := problems.ErrorOrNil(); err != nil {
		for _, e := range problems.Errors {
			report.Issues = append(report.Issues, e.Error())
		}
		report.Healthy = false
		logger.G(ctx).WithField("issues", len(report.Issues)).Warn("skill registry has problems")
	}
	return report, nil
}

// DetectNew reports skills that are on disk but not yet registered
func (r *Repairer) DetectNew(ctx context.Context) (*Report, error) {
	discovered, _ := r.discovery.Inspect()
	reg, err := r.LoadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	report := r.newReport(ActionDetectNew, discovered, reg)
	for _, name := range report.Discovered {
		if _, ok := reg.Skills[name]; !ok {
			report.New = append(report.New, name)
		}
	}
	return report, nil
}

// Sync rewrites the registry from the skills found on disk
func (r *Repairer) Sync(ctx context.Context) (*Report, error) {
	discovered, _ := r.discovery.Inspect()
	reg, err := r.LoadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	report := r.newReport(ActionSync, discovered, reg)
	now := r.now()
	next := make(map[string]*Entry, len(discovered))

	for _, skill := range Sorted(discovered) {
		entry := &Entry{
			Name:         skill.Name,
			Description:  skill.Description,
			Directory:    r.layout.RelativeToRoot(skill.Directory),
			RegisteredAt: now,
		}
		if prev, ok := reg.Skills[skill.Name]; ok {
			entry.RegisteredAt = prev.RegisteredAt
		} else {
			report.Added = append(report.Added, skill.Name)
		}
		next[skill.Name] = entry
	}
	for _, name := range reg.Names() {
		if _, ok := next[name]; !ok {
			report.Removed = append(report.Removed, name)
		}
	}

	reg.Skills = next
	if err := r.saveRegistry(ctx, reg); err != nil {
		return nil, err
	}
	report.Registered = reg.Names()

	logger.G(ctx).WithField("added", len(report.Added)).
		WithField("removed", len(report.Removed)).
		Info("skill registry synced")
	return report, nil
}

// Full validates the registry and then syncs it. Issues found before the
// sync stay on the report.
func (r *Repairer) Full(ctx context.Context) (*Report, error) {
	validated, err := r.Validate(ctx)
	if err != nil {
		return nil, err
	}
	synced, err := r.Sync(ctx)
	if err != nil {
		return nil, err
	}

	synced.Action = ActionFull
	synced.ID = strings.Replace(synced.ID, ActionSync, ActionFull, 1)
	synced.Issues = validated.Issues
	synced.Healthy = validated.Healthy
	return synced, nil
}

func (r *Repairer) absolute(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(r.layout.Root(), dir)
}
