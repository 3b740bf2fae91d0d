package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Memory subdirectory names under <runtime>/memory.
const (
	MemoryLTM             = "ltm"
	MemorySessions        = "sessions"
	MemoryTasks           = "tasks"
	MemoryErrors          = "errors"
	MemoryQuality         = "quality"
	MemoryRepairReports   = "repair_reports"
	MemoryClosedLoop      = "closed_loop"
	MemoryTaskDocs        = "task_docs"
	MemoryReflexion       = "reflexion"
	MemoryIntegration     = "integration"
	MemoryDistillation    = "distillation"
	MemoryExecutionTracks = "execution_tracks"
)

// MemorySubdirs is the closed, ordered list of memory roles.
var MemorySubdirs = []string{
	MemoryLTM,
	MemorySessions,
	MemoryTasks,
	MemoryErrors,
	MemoryQuality,
	MemoryRepairReports,
	MemoryClosedLoop,
	MemoryTaskDocs,
	MemoryReflexion,
	MemoryIntegration,
	MemoryDistillation,
	MemoryExecutionTracks,
}

const (
	skillRegistryFile = "skill-registry.json"
	agentRegistryFile = "agent_registry.json"
	dirPerm           = 0o755
)

// Layout addresses the configuration tree under the marker directory and the
// mutable runtime tree under the runtime directory. Every path is derived from
// the root alone.
type Layout struct {
	root       string
	markerDir  string
	runtimeDir string
}

// NewLayout creates a layout rooted at root with the default directory names
func NewLayout(root string) *Layout {
	return NewLayoutWithNames(root, MarkerDirName, RuntimeDirName)
}

// NewLayoutWithNames creates a layout with custom marker and runtime names
func NewLayoutWithNames(root, markerDir, runtimeDir string) *Layout {
	return &Layout{
		root:       absPath(root),
		markerDir:  markerDir,
		runtimeDir: runtimeDir,
	}
}

// Root returns the project root
func (l *Layout) Root() string { return l.root }

// TraeDir returns the read-mostly configuration tree
func (l *Layout) TraeDir() string { return filepath.Join(l.root, l.markerDir) }

// SkillsDir returns <marker>/skills
func (l *Layout) SkillsDir() string { return filepath.Join(l.TraeDir(), "skills") }

// RulesDir returns <marker>/rules
func (l *Layout) RulesDir() string { return filepath.Join(l.TraeDir(), "rules") }

// RuntimeDir returns the mutable state tree
func (l *Layout) RuntimeDir() string { return filepath.Join(l.root, l.runtimeDir) }

// AgentDir is the legacy name of RuntimeDir.
func (l *Layout) AgentDir() string { return l.RuntimeDir() }

func (l *Layout) ConfigDir() string    { return filepath.Join(l.RuntimeDir(), "config") }
func (l *Layout) MemoryDir() string    { return filepath.Join(l.RuntimeDir(), "memory") }
func (l *Layout) DeliveryDir() string  { return filepath.Join(l.RuntimeDir(), "delivery") }
func (l *Layout) KnowledgeDir() string { return filepath.Join(l.RuntimeDir(), "knowledge") }
func (l *Layout) WorkflowsDir() string { return filepath.Join(l.RuntimeDir(), "workflows") }
func (l *Layout) SwarmDir() string     { return filepath.Join(l.RuntimeDir(), "swarm") }
func (l *Layout) TemplatesDir() string { return filepath.Join(l.RuntimeDir(), "templates") }
func (l *Layout) LogsDir() string      { return filepath.Join(l.RuntimeDir(), "logs") }

// ValidationScriptsDir returns templates/validation_scripts
func (l *Layout) ValidationScriptsDir() string {
	return filepath.Join(l.TemplatesDir(), "validation_scripts")
}

// MemorySubdir returns memory/<name>
func (l *Layout) MemorySubdir(name string) string {
	return filepath.Join(l.MemoryDir(), name)
}

func (l *Layout) LTMDir() string             { return l.MemorySubdir(MemoryLTM) }
func (l *Layout) SessionsDir() string        { return l.MemorySubdir(MemorySessions) }
func (l *Layout) TasksDir() string           { return l.MemorySubdir(MemoryTasks) }
func (l *Layout) ErrorsDir() string          { return l.MemorySubdir(MemoryErrors) }
func (l *Layout) QualityDir() string         { return l.MemorySubdir(MemoryQuality) }
func (l *Layout) RepairReportsDir() string   { return l.MemorySubdir(MemoryRepairReports) }
func (l *Layout) ClosedLoopDir() string      { return l.MemorySubdir(MemoryClosedLoop) }
func (l *Layout) TaskDocsDir() string        { return l.MemorySubdir(MemoryTaskDocs) }
func (l *Layout) ReflexionDir() string       { return l.MemorySubdir(MemoryReflexion) }
func (l *Layout) IntegrationDir() string     { return l.MemorySubdir(MemoryIntegration) }
func (l *Layout) DistillationDir() string    { return l.MemorySubdir(MemoryDistillation) }
func (l *Layout) ExecutionTracksDir() string { return l.MemorySubdir(MemoryExecutionTracks) }

// SkillRegistryPath returns config/skill-registry.json
func (l *Layout) SkillRegistryPath() string {
	return filepath.Join(l.ConfigDir(), skillRegistryFile)
}

// AgentRegistryPath returns swarm/agent_registry.json
func (l *Layout) AgentRegistryPath() string {
	return filepath.Join(l.SwarmDir(), agentRegistryFile)
}

// Directories returns every creatable runtime directory in creation order.
// Parents always precede their children.
func (l *Layout) Directories() []string {
	dirs := []string{
		l.RuntimeDir(),
		l.ConfigDir(),
		l.MemoryDir(),
	}
	for _, name := range MemorySubdirs {
		dirs = append(dirs, l.MemorySubdir(name))
	}
	return append(dirs,
		l.DeliveryDir(),
		l.KnowledgeDir(),
		l.WorkflowsDir(),
		l.SwarmDir(),
		l.TemplatesDir(),
		l.ValidationScriptsDir(),
		l.LogsDir(),
	)
}

// InitResult lists the directories created by InitRuntimeDirectories
type InitResult struct {
	Initialized int      `json:"initialized"`
	Directories []string `json:"directories"`
}

// InitRuntimeDirectories creates every missing runtime directory and reports
// the ones it created. Existing directories are left untouched, so a second
// call reports nothing. A failure aborts the run; directories created so far
// stay in place and a later call picks up where it stopped.
func (l *Layout) InitRuntimeDirectories() (InitResult, error) {
	created := []string{}
	for _, dir := range l.Directories() {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if _, err := EnsureDirectory(dir); err != nil {
			return InitResult{Initialized: len(created), Directories: created}, err
		}
		created = append(created, dir)
	}
	return InitResult{Initialized: len(created), Directories: created}, nil
}

// InitAgentDirectories is the legacy name of InitRuntimeDirectories.
func (l *Layout) InitAgentDirectories() (InitResult, error) {
	return l.InitRuntimeDirectories()
}

// EnsureDirectory creates path and any missing parents, returning path as given
func EnsureDirectory(path string) (string, error) {
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return path, errors.Wrapf(err, "failed to create directory %s", path)
	}
	return path, nil
}

// RelativeToRoot expresses path relative to the project root when it lies
// underneath it, and returns it unchanged otherwise.
func (l *Layout) RelativeToRoot(path string) string {
	if !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

// Role pairs a logical role name with its absolute path
type Role struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Roles lists every addressable role, directories and registry files alike.
func (l *Layout) Roles() []Role {
	roles := []Role{
		{Name: "trae", Path: l.TraeDir()},
		{Name: "skills", Path: l.SkillsDir()},
		{Name: "rules", Path: l.RulesDir()},
		{Name: "runtime", Path: l.RuntimeDir()},
		{Name: "config", Path: l.ConfigDir()},
		{Name: "memory", Path: l.MemoryDir()},
	}
	for _, name := range MemorySubdirs {
		roles = append(roles, Role{Name: "memory/" + name, Path: l.MemorySubdir(name)})
	}
	return append(roles,
		Role{Name: "delivery", Path: l.DeliveryDir()},
		Role{Name: "knowledge", Path: l.KnowledgeDir()},
		Role{Name: "workflows", Path: l.WorkflowsDir()},
		Role{Name: "swarm", Path: l.SwarmDir()},
		Role{Name: "templates", Path: l.TemplatesDir()},
		Role{Name: "templates/validation_scripts", Path: l.ValidationScriptsDir()},
		Role{Name: "logs", Path: l.LogsDir()},
		Role{Name: "skill-registry", Path: l.SkillRegistryPath()},
		Role{Name: "agent-registry", Path: l.AgentRegistryPath()},
	)
}
