// Package paths resolves the project root of an autoagent installation and
// lays out the runtime directory tree that every other component reads from
// and writes to.
//
// The project root is identified by a marker directory (.trae). Read-mostly
// configuration such as skills and rules lives under the marker, while all
// mutable agent state lives under a sibling runtime directory.
package paths

import (
	"os"
	"path/filepath"
)

const (
	// MarkerDirName identifies a directory as the project root.
	MarkerDirName = ".trae"
	// RuntimeDirName names the mutable state tree, sibling to the marker.
	RuntimeDirName = "自动化工作流组件库"
	// InstallDepth is how many levels above the executable directory the
	// project root sits in the expected install layout:
	// <root>/.trae/skills/autonomous-agent/bin/autoagent
	InstallDepth = 4
)

// Strategy names the resolution step that produced a project root.
type Strategy string

const (
	StrategyOverride Strategy = "override"
	StrategyFastPath Strategy = "fast-path"
	StrategyWalk     Strategy = "walk"
	StrategyCwd      Strategy = "cwd"
	StrategyFallback Strategy = "fallback"
)

// Resolution is the outcome of project root resolution.
type Resolution struct {
	Root     string
	Strategy Strategy
}

// Degraded reports whether the root was chosen without finding the marker.
func (r Resolution) Degraded() bool {
	return r.Strategy == StrategyFallback
}

// Resolver locates the project root. The zero value is not usable; build one
// with NewResolver.
type Resolver struct {
	installDir string
	workDir    string
	markerDir  string
	depth      int
	override   string
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithInstallDir sets the directory the resolver treats as its own location
func WithInstallDir(dir string) ResolverOption {
	return func(r *Resolver) {
		r.installDir = dir
	}
}

// WithWorkDir sets the working directory used by the cwd strategy
func WithWorkDir(dir string) ResolverOption {
	return func(r *Resolver) {
		r.workDir = dir
	}
}

// WithMarkerDir changes the marker directory name
func WithMarkerDir(name string) ResolverOption {
	return func(r *Resolver) {
		r.markerDir = name
	}
}

// WithDepth changes the fixed ancestor depth of the fast path
func WithDepth(depth int) ResolverOption {
	return func(r *Resolver) {
		r.depth = depth
	}
}

// WithOverride pins the root to dir, skipping every probe. An empty dir is ignored.
func WithOverride(dir string) ResolverOption {
	return func(r *Resolver) {
		r.override = dir
	}
}

// NewResolver creates a resolver. Without options the install dir is the
// directory of the running executable and the work dir is the process cwd.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		markerDir: MarkerDirName,
		depth:     InstallDepth,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.installDir == "" {
		r.installDir = executableDir()
	}
	if r.workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			r.workDir = wd
		} else {
			r.workDir = "."
		}
	}

	return r
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// Resolve finds the project root. It never fails: when no marker is found the
// fixed-depth ancestor of the install dir is returned with StrategyFallback.
func (r *Resolver) Resolve() Resolution {
	if r.override != "" {
		return Resolution{Root: absPath(r.override), Strategy: StrategyOverride}
	}

	installDir := absPath(r.installDir)
	ancestor := nthAncestor(installDir, r.depth)
	if r.hasMarker(ancestor) {
		return Resolution{Root: ancestor, Strategy: StrategyFastPath}
	}

	dir := installDir
	for {
		if r.hasMarker(dir) {
			return Resolution{Root: dir, Strategy: StrategyWalk}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	workDir := absPath(r.workDir)
	if r.hasMarker(workDir) {
		return Resolution{Root: workDir, Strategy: StrategyCwd}
	}

	return Resolution{Root: ancestor, Strategy: StrategyFallback}
}

// ResolveProjectRoot returns only the root path of Resolve.
func (r *Resolver) ResolveProjectRoot() string {
	return r.Resolve().Root
}

func (r *Resolver) hasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, r.markerDir))
	return err == nil && info.IsDir()
}

func nthAncestor(dir string, n int) string {
	for i := 0; i < n; i++ {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}
