// Package manifest handles neon.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/neon/vm"
	"github.com/chazu/neon/vm/dist"
	"github.com/tliron/commonlog"
)

// FileName is the name of the project configuration file.
const FileName = "neon.toml"

// DefaultServerAddress is used when [server] has no address.
const DefaultServerAddress = ":4650"

var log = commonlog.GetLogger("neon.manifest")

// Manifest represents a neon.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Executor     Executor              `toml:"executor"`
	Modules      Modules               `toml:"modules"`
	Dependencies map[string]Dependency `toml:"dependencies"`
	FFI          FFI                   `toml:"ffi"`
	Log          Log                   `toml:"log"`
	Server       Server                `toml:"server"`

	// Dir is the directory containing the neon.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"` // main module, relative to Dir
}

// Executor mirrors vm.Config. CheckBuiltinArity is a pointer so that an
// absent key keeps the default of true.
type Executor struct {
	RecursionLimit    int   `toml:"recursion_limit"`
	StackLimit        int   `toml:"stack_limit"`
	Trace             bool  `toml:"trace"`
	CheckBuiltinArity *bool `toml:"check_builtin_arity"`
}

// Modules configures where CALLMF looks for modules.
type Modules struct {
	Paths []string `toml:"paths"`
}

// Dependency is a directory of compiled modules, either local or cloned
// from git into .neon/deps.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
}

// FFI maps the logical library names used by CALLX to shared objects.
type FFI struct {
	Libraries map[string]string `toml:"libraries"`
}

// Log configures the commonlog backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Server configures the remote executor.
type Server struct {
	Address       string `toml:"address"`
	MaxConcurrent int    `toml:"max_concurrent"`
	// Allow, when set, is the complete list of capabilities a submitted
	// module may use; Deny is checked first.
	Allow []string `toml:"allow"`
	Deny  []string `toml:"deny"`
}

// Load parses a neon.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Modules.Paths) == 0 {
		m.Modules.Paths = []string{"."}
	}
	if m.Executor.RecursionLimit == 0 {
		m.Executor.RecursionLimit = vm.DefaultRecursionLimit
	}
	if m.Server.Address == "" {
		m.Server.Address = DefaultServerAddress
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	switch {
	case m.Executor.RecursionLimit < 0:
		return fmt.Errorf("executor.recursion_limit must not be negative")
	case m.Executor.StackLimit < 0:
		return fmt.Errorf("executor.stack_limit must not be negative")
	case m.Server.MaxConcurrent < 0:
		return fmt.Errorf("server.max_concurrent must not be negative")
	}
	for name, dep := range m.Dependencies {
		if (dep.Git == "") == (dep.Path == "") {
			return fmt.Errorf("dependency %q needs exactly one of git or path", name)
		}
	}
	return nil
}

// FindAndLoad walks up from startDir to find a neon.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// path resolves p against the manifest directory.
func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// ModulePaths returns absolute paths for the configured module directories.
func (m *Manifest) ModulePaths() []string {
	var paths []string
	for _, d := range m.Modules.Paths {
		paths = append(paths, m.path(d))
	}
	return paths
}

// EntryPath returns the absolute path of the entry module, or "" when the
// project has none.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	return m.path(m.Project.Entry)
}

// DepsDir returns the path to the .neon/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".neon", "deps")
}

// LockFilePath returns the path to .neon/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".neon", "lock.toml")
}

// ExecutorConfig builds the executor settings. The module search path is
// the project's own paths followed by those of each resolved dependency.
func (m *Manifest) ExecutorConfig(deps ...ResolvedDep) vm.Config {
	cfg := vm.DefaultConfig()
	cfg.RecursionLimit = m.Executor.RecursionLimit
	cfg.StackLimit = m.Executor.StackLimit
	cfg.Trace = m.Executor.Trace
	if m.Executor.CheckBuiltinArity != nil {
		cfg.CheckBuiltinArity = *m.Executor.CheckBuiltinArity
	}
	cfg.ModulePaths = m.ModulePaths()
	for _, d := range deps {
		cfg.ModulePaths = append(cfg.ModulePaths, d.ModulePaths()...)
	}
	if len(m.FFI.Libraries) > 0 {
		cfg.Libraries = make(map[string]string, len(m.FFI.Libraries))
		for name, file := range m.FFI.Libraries {
			cfg.Libraries[name] = file
		}
	}
	return cfg
}

// CapabilityPolicy returns the policy the server applies to submitted
// modules.
func (m *Manifest) CapabilityPolicy() *dist.CapabilityPolicy {
	p := dist.NewPermissivePolicy()
	if len(m.Server.Allow) > 0 {
		p = dist.NewRestrictedPolicy(m.Server.Allow)
	}
	for _, c := range m.Server.Deny {
		p.Deny(c)
	}
	return p
}
