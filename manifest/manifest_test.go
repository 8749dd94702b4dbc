package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/neon/vm"
	"github.com/chazu/neon/vm/dist"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "hello"
version = "0.1.0"
entry = "build/hello.neonx"

[executor]
recursion_limit = 200
stack_limit = 4096
trace = true
check_builtin_arity = false

[modules]
paths = ["lib", "/opt/neon/modules"]

[dependencies]
helper = { path = "../helper" }

[ffi]
libraries = { libm = "libm.so.6" }

[log]
verbosity = 2
file = "neon.log"

[server]
address = "127.0.0.1:9000"
max_concurrent = 4
allow = ["builtin", "math"]
deny = ["file"]
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "hello" || m.Project.Version != "0.1.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "build", "hello.neonx"); got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}
	if m.Log.Verbosity != 2 || m.Log.File != "neon.log" {
		t.Errorf("log = %+v", m.Log)
	}
	if m.Server.Address != "127.0.0.1:9000" || m.Server.MaxConcurrent != 4 {
		t.Errorf("server = %+v", m.Server)
	}
	if dep, ok := m.Dependencies["helper"]; !ok || dep.Path != "../helper" {
		t.Errorf("helper dep = %v, want path ../helper", m.Dependencies["helper"])
	}

	cfg := m.ExecutorConfig()
	want := vm.Config{
		RecursionLimit:    200,
		StackLimit:        4096,
		Trace:             true,
		CheckBuiltinArity: false,
		ModulePaths:       []string{filepath.Join(m.Dir, "lib"), "/opt/neon/modules"},
		Libraries:         map[string]string{"libm": "libm.so.6"},
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("ExecutorConfig =\n%+v\nwant\n%+v", cfg, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Modules.Paths) != 1 || m.Modules.Paths[0] != "." {
		t.Errorf("default module paths = %v, want [.]", m.Modules.Paths)
	}
	if m.Server.Address != DefaultServerAddress {
		t.Errorf("server address = %q", m.Server.Address)
	}
	if m.EntryPath() != "" {
		t.Errorf("EntryPath = %q, want empty", m.EntryPath())
	}

	cfg := m.ExecutorConfig()
	if cfg.RecursionLimit != vm.DefaultRecursionLimit {
		t.Errorf("RecursionLimit = %d", cfg.RecursionLimit)
	}
	if !cfg.CheckBuiltinArity {
		t.Error("CheckBuiltinArity should default to true")
	}
	if cfg.Libraries != nil {
		t.Errorf("Libraries = %v, want nil", cfg.Libraries)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[project\nname = 1", "parse error"},
		{"type", "[executor]\nrecursion_limit = \"deep\"", "parse error"},
		{"negative limit", "[executor]\nstack_limit = -1", "stack_limit"},
		{"negative pool", "[server]\nmax_concurrent = -2", "max_concurrent"},
		{"dep without source", "[dependencies]\nx = { tag = \"v1\" }", `"x" needs exactly one of git or path`},
		{"dep with both", "[dependencies]\nx = { git = \"g\", path = \"p\" }", "exactly one"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tc.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of a directory without neon.toml succeeded")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no neon.toml exists")
	}
}

func TestCapabilityPolicy(t *testing.T) {
	tests := []struct {
		name     string
		server   Server
		required []string
		wantErr  bool
	}{
		{"permissive", Server{}, []string{"file", "ffi"}, false},
		{"allowed", Server{Allow: []string{"builtin", "math"}}, []string{"math"}, false},
		{"not allowed", Server{Allow: []string{"builtin"}}, []string{"sqlite"}, true},
		{"denied", Server{Deny: []string{"ffi"}}, []string{"builtin", "ffi"}, true},
		{"deny beats allow", Server{Allow: []string{"file"}, Deny: []string{"file"}}, []string{"file"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &Manifest{Server: tc.server}
			err := m.CapabilityPolicy().Check(&dist.CapabilityManifest{Required: tc.required})
			if (err != nil) != tc.wantErr {
				t.Errorf("Check(%v) error = %v, wantErr %v", tc.required, err, tc.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Lock file
// ---------------------------------------------------------------------------

func TestLockFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "lock.toml")

	lf := &LockFile{
		Deps: []LockedDep{
			{Name: "stdlib", Git: "https://example.com/neon/stdlib", Commit: "abc123", Tag: "v0.5.0"},
			{Name: "helper", Path: "../helper"},
		},
	}

	if err := WriteLock(lockPath, lf); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}

	loaded, err := ReadLock(lockPath)
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}

	if len(loaded.Deps) != 2 {
		t.Fatalf("expected 2 deps, got %d", len(loaded.Deps))
	}
	// entries are written sorted by name
	if loaded.Deps[0].Name != "helper" || loaded.Deps[1].Name != "stdlib" {
		t.Errorf("dep order = %q, %q", loaded.Deps[0].Name, loaded.Deps[1].Name)
	}
	if loaded.Deps[1].Commit != "abc123" {
		t.Errorf("stdlib commit = %q, want abc123", loaded.Deps[1].Commit)
	}

	found := loaded.FindLockedDep("helper")
	if found == nil || found.Path != "../helper" {
		t.Errorf("FindLockedDep(helper) = %v, want path ../helper", found)
	}
	if notFound := loaded.FindLockedDep("nonexistent"); notFound != nil {
		t.Errorf("FindLockedDep(nonexistent) = %v, want nil", notFound)
	}
}

func TestReadLockNotFound(t *testing.T) {
	lf, err := ReadLock("/nonexistent/path/lock.toml")
	if err != nil {
		t.Errorf("ReadLock should return nil,nil for missing file, got err: %v", err)
	}
	if lf != nil {
		t.Errorf("ReadLock should return nil for missing file, got %v", lf)
	}
	if lf.FindLockedDep("x") != nil {
		t.Error("FindLockedDep on nil lock file")
	}
}
