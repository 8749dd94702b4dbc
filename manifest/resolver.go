package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// ModulePaths returns the directories CALLMF should search for the
// dependency's modules: its own [modules] paths, or its root.
func (d ResolvedDep) ModulePaths() []string {
	if d.Manifest != nil {
		return d.Manifest.ModulePaths()
	}
	return []string{d.LocalPath}
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
	offline  bool

	resolved map[string]*ResolvedDep
	visiting map[string]bool
	order    []ResolvedDep
}

// NewResolver creates a new dependency resolver. An offline resolver never
// clones or fetches; git dependencies must already be in DepsDir.
func NewResolver(m *Manifest, offline bool) *Resolver {
	return &Resolver{
		manifest: m,
		offline:  offline,
	}
}

// Resolve resolves all dependencies and returns them in load order
// (dependencies before dependents). The lock file is rewritten unless the
// resolver is offline.
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock
	r.resolved = make(map[string]*ResolvedDep)
	r.visiting = make(map[string]bool)
	r.order = nil

	if err := r.resolveAll(r.manifest); err != nil {
		return nil, err
	}

	if !r.offline && len(r.resolved) > 0 {
		if err := r.writeLock(); err != nil {
			return nil, fmt.Errorf("writing lock file: %w", err)
		}
	}
	return r.order, nil
}

// resolveAll resolves the dependencies declared by owner, depth first.
// Names are global: the first declaration of a name wins.
func (r *Resolver) resolveAll(owner *Manifest) error {
	names := make([]string, 0, len(owner.Dependencies))
	for name := range owner.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if r.visiting[name] {
			return fmt.Errorf("dependency cycle through %q", name)
		}
		if _, ok := r.resolved[name]; ok {
			continue
		}

		r.visiting[name] = true
		rd, err := r.resolveOne(owner, name, owner.Dependencies[name])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", name, err)
		}
		if rd.Manifest != nil {
			if err := r.resolveAll(rd.Manifest); err != nil {
				return err
			}
		}
		delete(r.visiting, name)

		r.resolved[name] = rd
		r.order = append(r.order, *rd)
	}
	return nil
}

// resolveOne resolves a single dependency. Path dependencies are relative
// to the manifest that declares them.
func (r *Resolver) resolveOne(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	var dir string
	switch {
	case dep.Path != "":
		dir = owner.path(dep.Path)
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, dir, err)
		}

	case dep.Git != "":
		dir = filepath.Join(r.manifest.DepsDir(), name)
		if err := r.fetch(name, dep, dir); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	rd := &ResolvedDep{Name: name, LocalPath: dir}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
		m, err := Load(dir)
		if err != nil {
			return nil, err
		}
		rd.Manifest = m
	}
	log.Infof("dependency %s at %s", name, dir)
	return rd, nil
}

// fetch brings the clone of a git dependency to the requested tag.
func (r *Resolver) fetch(name string, dep Dependency, dir string) error {
	_, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if r.offline {
			return fmt.Errorf("git dependency %q is not present in %s", name, dir)
		}
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return err
		}
		if err := gitClone(dep.Git, dir); err != nil {
			return err
		}
	case err != nil:
		return err
	case r.offline:
		return nil
	default:
		locked := r.lock.FindLockedDep(name)
		if locked == nil || locked.Tag != dep.Tag {
			log.Infof("fetching %s", name)
			if err := gitFetch(dir); err != nil {
				return err
			}
		}
	}

	if dep.Tag != "" {
		return gitCheckout(dir, dep.Tag)
	}
	return nil
}

// writeLock writes the resolved dependencies to the lock file.
func (r *Resolver) writeLock() error {
	lf := &LockFile{}
	for _, rd := range r.order {
		ld := LockedDep{Name: rd.Name}
		dep := r.declaration(rd.Name)
		if dep.Git != "" {
			ld.Git = dep.Git
			ld.Tag = dep.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		} else {
			ld.Path = dep.Path
		}
		lf.Deps = append(lf.Deps, ld)
	}

	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0o755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}

// declaration finds the Dependency entry for name in the root manifest or,
// for transitive dependencies, in the manifest of a resolved dependency.
func (r *Resolver) declaration(name string) Dependency {
	if dep, ok := r.manifest.Dependencies[name]; ok {
		return dep
	}
	for _, rd := range r.order {
		if rd.Manifest == nil {
			continue
		}
		if dep, ok := rd.Manifest.Dependencies[name]; ok {
			return dep
		}
	}
	return Dependency{}
}
