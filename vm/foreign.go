package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Foreign function resolution
// ---------------------------------------------------------------------------

// NativeCallable is a function reachable through CALLX.
type NativeCallable interface {
	Call(args []Value) ([]Value, error)
}

// NativeFunc adapts a Go function to NativeCallable.
type NativeFunc func(args []Value) ([]Value, error)

// Call implements NativeCallable.
func (f NativeFunc) Call(args []Value) ([]Value, error) { return f(args) }

type foreignKey struct {
	library string
	symbol  string
}

type foreignEntry struct {
	fn  NativeCallable
	err error
}

// ForeignResolver resolves (library, symbol) pairs to callables. Each pair
// is resolved at most once; the outcome, success or failure, is remembered
// for the life of the resolver. Go implementations registered with Register
// take precedence over dynamically loaded libraries.
type ForeignResolver struct {
	mu         sync.Mutex
	registered map[foreignKey]NativeCallable
	resolved   map[foreignKey]foreignEntry
	libraries  map[string]*nativeLibrary
	loader     libraryLoader
}

// libraryLoader abstracts dlopen/dlsym so platforms without them can still
// build.
type libraryLoader interface {
	open(name string) (*nativeLibrary, error)
}

// DefaultForeignResolver is shared by executors that are not given one.
var DefaultForeignResolver = NewForeignResolver()

// NewForeignResolver creates a resolver backed by the platform loader.
func NewForeignResolver() *ForeignResolver {
	return &ForeignResolver{
		registered: make(map[foreignKey]NativeCallable),
		resolved:   make(map[foreignKey]foreignEntry),
		libraries:  make(map[string]*nativeLibrary),
		loader:     platformLoader{},
	}
}

// Register installs a Go implementation for (library, symbol).
func (r *ForeignResolver) Register(library, symbol string, fn NativeCallable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := foreignKey{library, symbol}
	r.registered[key] = fn
	delete(r.resolved, key)
}

// Resolve returns the callable for (library, symbol). Failures are
// LibraryNotFoundException or FunctionNotFoundException raises.
func (r *ForeignResolver) Resolve(library, symbol string) (NativeCallable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := foreignKey{library, symbol}
	if e, ok := r.resolved[key]; ok {
		return e.fn, e.err
	}

	var e foreignEntry
	if fn, ok := r.registered[key]; ok {
		e.fn = fn
	} else {
		e.fn, e.err = r.load(library, symbol)
	}
	r.resolved[key] = e
	if e.err != nil {
		log.Debugf("foreign %s:%s unresolved: %v", library, symbol, e.err)
	}
	return e.fn, e.err
}

func (r *ForeignResolver) load(library, symbol string) (NativeCallable, error) {
	lib, ok := r.libraries[library]
	if !ok {
		var err error
		lib, err = r.loader.open(library)
		if err != nil {
			return nil, Raise(ExcLibraryNotFound, fmt.Sprintf("%s: %v", library, err))
		}
		r.libraries[library] = lib
	}
	fn, err := lib.lookup(symbol)
	if err != nil {
		return nil, Raise(ExcFunctionNotFound, fmt.Sprintf("%s in %s: %v", symbol, library, err))
	}
	return fn, nil
}
