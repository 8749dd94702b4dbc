package vm

import (
	"fmt"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Builtin dispatch table
// ---------------------------------------------------------------------------

// PrimitiveFunc implements a builtin. It pops its own arguments from
// ex.Stack() (last pushed first) and pushes its results. Returning a
// *RaisedException raises a user exception; any other error is treated as
// an internal error.
type PrimitiveFunc func(ex *Executor) error

// Builtin is one entry of the dispatch table.
type Builtin struct {
	Name    string
	Params  int
	Results int
	Fn      PrimitiveFunc
}

// BuiltinTable maps dense integer indexes, assigned in registration order,
// to primitives. Registration must finish before any executor using the
// table starts; the table is read-only afterwards.
type BuiltinTable struct {
	mu      sync.RWMutex
	entries []Builtin
	byName  map[string]int
	frozen  bool
}

// NewBuiltinTable creates an empty table.
func NewBuiltinTable() *BuiltinTable {
	return &BuiltinTable{byName: make(map[string]int)}
}

// Register adds a primitive and returns its index.
func (t *BuiltinTable) Register(name string, params, results int, fn PrimitiveFunc) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return 0, fmt.Errorf("builtin %s: table is frozen", name)
	}
	if _, dup := t.byName[name]; dup {
		return 0, fmt.Errorf("builtin %s: already registered", name)
	}
	if params < 0 || results < 0 {
		return 0, fmt.Errorf("builtin %s: negative arity", name)
	}
	t.entries = append(t.entries, Builtin{Name: name, Params: params, Results: results, Fn: fn})
	idx := len(t.entries) - 1
	t.byName[name] = idx
	return idx, nil
}

// add registers a standard primitive; duplicates are programming errors.
func (t *BuiltinTable) add(name string, params, results int, fn PrimitiveFunc) {
	if _, err := t.Register(name, params, results, fn); err != nil {
		panic(err)
	}
}

// Freeze forbids further registration.
func (t *BuiltinTable) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Frozen reports whether the table is closed for registration.
func (t *BuiltinTable) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}

// Clone returns an unfrozen copy that can be extended.
func (t *BuiltinTable) Clone() *BuiltinTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := &BuiltinTable{
		entries: append([]Builtin(nil), t.entries...),
		byName:  make(map[string]int, len(t.byName)),
	}
	for k, v := range t.byName {
		c.byName[k] = v
	}
	return c
}

// Lookup returns the index registered for name.
func (t *BuiltinTable) Lookup(name string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byName[name]
	return i, ok
}

// Entry returns the builtin at index i.
func (t *BuiltinTable) Entry(i int) (Builtin, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.entries) {
		return Builtin{}, false
	}
	return t.entries[i], true
}

// Len returns the number of registered builtins.
func (t *BuiltinTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Names returns all registered names, sorted.
func (t *BuiltinTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call invokes builtin i on ex. When arity checking is enabled a
// successful call must change the stack depth by exactly Results-Params.
func (t *BuiltinTable) Call(ex *Executor, i int) error {
	b, ok := t.Entry(i)
	if !ok {
		panic(&InternalError{PC: -1, Msg: fmt.Sprintf("builtin index %d out of range", i)})
	}
	before := ex.stack.Depth()
	if before < b.Params {
		panic(&InternalError{PC: -1, Msg: fmt.Sprintf("builtin %s needs %d arguments, stack has %d", b.Name, b.Params, before)})
	}
	if err := b.Fn(ex); err != nil {
		if _, raised := err.(*RaisedException); raised {
			return err
		}
		if _, exit := err.(*ExitError); exit {
			return err
		}
		panic(&InternalError{PC: -1, Msg: fmt.Sprintf("builtin %s: %v", b.Name, err)})
	}
	if ex.cfg.CheckBuiltinArity {
		if got, want := ex.stack.Depth()-before, b.Results-b.Params; got != want {
			panic(&InternalError{PC: -1, Msg: fmt.Sprintf("builtin %s changed stack depth by %d, declared %d", b.Name, got, want)})
		}
	}
	return nil
}

var (
	defaultBuiltinsOnce sync.Once
	defaultBuiltins     *BuiltinTable
)

// DefaultBuiltins returns the shared standard table. Use Clone to add to it.
func DefaultBuiltins() *BuiltinTable {
	defaultBuiltinsOnce.Do(func() {
		defaultBuiltins = NewStandardBuiltins()
		defaultBuiltins.Freeze()
	})
	return defaultBuiltins
}

// NewStandardBuiltins returns a fresh, unfrozen table holding the standard
// runtime library.
func NewStandardBuiltins() *BuiltinTable {
	t := NewBuiltinTable()
	registerCorePrimitives(t)
	registerArrayPrimitives(t)
	registerStringPrimitives(t)
	registerBytesPrimitives(t)
	registerDictionaryPrimitives(t)
	registerBinaryPrimitives(t)
	registerStructPrimitives(t)
	registerMathPrimitives(t)
	registerFilePrimitives(t)
	registerTextioPrimitives(t)
	registerSqlitePrimitives(t)
	registerHashPrimitives(t)
	registerSysPrimitives(t)
	return t
}
