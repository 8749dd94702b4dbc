package vm

import (
	"bufio"
	"io"
	"os"
)

// DefaultRecursionLimit is the call depth at which StackOverflowException is
// raised.
const DefaultRecursionLimit = 1000

// Config holds executor settings. The zero Config is usable; zero fields
// take their defaults.
type Config struct {
	RecursionLimit int
	// StackLimit bounds the operand stack depth; 0 leaves it unbounded.
	StackLimit int
	Trace      bool
	// CheckBuiltinArity verifies that every builtin call changed the stack
	// depth by exactly its declared results minus parameters.
	CheckBuiltinArity bool
	// ModulePaths is searched for <name>.neonx when CALLMF names a module
	// that has not been loaded.
	ModulePaths []string
	// Libraries maps logical library names used by CALLX to file names.
	Libraries map[string]string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		RecursionLimit:    DefaultRecursionLimit,
		CheckBuiltinArity: true,
		ModulePaths:       []string{"."},
	}
}

// Option customizes an Executor.
type Option func(*Executor)

// WithBuiltins sets the builtin table. The table is frozen when the
// executor is created.
func WithBuiltins(t *BuiltinTable) Option {
	return func(ex *Executor) { ex.builtins = t }
}

// WithOutput redirects print output.
func WithOutput(w io.Writer) Option {
	return func(ex *Executor) { ex.out = w }
}

// WithInput sets the reader textio$input reads lines from.
func WithInput(r io.Reader) Option {
	return func(ex *Executor) { ex.in = bufio.NewReader(r) }
}

// WithForeignResolver replaces the process-wide foreign function resolver.
func WithForeignResolver(r *ForeignResolver) Option {
	return func(ex *Executor) { ex.foreign = r }
}

// WithArgs sets the program arguments returned by sys$args.
func WithArgs(args []string) Option {
	return func(ex *Executor) { ex.args = args }
}

func (ex *Executor) applyDefaults() {
	if ex.cfg.RecursionLimit <= 0 {
		ex.cfg.RecursionLimit = DefaultRecursionLimit
	}
	if ex.out == nil {
		ex.out = os.Stdout
	}
	if ex.in == nil {
		ex.in = bufio.NewReader(os.Stdin)
	}
	if ex.builtins == nil {
		ex.builtins = DefaultBuiltins()
	}
	if ex.foreign == nil {
		ex.foreign = DefaultForeignResolver
	}
}
