// Package conformance runs YAML fixtures of assembled programs against the
// executor and compares how each run ends.
package conformance

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/neon/asm"
	"github.com/chazu/neon/vm"
	"github.com/chazu/neon/vm/dist"
)

// Result is the outcome of one run.
type Result struct {
	Value  string
	Output string
	Err    error
	// Stage is "assemble" when the listing itself was rejected.
	Stage string
}

// Run assembles and executes a case.
func Run(c Case) *Result {
	builtins := dist.Builtins()

	main, err := asm.Assemble(c.Source, builtins)
	if err != nil {
		return &Result{Err: err, Stage: "assemble"}
	}
	main.Name = "main"

	cfg := vm.DefaultConfig()
	if c.Config.RecursionLimit > 0 {
		cfg.RecursionLimit = c.Config.RecursionLimit
	}
	if c.Config.StackLimit > 0 {
		cfg.StackLimit = c.Config.StackLimit
	}

	var out bytes.Buffer
	ex := vm.NewExecutor(cfg, vm.WithBuiltins(builtins), vm.WithOutput(&out), vm.WithArgs(c.Args))
	defer ex.Close()

	names := make([]string, 0, len(c.Modules))
	for name := range c.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m, err := asm.Assemble(c.Modules[name], builtins)
		if err != nil {
			return &Result{Err: fmt.Errorf("module %s: %w", name, err), Stage: "assemble"}
		}
		ex.Load(name, m)
	}

	v, err := ex.Run(main)
	r := &Result{Output: out.String(), Err: err}
	if err == nil {
		r.Value = v.String()
		v.Release()
	}
	return r
}

// Check compares a result with the case's expectation.
func Check(c Case, r *Result) error {
	e := c.Expect
	var problems []string
	fail := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if e.Output != nil && r.Output != *e.Output {
		fail("output = %q, want %q", r.Output, *e.Output)
	}

	var ue *vm.UncaughtException
	var ee *vm.ExitError
	var be *vm.BytecodeError
	var ie *vm.InternalError

	switch {
	case e.Error != "":
		got := errorKind(r)
		if got != e.Error {
			fail("error kind = %q, want %q (%v)", got, e.Error, r.Err)
		}

	case e.Exception != "":
		if !errors.As(r.Err, &ue) {
			fail("want uncaught %s, got value %q err %v", e.Exception, r.Value, r.Err)
			break
		}
		if ue.Name != e.Exception {
			fail("exception = %s, want %s", ue.Name, e.Exception)
		}
		if e.Info != nil && ue.Info != *e.Info {
			fail("info = %q, want %q", ue.Info, *e.Info)
		}
		if e.Code != "" && ue.Code.String() != e.Code {
			fail("code = %s, want %s", ue.Code.String(), e.Code)
		}
		if e.Trace != nil {
			var got []string
			for _, t := range ue.Trace {
				got = append(got, fmt.Sprintf("%s:%d", t.Module, t.PC))
			}
			if strings.Join(got, " ") != strings.Join(e.Trace, " ") {
				fail("trace = %v, want %v", got, e.Trace)
			}
		}

	case e.Exit != nil:
		if !errors.As(r.Err, &ee) {
			fail("want exit %d, got value %q err %v", *e.Exit, r.Value, r.Err)
		} else if ee.Code != *e.Exit {
			fail("exit = %d, want %d", ee.Code, *e.Exit)
		}

	default:
		if r.Err != nil {
			switch {
			case errors.As(r.Err, &ue):
				fail("unexpected exception:\n%s", ue.Report())
			case errors.As(r.Err, &be), errors.As(r.Err, &ie):
				fail("unexpected error: %v", r.Err)
			default:
				fail("unexpected %s error: %v", errorKind(r), r.Err)
			}
			break
		}
		if e.Value != nil && r.Value != *e.Value {
			fail("value = %s, want %s", r.Value, *e.Value)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

func errorKind(r *Result) string {
	if r.Stage != "" {
		return r.Stage
	}
	var be *vm.BytecodeError
	var ie *vm.InternalError
	var ue *vm.UncaughtException
	switch {
	case r.Err == nil:
		return ""
	case errors.As(r.Err, &be):
		return "bytecode"
	case errors.As(r.Err, &ie):
		return "internal"
	case errors.As(r.Err, &ue):
		return "uncaught"
	}
	return "other"
}
