package dist

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/neon/vm"
)

// ReportKind classifies why a run failed.
type ReportKind uint8

const (
	ReportUncaught ReportKind = 1
	ReportBytecode ReportKind = 2
	ReportInternal ReportKind = 3
	ReportExit     ReportKind = 4
)

func (k ReportKind) String() string {
	switch k {
	case ReportUncaught:
		return "uncaught"
	case ReportBytecode:
		return "bytecode"
	case ReportInternal:
		return "internal"
	case ReportExit:
		return "exit"
	}
	return fmt.Sprintf("ReportKind(%d)", uint8(k))
}

// TraceFrame is one entry of an uncaught exception's trace.
type TraceFrame struct {
	Module string `cbor:"1,keyasint"`
	PC     int    `cbor:"2,keyasint"`
}

// Report is the fatal outcome of a run in a form an embedder can store or
// forward. Code is the exception code as decimal text.
type Report struct {
	Kind     ReportKind   `cbor:"1,keyasint"`
	Name     string       `cbor:"2,keyasint,omitempty"`
	Info     string       `cbor:"3,keyasint,omitempty"`
	Code     string       `cbor:"4,keyasint,omitempty"`
	Module   string       `cbor:"5,keyasint,omitempty"`
	PC       int          `cbor:"6,keyasint,omitempty"`
	Trace    []TraceFrame `cbor:"7,keyasint,omitempty"`
	ExitCode int          `cbor:"8,keyasint,omitempty"`
	Message  string       `cbor:"9,keyasint"`
}

// NewReport builds a Report from an error returned by vm.Executor.Run. It
// returns nil for a nil error.
func NewReport(err error) *Report {
	if err == nil {
		return nil
	}
	r := &Report{Message: err.Error()}

	var ue *vm.UncaughtException
	var be *vm.BytecodeError
	var ie *vm.InternalError
	var ee *vm.ExitError
	switch {
	case errors.As(err, &ue):
		r.Kind = ReportUncaught
		r.Name, r.Info, r.Code = ue.Name, ue.Info, ue.Code.String()
		for _, t := range ue.Trace {
			r.Trace = append(r.Trace, TraceFrame{Module: t.Module, PC: t.PC})
		}
	case errors.As(err, &be):
		r.Kind = ReportBytecode
		r.Module, r.PC = be.Module, be.Offset
	case errors.As(err, &ee):
		r.Kind = ReportExit
		r.ExitCode = ee.Code
	case errors.As(err, &ie):
		r.Kind = ReportInternal
		r.Module, r.PC = ie.Module, ie.PC
	default:
		r.Kind = ReportInternal
	}
	return r
}

// String renders the report the way the CLI prints an uncaught exception.
func (r *Report) String() string {
	if r.Kind != ReportUncaught {
		return fmt.Sprintf("%s: %s", r.Kind, r.Message)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Unhandled exception %s (%s) (code %s)\n", r.Name, r.Info, r.Code)
	for _, t := range r.Trace {
		fmt.Fprintf(&sb, "  at %s:%d\n", t.Module, t.PC)
	}
	return sb.String()
}
