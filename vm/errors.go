package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/neon/number"
)

// ---------------------------------------------------------------------------
// Error categories
// ---------------------------------------------------------------------------
//
// Three kinds of failure leave the VM:
//   - *UncaughtException: a user exception no handler matched.
//   - *BytecodeError: a module could not be loaded. Never catchable.
//   - *InternalError: the VM itself detected a broken invariant, such as
//     stack underflow or an invalid opcode. Never catchable.

// Sentinel errors wrapped by BytecodeError.
var (
	ErrTruncatedHeader         = errors.New("truncated header")
	ErrTruncatedStringTable    = errors.New("truncated string table")
	ErrUnterminatedString      = errors.New("unterminated string table entry")
	ErrInvalidUTF8             = errors.New("string table entry is not valid UTF-8")
	ErrTruncatedExceptionTable = errors.New("truncated exception table")
	ErrBadExceptionRange       = errors.New("malformed exception range")
	ErrStringTooLong           = errors.New("string table too large")
	ErrEmbeddedNUL             = errors.New("string contains NUL")
	ErrTooManyRanges           = errors.New("too many exception ranges")
)

// BytecodeError reports a module that failed to load or store.
type BytecodeError struct {
	Module string
	Offset int
	Err    error
}

func (e *BytecodeError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("%s: offset %d: %v", e.Module, e.Offset, e.Err)
	}
	return fmt.Sprintf("offset %d: %v", e.Offset, e.Err)
}

func (e *BytecodeError) Unwrap() error { return e.Err }

// InternalError reports a VM invariant violation. It is raised with panic
// inside the execution loop and recovered at the Run boundary.
type InternalError struct {
	PC     int
	Module string
	Msg    string
}

func (e *InternalError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("internal error at %s:%d: %s", e.Module, e.PC, e.Msg)
	}
	return fmt.Sprintf("internal error at pc %d: %s", e.PC, e.Msg)
}

func internalErrorf(pc int, format string, args ...any) *InternalError {
	return &InternalError{PC: pc, Msg: fmt.Sprintf(format, args...)}
}

// TraceEntry is one frame of an uncaught exception's call trace, innermost
// first.
type TraceEntry struct {
	Module string
	PC     int
}

// UncaughtException is returned from Run when a raised exception found no
// matching handler in any frame.
type UncaughtException struct {
	Name  string
	Info  string
	Code  number.Number
	Trace []TraceEntry
}

func (e *UncaughtException) Error() string {
	return fmt.Sprintf("Unhandled exception %s (%s) (code %s)", e.Name, e.Info, e.Code)
}

// Report renders the exception and its trace the way the runner prints it.
func (e *UncaughtException) Report() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteByte('\n')
	for _, t := range e.Trace {
		fmt.Fprintf(&sb, "  at %s:%d\n", t.Module, t.PC)
	}
	return sb.String()
}

// RaisedException is the error a builtin returns to raise a user exception.
// The execution loop converts it into an unwind.
type RaisedException struct {
	Name string
	Info string
	Code number.Number
}

func (e *RaisedException) Error() string {
	return fmt.Sprintf("exception %s (%s)", e.Name, e.Info)
}

// Raise constructs a RaisedException with code 0.
func Raise(name, info string) error {
	return &RaisedException{Name: name, Info: info}
}

// RaiseCode constructs a RaisedException carrying a numeric code.
func RaiseCode(name, info string, code number.Number) error {
	return &RaisedException{Name: name, Info: info, Code: code}
}
