package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/neon/number"
)

// ---------------------------------------------------------------------------
// Exception names raised by the VM and its builtins
// ---------------------------------------------------------------------------

const (
	ExcArrayIndex       = "ArrayIndexException"
	ExcDictionaryIndex  = "DictionaryIndexException"
	ExcValueRange       = "ValueRangeException"
	ExcDivideByZero     = "NumberException.DivideByZero"
	ExcStackOverflow    = "StackOverflowException"
	ExcNullPointer      = "NullPointerException"
	ExcInvalidPointer   = "InvalidPointerException"
	ExcLibraryNotFound  = "LibraryNotFoundException"
	ExcFunctionNotFound = "FunctionNotFoundException"
	ExcForeignCall      = "ForeignCallException"
	ExcFileOpen         = "FileException.Open"
	ExcFileIO           = "FileException.Io"
	ExcFileExists       = "FileException.Exists"
	ExcSQL              = "SqlException"
	ExcUTF8Decoding     = "Utf8DecodingException"
	ExcObjectClosed     = "ObjectClosedException"
	ExcInvalidValue     = "InvalidValueException"
	ExcEndOfFile        = "EndOfFileException"
)

// ---------------------------------------------------------------------------
// Exception Handling Infrastructure
// ---------------------------------------------------------------------------

// ExceptionInfo is the exception in flight.
type ExceptionInfo struct {
	Name string
	Info string
	Code number.Number
	PC   int
}

// Value returns the structured value handed to a handler:
// [name, info, code, pc].
func (e *ExceptionInfo) Value() Value {
	return NewArray([]Value{
		NewString(e.Name),
		NewString(e.Info),
		NewNumber(e.Code),
		NewInt(int64(e.PC)),
	})
}

// MatchesFamily reports whether an exception named name is caught by a
// handler registered for id: either the names are equal or name continues
// id with a dot, so "A.B" is caught by "A" but "AB" is not.
func MatchesFamily(name, id string) bool {
	if name == id {
		return true
	}
	return strings.HasPrefix(name, id) && len(name) > len(id) && name[len(id)] == '.'
}

// FindHandler returns the index of the range in m that handles name raised
// at pc: the narrowest containing range whose id matches, the first in
// table order on ties. It returns -1 when no range applies.
func FindHandler(m *Module, name string, pc int) int {
	best := -1
	for i, r := range m.Exceptions {
		if !r.Contains(pc) {
			continue
		}
		id, ok := m.Str(int(r.ExceptionID))
		if !ok || !MatchesFamily(name, id) {
			continue
		}
		if best < 0 || r.Width() < m.Exceptions[best].Width() {
			best = i
		}
	}
	return best
}

// ---------------------------------------------------------------------------
// Raise and unwind
// ---------------------------------------------------------------------------

// raiseFromStack implements RAISE: the info operand is either a String or
// an [info, code] Array.
func (ex *Executor) raiseFromStack(name string) error {
	v := ex.stack.Pop()
	defer v.Release()
	switch v.Kind() {
	case KindString:
		return Raise(name, v.Str())
	case KindArray:
		a := v.Array()
		if len(a) == 2 && a[0].Kind() == KindString && a[1].Kind() == KindNumber {
			return RaiseCode(name, a[0].Str(), a[1].Number())
		}
	}
	panic(&InternalError{PC: -1, Msg: fmt.Sprintf("RAISE operand must be String or [String, Number], found %s", v.Kind())})
}

// raise sets the current exception and unwinds to the nearest matching
// handler. Each frame is examined against its own module's range table at
// the offset where it was interrupted: the raising instruction for the
// innermost frame, the call instruction for its callers. Frames without a
// match are popped and their locals released. When no frame matches the
// exception is returned as *UncaughtException.
func (ex *Executor) raise(name, info string, code number.Number) error {
	ex.stats.Raises++
	ex.current = &ExceptionInfo{Name: name, Info: info, Code: code, PC: ex.instrPC}

	pc := ex.instrPC
	restore := ex.stack.Depth()
	var trace []TraceEntry
	for {
		f := ex.frame()
		trace = append(trace, TraceEntry{Module: f.mod.Name, PC: pc})

		if idx := FindHandler(f.mod.Module, name, pc); idx >= 0 {
			ex.enterHandler(f, idx, restore)
			return nil
		}
		if len(ex.frames) == 1 {
			break
		}
		pc = f.CallPC
		if f.Base < restore {
			restore = f.Base
		}
		ex.popFrame()
	}

	log.Debugf("unhandled exception %s (%s)", name, info)
	return &UncaughtException{Name: name, Info: info, Code: code, Trace: trace}
}

// enterHandler truncates the operand stack to the depth recorded when the
// range was entered, pushes the exception info and jumps to the handler.
// fallback is used when the range was never entered with PUSHEXCEPTION.
func (ex *Executor) enterHandler(f *CallFrame, idx int, fallback int) {
	r := f.mod.Exceptions[idx]
	depth := fallback
	for i := len(f.handlers) - 1; i >= 0; i-- {
		if f.handlers[i].rangeIndex == idx {
			depth = f.handlers[i].depth
			f.handlers = f.handlers[:i]
			break
		}
	}
	if depth > ex.stack.Depth() {
		depth = ex.stack.Depth()
	}
	ex.stack.Truncate(depth)

	info := ex.current
	log.Debugf("exception %s caught by range %d in %s, handler at %d", info.Name, idx, f.mod.Name, r.Handler)
	ex.stack.Push(info.Value())
	f.PC = int(r.Handler)
	ex.current = nil
}
