// Package asm assembles the textual listing format produced by
// vm.Disassemble back into modules.
//
// A listing is line oriented:
//
//	.globals 2
//	.string "hello"
//	.try start end "FileException" handler
//	start:
//	    PUSHS "hello"
//	    CALLP builtin$print
//	end:
//	    HALT
//	handler:
//	    DROP
//	    HALT
//
// Operands follow the opcode's operand kinds. String operands are quoted
// text, interned into the string table, or #N for a raw table index. PUSHN
// also takes a bare numeric literal. Jump targets are labels or absolute
// offsets; CALLP names a builtin or gives its index.
package asm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/chazu/neon/number"
	"github.com/chazu/neon/vm"
)

// Error is an assembly error at a source position.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// ErrorList collects every error found in one pass over the source.
type ErrorList []*Error

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// tryDirective is an exception range whose labels are resolved once the
// whole listing has been read.
type tryDirective struct {
	start, end, handler string
	exception           uint16
}

// Assembler turns one listing into a module.
type Assembler struct {
	lexer    *Lexer
	cur      Token
	builtins *vm.BuiltinTable

	code     *vm.BytecodeBuilder
	globals  uint16
	strs     []string
	interned map[string]uint16

	labels   map[string]*vm.Label
	firstUse map[string]Position
	tries    []tryDirective

	errors ErrorList
}

// Assemble assembles src. CALLP operands given by name are looked up in
// builtins, which may be nil when only numeric indexes are used. The
// returned module has no name; callers set one.
func Assemble(src string, builtins *vm.BuiltinTable) (*vm.Module, error) {
	a := &Assembler{
		lexer:    NewLexer(src),
		builtins: builtins,
		code:     vm.NewBytecodeBuilder(),
		interned: make(map[string]uint16),
		labels:   make(map[string]*vm.Label),
		firstUse: make(map[string]Position),
	}
	a.next()
	return a.assemble()
}

func (a *Assembler) next() {
	a.cur = a.lexer.NextToken()
}

func (a *Assembler) errorf(pos Position, format string, args ...interface{}) {
	a.errors = append(a.errors, &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// skipLine discards the rest of the current line after an error.
func (a *Assembler) skipLine() {
	for a.cur.Type != TokenNewline && a.cur.Type != TokenEOF {
		a.next()
	}
}

// expected records a syntax error at the current token. A lexer error is
// reported as is.
func (a *Assembler) expected(what string) {
	if a.cur.Type == TokenError {
		a.errorf(a.cur.Pos, "%s", a.cur.Literal)
	} else {
		a.errorf(a.cur.Pos, "expected %s, got %s", what, a.cur.Type)
	}
	a.skipLine()
}

// endLine requires the end of a statement.
func (a *Assembler) endLine() {
	if a.cur.Type != TokenNewline && a.cur.Type != TokenEOF {
		a.errorf(a.cur.Pos, "unexpected %s after statement", a.cur.Type)
		a.skipLine()
	}
}

// ---------------------------------------------------------------------------
// Top level
// ---------------------------------------------------------------------------

func (a *Assembler) assemble() (*vm.Module, error) {
	for a.cur.Type != TokenEOF {
		switch a.cur.Type {
		case TokenNewline:
			a.next()
			continue
		case TokenLabel:
			a.defineLabel(a.cur)
			a.next()
			continue // an instruction may follow on the same line
		case TokenDirective:
			a.directive()
		case TokenIdent:
			a.instruction()
		default:
			a.expected("instruction")
		}
		a.endLine()
	}

	for name, l := range a.labels {
		if !l.Resolved() {
			a.errorf(a.firstUse[name], "undefined label %s", name)
		}
	}

	m := &vm.Module{
		GlobalSize: a.globals,
		Strings:    a.strs,
		Code:       a.code.Bytes(),
	}
	for _, t := range a.tries {
		r, ok := a.resolveTry(t)
		if ok {
			m.Exceptions = append(m.Exceptions, r)
		}
	}

	if len(a.code.Bytes()) > math.MaxUint16+1 {
		a.errorf(a.cur.Pos, "code is %d bytes, more than a 16-bit target can reach", len(a.code.Bytes()))
	}
	if len(a.errors) > 0 {
		sort.SliceStable(a.errors, func(i, j int) bool {
			p, q := a.errors[i].Pos, a.errors[j].Pos
			if p.Line != q.Line {
				return p.Line < q.Line
			}
			return p.Column < q.Column
		})
		return nil, a.errors
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (a *Assembler) label(name string, pos Position) *vm.Label {
	l, ok := a.labels[name]
	if !ok {
		l = a.code.NewLabel()
		a.labels[name] = l
		a.firstUse[name] = pos
	}
	return l
}

func (a *Assembler) defineLabel(tok Token) {
	l := a.label(tok.Literal, tok.Pos)
	if l.Resolved() {
		a.errorf(tok.Pos, "label %s defined twice", tok.Literal)
		return
	}
	a.code.Mark(l)
}

func (a *Assembler) resolveTry(t tryDirective) (vm.ExceptionRange, bool) {
	var offs [3]uint16
	for i, name := range []string{t.start, t.end, t.handler} {
		l := a.labels[name]
		if !l.Resolved() {
			// reported with the other undefined labels
			return vm.ExceptionRange{}, false
		}
		offs[i] = uint16(l.Position())
	}
	return vm.ExceptionRange{Start: offs[0], End: offs[1], ExceptionID: t.exception, Handler: offs[2]}, true
}

// ---------------------------------------------------------------------------
// Directives
// ---------------------------------------------------------------------------

func (a *Assembler) directive() {
	tok := a.cur
	a.next()
	switch strings.ToLower(tok.Literal) {
	case "globals":
		n, ok := a.unsigned(math.MaxUint16)
		if ok {
			a.globals = uint16(n)
		}
	case "string":
		s, ok := a.quoted()
		if ok {
			a.appendString(s, tok.Pos)
		}
	case "try":
		a.parseTry()
	case "byte":
		n, ok := a.unsigned(math.MaxUint8)
		if ok {
			a.code.Emit(vm.Opcode(n))
		}
	default:
		a.errorf(tok.Pos, "unknown directive .%s", tok.Literal)
		a.skipLine()
	}
}

func (a *Assembler) parseTry() {
	var t tryDirective
	var ok bool
	if t.start, ok = a.labelRef(); !ok {
		return
	}
	if t.end, ok = a.labelRef(); !ok {
		return
	}
	if t.exception, ok = a.stringOperand(); !ok {
		return
	}
	if t.handler, ok = a.labelRef(); !ok {
		return
	}
	a.tries = append(a.tries, t)
}

func (a *Assembler) labelRef() (string, bool) {
	if a.cur.Type != TokenIdent {
		a.expected("label")
		return "", false
	}
	name := a.cur.Literal
	a.label(name, a.cur.Pos)
	a.next()
	return name, true
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

func (a *Assembler) instruction() {
	tok := a.cur
	op, ok := vm.LookupOpcode(tok.Literal)
	if !ok {
		a.errorf(tok.Pos, "unknown opcode %s", tok.Literal)
		a.skipLine()
		return
	}
	a.next()
	a.code.Emit(op)
	for _, k := range op.Info().Operands {
		if !a.operand(op, k) {
			return
		}
	}
}

// operand parses and appends one immediate. It reports false after
// recording an error, with the rest of the line skipped.
func (a *Assembler) operand(op vm.Opcode, k vm.OperandKind) bool {
	switch k {
	case vm.OperandU8:
		if op == vm.OpPushB && a.cur.Type == TokenIdent {
			switch strings.ToUpper(a.cur.Literal) {
			case "TRUE":
				a.next()
				a.code.AppendByte(1)
				return true
			case "FALSE":
				a.next()
				a.code.AppendByte(0)
				return true
			}
		}
		n, ok := a.unsigned(math.MaxUint8)
		if ok {
			a.code.AppendByte(byte(n))
		}
		return ok

	case vm.OperandI32:
		n, ok := a.integer(math.MinInt32, math.MaxInt32)
		if ok {
			a.code.AppendInt32(int32(n))
		}
		return ok

	case vm.OperandSlot, vm.OperandRange:
		n, ok := a.unsigned(math.MaxUint16)
		if ok {
			a.code.AppendUint16(uint16(n))
		}
		return ok

	case vm.OperandString:
		var idx uint16
		var ok bool
		if op == vm.OpPushN {
			idx, ok = a.numberOperand()
		} else {
			idx, ok = a.stringOperand()
		}
		if ok {
			a.code.AppendUint16(idx)
		}
		return ok

	case vm.OperandTarget:
		if a.cur.Type == TokenNumber {
			n, ok := a.unsigned(math.MaxUint16)
			if ok {
				a.code.AppendUint16(uint16(n))
			}
			return ok
		}
		name, ok := a.labelRef()
		if ok {
			a.code.AppendLabel(a.labels[name])
		}
		return ok

	case vm.OperandBuiltin:
		return a.builtinOperand()
	}
	a.errorf(a.cur.Pos, "unsupported operand kind %d", k)
	a.skipLine()
	return false
}

func (a *Assembler) builtinOperand() bool {
	tok := a.cur
	switch tok.Type {
	case TokenNumber:
		n, ok := a.unsigned(math.MaxUint16)
		if ok {
			a.code.AppendUint16(uint16(n))
		}
		return ok
	case TokenIdent:
		a.next()
		if a.builtins == nil {
			a.errorf(tok.Pos, "builtin %s given by name but no builtin table is available", tok.Literal)
			a.skipLine()
			return false
		}
		idx, ok := a.builtins.Lookup(tok.Literal)
		if !ok {
			a.errorf(tok.Pos, "unknown builtin %s", tok.Literal)
			a.skipLine()
			return false
		}
		a.code.AppendUint16(uint16(idx))
		return true
	}
	a.expected("builtin name")
	return false
}

// ---------------------------------------------------------------------------
// Operand values
// ---------------------------------------------------------------------------

func (a *Assembler) integer(lo, hi int64) (int64, bool) {
	tok := a.cur
	if tok.Type != TokenNumber {
		a.expected("number")
		return 0, false
	}
	a.next()
	n, err := strconv.ParseInt(tok.Literal, 0, 64)
	if err != nil {
		a.errorf(tok.Pos, "invalid integer %s", tok.Literal)
		a.skipLine()
		return 0, false
	}
	if n < lo || n > hi {
		a.errorf(tok.Pos, "%s out of range [%d, %d]", tok.Literal, lo, hi)
		a.skipLine()
		return 0, false
	}
	return n, true
}

func (a *Assembler) unsigned(hi int64) (int64, bool) {
	return a.integer(0, hi)
}

func (a *Assembler) quoted() (string, bool) {
	tok := a.cur
	if tok.Type != TokenString {
		a.expected("string")
		return "", false
	}
	a.next()
	s, err := strconv.Unquote(tok.Literal)
	if err != nil {
		a.errorf(tok.Pos, "invalid string literal %s", tok.Literal)
		a.skipLine()
		return "", false
	}
	return s, true
}

// stringOperand accepts "text" or #N.
func (a *Assembler) stringOperand() (uint16, bool) {
	tok := a.cur
	if tok.Type == TokenIndex {
		a.next()
		n, err := strconv.ParseUint(tok.Literal, 10, 16)
		if err != nil {
			a.errorf(tok.Pos, "string index #%s out of range", tok.Literal)
			a.skipLine()
			return 0, false
		}
		return uint16(n), true
	}
	s, ok := a.quoted()
	if !ok {
		return 0, false
	}
	return a.intern(s, tok.Pos)
}

// numberOperand is stringOperand for PUSHN, which also accepts a bare
// literal such as 1.5, -Infinity or NaN. The text is kept as written.
func (a *Assembler) numberOperand() (uint16, bool) {
	tok := a.cur
	if tok.Type != TokenNumber && tok.Type != TokenIdent {
		return a.stringOperand()
	}
	a.next()
	if _, err := number.Parse(tok.Literal); err != nil {
		a.errorf(tok.Pos, "invalid number %s", tok.Literal)
		a.skipLine()
		return 0, false
	}
	return a.intern(tok.Literal, tok.Pos)
}

// intern returns the first string table entry equal to s, appending one
// if there is none.
func (a *Assembler) intern(s string, pos Position) (uint16, bool) {
	if idx, ok := a.interned[s]; ok {
		return idx, true
	}
	return a.appendString(s, pos)
}

// appendString always adds an entry so .string directives keep their
// indexes.
func (a *Assembler) appendString(s string, pos Position) (uint16, bool) {
	if len(a.strs) > math.MaxUint16 {
		a.errorf(pos, "string table is full")
		return 0, false
	}
	if strings.IndexByte(s, 0) >= 0 {
		a.errorf(pos, "string contains NUL")
		return 0, false
	}
	idx := uint16(len(a.strs))
	a.strs = append(a.strs, s)
	if _, ok := a.interned[s]; !ok {
		a.interned[s] = idx
	}
	return idx, true
}
