package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble writes a listing of m in the syntax accepted by the asm
// package: directives for the global count, string table and exception
// ranges, then one instruction per line with jump targets as labels.
// CALLP operands are shown by name when builtins has the index.
func Disassemble(m *Module, w io.Writer, builtins *BuiltinTable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*InternalError); ok {
				err = &BytecodeError{Module: m.Name, Offset: ie.PC, Err: fmt.Errorf("%s", ie.Msg)}
				return
			}
			panic(r)
		}
	}()

	labels := collectLabels(m)
	bw := bufio.NewWriter(w)

	if m.Name != "" {
		fmt.Fprintf(bw, "; module %s\n", m.Name)
	}
	fmt.Fprintf(bw, ".globals %d\n", m.GlobalSize)
	for _, s := range m.Strings {
		fmt.Fprintf(bw, ".string %s\n", strconv.Quote(s))
	}
	for _, r := range m.Exceptions {
		id, _ := m.Str(int(r.ExceptionID))
		fmt.Fprintf(bw, ".try %s %s %s %s\n",
			labelName(int(r.Start)), labelName(int(r.End)), strconv.Quote(id), labelName(int(r.Handler)))
	}

	r := NewBytecodeReader(m.Code)
	for r.HasMore() {
		if labels[r.Position()] {
			fmt.Fprintf(bw, "%s:\n", labelName(r.Position()))
		}
		fmt.Fprintf(bw, "    %s\n", DisassembleInstruction(r, m, builtins))
	}
	if labels[len(m.Code)] {
		fmt.Fprintf(bw, "%s:\n", labelName(len(m.Code)))
	}
	return bw.Flush()
}

// DisassembleInstruction renders the instruction at the reader's position
// and advances past it.
func DisassembleInstruction(r *BytecodeReader, m *Module, builtins *BuiltinTable) string {
	op := r.ReadOpcode()
	if !op.Valid() {
		return fmt.Sprintf(".byte 0x%02x", byte(op))
	}
	info := op.Info()
	parts := []string{info.Name}
	for _, k := range info.Operands {
		v := r.ReadOperand(k)
		switch k {
		case OperandString:
			s, ok := m.Str(v)
			switch {
			case !ok:
				parts = append(parts, fmt.Sprintf("#%d", v))
			case op == OpPushN:
				parts = append(parts, s)
			default:
				parts = append(parts, strconv.Quote(s))
			}
		case OperandTarget:
			if op == OpCallMF {
				// offset in the other module
				parts = append(parts, strconv.Itoa(v))
			} else {
				parts = append(parts, labelName(v))
			}
		case OperandBuiltin:
			if b, ok := builtinEntry(builtins, v); ok {
				parts = append(parts, b.Name)
			} else {
				parts = append(parts, strconv.Itoa(v))
			}
		default:
			parts = append(parts, strconv.Itoa(v))
		}
	}
	return strings.Join(parts, " ")
}

func builtinEntry(t *BuiltinTable, i int) (Builtin, bool) {
	if t == nil {
		return Builtin{}, false
	}
	return t.Entry(i)
}

func labelName(pc int) string {
	return fmt.Sprintf("L%04d", pc)
}

// collectLabels returns the offsets referenced by jumps, calls and
// exception ranges.
func collectLabels(m *Module) map[int]bool {
	labels := make(map[int]bool)
	for _, r := range m.Exceptions {
		labels[int(r.Start)] = true
		labels[int(r.End)] = true
		labels[int(r.Handler)] = true
	}
	r := NewBytecodeReader(m.Code)
	for r.HasMore() {
		op := r.ReadOpcode()
		for _, k := range op.Info().Operands {
			v := r.ReadOperand(k)
			if k == OperandTarget && op != OpCallMF {
				labels[v] = true
			}
		}
	}
	return labels
}
