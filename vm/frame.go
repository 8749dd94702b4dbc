package vm

import "fmt"

// ---------------------------------------------------------------------------
// CallFrame: execution state for one function activation
// ---------------------------------------------------------------------------

// moduleInstance is a loaded module together with its global storage. The
// Module itself is shared and immutable; globals belong to one executor.
type moduleInstance struct {
	*Module
	globals []Value
}

func newModuleInstance(m *Module) *moduleInstance {
	return &moduleInstance{Module: m, globals: make([]Value, m.GlobalSize)}
}

func (mi *moduleInstance) release() {
	for i := range mi.globals {
		mi.globals[i].Release()
		mi.globals[i] = Value{}
	}
}

// activeHandler records a PUSHEXCEPTION: which range was entered and the
// operand stack depth to restore when its handler runs.
type activeHandler struct {
	rangeIndex int
	depth      int
}

// CallFrame represents one function activation.
type CallFrame struct {
	mod      *moduleInstance
	PC       int // next instruction in mod.Code
	ReturnPC int // caller's resume point, -1 for the entry frame
	CallPC   int // offset of the call instruction in the caller
	Base     int // operand stack depth when the frame was entered

	Locals   []Value
	handlers []activeHandler
}

// ModuleName returns the name of the module the frame executes.
func (f *CallFrame) ModuleName() string { return f.mod.Name }

// Enter sizes the frame's locals to n slots.
func (f *CallFrame) Enter(n int) {
	if n < len(f.Locals) {
		for _, v := range f.Locals[n:] {
			v.Release()
		}
		f.Locals = f.Locals[:n]
		return
	}
	f.Locals = append(f.Locals, make([]Value, n-len(f.Locals))...)
}

func (f *CallFrame) checkLocal(i int) {
	if i < 0 || i >= len(f.Locals) {
		panic(&InternalError{PC: -1, Msg: fmt.Sprintf("local slot %d outside frame of %d", i, len(f.Locals))})
	}
}

// Local returns a reference to local slot i.
func (f *CallFrame) Local(i int) *Value {
	f.checkLocal(i)
	return &f.Locals[i]
}

// SetLocal stores v into slot i, releasing the previous value.
func (f *CallFrame) SetLocal(i int, v Value) {
	f.checkLocal(i)
	f.Locals[i].Release()
	f.Locals[i] = v
}

func (f *CallFrame) release() {
	for i := range f.Locals {
		f.Locals[i].Release()
		f.Locals[i] = Value{}
	}
	f.Locals = nil
	f.handlers = nil
}

// ---------------------------------------------------------------------------
// Immediate decoding
// ---------------------------------------------------------------------------

func (f *CallFrame) need(n int) {
	if f.PC+n > len(f.mod.Code) {
		panic(&InternalError{PC: -1, Module: f.mod.Name, Msg: "truncated instruction"})
	}
}

func (f *CallFrame) readU8() int {
	f.need(1)
	v := f.mod.Code[f.PC]
	f.PC++
	return int(v)
}

func (f *CallFrame) readU16() int {
	f.need(2)
	c := f.mod.Code
	v := int(c[f.PC])<<8 | int(c[f.PC+1])
	f.PC += 2
	return v
}

func (f *CallFrame) readI32() int32 {
	f.need(4)
	c := f.mod.Code
	v := uint32(c[f.PC])<<24 | uint32(c[f.PC+1])<<16 | uint32(c[f.PC+2])<<8 | uint32(c[f.PC+3])
	f.PC += 4
	return int32(v)
}

func (f *CallFrame) readString() string {
	i := f.readU16()
	s, ok := f.mod.Str(i)
	if !ok {
		panic(&InternalError{PC: -1, Module: f.mod.Name, Msg: fmt.Sprintf("string index %d out of range", i)})
	}
	return s
}
