package vm

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chazu/neon/number"
)

// ---------------------------------------------------------------------------
// Executor: bytecode execution engine
// ---------------------------------------------------------------------------

// Executor runs bytecode. It owns its operand stack, frame stack, record
// heap, loaded modules and current-exception slot; nothing is shared between
// executors except immutable Modules, the builtin table and the foreign
// resolver. An Executor is not safe for concurrent use; run one per
// goroutine instead.
type Executor struct {
	cfg Config

	stack   *Stack
	frames  []*CallFrame
	heap    *RecordHeap
	modules map[string]*moduleInstance
	main    *moduleInstance

	current *ExceptionInfo

	builtins *BuiltinTable
	foreign  *ForeignResolver
	out      io.Writer
	in       *bufio.Reader
	args     []string

	// Offset of the instruction being executed in the current frame.
	instrPC int
	halted  bool
	stats   Stats
}

// Stats counts executed work.
type Stats struct {
	Instructions uint64
	Calls        uint64
	Builtins     uint64
	Raises       uint64
	MaxDepth     int
	ByOpcode     [256]uint64
}

// ExitError is returned by Run when the program asked to terminate with a
// status code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config, opts ...Option) *Executor {
	ex := &Executor{
		cfg:     cfg,
		heap:    NewRecordHeap(),
		modules: make(map[string]*moduleInstance),
	}
	for _, opt := range opts {
		opt(ex)
	}
	ex.applyDefaults()
	ex.stack = NewStack(ex.cfg.StackLimit)
	ex.builtins.Freeze()
	return ex
}

// Stack returns the operand stack. Builtins pop their arguments from it and
// push their results onto it.
func (ex *Executor) Stack() *Stack { return ex.stack }

// Heap returns the record heap.
func (ex *Executor) Heap() *RecordHeap { return ex.heap }

// Output returns the writer used by print.
func (ex *Executor) Output() io.Writer { return ex.out }

// Args returns the program arguments.
func (ex *Executor) Args() []string { return ex.args }

// Builtins returns the builtin table.
func (ex *Executor) Builtins() *BuiltinTable { return ex.builtins }

// Stats returns execution counters.
func (ex *Executor) Stats() Stats { return ex.stats }

// Depth returns the current call depth.
func (ex *Executor) Depth() int { return len(ex.frames) }

// CurrentException returns the exception in flight, or nil.
func (ex *Executor) CurrentException() *ExceptionInfo { return ex.current }

// InMainModule reports whether the executing frame belongs to the module
// passed to Run.
func (ex *Executor) InMainModule() bool {
	return len(ex.frames) > 0 && ex.frame().mod == ex.main
}

// Load registers a module under name so CALLMF can reach it. Loading the
// same name twice replaces the earlier instance.
func (ex *Executor) Load(name string, m *Module) {
	if old, ok := ex.modules[name]; ok {
		old.release()
	}
	if m.Name == "" {
		m.Name = name
	}
	ex.modules[name] = newModuleInstance(m)
	loaderLog.Infof("module %q registered", name)
}

func (ex *Executor) module(name string) (*moduleInstance, error) {
	if mi, ok := ex.modules[name]; ok {
		return mi, nil
	}
	for _, dir := range ex.cfg.ModulePaths {
		path := filepath.Join(dir, name+ModuleExt)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := ReadModuleFile(path)
		if err != nil {
			return nil, err
		}
		ex.Load(name, m)
		return ex.modules[name], nil
	}
	return nil, &BytecodeError{Module: name, Err: fmt.Errorf("module %q not found in %v", name, ex.cfg.ModulePaths)}
}

// Close releases globals, records and any values left on the stack.
func (ex *Executor) Close() {
	for len(ex.frames) > 0 {
		ex.popFrame()
	}
	ex.stack.Truncate(0)
	for _, mi := range ex.modules {
		mi.release()
	}
	ex.heap.Close()
}

// ---------------------------------------------------------------------------
// Frame management
// ---------------------------------------------------------------------------

func (ex *Executor) frame() *CallFrame {
	return ex.frames[len(ex.frames)-1]
}

func (ex *Executor) pushFrame(mi *moduleInstance, target int, f *CallFrame) error {
	if len(ex.frames) >= ex.cfg.RecursionLimit {
		return Raise(ExcStackOverflow, fmt.Sprintf("call depth %d", len(ex.frames)))
	}
	if target >= len(mi.Code) {
		panic(&InternalError{PC: ex.instrPC, Module: f.mod.Name, Msg: fmt.Sprintf("call target %d outside code", target)})
	}
	ex.frames = append(ex.frames, &CallFrame{
		mod:      mi,
		PC:       target,
		ReturnPC: f.PC,
		CallPC:   ex.instrPC,
		Base:     ex.stack.Depth(),
	})
	ex.stats.Calls++
	if len(ex.frames) > ex.stats.MaxDepth {
		ex.stats.MaxDepth = len(ex.frames)
	}
	return nil
}

func (ex *Executor) popFrame() *CallFrame {
	f := ex.frame()
	f.release()
	ex.frames[len(ex.frames)-1] = nil
	ex.frames = ex.frames[:len(ex.frames)-1]
	return f
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run executes main from offset 0 until HALT, a RET from the entry frame,
// or the end of its code. The result is the value left on top of the
// operand stack, or Nothing. Errors are *UncaughtException,
// *InternalError, *BytecodeError (a module reached through CALLMF failed to
// load) or *ExitError.
func (ex *Executor) Run(main *Module) (result Value, err error) {
	if main.Name == "" {
		main.Name = "main"
	}
	ex.Load(main.Name, main)
	ex.main = ex.modules[main.Name]
	ex.frames = append(ex.frames[:0], &CallFrame{mod: ex.main, ReturnPC: -1})
	ex.halted = false

	defer func() {
		if r := recover(); r != nil {
			result = Nothing
			err = ex.internalError(r)
		}
	}()

	if err := ex.loop(); err != nil {
		return Nothing, err
	}
	if ex.stack.Depth() == 0 {
		return Nothing, nil
	}
	return ex.stack.Pop(), nil
}

func (ex *Executor) internalError(r any) *InternalError {
	var ie *InternalError
	switch x := r.(type) {
	case *InternalError:
		ie = x
	case error:
		ie = &InternalError{PC: -1, Msg: x.Error()}
	default:
		ie = &InternalError{PC: -1, Msg: fmt.Sprint(x)}
	}
	if ie.PC < 0 {
		ie.PC = ex.instrPC
	}
	if ie.Module == "" && len(ex.frames) > 0 {
		ie.Module = ex.frame().mod.Name
	}
	log.Errorf("%s", ie)
	return ie
}

func (ex *Executor) loop() error {
	for !ex.halted {
		f := ex.frame()
		if f.PC >= len(f.mod.Code) {
			if len(ex.frames) == 1 {
				return nil
			}
			ex.ret()
			continue
		}

		ex.instrPC = f.PC
		err := ex.step(f)
		if err == nil {
			continue
		}
		var re *RaisedException
		if errors.As(err, &re) {
			if uerr := ex.raise(re.Name, re.Info, re.Code); uerr != nil {
				return uerr
			}
			continue
		}
		return err
	}
	return nil
}

func (ex *Executor) ret() {
	f := ex.popFrame()
	ex.frame().PC = f.ReturnPC
}

// step executes one instruction of f. User exceptions come back as
// *RaisedException errors; VM bugs panic with *InternalError.
func (ex *Executor) step(f *CallFrame) error {
	op := Opcode(f.readU8())
	ex.stats.Instructions++
	ex.stats.ByOpcode[op]++
	if ex.cfg.Trace {
		traceLog.Debugf("%s:%04d %-14s depth=%d frames=%d", f.mod.Name, ex.instrPC, op, ex.stack.Depth(), len(ex.frames))
	}

	s := ex.stack
	switch op {
	// --- Stack operations ---
	case OpNOP:

	case OpDROP:
		s.Drop()

	case OpDUP:
		s.Push(s.Top().Copy())

	case OpDUPX1:
		b := s.Pop()
		a := s.Pop()
		s.Push(b.Copy())
		s.Push(a)
		s.Push(b)

	case OpSWAP:
		b := s.Pop()
		a := s.Pop()
		s.Push(b)
		s.Push(a)

	case OpHALT:
		ex.halted = true

	// --- Push constants ---
	case OpPushNothing:
		s.Push(Nothing)

	case OpPushB:
		s.Push(NewBoolean(f.readU8() != 0))

	case OpPushI:
		s.Push(NewNumber(number.FromInt32(f.readI32())))

	case OpPushN:
		text := f.readString()
		n, err := number.Parse(text)
		if err != nil {
			panic(&InternalError{PC: ex.instrPC, Module: f.mod.Name, Msg: err.Error()})
		}
		s.Push(NewNumber(n))

	case OpPushS:
		s.Push(NewString(f.readString()))

	case OpPushY:
		b, err := hex.DecodeString(f.readString())
		if err != nil {
			panic(&InternalError{PC: ex.instrPC, Module: f.mod.Name, Msg: "bad bytes literal: " + err.Error()})
		}
		s.Push(NewBytes(b))

	case OpPushNil:
		s.Push(NilPointer())

	// --- Variables ---
	case OpLoadG:
		s.Push(ex.global(f, f.readU16()).Copy())

	case OpStoreG:
		g := ex.global(f, f.readU16())
		v := s.Pop()
		g.Release()
		*g = v

	case OpLoadL:
		s.Push(f.Local(f.readU16()).Copy())

	case OpStoreL:
		i := f.readU16()
		f.SetLocal(i, s.Pop())

	case OpEnter:
		f.Enter(f.readU16())

	// --- Arithmetic ---
	case OpNegN:
		s.Push(NewNumber(number.Neg(s.PopNumber())))

	case OpAddN, OpSubN, OpMulN, OpDivN, OpModN, OpExpN:
		return ex.arith(op)

	// --- Comparison and logic ---
	case OpEQ, OpNE:
		b := s.Pop()
		a := s.Pop()
		eq := a.Equal(b)
		a.Release()
		b.Release()
		s.Push(NewBoolean(eq == (op == OpEQ)))

	case OpLT, OpGT, OpLE, OpGE:
		ex.compare(op)

	case OpAndB:
		b := s.PopBoolean()
		a := s.PopBoolean()
		s.Push(NewBoolean(a && b))

	case OpOrB:
		b := s.PopBoolean()
		a := s.PopBoolean()
		s.Push(NewBoolean(a || b))

	case OpNotB:
		s.Push(NewBoolean(!s.PopBoolean()))

	// --- Aggregates ---
	case OpConsA:
		s.Push(NewArray(s.PopN(f.readU16())))

	case OpConsD:
		n := f.readU16()
		pairs := s.PopN(2 * n)
		d := NewDict()
		for i := 0; i < len(pairs); i += 2 {
			d.Set(pairs[i].Str(), pairs[i+1])
		}
		s.Push(NewDictionary(d))

	case OpIndexA, OpIndexD, OpSetA, OpSetD, OpInA, OpInD:
		return ex.aggregate(op)

	// --- Records ---
	case OpAlloc:
		s.Push(NewPointer(ex.heap.Alloc(f.readU16())))

	case OpGetF:
		i := f.readU16()
		fields, err := ex.heap.Fields(s.Pop().Pointer())
		if err != nil {
			return err
		}
		s.Push(ex.field(f, fields, i).Copy())

	case OpSetF:
		i := f.readU16()
		v := s.Pop()
		fields, err := ex.heap.Fields(s.Pop().Pointer())
		if err != nil {
			v.Release()
			return err
		}
		fld := ex.field(f, fields, i)
		fld.Release()
		*fld = v

	case OpValidP:
		s.Push(NewBoolean(ex.heap.Valid(s.Pop().Pointer())))

	case OpFreeP:
		return ex.heap.Free(s.Pop().Pointer())

	// --- Control flow ---
	case OpJump:
		f.PC = ex.target(f, f.readU16())

	case OpJF, OpJT:
		t := ex.target(f, f.readU16())
		if s.PopBoolean() == (op == OpJT) {
			f.PC = t
		}

	case OpCallF:
		t := f.readU16()
		return ex.pushFrame(f.mod, t, f)

	case OpCallMF:
		name := f.readString()
		t := f.readU16()
		mi, err := ex.module(name)
		if err != nil {
			return err
		}
		return ex.pushFrame(mi, t, f)

	case OpRet:
		if len(ex.frames) == 1 {
			ex.halted = true
			return nil
		}
		ex.ret()

	case OpCallP:
		ex.stats.Builtins++
		return ex.builtins.Call(ex, f.readU16())

	case OpCallX:
		lib := f.readString()
		sym := f.readString()
		argc := f.readU8()
		return ex.callForeign(lib, sym, argc)

	// --- Exceptions ---
	case OpPushException:
		r := f.readU16()
		if r >= len(f.mod.Exceptions) {
			panic(&InternalError{PC: ex.instrPC, Module: f.mod.Name, Msg: fmt.Sprintf("exception range %d out of table", r)})
		}
		f.handlers = append(f.handlers, activeHandler{rangeIndex: r, depth: s.Depth()})

	case OpPopException:
		if len(f.handlers) == 0 {
			panic(&InternalError{PC: ex.instrPC, Module: f.mod.Name, Msg: "POPEXCEPTION without active handler"})
		}
		f.handlers = f.handlers[:len(f.handlers)-1]

	case OpRaise:
		name := f.readString()
		return ex.raiseFromStack(name)

	default:
		panic(&InternalError{PC: ex.instrPC, Module: f.mod.Name, Msg: fmt.Sprintf("invalid opcode 0x%02x", byte(op))})
	}
	return nil
}

func (ex *Executor) global(f *CallFrame, i int) *Value {
	if i >= len(f.mod.globals) {
		panic(&InternalError{PC: ex.instrPC, Module: f.mod.Name, Msg: fmt.Sprintf("global slot %d outside %d", i, len(f.mod.globals))})
	}
	return &f.mod.globals[i]
}

func (ex *Executor) field(f *CallFrame, fields []Value, i int) *Value {
	if i >= len(fields) {
		panic(&InternalError{PC: ex.instrPC, Module: f.mod.Name, Msg: fmt.Sprintf("field %d outside record of %d", i, len(fields))})
	}
	return &fields[i]
}

func (ex *Executor) target(f *CallFrame, t int) int {
	if t > len(f.mod.Code) {
		panic(&InternalError{PC: ex.instrPC, Module: f.mod.Name, Msg: fmt.Sprintf("jump target %d outside code", t)})
	}
	return t
}

// ---------------------------------------------------------------------------
// Instruction helpers
// ---------------------------------------------------------------------------

func (ex *Executor) arith(op Opcode) error {
	s := ex.stack
	y := s.PopNumber()
	x := s.PopNumber()
	var r number.Number
	switch op {
	case OpAddN:
		r = number.Add(x, y)
	case OpSubN:
		r = number.Sub(x, y)
	case OpMulN:
		r = number.Mul(x, y)
	case OpDivN:
		if y.IsZero() {
			return Raise(ExcDivideByZero, "")
		}
		r = number.Div(x, y)
	case OpModN:
		if y.IsZero() {
			return Raise(ExcDivideByZero, "")
		}
		r = number.Mod(x, y)
	case OpExpN:
		r = number.Pow(x, y)
	}
	s.Push(NewNumber(r))
	return nil
}

func (ex *Executor) compare(op Opcode) {
	s := ex.stack
	b := s.Pop()
	a := s.Pop()
	var res bool
	if a.Kind() == KindNumber && b.Kind() == KindNumber {
		x, y := a.n, b.n
		switch op {
		case OpLT:
			res = number.Less(x, y)
		case OpGT:
			res = number.Greater(x, y)
		case OpLE:
			res = number.LessEqual(x, y)
		case OpGE:
			res = number.GreaterEqual(x, y)
		}
	} else {
		c, ok := a.Compare(b)
		if !ok {
			panic(&InternalError{PC: -1, Msg: fmt.Sprintf("cannot order %s and %s", a.Kind(), b.Kind())})
		}
		switch op {
		case OpLT:
			res = c < 0
		case OpGT:
			res = c > 0
		case OpLE:
			res = c <= 0
		case OpGE:
			res = c >= 0
		}
	}
	s.Push(NewBoolean(res))
}

// arrayIndex converts an index operand, raising ArrayIndexException when it
// is not a non-negative integer.
func arrayIndex(n number.Number) (int, error) {
	i, err := n.ToInt()
	if err != nil || i < 0 {
		return 0, Raise(ExcArrayIndex, n.String())
	}
	return i, nil
}

func (ex *Executor) aggregate(op Opcode) error {
	s := ex.stack
	switch op {
	case OpIndexA:
		idx := s.PopNumber()
		arr := s.Pop()
		defer arr.Release()
		a := arr.Array()
		i, err := arrayIndex(idx)
		if err != nil {
			return err
		}
		v, ok := ArrayIndex(a, i)
		if !ok {
			return Raise(ExcArrayIndex, idx.String())
		}
		s.Push(v)

	case OpIndexD:
		key := s.PopString()
		dict := s.Pop()
		defer dict.Release()
		v, ok := dict.Dict().Get(key)
		if !ok {
			return Raise(ExcDictionaryIndex, key)
		}
		s.Push(v.Copy())

	case OpSetA:
		v := s.Pop()
		idx := s.PopNumber()
		arr := s.Pop()
		i, err := arrayIndex(idx)
		if err != nil {
			v.Release()
			arr.Release()
			return err
		}
		s.Push(NewArray(ArraySet(arr.Array(), i, v)))

	case OpSetD:
		v := s.Pop()
		key := s.PopString()
		dict := s.Pop()
		dict.Dict().Set(key, v)
		s.Push(dict)

	case OpInA:
		arr := s.Pop()
		v := s.Pop()
		found := ArrayFind(arr.Array(), v) >= 0
		arr.Release()
		v.Release()
		s.Push(NewBoolean(found))

	case OpInD:
		dict := s.Pop()
		key := s.PopString()
		found := dict.Dict().Has(key)
		dict.Release()
		s.Push(NewBoolean(found))
	}
	return nil
}

func (ex *Executor) callForeign(lib, sym string, argc int) error {
	if file, ok := ex.cfg.Libraries[lib]; ok {
		lib = file
	}
	fn, err := ex.foreign.Resolve(lib, sym)
	if err != nil {
		return err
	}
	args := ex.stack.PopN(argc)
	results, err := fn.Call(args)
	for _, a := range args {
		a.Release()
	}
	if err != nil {
		var re *RaisedException
		if errors.As(err, &re) {
			return re
		}
		return Raise(ExcForeignCall, err.Error())
	}
	for _, r := range results {
		ex.stack.Push(r)
	}
	return nil
}
