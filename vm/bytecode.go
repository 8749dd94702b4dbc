package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction. Immediates follow the
// opcode byte in big-endian order.
type Opcode byte

// Stack Operations
const (
	OpNOP   Opcode = 0x00 // no operation
	OpDROP  Opcode = 0x01 // discard top of stack
	OpDUP   Opcode = 0x02 // duplicate top of stack
	OpDUPX1 Opcode = 0x03 // copy top below second: a b -> b a b
	OpSWAP  Opcode = 0x04 // exchange top two values
	OpHALT  Opcode = 0x05 // stop execution
)

// Push Constants
const (
	OpPushNothing Opcode = 0x10 // push Nothing
	OpPushB       Opcode = 0x11 // push Boolean (8-bit)
	OpPushI       Opcode = 0x12 // push Number from signed 32-bit immediate
	OpPushN       Opcode = 0x13 // push Number parsed from string table entry
	OpPushS       Opcode = 0x14 // push String from string table entry
	OpPushY       Opcode = 0x15 // push Bytes from hex string table entry
	OpPushNil     Opcode = 0x16 // push nil Pointer
)

// Variable Operations
const (
	OpLoadG  Opcode = 0x20 // push module global (16-bit slot)
	OpStoreG Opcode = 0x21 // pop into module global (16-bit slot)
	OpLoadL  Opcode = 0x22 // push frame local (16-bit slot)
	OpStoreL Opcode = 0x23 // pop into frame local (16-bit slot)
	OpEnter  Opcode = 0x24 // size current frame's locals (16-bit count)
)

// Number Arithmetic
const (
	OpNegN Opcode = 0x30
	OpAddN Opcode = 0x31
	OpSubN Opcode = 0x32
	OpMulN Opcode = 0x33
	OpDivN Opcode = 0x34
	OpModN Opcode = 0x35
	OpExpN Opcode = 0x36
)

// Comparison and Logic
const (
	OpEQ   Opcode = 0x40
	OpNE   Opcode = 0x41
	OpLT   Opcode = 0x42
	OpGT   Opcode = 0x43
	OpLE   Opcode = 0x44
	OpGE   Opcode = 0x45
	OpAndB Opcode = 0x46
	OpOrB  Opcode = 0x47
	OpNotB Opcode = 0x48
)

// Aggregates
const (
	OpConsA  Opcode = 0x50 // build Array from n values (16-bit count)
	OpConsD  Opcode = 0x51 // build Dictionary from n key/value pairs (16-bit count)
	OpIndexA Opcode = 0x52 // array index -> element
	OpIndexD Opcode = 0x53 // dictionary key -> element
	OpSetA   Opcode = 0x54 // array index value -> array'
	OpSetD   Opcode = 0x55 // dictionary key value -> dictionary'
	OpInA    Opcode = 0x56 // value array -> Boolean
	OpInD    Opcode = 0x57 // key dictionary -> Boolean
)

// Records
const (
	OpAlloc  Opcode = 0x60 // allocate record (16-bit field count)
	OpGetF   Opcode = 0x61 // pointer -> field (16-bit field)
	OpSetF   Opcode = 0x62 // pointer value -> (16-bit field)
	OpValidP Opcode = 0x63 // pointer -> Boolean
	OpFreeP  Opcode = 0x64 // pointer ->
)

// Control Flow
const (
	OpJump   Opcode = 0x70 // unconditional jump (16-bit absolute target)
	OpJF     Opcode = 0x71 // pop Boolean, jump if false
	OpJT     Opcode = 0x72 // pop Boolean, jump if true
	OpCallF  Opcode = 0x73 // call function in this module (16-bit target)
	OpCallMF Opcode = 0x74 // call function in another module (16-bit name, 16-bit target)
	OpRet    Opcode = 0x75 // return to caller
	OpCallP  Opcode = 0x76 // call builtin (16-bit table index)
	OpCallX  Opcode = 0x77 // call foreign function (16-bit library, 16-bit symbol, 8-bit argc)
)

// Exceptions
const (
	OpPushException Opcode = 0x80 // enter try-range (16-bit range index)
	OpPopException  Opcode = 0x81 // leave innermost try-range
	OpRaise         Opcode = 0x82 // raise exception (16-bit name)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes one immediate of an instruction.
type OperandKind byte

const (
	OperandU8      OperandKind = iota + 1 // 8-bit unsigned
	OperandI32                            // 32-bit signed
	OperandSlot                           // 16-bit global/local slot or count
	OperandString                         // 16-bit string table index
	OperandTarget                         // 16-bit absolute code offset
	OperandBuiltin                        // 16-bit builtin table index
	OperandRange                          // 16-bit exception table index
)

// Size returns the encoded width of the operand in bytes.
func (k OperandKind) Size() int {
	switch k {
	case OperandU8:
		return 1
	case OperandI32:
		return 4
	default:
		return 2
	}
}

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string        // mnemonic used by the assembler and disassembler
	Operands []OperandKind // immediates in encoding order
}

// OperandBytes returns the total immediate width.
func (info OpcodeInfo) OperandBytes() int {
	n := 0
	for _, k := range info.Operands {
		n += k.Size()
	}
	return n
}

var (
	noOperands = []OperandKind(nil)
	oneSlot    = []OperandKind{OperandSlot}
	oneString  = []OperandKind{OperandString}
	oneTarget  = []OperandKind{OperandTarget}
)

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:   {"NOP", noOperands},
	OpDROP:  {"DROP", noOperands},
	OpDUP:   {"DUP", noOperands},
	OpDUPX1: {"DUPX1", noOperands},
	OpSWAP:  {"SWAP", noOperands},
	OpHALT:  {"HALT", noOperands},

	OpPushNothing: {"PUSHNOTHING", noOperands},
	OpPushB:       {"PUSHB", []OperandKind{OperandU8}},
	OpPushI:       {"PUSHI", []OperandKind{OperandI32}},
	OpPushN:       {"PUSHN", oneString},
	OpPushS:       {"PUSHS", oneString},
	OpPushY:       {"PUSHY", oneString},
	OpPushNil:     {"PUSHNIL", noOperands},

	OpLoadG:  {"LOADG", oneSlot},
	OpStoreG: {"STOREG", oneSlot},
	OpLoadL:  {"LOADL", oneSlot},
	OpStoreL: {"STOREL", oneSlot},
	OpEnter:  {"ENTER", oneSlot},

	OpNegN: {"NEGN", noOperands},
	OpAddN: {"ADDN", noOperands},
	OpSubN: {"SUBN", noOperands},
	OpMulN: {"MULN", noOperands},
	OpDivN: {"DIVN", noOperands},
	OpModN: {"MODN", noOperands},
	OpExpN: {"EXPN", noOperands},

	OpEQ:   {"EQ", noOperands},
	OpNE:   {"NE", noOperands},
	OpLT:   {"LT", noOperands},
	OpGT:   {"GT", noOperands},
	OpLE:   {"LE", noOperands},
	OpGE:   {"GE", noOperands},
	OpAndB: {"ANDB", noOperands},
	OpOrB:  {"ORB", noOperands},
	OpNotB: {"NOTB", noOperands},

	OpConsA:  {"CONSA", oneSlot},
	OpConsD:  {"CONSD", oneSlot},
	OpIndexA: {"INDEXA", noOperands},
	OpIndexD: {"INDEXD", noOperands},
	OpSetA:   {"SETA", noOperands},
	OpSetD:   {"SETD", noOperands},
	OpInA:    {"INA", noOperands},
	OpInD:    {"IND", noOperands},

	OpAlloc:  {"ALLOC", oneSlot},
	OpGetF:   {"GETF", oneSlot},
	OpSetF:   {"SETF", oneSlot},
	OpValidP: {"VALIDP", noOperands},
	OpFreeP:  {"FREEP", noOperands},

	OpJump:   {"JUMP", oneTarget},
	OpJF:     {"JF", oneTarget},
	OpJT:     {"JT", oneTarget},
	OpCallF:  {"CALLF", oneTarget},
	OpCallMF: {"CALLMF", []OperandKind{OperandString, OperandTarget}},
	OpRet:    {"RET", noOperands},
	OpCallP:  {"CALLP", []OperandKind{OperandBuiltin}},
	OpCallX:  {"CALLX", []OperandKind{OperandString, OperandString, OperandU8}},

	OpPushException: {"PUSHEXCEPTION", []OperandKind{OperandRange}},
	OpPopException:  {"POPEXCEPTION", noOperands},
	OpRaise:         {"RAISE", oneString},
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a defined instruction.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// LookupOpcode returns the opcode with the given mnemonic (case-insensitive).
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[strings.ToUpper(name)]
	return op, ok
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitUint16 appends an opcode with a 16-bit operand.
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.BigEndian.AppendUint16(b.bytes, operand)
}

// EmitInt32 appends an opcode with a signed 32-bit operand.
func (b *BytecodeBuilder) EmitInt32(op Opcode, operand int32) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.BigEndian.AppendUint32(b.bytes, uint32(operand))
}

// EmitCallMF appends a cross-module call.
func (b *BytecodeBuilder) EmitCallMF(module uint16, target uint16) {
	b.EmitUint16(OpCallMF, module)
	b.bytes = binary.BigEndian.AppendUint16(b.bytes, target)
}

// EmitCallX appends a foreign call.
func (b *BytecodeBuilder) EmitCallX(library, symbol uint16, argc uint8) {
	b.EmitUint16(OpCallX, library)
	b.bytes = binary.BigEndian.AppendUint16(b.bytes, symbol)
	b.bytes = append(b.bytes, argc)
}

// AppendUint16 appends a raw 16-bit operand without an opcode.
func (b *BytecodeBuilder) AppendUint16(v uint16) {
	b.bytes = binary.BigEndian.AppendUint16(b.bytes, v)
}

// AppendByte appends a raw byte.
func (b *BytecodeBuilder) AppendByte(v byte) {
	b.bytes = append(b.bytes, v)
}

// AppendInt32 appends a raw signed 32-bit operand.
func (b *BytecodeBuilder) AppendInt32(v int32) {
	b.bytes = binary.BigEndian.AppendUint32(b.bytes, uint32(v))
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a code position that may not be known yet. Jump targets
// are absolute offsets, so forward references are patched on Mark.
type Label struct {
	resolved bool
	position int
	refs     []int // operand offsets waiting for the position
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Resolved reports whether the label has been marked.
func (l *Label) Resolved() bool { return l.resolved }

// Position returns the marked offset of a resolved label.
func (l *Label) Position() int { return l.position }

// Mark resolves a label to the current position.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	for _, ref := range label.refs {
		binary.BigEndian.PutUint16(b.bytes[ref:], uint16(label.position))
	}
	label.refs = nil
}

// EmitJump emits a jump or call instruction targeting a label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	b.AppendLabel(label)
}

// AppendLabel appends a 16-bit reference to a label.
func (b *BytecodeBuilder) AppendLabel(label *Label) {
	if label.resolved {
		b.AppendUint16(uint16(label.position))
		return
	}
	label.refs = append(label.refs, len(b.bytes))
	b.bytes = append(b.bytes, 0, 0)
}

// Unresolved reports whether any label still has pending references.
func (l *Label) Unresolved() bool {
	return !l.resolved && len(l.refs) > 0
}

// ---------------------------------------------------------------------------
// Bytecode reader
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for disassembly. Reads past the end panic
// with an InternalError.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

func (r *BytecodeReader) need(n int) {
	if r.pos+n > len(r.bytes) {
		panic(internalErrorf(r.pos, "truncated instruction"))
	}
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	return Opcode(r.ReadByte())
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() byte {
	r.need(1)
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a 16-bit operand.
func (r *BytecodeReader) ReadUint16() uint16 {
	r.need(2)
	v := binary.BigEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt32 reads a signed 32-bit operand.
func (r *BytecodeReader) ReadInt32() int32 {
	r.need(4)
	v := binary.BigEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return int32(v)
}

// ReadOperand reads one immediate of the given kind as an int.
func (r *BytecodeReader) ReadOperand(k OperandKind) int {
	switch k {
	case OperandU8:
		return int(r.ReadByte())
	case OperandI32:
		return int(r.ReadInt32())
	default:
		return int(r.ReadUint16())
	}
}
