package vm

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/neon/number"
)

// ---------------------------------------------------------------------------
// Value: the dynamic value held by every VM slot
// ---------------------------------------------------------------------------

// Kind identifies the live variant of a Value.
type Kind uint8

const (
	KindNothing Kind = iota
	KindBoolean
	KindNumber
	KindString
	KindBytes
	KindArray
	KindDictionary
	KindPointer
	KindObject
)

var kindNames = [...]string{
	KindNothing:    "Nothing",
	KindBoolean:    "Boolean",
	KindNumber:     "Number",
	KindString:     "String",
	KindBytes:      "Bytes",
	KindArray:      "Array",
	KindDictionary: "Dictionary",
	KindPointer:    "Pointer",
	KindObject:     "Object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a tagged union. Only the field belonging to kind is meaningful;
// the zero Value is Nothing.
//
// Arrays and dictionaries are owned exclusively by the Value holding them.
// Duplicating a Value into a second slot must go through Copy, and
// discarding one must go through Release, so that Object reference counts
// stay balanced.
type Value struct {
	kind Kind
	b    bool
	n    number.Number
	s    string
	y    []byte
	a    []Value
	d    *Dictionary
	p    Pointer
	o    *Object
}

// Nothing is the absent value.
var Nothing = Value{}

// NewBoolean wraps a bool.
func NewBoolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

// NewNumber wraps a Number.
func NewNumber(n number.Number) Value { return Value{kind: KindNumber, n: n} }

// NewInt is shorthand for NewNumber(number.FromInt64(x)).
func NewInt(x int64) Value { return NewNumber(number.FromInt64(x)) }

// NewString wraps text. Invalid UTF-8 sequences are replaced by U+FFFD so
// that String values always hold valid UTF-8.
func NewString(s string) Value {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return Value{kind: KindString, s: s}
}

// NewBytes wraps arbitrary octets. The slice is not copied.
func NewBytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBytes, y: b}
}

// NewArray takes ownership of elems.
func NewArray(elems []Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, a: elems}
}

// NewDictionary takes ownership of d. A nil d creates an empty dictionary.
func NewDictionary(d *Dictionary) Value {
	if d == nil {
		d = NewDict()
	}
	return Value{kind: KindDictionary, d: d}
}

// NewPointer wraps a record reference.
func NewPointer(p Pointer) Value { return Value{kind: KindPointer, p: p} }

// NilPointer returns the nil pointer value.
func NilPointer() Value { return Value{kind: KindPointer} }

// NewObject wraps an Object handle, taking over one reference.
func NewObject(o *Object) Value { return Value{kind: KindObject, o: o} }

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the live variant.
func (v Value) Kind() Kind { return v.kind }

// IsNothing reports whether v is Nothing.
func (v Value) IsNothing() bool { return v.kind == KindNothing }

func (v Value) expect(k Kind) {
	if v.kind != k {
		panic(&InternalError{PC: -1, Msg: fmt.Sprintf("expected %s, found %s", k, v.kind)})
	}
}

// Boolean returns the bool payload. It panics with an InternalError when v
// is not a Boolean.
func (v Value) Boolean() bool {
	v.expect(KindBoolean)
	return v.b
}

// Number returns the Number payload.
func (v Value) Number() number.Number {
	v.expect(KindNumber)
	return v.n
}

// Str returns the String payload.
func (v Value) Str() string {
	v.expect(KindString)
	return v.s
}

// Bytes returns the Bytes payload. Callers must not modify it.
func (v Value) Bytes() []byte {
	v.expect(KindBytes)
	return v.y
}

// Array returns the element slice of an Array. The slice is owned by v.
func (v Value) Array() []Value {
	v.expect(KindArray)
	return v.a
}

// Dict returns the Dictionary payload.
func (v Value) Dict() *Dictionary {
	v.expect(KindDictionary)
	return v.d
}

// Pointer returns the record reference.
func (v Value) Pointer() Pointer {
	v.expect(KindPointer)
	return v.p
}

// Object returns the Object handle.
func (v Value) Object() *Object {
	v.expect(KindObject)
	return v.o
}

// ---------------------------------------------------------------------------
// Ownership
// ---------------------------------------------------------------------------

// Copy returns a Value that can be stored independently of v: arrays and
// dictionaries are deep-copied and every nested Object is retained.
func (v Value) Copy() Value {
	switch v.kind {
	case KindArray:
		out := make([]Value, len(v.a))
		for i, e := range v.a {
			out[i] = e.Copy()
		}
		return Value{kind: KindArray, a: out}
	case KindDictionary:
		return Value{kind: KindDictionary, d: v.d.Copy()}
	case KindObject:
		if v.o != nil {
			v.o.Retain()
		}
		return v
	}
	return v
}

// Release drops v's hold on every nested Object.
func (v Value) Release() {
	switch v.kind {
	case KindArray:
		for _, e := range v.a {
			e.Release()
		}
	case KindDictionary:
		v.d.release()
	case KindObject:
		if v.o != nil {
			v.o.Release()
		}
	}
}

// ---------------------------------------------------------------------------
// Equality and ordering
// ---------------------------------------------------------------------------

// Equal compares structurally. Values of different kinds are never equal.
func (v Value) Equal(w Value) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case KindNothing:
		return true
	case KindBoolean:
		return v.b == w.b
	case KindNumber:
		return number.Equal(v.n, w.n)
	case KindString:
		return v.s == w.s
	case KindBytes:
		return bytes.Equal(v.y, w.y)
	case KindArray:
		if len(v.a) != len(w.a) {
			return false
		}
		for i := range v.a {
			if !v.a[i].Equal(w.a[i]) {
				return false
			}
		}
		return true
	case KindDictionary:
		return v.d.Equal(w.d)
	case KindPointer:
		return v.p == w.p
	case KindObject:
		return v.o == w.o
	}
	return false
}

// Compare orders two values of the same orderable kind (Boolean, Number,
// String, Bytes). ok is false when the values are not comparable, which
// includes any comparison involving NaN.
func (v Value) Compare(w Value) (c int, ok bool) {
	if v.kind != w.kind {
		return 0, false
	}
	switch v.kind {
	case KindBoolean:
		switch {
		case v.b == w.b:
			return 0, true
		case !v.b:
			return -1, true
		default:
			return 1, true
		}
	case KindNumber:
		if v.n.IsNaN() || w.n.IsNaN() {
			return 0, false
		}
		return number.Cmp(v.n, w.n), true
	case KindString:
		return strings.Compare(v.s, w.s), true
	case KindBytes:
		return bytes.Compare(v.y, w.y), true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// String renders v the way print shows it. Strings print without quotes at
// the top level and quoted inside containers.
func (v Value) String() string {
	if v.kind == KindString {
		return v.s
	}
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.kind {
	case KindNothing:
		sb.WriteString("NOTHING")
	case KindBoolean:
		if v.b {
			sb.WriteString("TRUE")
		} else {
			sb.WriteString("FALSE")
		}
	case KindNumber:
		sb.WriteString(v.n.String())
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindBytes:
		sb.WriteString("HEXBYTES \"")
		for i, b := range v.y {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(hex.EncodeToString([]byte{b}))
		}
		sb.WriteByte('"')
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.a {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.format(sb)
		}
		sb.WriteByte(']')
	case KindDictionary:
		sb.WriteByte('{')
		for i, k := range v.d.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(": ")
			e, _ := v.d.Get(k)
			e.format(sb)
		}
		sb.WriteByte('}')
	case KindPointer:
		sb.WriteString(v.p.String())
	case KindObject:
		sb.WriteString(v.o.String())
	}
}
