package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/neon/number"
)

// ---------------------------------------------------------------------------
// Struct primitives: fixed-width binary encodings of Numbers
// ---------------------------------------------------------------------------

// IEEE encodings are little-endian; integer encodings are big-endian.

type intLayout struct {
	size   int
	signed bool
}

func (l intLayout) name() string {
	s := "UInt"
	if l.signed {
		s = "SInt"
	}
	return fmt.Sprintf("%s%dBE", s, l.size*8)
}

// encode range-checks n for the layout and writes it big-endian.
func (l intLayout) encode(n number.Number) ([]byte, error) {
	var u uint64
	var err error
	switch {
	case l.signed && l.size == 1:
		var x int8
		x, err = n.ToInt8()
		u = uint64(uint8(x))
	case l.signed && l.size == 2:
		var x int16
		x, err = n.ToInt16()
		u = uint64(uint16(x))
	case l.signed && l.size == 4:
		var x int32
		x, err = n.ToInt32()
		u = uint64(uint32(x))
	case l.signed:
		var x int64
		x, err = n.ToInt64()
		u = uint64(x)
	case l.size == 1:
		var x uint8
		x, err = n.ToUint8()
		u = uint64(x)
	case l.size == 2:
		var x uint16
		x, err = n.ToUint16()
		u = uint64(x)
	case l.size == 4:
		var x uint32
		x, err = n.ToUint32()
		u = uint64(x)
	default:
		u, err = n.ToUint64()
	}
	if err != nil {
		return nil, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	return buf[8-l.size:], nil
}

func (l intLayout) decode(b []byte) number.Number {
	var buf [8]byte
	copy(buf[8-l.size:], b)
	u := binary.BigEndian.Uint64(buf[:])
	if !l.signed {
		return number.FromUint64(u)
	}
	shift := uint(64 - 8*l.size)
	return number.FromInt64(int64(u<<shift) >> shift)
}

var intLayouts = []intLayout{
	{1, true}, {2, true}, {4, true}, {8, true},
	{1, false}, {2, false}, {4, false}, {8, false},
}

func popSized(s *Stack, size int) ([]byte, error) {
	b := s.PopBytes()
	if len(b) != size {
		return nil, Raise(ExcValueRange, fmt.Sprintf("expected %d bytes, found %d", size, len(b)))
	}
	return b, nil
}

func registerStructPrimitives(t *BuiltinTable) {
	t.add("struct$packIEEE32", 1, 1, func(ex *Executor) error {
		f := float32(ex.stack.PopNumber().ToFloat64())
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, math.Float32bits(f))
		ex.stack.Push(NewBytes(out))
		return nil
	})

	t.add("struct$packIEEE64", 1, 1, func(ex *Executor) error {
		f := ex.stack.PopNumber().ToFloat64()
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, math.Float64bits(f))
		ex.stack.Push(NewBytes(out))
		return nil
	})

	t.add("struct$unpackIEEE32", 1, 1, func(ex *Executor) error {
		b, err := popSized(ex.stack, 4)
		if err != nil {
			return err
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(b))
		ex.stack.Push(NewNumber(number.FromFloat64(float64(f))))
		return nil
	})

	t.add("struct$unpackIEEE64", 1, 1, func(ex *Executor) error {
		b, err := popSized(ex.stack, 8)
		if err != nil {
			return err
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(b))
		ex.stack.Push(NewNumber(number.FromFloat64(f)))
		return nil
	})

	for _, l := range intLayouts {
		l := l
		t.add("struct$pack"+l.name(), 1, 1, func(ex *Executor) error {
			n := ex.stack.PopNumber()
			b, err := l.encode(n)
			if err != nil {
				return Raise(ExcValueRange, n.String())
			}
			ex.stack.Push(NewBytes(b))
			return nil
		})
		t.add("struct$unpack"+l.name(), 1, 1, func(ex *Executor) error {
			b, err := popSized(ex.stack, l.size)
			if err != nil {
				return err
			}
			ex.stack.Push(NewNumber(l.decode(b)))
			return nil
		})
	}
}
