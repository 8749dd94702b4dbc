package vm

import (
	"math/bits"

	"github.com/chazu/neon/number"
)

// ---------------------------------------------------------------------------
// Bitwise primitives over unsigned 32 and 64 bit words
// ---------------------------------------------------------------------------

// wordWidth describes one of the two word sizes the binary$ family
// operates on. Values travel as uint64 regardless of width.
type wordWidth struct {
	bits     uint
	suffix   string
	unsigned func(number.Number) (uint64, error)
	signed   func(number.Number) (int64, error)
}

var (
	word32 = wordWidth{
		bits:   32,
		suffix: "32",
		unsigned: func(n number.Number) (uint64, error) {
			x, err := n.ToUint32()
			return uint64(x), err
		},
		signed: func(n number.Number) (int64, error) {
			x, err := n.ToInt32()
			return int64(x), err
		},
	}
	word64 = wordWidth{
		bits:     64,
		suffix:   "64",
		unsigned: func(n number.Number) (uint64, error) { return n.ToUint64() },
		signed:   func(n number.Number) (int64, error) { return n.ToInt64() },
	}
)

func (w wordWidth) mask(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<n - 1
}

func (w wordWidth) pop(s *Stack) (uint64, error) {
	n := s.PopNumber()
	x, err := w.unsigned(n)
	if err != nil {
		return 0, Raise(ExcValueRange, n.String())
	}
	return x, nil
}

// popBit pops a bit index or shift count; any uint32 is accepted and
// callers treat counts at or beyond the width specially.
func popBit(s *Stack) (uint, error) {
	n := s.PopNumber()
	b, err := n.ToUint32()
	if err != nil {
		return 0, Raise(ExcValueRange, n.String())
	}
	return uint(b), nil
}

func (w wordWidth) push(s *Stack, x uint64) {
	s.Push(NewNumber(number.FromUint64(x & w.mask(w.bits))))
}

func registerBinaryPrimitives(t *BuiltinTable) {
	for _, w := range []wordWidth{word32, word64} {
		registerBinaryWord(t, w)
	}

	// xorBytes: x, y - Bytewise xor over the shorter length
	t.add("binary$xorBytes", 2, 1, func(ex *Executor) error {
		y := ex.stack.PopBytes()
		x := ex.stack.PopBytes()
		n := len(x)
		if len(y) < n {
			n = len(y)
		}
		out := make([]byte, n)
		for i := range out {
			out[i] = x[i] ^ y[i]
		}
		ex.stack.Push(NewBytes(out))
		return nil
	})
}

func registerBinaryWord(t *BuiltinTable, w wordWidth) {
	bitwise := func(name string, op func(x, y uint64) uint64) {
		t.add("binary$"+name+w.suffix, 2, 1, func(ex *Executor) error {
			y, err := w.pop(ex.stack)
			if err != nil {
				return err
			}
			x, err := w.pop(ex.stack)
			if err != nil {
				return err
			}
			w.push(ex.stack, op(x, y))
			return nil
		})
	}
	bitwise("and", func(x, y uint64) uint64 { return x & y })
	bitwise("or", func(x, y uint64) uint64 { return x | y })
	bitwise("xor", func(x, y uint64) uint64 { return x ^ y })

	t.add("binary$not"+w.suffix, 1, 1, func(ex *Executor) error {
		x, err := w.pop(ex.stack)
		if err != nil {
			return err
		}
		w.push(ex.stack, ^x)
		return nil
	})

	t.add("binary$bitCount"+w.suffix, 1, 1, func(ex *Executor) error {
		x, err := w.pop(ex.stack)
		if err != nil {
			return err
		}
		ex.stack.Push(NewInt(int64(bits.OnesCount64(x))))
		return nil
	})

	shift := func(name string, op func(x uint64, b uint) uint64) {
		t.add("binary$"+name+w.suffix, 2, 1, func(ex *Executor) error {
			b, err := popBit(ex.stack)
			if err != nil {
				return err
			}
			x, err := w.pop(ex.stack)
			if err != nil {
				return err
			}
			if b >= w.bits {
				w.push(ex.stack, 0)
				return nil
			}
			w.push(ex.stack, op(x, b))
			return nil
		})
	}
	shift("shiftLeft", func(x uint64, b uint) uint64 { return x << b })
	shift("shiftRight", func(x uint64, b uint) uint64 { return x >> b })

	// shiftRightSigned: x, n - Arithmetic shift of a signed word
	t.add("binary$shiftRightSigned"+w.suffix, 2, 1, func(ex *Executor) error {
		b, err := popBit(ex.stack)
		if err != nil {
			return err
		}
		n := ex.stack.PopNumber()
		x, err := w.signed(n)
		if err != nil {
			return Raise(ExcValueRange, n.String())
		}
		if b >= w.bits {
			ex.stack.Push(NewInt(0))
			return nil
		}
		ex.stack.Push(NewInt(x >> b))
		return nil
	})

	t.add("binary$get"+w.suffix, 2, 1, func(ex *Executor) error {
		b, err := popBit(ex.stack)
		if err != nil {
			return err
		}
		x, err := w.pop(ex.stack)
		if err != nil {
			return err
		}
		ex.stack.Push(NewBoolean(b < w.bits && x&(1<<b) != 0))
		return nil
	})

	// set: x, n, v - x with bit n set to v
	t.add("binary$set"+w.suffix, 3, 1, func(ex *Executor) error {
		v := ex.stack.PopBoolean()
		b, err := popBit(ex.stack)
		if err != nil {
			return err
		}
		x, err := w.pop(ex.stack)
		if err != nil {
			return err
		}
		switch {
		case b >= w.bits:
		case v:
			x |= 1 << b
		default:
			x &^= 1 << b
		}
		w.push(ex.stack, x)
		return nil
	})

	// extract: x, n, width - The width bits of x starting at bit n
	t.add("binary$extract"+w.suffix, 3, 1, func(ex *Executor) error {
		width, err := popBit(ex.stack)
		if err != nil {
			return err
		}
		b, err := popBit(ex.stack)
		if err != nil {
			return err
		}
		x, err := w.pop(ex.stack)
		if err != nil {
			return err
		}
		if b >= w.bits {
			w.push(ex.stack, 0)
			return nil
		}
		if b+width > w.bits {
			return Raise(ExcValueRange, "extract width exceeds word")
		}
		w.push(ex.stack, x>>b&w.mask(width))
		return nil
	})

	// replace: x, n, width, y - x with the width bits at n replaced by y
	t.add("binary$replace"+w.suffix, 4, 1, func(ex *Executor) error {
		y, err := w.pop(ex.stack)
		if err != nil {
			return err
		}
		width, err := popBit(ex.stack)
		if err != nil {
			return err
		}
		b, err := popBit(ex.stack)
		if err != nil {
			return err
		}
		x, err := w.pop(ex.stack)
		if err != nil {
			return err
		}
		if b >= w.bits {
			w.push(ex.stack, 0)
			return nil
		}
		if b+width > w.bits {
			return Raise(ExcValueRange, "replace width exceeds word")
		}
		m := w.mask(width)
		w.push(ex.stack, x&^(m<<b)|(y&m)<<b)
		return nil
	})
}
