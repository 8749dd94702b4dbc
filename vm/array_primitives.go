package vm

import (
	"unicode/utf8"

	"github.com/chazu/neon/number"
)

// ---------------------------------------------------------------------------
// Array primitives
// ---------------------------------------------------------------------------

func registerArrayPrimitives(t *BuiltinTable) {
	// append: a, v - a with v added at the end
	t.add("builtin$array__append", 2, 1, func(ex *Executor) error {
		v := ex.stack.Pop()
		a := ex.stack.PopArray()
		ex.stack.Push(NewArray(ArrayAppend(a, v)))
		return nil
	})

	// extend: a, b - a followed by the elements of b
	t.add("builtin$array__extend", 2, 1, func(ex *Executor) error {
		b := ex.stack.PopArray()
		a := ex.stack.PopArray()
		ex.stack.Push(NewArray(ArrayExtend(a, b)))
		return nil
	})

	t.add("builtin$array__resize", 2, 1, func(ex *Executor) error {
		n, err := popInt(ex.stack)
		if err != nil {
			return err
		}
		a := ex.stack.PopArray()
		if n < 0 {
			NewArray(a).Release()
			return Raise(ExcValueRange, number.FromInt(n).String())
		}
		ex.stack.Push(NewArray(ArrayResize(a, n)))
		return nil
	})

	t.add("builtin$array__size", 1, 1, func(ex *Executor) error {
		v := ex.stack.Pop()
		defer v.Release()
		ex.stack.Push(NewInt(int64(len(v.Array()))))
		return nil
	})

	t.add("builtin$array__slice", 5, 1, func(ex *Executor) error {
		first, ff, last, lf, err := popRange(ex.stack)
		if err != nil {
			return err
		}
		v := ex.stack.Pop()
		defer v.Release()
		ex.stack.Push(NewArray(ArraySlice(v.Array(), first, ff, last, lf)))
		return nil
	})

	// splice: repl, a, first, ff, last, lf - a with the range replaced
	t.add("builtin$array__splice", 6, 1, func(ex *Executor) error {
		first, ff, last, lf, err := popRange(ex.stack)
		if err != nil {
			return err
		}
		a := ex.stack.PopArray()
		repl := ex.stack.Pop()
		defer repl.Release()
		ex.stack.Push(NewArray(ArraySplice(a, repl.Array(), first, ff, last, lf)))
		return nil
	})

	t.add("builtin$array__remove", 2, 1, func(ex *Executor) error {
		n := ex.stack.PopNumber()
		a := ex.stack.PopArray()
		i, err := arrayIndex(n)
		if err == nil && i >= len(a) {
			err = Raise(ExcArrayIndex, n.String())
		}
		if err != nil {
			NewArray(a).Release()
			return err
		}
		ex.stack.Push(NewArray(ArrayRemove(a, i)))
		return nil
	})

	// find: a, v - index of the first element equal to v; raises
	// ArrayIndexException when absent
	t.add("builtin$array__find", 2, 1, func(ex *Executor) error {
		v := ex.stack.Pop()
		a := ex.stack.Pop()
		defer v.Release()
		defer a.Release()
		i := ArrayFind(a.Array(), v)
		if i < 0 {
			return Raise(ExcArrayIndex, "value not found in array")
		}
		ex.stack.Push(NewInt(int64(i)))
		return nil
	})

	t.add("builtin$array__reversed", 1, 1, func(ex *Executor) error {
		a := ex.stack.Pop()
		defer a.Release()
		ex.stack.Push(NewArray(ArrayReversed(a.Array())))
		return nil
	})

	// range: first, last, step - Numbers from first through last
	t.add("builtin$array__range", 3, 1, func(ex *Executor) error {
		step := ex.stack.PopNumber()
		last := ex.stack.PopNumber()
		first := ex.stack.PopNumber()
		if step.IsZero() || step.IsNaN() {
			return Raise(ExcValueRange, step.String())
		}
		var out []Value
		for x := first; ; x = number.Add(x, step) {
			if step.IsNegative() && number.Less(x, last) || !step.IsNegative() && number.Greater(x, last) {
				break
			}
			out = append(out, NewNumber(x))
		}
		ex.stack.Push(NewArray(out))
		return nil
	})

	// toBytes: a - Bytes from an Array of Numbers in 0..255
	t.add("builtin$array__toBytes", 1, 1, func(ex *Executor) error {
		a := ex.stack.Pop()
		defer a.Release()
		elems := a.Array()
		out := make([]byte, len(elems))
		for i, e := range elems {
			b, err := e.Number().ToUint8()
			if err != nil {
				return Raise(ExcValueRange, e.Number().String())
			}
			out[i] = b
		}
		ex.stack.Push(NewBytes(out))
		return nil
	})
}

// ---------------------------------------------------------------------------
// Bytes primitives
// ---------------------------------------------------------------------------

func registerBytesPrimitives(t *BuiltinTable) {
	t.add("builtin$bytes__size", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewInt(int64(len(ex.stack.PopBytes()))))
		return nil
	})

	t.add("builtin$bytes__range", 5, 1, func(ex *Executor) error {
		first, ff, last, lf, err := popRange(ex.stack)
		if err != nil {
			return err
		}
		b := ex.stack.PopBytes()
		ex.stack.Push(NewBytes(BytesRange(b, first, ff, last, lf)))
		return nil
	})

	t.add("builtin$bytes__splice", 6, 1, func(ex *Executor) error {
		first, ff, last, lf, err := popRange(ex.stack)
		if err != nil {
			return err
		}
		b := ex.stack.PopBytes()
		repl := ex.stack.PopBytes()
		ex.stack.Push(NewBytes(BytesSplice(b, repl, first, ff, last, lf)))
		return nil
	})

	t.add("builtin$bytes__decodeUTF8", 1, 1, func(ex *Executor) error {
		b := ex.stack.PopBytes()
		if !utf8.Valid(b) {
			return Raise(ExcUTF8Decoding, "invalid UTF-8 sequence")
		}
		ex.stack.Push(NewString(string(b)))
		return nil
	})

	t.add("builtin$bytes__toArray", 1, 1, func(ex *Executor) error {
		b := ex.stack.PopBytes()
		out := make([]Value, len(b))
		for i, c := range b {
			out[i] = NewInt(int64(c))
		}
		ex.stack.Push(NewArray(out))
		return nil
	})

	t.add("builtin$bytes__concat", 2, 1, func(ex *Executor) error {
		b := ex.stack.PopBytes()
		a := ex.stack.PopBytes()
		out := make([]byte, 0, len(a)+len(b))
		ex.stack.Push(NewBytes(append(append(out, a...), b...)))
		return nil
	})
}
