package vm

import (
	"strings"

	"github.com/chazu/neon/number"
)

// ---------------------------------------------------------------------------
// String primitives
// ---------------------------------------------------------------------------

func registerStringPrimitives(t *BuiltinTable) {
	t.add("builtin$string__length", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewInt(int64(StringLength(ex.stack.PopString()))))
		return nil
	})

	// index: s, i - Code point at offset i
	t.add("builtin$string__index", 2, 1, func(ex *Executor) error {
		n := ex.stack.PopNumber()
		s := ex.stack.PopString()
		i, err := n.ToInt()
		if err != nil {
			return Raise(ExcValueRange, n.String())
		}
		r, ok := StringIndex(s, i)
		if !ok {
			return Raise(ExcArrayIndex, n.String())
		}
		ex.stack.Push(NewString(r))
		return nil
	})

	t.add("builtin$string__substring", 5, 1, func(ex *Executor) error {
		first, ff, last, lf, err := popRange(ex.stack)
		if err != nil {
			return err
		}
		s := ex.stack.PopString()
		ex.stack.Push(NewString(StringSubstring(s, first, ff, last, lf)))
		return nil
	})

	t.add("builtin$string__splice", 6, 1, func(ex *Executor) error {
		first, ff, last, lf, err := popRange(ex.stack)
		if err != nil {
			return err
		}
		s := ex.stack.PopString()
		repl := ex.stack.PopString()
		ex.stack.Push(NewString(StringSplice(s, repl, first, ff, last, lf)))
		return nil
	})

	t.add("builtin$string__concat", 2, 1, func(ex *Executor) error {
		b := ex.stack.PopString()
		a := ex.stack.PopString()
		ex.stack.Push(NewString(a + b))
		return nil
	})

	t.add("builtin$string__append", 2, 1, func(ex *Executor) error {
		b := ex.stack.PopString()
		a := ex.stack.PopString()
		var sb strings.Builder
		sb.Grow(len(a) + len(b))
		sb.WriteString(a)
		sb.WriteString(b)
		ex.stack.Push(NewString(sb.String()))
		return nil
	})

	t.add("builtin$string__encodeUTF8", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewBytes([]byte(ex.stack.PopString())))
		return nil
	})

	// toNumber: s - Parse decimal text, raising ValueRangeException on
	// malformed input
	t.add("builtin$string__toNumber", 1, 1, func(ex *Executor) error {
		s := ex.stack.PopString()
		n, err := number.Parse(s)
		if err != nil {
			return Raise(ExcValueRange, s)
		}
		ex.stack.Push(NewNumber(n))
		return nil
	})

	t.add("builtin$string__toUpper", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewString(strings.ToUpper(ex.stack.PopString())))
		return nil
	})

	t.add("builtin$string__toLower", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewString(strings.ToLower(ex.stack.PopString())))
		return nil
	})

	t.add("builtin$string__trim", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewString(strings.TrimSpace(ex.stack.PopString())))
		return nil
	})

	// find: s, target - Code point offset of target in s, or -1
	t.add("builtin$string__find", 2, 1, func(ex *Executor) error {
		target := ex.stack.PopString()
		s := ex.stack.PopString()
		i := strings.Index(s, target)
		if i >= 0 {
			i = StringLength(s[:i])
		}
		ex.stack.Push(NewInt(int64(i)))
		return nil
	})

	// split: s, sep - Array of the pieces
	t.add("builtin$string__split", 2, 1, func(ex *Executor) error {
		sep := ex.stack.PopString()
		s := ex.stack.PopString()
		parts := strings.Split(s, sep)
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = NewString(p)
		}
		ex.stack.Push(NewArray(out))
		return nil
	})
}
