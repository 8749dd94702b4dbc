package vm

import "fmt"

// ---------------------------------------------------------------------------
// Argument helpers shared by the primitive families
// ---------------------------------------------------------------------------

// popInt pops a Number and converts it to int, raising ValueRangeException
// when it is not an integer in range.
func popInt(s *Stack) (int, error) {
	n := s.PopNumber()
	i, err := n.ToInt()
	if err != nil {
		return 0, Raise(ExcValueRange, n.String())
	}
	return i, nil
}

// popRange pops (first, firstFromEnd, last, lastFromEnd) pushed in that
// order.
func popRange(s *Stack) (first int, firstFromEnd bool, last int, lastFromEnd bool, err error) {
	lastFromEnd = s.PopBoolean()
	if last, err = popInt(s); err != nil {
		return
	}
	firstFromEnd = s.PopBoolean()
	first, err = popInt(s)
	return
}

// ---------------------------------------------------------------------------
// Core primitives
// ---------------------------------------------------------------------------

func registerCorePrimitives(t *BuiltinTable) {
	// print: value - Write the value's text form and a newline
	t.add("builtin$print", 1, 0, func(ex *Executor) error {
		v := ex.stack.Pop()
		defer v.Release()
		_, err := fmt.Fprintln(ex.out, v.String())
		if err != nil {
			return Raise(ExcFileIO, err.Error())
		}
		return nil
	})

	// str: number - Canonical text of a Number
	t.add("builtin$str", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewString(ex.stack.PopNumber().String()))
		return nil
	})

	t.add("builtin$number__toString", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewString(ex.stack.PopNumber().String()))
		return nil
	})

	t.add("builtin$boolean__toString", 1, 1, func(ex *Executor) error {
		if ex.stack.PopBoolean() {
			ex.stack.Push(NewString("TRUE"))
		} else {
			ex.stack.Push(NewString("FALSE"))
		}
		return nil
	})

	t.add("builtin$pointer__toString", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewString(ex.stack.Pop().Pointer().String()))
		return nil
	})

	t.add("builtin$object__isNull", 1, 1, func(ex *Executor) error {
		v := ex.stack.Pop()
		defer v.Release()
		ex.stack.Push(NewBoolean(v.Kind() != KindObject || v.Object() == nil))
		return nil
	})

	t.add("builtin$object__toString", 1, 1, func(ex *Executor) error {
		v := ex.stack.Pop()
		defer v.Release()
		ex.stack.Push(NewString(v.String()))
		return nil
	})

	// toString: value - Text form of any value
	t.add("builtin$toString", 1, 1, func(ex *Executor) error {
		v := ex.stack.Pop()
		defer v.Release()
		ex.stack.Push(NewString(v.String()))
		return nil
	})

	// kind: value - Name of the value's variant
	t.add("builtin$kind", 1, 1, func(ex *Executor) error {
		v := ex.stack.Pop()
		defer v.Release()
		ex.stack.Push(NewString(v.Kind().String()))
		return nil
	})
}
