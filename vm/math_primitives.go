package vm

import "github.com/chazu/neon/number"

// ---------------------------------------------------------------------------
// Math primitives
// ---------------------------------------------------------------------------

func registerMathPrimitives(t *BuiltinTable) {
	unary := func(name string, fn func(number.Number) number.Number) {
		t.add("math$"+name, 1, 1, func(ex *Executor) error {
			ex.stack.Push(NewNumber(fn(ex.stack.PopNumber())))
			return nil
		})
	}
	unary("abs", number.Abs)
	unary("floor", number.Floor)
	unary("ceil", number.Ceil)
	unary("trunc", number.Trunc)
	unary("round", number.Round)
	unary("exp", number.Exp)
	unary("log10", number.Log10)

	// sqrt and log are undefined for negative input
	t.add("math$sqrt", 1, 1, func(ex *Executor) error {
		x := ex.stack.PopNumber()
		if x.IsNegative() {
			return Raise(ExcValueRange, x.String())
		}
		ex.stack.Push(NewNumber(number.Sqrt(x)))
		return nil
	})

	t.add("math$log", 1, 1, func(ex *Executor) error {
		x := ex.stack.PopNumber()
		if x.IsNegative() {
			return Raise(ExcValueRange, x.String())
		}
		ex.stack.Push(NewNumber(number.Ln(x)))
		return nil
	})

	t.add("math$odd", 1, 1, func(ex *Executor) error {
		x := ex.stack.PopNumber()
		if !x.IsInteger() {
			return Raise(ExcValueRange, "odd() requires integer: "+x.String())
		}
		ex.stack.Push(NewBoolean(x.IsOdd()))
		return nil
	})

	t.add("math$sign", 1, 1, func(ex *Executor) error {
		ex.stack.Push(NewInt(int64(ex.stack.PopNumber().Sign())))
		return nil
	})

	t.add("math$intdiv", 2, 1, func(ex *Executor) error {
		y := ex.stack.PopNumber()
		x := ex.stack.PopNumber()
		if y.IsZero() {
			return Raise(ExcDivideByZero, "")
		}
		ex.stack.Push(NewNumber(number.Trunc(number.Div(x, y))))
		return nil
	})
}
