// Package number implements the decimal number model used by the neon VM.
//
// Every Number is an IEEE 754-2008 decimal128 value: 34 significant digits,
// exponent range [-6143, 6144], rounding half-even. Arithmetic never traps;
// exceptional results become infinities or NaN, the same way the hardware
// format behaves.
package number

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// ---------------------------------------------------------------------------
// Context
// ---------------------------------------------------------------------------

// Precision is the number of significant decimal digits kept by every Number.
const Precision = 34

// decimal128 is the single arithmetic context. Traps are disabled so that
// conditions such as division by zero produce Inf/NaN instead of errors.
var decimal128 = &apd.Context{
	Precision:   Precision,
	MaxExponent: 6144,
	MinExponent: -6143,
	Traps:       0,
	Rounding:    apd.RoundHalfEven,
}

// Exponent window inside which String uses plain notation.
const (
	plainMinExponent = -20
	plainMaxExponent = 33
)

// ---------------------------------------------------------------------------
// Number
// ---------------------------------------------------------------------------

// Number is an immutable decimal value. The zero Number is 0.
type Number struct {
	d *apd.Decimal
}

var zero apd.Decimal

func (n Number) dec() *apd.Decimal {
	if n.d == nil {
		return &zero
	}
	return n.d
}

func wrap(d *apd.Decimal) Number {
	return Number{d: d}
}

// Zero returns 0.
func Zero() Number { return Number{} }

// One returns 1.
func One() Number { return FromInt64(1) }

// NaN returns a quiet NaN.
func NaN() Number {
	return wrap(&apd.Decimal{Form: apd.NaN})
}

// Inf returns positive (sign >= 0) or negative infinity.
func Inf(sign int) Number {
	return wrap(&apd.Decimal{Form: apd.Infinite, Negative: sign < 0})
}

// FromInt64 converts a host integer.
func FromInt64(x int64) Number {
	return wrap(apd.New(x, 0))
}

// FromInt converts a host int.
func FromInt(x int) Number { return FromInt64(int64(x)) }

// FromInt32 converts a 32-bit signed integer.
func FromInt32(x int32) Number { return FromInt64(int64(x)) }

// FromUint32 converts a 32-bit unsigned integer.
func FromUint32(x uint32) Number { return FromInt64(int64(x)) }

// FromUint64 converts a 64-bit unsigned integer. Values above MaxInt64
// are represented exactly.
func FromUint64(x uint64) Number {
	d, _, err := decimal128.NewFromString(strconv.FormatUint(x, 10))
	if err != nil {
		return NaN()
	}
	return wrap(d)
}

// FromFloat64 converts a binary float using its shortest decimal form.
func FromFloat64(f float64) Number {
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		return NaN()
	}
	r := new(apd.Decimal)
	decimal128.Round(r, d)
	return wrap(r)
}

// ToFloat64 converts to the nearest binary float.
func (n Number) ToFloat64() float64 {
	f, err := n.dec().Float64()
	if err != nil {
		return 0
	}
	return f
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

type binop func(d, x, y *apd.Decimal) (apd.Condition, error)

func apply(op binop, x, y Number) Number {
	d := new(apd.Decimal)
	if _, err := op(d, x.dec(), y.dec()); err != nil {
		return NaN()
	}
	return wrap(d)
}

// Add returns x + y.
func Add(x, y Number) Number { return apply(decimal128.Add, x, y) }

// Sub returns x - y.
func Sub(x, y Number) Number { return apply(decimal128.Sub, x, y) }

// Mul returns x * y.
func Mul(x, y Number) Number { return apply(decimal128.Mul, x, y) }

// Div returns x / y. A zero divisor gives a signed infinity, or NaN for 0/0.
func Div(x, y Number) Number { return apply(decimal128.Quo, x, y) }

// Mod returns the floored remainder of x / y. A non-zero result carries the
// sign of the divisor: Mod(-7, 3) = 2 and Mod(7, -3) = -2.
func Mod(x, y Number) Number {
	r := rem(x, y)
	if r.IsNaN() || r.IsZero() {
		return r
	}
	if r.IsNegative() != y.IsNegative() {
		return Add(r, y)
	}
	return r
}

// rem returns the truncated remainder of x / y. The context widens to hold
// the whole integer quotient, so large dividends stay exact.
func rem(x, y Number) Number {
	xd, yd := x.dec(), y.dec()
	ctx := decimal128
	if xd.Form == apd.Finite && yd.Form == apd.Finite && !xd.IsZero() && !yd.IsZero() {
		if gap := adjusted(xd) - adjusted(yd); gap >= Precision {
			ctx = decimal128.WithPrecision(uint32(gap) + Precision + 1)
		}
	}
	d := new(apd.Decimal)
	if _, err := ctx.Rem(d, xd, yd); err != nil {
		return NaN()
	}
	if ctx != decimal128 {
		decimal128.Round(d, d)
	}
	return wrap(d)
}

// adjusted is the exponent of the most significant digit of a finite d.
func adjusted(d *apd.Decimal) int64 {
	return int64(d.Exponent) + d.NumDigits() - 1
}

// Pow returns x raised to y.
func Pow(x, y Number) Number {
	if y.IsZero() {
		return One()
	}
	return apply(decimal128.Pow, x, y)
}

type unop func(d, x *apd.Decimal) (apd.Condition, error)

func apply1(op unop, x Number) Number {
	d := new(apd.Decimal)
	if _, err := op(d, x.dec()); err != nil {
		return NaN()
	}
	return wrap(d)
}

// Neg returns -x.
func Neg(x Number) Number { return apply1(decimal128.Neg, x) }

// Abs returns |x|.
func Abs(x Number) Number { return apply1(decimal128.Abs, x) }

// Floor rounds toward negative infinity.
func Floor(x Number) Number { return apply1(decimal128.Floor, x) }

// Ceil rounds toward positive infinity.
func Ceil(x Number) Number { return apply1(decimal128.Ceil, x) }

// Trunc rounds toward zero.
func Trunc(x Number) Number {
	if x.IsNegative() {
		return Ceil(x)
	}
	return Floor(x)
}

// Round rounds to the nearest integer, ties away from zero.
func Round(x Number) Number {
	ctx := decimal128.WithPrecision(Precision)
	ctx.Rounding = apd.RoundHalfUp
	d := new(apd.Decimal)
	if _, err := ctx.RoundToIntegralValue(d, x.dec()); err != nil {
		return NaN()
	}
	return wrap(d)
}

// Sqrt returns the square root of x.
func Sqrt(x Number) Number { return apply1(decimal128.Sqrt, x) }

// Exp returns e**x.
func Exp(x Number) Number { return apply1(decimal128.Exp, x) }

// Ln returns the natural logarithm of x.
func Ln(x Number) Number { return apply1(decimal128.Ln, x) }

// Log10 returns the base 10 logarithm of x.
func Log10(x Number) Number { return apply1(decimal128.Log10, x) }

// ---------------------------------------------------------------------------
// Comparison and predicates
// ---------------------------------------------------------------------------

// Cmp returns -1, 0 or +1. The ordering of NaN against anything is
// unspecified; use the relational helpers when NaN may be involved.
func Cmp(x, y Number) int {
	return x.dec().Cmp(y.dec())
}

func ordered(x, y Number) bool {
	return !x.IsNaN() && !y.IsNaN()
}

// Equal reports x == y. NaN is unequal to everything, itself included.
func Equal(x, y Number) bool { return ordered(x, y) && Cmp(x, y) == 0 }

// NotEqual reports x != y.
func NotEqual(x, y Number) bool { return !Equal(x, y) }

// Less reports x < y.
func Less(x, y Number) bool { return ordered(x, y) && Cmp(x, y) < 0 }

// Greater reports x > y.
func Greater(x, y Number) bool { return ordered(x, y) && Cmp(x, y) > 0 }

// LessEqual reports x <= y.
func LessEqual(x, y Number) bool { return ordered(x, y) && Cmp(x, y) <= 0 }

// GreaterEqual reports x >= y.
func GreaterEqual(x, y Number) bool { return ordered(x, y) && Cmp(x, y) >= 0 }

// IsZero reports whether n is zero of either sign.
func (n Number) IsZero() bool {
	d := n.dec()
	return d.Form == apd.Finite && d.IsZero()
}

// IsNaN reports whether n is NaN.
func (n Number) IsNaN() bool {
	f := n.dec().Form
	return f == apd.NaN || f == apd.NaNSignaling
}

// IsInf reports whether n is an infinity.
func (n Number) IsInf() bool { return n.dec().Form == apd.Infinite }

// IsNegative reports whether n is below zero. -0 and NaN are not negative.
func (n Number) IsNegative() bool {
	d := n.dec()
	if n.IsNaN() || n.IsZero() {
		return false
	}
	return d.Negative
}

// IsInteger reports whether n is finite with no fractional part.
func (n Number) IsInteger() bool {
	d := n.dec()
	if d.Form != apd.Finite {
		return false
	}
	if d.Exponent >= 0 {
		return true
	}
	var r apd.Decimal
	r.Reduce(d)
	return r.Exponent >= 0
}

// IsOdd reports whether n is an odd integer. Any integer with a positive
// reduced exponent is a multiple of ten and so even.
func (n Number) IsOdd() bool {
	if !n.IsInteger() || n.IsZero() {
		return false
	}
	var r apd.Decimal
	r.Reduce(n.dec())
	if r.Exponent > 0 {
		return false
	}
	digits := r.Coeff.String()
	return (digits[len(digits)-1]-'0')%2 == 1
}

// Sign returns -1, 0 or +1. NaN has sign 0.
func (n Number) Sign() int {
	if n.IsNaN() {
		return 0
	}
	return n.dec().Sign()
}

// ---------------------------------------------------------------------------
// Text
// ---------------------------------------------------------------------------

// String returns the canonical text form: no trailing zeros, no exponent
// for moderately sized values, and scientific notation otherwise.
func (n Number) String() string {
	d := n.dec()
	switch d.Form {
	case apd.NaN, apd.NaNSignaling:
		return "NaN"
	case apd.Infinite:
		if d.Negative {
			return "-Infinity"
		}
		return "Infinity"
	}
	if d.IsZero() {
		return "0"
	}

	var r apd.Decimal
	r.Reduce(d)
	digits := r.Coeff.String()
	adjusted := int(r.Exponent) + len(digits) - 1

	var sb strings.Builder
	if r.Negative {
		sb.WriteByte('-')
	}
	if adjusted >= plainMinExponent && adjusted <= plainMaxExponent {
		r.Negative = false
		sb.WriteString(r.Text('f'))
		return sb.String()
	}

	sb.WriteByte(digits[0])
	if len(digits) > 1 {
		sb.WriteByte('.')
		sb.WriteString(digits[1:])
	}
	sb.WriteByte('e')
	if adjusted < 0 {
		sb.WriteByte('-')
		adjusted = -adjusted
	}
	sb.WriteString(strconv.Itoa(adjusted))
	return sb.String()
}

// Parse converts decimal text to a Number, rounding to 34 digits.
func Parse(s string) (Number, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return Number{}, &SyntaxError{Text: s}
	}
	d, _, err := decimal128.NewFromString(text)
	if err != nil {
		return Number{}, &SyntaxError{Text: s, Err: err}
	}
	return wrap(d), nil
}

// MustParse is like Parse but panics on malformed input. It is intended for
// constants in tests and builtin tables.
func MustParse(s string) Number {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}
