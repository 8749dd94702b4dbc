package number

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

// ErrRange is wrapped by every RangeError.
var ErrRange = errors.New("value out of range")

// RangeError reports a narrowing conversion whose source is not an exact
// integer inside the target domain.
type RangeError struct {
	Value  Number
	Target string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %s out of range for %s", ErrRange, e.Value, e.Target)
}

func (e *RangeError) Unwrap() error { return ErrRange }

// SyntaxError reports text that is not a decimal number.
type SyntaxError struct {
	Text string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid number %q", e.Text)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Narrowing conversions
// ---------------------------------------------------------------------------

type domain struct {
	name     string
	min, max Number
	signed   bool
}

var (
	int8Domain   = domain{"int8", FromInt64(math.MinInt8), FromInt64(math.MaxInt8), true}
	uint8Domain  = domain{"uint8", Zero(), FromInt64(math.MaxUint8), false}
	int16Domain  = domain{"int16", FromInt64(math.MinInt16), FromInt64(math.MaxInt16), true}
	uint16Domain = domain{"uint16", Zero(), FromInt64(math.MaxUint16), false}
	int32Domain  = domain{"int32", FromInt64(math.MinInt32), FromInt64(math.MaxInt32), true}
	uint32Domain = domain{"uint32", Zero(), FromInt64(math.MaxUint32), false}
	int64Domain  = domain{"int64", FromInt64(math.MinInt64), FromInt64(math.MaxInt64), true}
	uint64Domain = domain{"uint64", Zero(), FromUint64(math.MaxUint64), false}
)

// integerText returns the plain digits of an integral n, or ok=false when n
// has a fractional part or is not finite.
func integerText(n Number) (string, bool) {
	if !n.IsInteger() {
		return "", false
	}
	var r apd.Decimal
	r.Reduce(n.dec())
	if r.IsZero() {
		return "0", true
	}
	return r.Text('f'), true
}

func (dm domain) check(n Number) (string, error) {
	text, ok := integerText(n)
	if !ok || Less(n, dm.min) || Greater(n, dm.max) {
		return "", &RangeError{Value: n, Target: dm.name}
	}
	return text, nil
}

func (dm domain) signedValue(n Number) (int64, error) {
	text, err := dm.check(n)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(text, 10, 64)
}

func (dm domain) unsignedValue(n Number) (uint64, error) {
	text, err := dm.check(n)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(text, 10, 64)
}

// ToInt8 converts n to int8 or fails with a *RangeError.
func (n Number) ToInt8() (int8, error) {
	v, err := int8Domain.signedValue(n)
	return int8(v), err
}

// ToUint8 converts n to uint8 or fails with a *RangeError.
func (n Number) ToUint8() (uint8, error) {
	v, err := uint8Domain.unsignedValue(n)
	return uint8(v), err
}

// ToInt16 converts n to int16 or fails with a *RangeError.
func (n Number) ToInt16() (int16, error) {
	v, err := int16Domain.signedValue(n)
	return int16(v), err
}

// ToUint16 converts n to uint16 or fails with a *RangeError.
func (n Number) ToUint16() (uint16, error) {
	v, err := uint16Domain.unsignedValue(n)
	return uint16(v), err
}

// ToInt32 converts n to int32 or fails with a *RangeError.
func (n Number) ToInt32() (int32, error) {
	v, err := int32Domain.signedValue(n)
	return int32(v), err
}

// ToUint32 converts n to uint32 or fails with a *RangeError.
func (n Number) ToUint32() (uint32, error) {
	v, err := uint32Domain.unsignedValue(n)
	return uint32(v), err
}

// ToInt64 converts n to int64 or fails with a *RangeError.
func (n Number) ToInt64() (int64, error) {
	return int64Domain.signedValue(n)
}

// ToUint64 converts n to uint64 or fails with a *RangeError.
func (n Number) ToUint64() (uint64, error) {
	return uint64Domain.unsignedValue(n)
}

// ToInt converts n to a host int using the int64 domain.
func (n Number) ToInt() (int, error) {
	v, err := n.ToInt64()
	return int(v), err
}

// CheckBitIndex validates a shift count or bit index for a word of the
// given width: it must be an integer in [0, bits].
func CheckBitIndex(n Number, bits int) (int, error) {
	v, err := n.ToInt64()
	if err != nil || v < 0 || v > int64(bits) {
		return 0, &RangeError{Value: n, Target: fmt.Sprintf("bit index 0..%d", bits)}
	}
	return int(v), nil
}
