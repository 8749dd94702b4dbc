package vm

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/chazu/neon/number"
)

// callBuiltin pushes args in order, invokes the named standard builtin and
// pops its declared results.
func callBuiltin(t *testing.T, name string, args ...Value) ([]Value, error) {
	t.Helper()
	ex := NewExecutor(DefaultConfig(), WithOutput(io.Discard))
	defer ex.Close()
	return callOn(t, ex, name, args...)
}

func callOn(t *testing.T, ex *Executor, name string, args ...Value) ([]Value, error) {
	t.Helper()
	i, ok := ex.Builtins().Lookup(name)
	if !ok {
		t.Fatalf("builtin %s not registered", name)
	}
	b, _ := ex.Builtins().Entry(i)
	for _, a := range args {
		ex.Stack().Push(a)
	}
	if err := ex.Builtins().Call(ex, i); err != nil {
		ex.Stack().Truncate(0)
		return nil, err
	}
	return ex.Stack().PopN(b.Results), nil
}

func num(s string) Value { return NewNumber(number.MustParse(s)) }

func wantRaised(t *testing.T, err error, name string) {
	t.Helper()
	var re *RaisedException
	if !errors.As(err, &re) || re.Name != name {
		t.Errorf("err = %v, want %s", err, name)
	}
}

// ---------------------------------------------------------------------------
// Table mechanics
// ---------------------------------------------------------------------------

func TestBuiltinTableRegistration(t *testing.T) {
	tbl := NewBuiltinTable()
	noop := func(*Executor) error { return nil }

	i, err := tbl.Register("a", 0, 0, noop)
	if err != nil || i != 0 {
		t.Fatalf("Register(a) = %d, %v", i, err)
	}
	if j, _ := tbl.Register("b", 1, 1, noop); j != 1 {
		t.Errorf("second index = %d, want 1", j)
	}
	if _, err := tbl.Register("a", 0, 0, noop); err == nil {
		t.Error("duplicate name accepted")
	}
	if _, err := tbl.Register("c", -1, 0, noop); err == nil {
		t.Error("negative arity accepted")
	}

	clone := tbl.Clone()
	tbl.Freeze()
	if _, err := tbl.Register("d", 0, 0, noop); err == nil || !strings.Contains(err.Error(), "frozen") {
		t.Errorf("Register on frozen table: %v", err)
	}
	if clone.Frozen() {
		t.Error("clone inherited frozen state")
	}
	if k, err := clone.Register("d", 0, 0, noop); err != nil || k != 2 {
		t.Errorf("clone Register = %d, %v", k, err)
	}
	if tbl.Len() != 2 || clone.Len() != 3 {
		t.Errorf("Len: table=%d clone=%d", tbl.Len(), clone.Len())
	}
	if names := clone.Names(); strings.Join(names, ",") != "a,b,d" {
		t.Errorf("Names = %v", names)
	}
}

func TestDefaultBuiltinsFrozen(t *testing.T) {
	d := DefaultBuiltins()
	if !d.Frozen() {
		t.Error("DefaultBuiltins should be frozen")
	}
	if DefaultBuiltins() != d {
		t.Error("DefaultBuiltins should return the shared table")
	}
	for _, name := range []string{"builtin$print", "binary$and32", "struct$packIEEE64", "sqlite$exec", "hash$sha3"} {
		if _, ok := d.Lookup(name); !ok {
			t.Errorf("%s missing from the standard table", name)
		}
	}
}

func TestCustomBuiltinThroughCallP(t *testing.T) {
	tbl := DefaultBuiltins().Clone()
	idx, err := tbl.Register("test$twice", 1, 1, func(ex *Executor) error {
		n := ex.Stack().PopNumber()
		ex.Stack().Push(NewNumber(number.Add(n, n)))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	c := newCode()
	c.pushI(21)
	c.EmitUint16(OpCallP, uint16(idx))
	c.Emit(OpHALT)
	v, err, _ := run(t, c.module(), WithBuiltins(tbl))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantNumber(t, v, "42")
}

// ---------------------------------------------------------------------------
// binary$
// ---------------------------------------------------------------------------

func TestBinaryPrimitives(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"binary$and32", []Value{NewInt(12), NewInt(10)}, "8"},
		{"binary$or32", []Value{NewInt(12), NewInt(10)}, "14"},
		{"binary$xor32", []Value{NewInt(12), NewInt(10)}, "6"},
		{"binary$not32", []Value{NewInt(0)}, "4294967295"},
		{"binary$not64", []Value{NewInt(0)}, "18446744073709551615"},
		{"binary$bitCount32", []Value{NewInt(255)}, "8"},
		{"binary$shiftLeft32", []Value{NewInt(1), NewInt(31)}, "2147483648"},
		{"binary$shiftLeft32", []Value{NewInt(1), NewInt(32)}, "0"},
		{"binary$shiftLeft32", []Value{num("4294967295"), NewInt(4)}, "4294967280"},
		{"binary$shiftRight64", []Value{NewInt(256), NewInt(4)}, "16"},
		{"binary$shiftRightSigned32", []Value{NewInt(-16), NewInt(2)}, "-4"},
		{"binary$shiftRightSigned32", []Value{NewInt(-16), NewInt(40)}, "0"},
		{"binary$extract32", []Value{NewInt(0xf0), NewInt(4), NewInt(4)}, "15"},
		{"binary$extract32", []Value{NewInt(0xf0), NewInt(40), NewInt(4)}, "0"},
		{"binary$replace32", []Value{NewInt(0xff), NewInt(0), NewInt(4), NewInt(0)}, "240"},
		{"binary$set32", []Value{NewInt(0), NewInt(3), NewBoolean(true)}, "8"},
		{"binary$set32", []Value{NewInt(8), NewInt(3), NewBoolean(false)}, "0"},
		{"binary$set32", []Value{NewInt(8), NewInt(33), NewBoolean(true)}, "8"},
	}
	for _, tt := range tests {
		got, err := callBuiltin(t, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s%v: %v", tt.name, tt.args, err)
			continue
		}
		if got[0].String() != tt.want {
			t.Errorf("%s%v = %s, want %s", tt.name, tt.args, got[0], tt.want)
		}
	}
}

func TestBinaryGet(t *testing.T) {
	got, _ := callBuiltin(t, "binary$get32", NewInt(4), NewInt(2))
	if !got[0].Boolean() {
		t.Error("bit 2 of 4 should be set")
	}
	got, _ = callBuiltin(t, "binary$get64", NewInt(4), NewInt(64))
	if got[0].Boolean() {
		t.Error("bit 64 should read false")
	}
}

func TestBinaryRangeErrors(t *testing.T) {
	tests := []struct {
		name string
		args []Value
	}{
		{"binary$and32", []Value{num("4294967296"), NewInt(1)}},
		{"binary$or64", []Value{NewInt(-1), NewInt(1)}},
		{"binary$and32", []Value{num("1.5"), NewInt(1)}},
		{"binary$extract32", []Value{NewInt(1), NewInt(30), NewInt(4)}},
		{"binary$shiftLeft32", []Value{NewInt(1), NewInt(-1)}},
	}
	for _, tt := range tests {
		_, err := callBuiltin(t, tt.name, tt.args...)
		wantRaised(t, err, ExcValueRange)
	}
}

func TestBinaryXorBytes(t *testing.T) {
	got, err := callBuiltin(t, "binary$xorBytes", NewBytes([]byte{0xff, 0x0f, 0x01}), NewBytes([]byte{0x0f, 0x0f}))
	if err != nil {
		t.Fatal(err)
	}
	if b := got[0].Bytes(); string(b) != "\xf0\x00" {
		t.Errorf("xorBytes = % x", b)
	}
}

// ---------------------------------------------------------------------------
// struct$
// ---------------------------------------------------------------------------

func TestStructIntegerPacking(t *testing.T) {
	tests := []struct {
		layout string
		in     string
		bytes  string
	}{
		{"SInt8BE", "-1", "\xff"},
		{"UInt8BE", "255", "\xff"},
		{"SInt16BE", "-2", "\xff\xfe"},
		{"UInt16BE", "258", "\x01\x02"},
		{"SInt32BE", "-2147483648", "\x80\x00\x00\x00"},
		{"UInt32BE", "4294967295", "\xff\xff\xff\xff"},
		{"SInt64BE", "-1", "\xff\xff\xff\xff\xff\xff\xff\xff"},
		{"UInt64BE", "18446744073709551615", "\xff\xff\xff\xff\xff\xff\xff\xff"},
	}
	for _, tt := range tests {
		packed, err := callBuiltin(t, "struct$pack"+tt.layout, num(tt.in))
		if err != nil {
			t.Errorf("pack%s(%s): %v", tt.layout, tt.in, err)
			continue
		}
		if string(packed[0].Bytes()) != tt.bytes {
			t.Errorf("pack%s(%s) = % x", tt.layout, tt.in, packed[0].Bytes())
		}
		unpacked, err := callBuiltin(t, "struct$unpack"+tt.layout, packed[0])
		if err != nil || unpacked[0].String() != tt.in {
			t.Errorf("unpack%s = %v, %v; want %s", tt.layout, unpacked, err, tt.in)
		}
	}
}

func TestStructPackOutOfRange(t *testing.T) {
	for _, tc := range []struct{ layout, in string }{
		{"SInt8BE", "128"},
		{"UInt8BE", "-1"},
		{"UInt16BE", "65536"},
		{"SInt32BE", "2.5"},
	} {
		_, err := callBuiltin(t, "struct$pack"+tc.layout, num(tc.in))
		wantRaised(t, err, ExcValueRange)
	}
	_, err := callBuiltin(t, "struct$unpackUInt32BE", NewBytes([]byte{1, 2}))
	wantRaised(t, err, ExcValueRange)
}

func TestStructIEEE(t *testing.T) {
	packed, err := callBuiltin(t, "struct$packIEEE64", num("1.5"))
	if err != nil {
		t.Fatal(err)
	}
	// little-endian 0x3ff8000000000000
	if b := packed[0].Bytes(); string(b) != "\x00\x00\x00\x00\x00\x00\xf8\x3f" {
		t.Errorf("packIEEE64(1.5) = % x", b)
	}
	back, _ := callBuiltin(t, "struct$unpackIEEE64", packed[0])
	if back[0].String() != "1.5" {
		t.Errorf("unpackIEEE64 = %s", back[0])
	}

	packed, _ = callBuiltin(t, "struct$packIEEE32", num("0.5"))
	if b := packed[0].Bytes(); string(b) != "\x00\x00\x00\x3f" {
		t.Errorf("packIEEE32(0.5) = % x", b)
	}
	back, _ = callBuiltin(t, "struct$unpackIEEE32", packed[0])
	if back[0].String() != "0.5" {
		t.Errorf("unpackIEEE32 = %s", back[0])
	}
}

// ---------------------------------------------------------------------------
// math$
// ---------------------------------------------------------------------------

func TestMathPrimitives(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"math$abs", []Value{num("-2.5")}, "2.5"},
		{"math$floor", []Value{num("-2.5")}, "-3"},
		{"math$ceil", []Value{num("2.1")}, "3"},
		{"math$trunc", []Value{num("-2.7")}, "-2"},
		{"math$sqrt", []Value{num("16")}, "4"},
		{"math$sign", []Value{num("-0.1")}, "-1"},
		{"math$intdiv", []Value{NewInt(-7), NewInt(2)}, "-3"},
		{"math$odd", []Value{NewInt(7)}, "TRUE"},
	}
	for _, tt := range tests {
		got, err := callBuiltin(t, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got[0].String() != tt.want {
			t.Errorf("%s%v = %s, want %s", tt.name, tt.args, got[0], tt.want)
		}
	}

	_, err := callBuiltin(t, "math$sqrt", NewInt(-1))
	wantRaised(t, err, ExcValueRange)
	_, err = callBuiltin(t, "math$odd", num("1.5"))
	wantRaised(t, err, ExcValueRange)
	_, err = callBuiltin(t, "math$intdiv", NewInt(1), NewInt(0))
	wantRaised(t, err, ExcDivideByZero)
}

// ---------------------------------------------------------------------------
// hash$
// ---------------------------------------------------------------------------

func TestHashPrimitives(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"hash$md5", "900150983cd24fb0d6963f7d28e17f72"},
		{"hash$sha1", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"hash$sha256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"hash$sha3", "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"},
	}
	for _, tt := range tests {
		got, err := callBuiltin(t, tt.name, NewString("abc"))
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got[0].Str() != tt.want {
			t.Errorf("%s(abc) = %s, want %s", tt.name, got[0].Str(), tt.want)
		}
		raw, _ := callBuiltin(t, tt.name+"Raw", NewBytes([]byte("abc")))
		if len(raw[0].Bytes())*2 != len(tt.want) {
			t.Errorf("%sRaw length = %d", tt.name, len(raw[0].Bytes()))
		}
	}
	_, err := callBuiltin(t, "hash$md5", NewInt(1))
	wantRaised(t, err, ExcInvalidValue)
}

// ---------------------------------------------------------------------------
// sys$ and runtime$
// ---------------------------------------------------------------------------

func TestSysGetenv(t *testing.T) {
	t.Setenv("NEON_TEST_VAR", "yes")
	got, _ := callBuiltin(t, "sys$getenv", NewString("NEON_TEST_VAR"))
	if got[0].Str() != "yes" || !got[1].Boolean() {
		t.Errorf("getenv = %v, %v", got[0], got[1])
	}
	got, _ = callBuiltin(t, "sys$getenv", NewString("NEON_TEST_VAR_UNSET"))
	if got[1].Boolean() {
		t.Error("unset variable reported present")
	}
}

func TestSysExitRange(t *testing.T) {
	_, err := callBuiltin(t, "sys$exit", NewInt(256))
	wantRaised(t, err, ExcValueRange)
	_, err = callBuiltin(t, "sys$exit", NewInt(0))
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code != 0 {
		t.Errorf("err = %v, want exit 0", err)
	}
}

func TestRuntimeIntrospection(t *testing.T) {
	c := newCode()
	fn := c.NewLabel()
	c.EmitJump(OpCallF, fn)
	c.callP(t, "runtime$moduleIsMain")
	c.EmitUint16(OpConsA, 3)
	c.Emit(OpHALT)
	c.Mark(fn)
	c.callP(t, "runtime$executorDepth")
	c.EmitUint16(OpAlloc, 1)
	c.Emit(OpDROP)
	c.callP(t, "runtime$liveRecords")
	c.Emit(OpRet)

	v, err, _ := run(t, c.module())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := v.String(); got != "[2, 1, TRUE]" {
		t.Errorf("result = %s, want [2, 1, TRUE]", got)
	}
}
