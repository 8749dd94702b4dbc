package vm

import "testing"

func TestArrayPrimitives(t *testing.T) {
	a := func() Value { return NewArray(ints(1, 2, 3, 4)) }
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"builtin$array__append", []Value{a(), NewString("x")}, `[1, 2, 3, 4, "x"]`},
		{"builtin$array__extend", []Value{a(), NewArray(ints(5))}, "[1, 2, 3, 4, 5]"},
		{"builtin$array__resize", []Value{a(), NewInt(2)}, "[1, 2]"},
		{"builtin$array__resize", []Value{NewArray(nil), NewInt(2)}, "[NOTHING, NOTHING]"},
		{"builtin$array__size", []Value{a()}, "4"},
		{"builtin$array__slice", append([]Value{a()}, rangeArgs(1, false, -1, true)...), "[2, 3]"},
		{"builtin$array__splice", append([]Value{NewArray(ints(9)), a()}, rangeArgs(0, false, 1, false)...), "[9, 3, 4]"},
		{"builtin$array__remove", []Value{a(), NewInt(0)}, "[2, 3, 4]"},
		{"builtin$array__find", []Value{a(), NewInt(3)}, "2"},
		{"builtin$array__reversed", []Value{a()}, "[4, 3, 2, 1]"},
		{"builtin$array__range", []Value{NewInt(1), NewInt(3), NewInt(1)}, "[1, 2, 3]"},
		{"builtin$array__range", []Value{NewInt(3), NewInt(0), NewInt(-2)}, "[3, 1]"},
		{"builtin$array__range", []Value{num("0"), num("1"), num("0.5")}, "[0, 0.5, 1]"},
		{"builtin$array__toBytes", []Value{NewArray(ints(0, 255))}, `HEXBYTES "00 ff"`},
	}
	for _, tt := range tests {
		got, err := callBuiltin(t, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got[0].String() != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, got[0], tt.want)
		}
	}
}

func TestArrayPrimitiveErrors(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"builtin$array__resize", []Value{NewArray(nil), NewInt(-1)}, ExcValueRange},
		{"builtin$array__remove", []Value{NewArray(ints(1)), NewInt(1)}, ExcArrayIndex},
		{"builtin$array__remove", []Value{NewArray(ints(1)), num("0.5")}, ExcArrayIndex},
		{"builtin$array__find", []Value{NewArray(ints(1)), NewInt(2)}, ExcArrayIndex},
		{"builtin$array__range", []Value{NewInt(1), NewInt(2), NewInt(0)}, ExcValueRange},
		{"builtin$array__toBytes", []Value{NewArray(ints(256))}, ExcValueRange},
	}
	for _, tt := range tests {
		_, err := callBuiltin(t, tt.name, tt.args...)
		wantRaised(t, err, tt.want)
	}
}

func TestBytesPrimitives(t *testing.T) {
	b := func() Value { return NewBytes([]byte("hello")) }
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"builtin$bytes__size", []Value{b()}, "5"},
		{"builtin$bytes__range", append([]Value{b()}, rangeArgs(1, false, 2, false)...), `HEXBYTES "65 6c"`},
		{"builtin$bytes__splice", append([]Value{NewBytes([]byte("J")), b()}, rangeArgs(0, false, 0, false)...), `HEXBYTES "4a 65 6c 6c 6f"`},
		{"builtin$bytes__decodeUTF8", []Value{b()}, "hello"},
		{"builtin$bytes__toArray", []Value{NewBytes([]byte{1, 200})}, "[1, 200]"},
		{"builtin$bytes__concat", []Value{NewBytes([]byte{1}), NewBytes([]byte{2})}, `HEXBYTES "01 02"`},
	}
	for _, tt := range tests {
		got, err := callBuiltin(t, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got[0].String() != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, got[0], tt.want)
		}
	}

	_, err := callBuiltin(t, "builtin$bytes__decodeUTF8", NewBytes([]byte{0xc3}))
	wantRaised(t, err, ExcUTF8Decoding)
}
