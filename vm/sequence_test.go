package vm

import "testing"

func ints(ns ...int64) []Value {
	out := make([]Value, len(ns))
	for i, n := range ns {
		out[i] = NewInt(n)
	}
	return out
}

func TestResolveRange(t *testing.T) {
	tests := []struct {
		size           int
		first          int
		ff             bool
		last           int
		lf             bool
		wantLo, wantHi int
	}{
		{5, 1, false, 3, false, 1, 4},
		{5, 0, false, 0, true, 0, 5},   // whole array
		{5, -1, true, 0, true, 3, 5},   // last two
		{5, 0, true, 0, true, 4, 5},    // last element
		{5, 3, false, 1, false, 3, 3},  // crossed: empty
		{5, -4, false, 2, false, 0, 3}, // first clamped
		{5, 2, false, 99, false, 2, 5}, // last clamped
		{5, 9, false, 12, false, 5, 5}, // past the end
		{0, 0, false, 0, true, 0, 0},   // empty sequence
		{5, 0, false, -9, true, 0, 0},  // last before start
	}
	for _, tt := range tests {
		lo, hi := ResolveRange(tt.size, tt.first, tt.ff, tt.last, tt.lf)
		if lo != tt.wantLo || hi != tt.wantHi {
			t.Errorf("ResolveRange(%d, %d, %v, %d, %v) = [%d, %d), want [%d, %d)",
				tt.size, tt.first, tt.ff, tt.last, tt.lf, lo, hi, tt.wantLo, tt.wantHi)
		}
	}
}

func TestArraySliceSymmetry(t *testing.T) {
	a := ints(10, 20, 30, 40, 50)
	// a[1 TO LAST-1] and a[1 TO 3] select the same elements.
	x := NewArray(ArraySlice(a, 1, false, -1, true))
	y := NewArray(ArraySlice(a, 1, false, 3, false))
	if !x.Equal(y) {
		t.Errorf("%v != %v", x, y)
	}
	whole := NewArray(a)
	if got := NewArray(ArraySlice(a, 0, false, len(a)-1, false)); !got.Equal(whole) {
		t.Errorf("a[0 TO %d] = %v, want %v", len(a)-1, got, whole)
	}
	if got := NewArray(ArraySlice(a, 0, false, 0, true)); !got.Equal(whole) {
		t.Errorf("a[0 TO LAST] = %v, want %v", got, whole)
	}
	if got := NewArray(ArraySlice(a, -(len(a) - 1), true, 0, true)); !got.Equal(whole) {
		t.Errorf("a[LAST-%d TO LAST] = %v, want %v", len(a)-1, got, whole)
	}
	if got := NewArray(ArraySlice(a, 3, false, 1, false)); len(got.Array()) != 0 {
		t.Errorf("crossed slice = %v, want []", got)
	}
}

func TestArraySplice(t *testing.T) {
	a := ints(1, 2, 3, 4)
	got := NewArray(ArraySplice(a, ints(8, 9, 10), 1, false, 2, false))
	if want := NewArray(ints(1, 8, 9, 10, 4)); !got.Equal(want) {
		t.Errorf("splice = %v, want %v", got, want)
	}
}

func TestArrayResizeAndSet(t *testing.T) {
	a := ArraySet(ints(1), 3, NewInt(4))
	if len(a) != 4 || !a[1].IsNothing() || !a[2].IsNothing() {
		t.Errorf("ArraySet grow = %v", NewArray(a))
	}
	a = ArrayResize(a, 2)
	if len(a) != 2 {
		t.Errorf("ArrayResize shrink len = %d, want 2", len(a))
	}
}

func TestArrayAppendExtendIndex(t *testing.T) {
	a := ArrayExtend(ArrayAppend(ints(1), NewInt(2)), ints(3, 4))
	if !NewArray(a).Equal(NewArray(ints(1, 2, 3, 4))) {
		t.Errorf("append/extend = %v", NewArray(a))
	}
	if v, ok := ArrayIndex(a, 3); !ok || !v.Equal(NewInt(4)) {
		t.Errorf("ArrayIndex(3) = %v, %v", v, ok)
	}
	for _, i := range []int{-1, 4} {
		if _, ok := ArrayIndex(a, i); ok {
			t.Errorf("ArrayIndex(%d) succeeded", i)
		}
	}
}

func TestArrayRemoveFindReverse(t *testing.T) {
	a := ArrayRemove(ints(1, 2, 3), 1)
	if !NewArray(a).Equal(NewArray(ints(1, 3))) {
		t.Errorf("remove = %v", NewArray(a))
	}
	if i := ArrayFind(a, NewInt(3)); i != 1 {
		t.Errorf("find = %d, want 1", i)
	}
	if i := ArrayFind(a, NewInt(7)); i != -1 {
		t.Errorf("find missing = %d, want -1", i)
	}
	if r := NewArray(ArrayReversed(a)); !r.Equal(NewArray(ints(3, 1))) {
		t.Errorf("reversed = %v", r)
	}
}

func TestStringCodePoints(t *testing.T) {
	s := "héllo wörld"
	if n := StringLength(s); n != 11 {
		t.Errorf("StringLength = %d, want 11", n)
	}
	if r, ok := StringIndex(s, 1); !ok || r != "é" {
		t.Errorf("StringIndex(1) = %q, %v", r, ok)
	}
	if _, ok := StringIndex(s, 11); ok {
		t.Error("StringIndex past end should fail")
	}
	if got := StringSubstring(s, 6, false, 0, true); got != "wörld" {
		t.Errorf("substring = %q", got)
	}
	if got := StringSplice(s, "W", 6, false, 6, false); got != "héllo Wörld" {
		t.Errorf("splice = %q", got)
	}
}

func TestBytesRangeAndSplice(t *testing.T) {
	b := []byte{0, 1, 2, 3, 4}
	if got := BytesRange(b, -1, true, 0, true); string(got) != "\x03\x04" {
		t.Errorf("range = %v", got)
	}
	got := BytesSplice(b, []byte{9}, 0, false, 1, false)
	if string(got) != "\x09\x02\x03\x04" {
		t.Errorf("splice = %v", got)
	}
	if b[0] != 0 {
		t.Error("splice modified its input")
	}
}
