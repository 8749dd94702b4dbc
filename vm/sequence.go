package vm

import (
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Index resolution
// ---------------------------------------------------------------------------

// ResolveRange turns a (first, firstFromEnd, last, lastFromEnd) selection
// into a half-open [lo, hi) range over a sequence of the given size. An
// index flagged from-end is offset by size-1, so index 0 from the end is
// the last element. first is clamped into [0, size] and last into
// [-1, size-1]; when last < first the range is empty.
func ResolveRange(size, first int, firstFromEnd bool, last int, lastFromEnd bool) (lo, hi int) {
	if firstFromEnd {
		first += size - 1
	}
	if lastFromEnd {
		last += size - 1
	}
	first = clamp(first, 0, size)
	last = clamp(last, -1, size-1)
	if last < first {
		return first, first
	}
	return first, last + 1
}

func clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ---------------------------------------------------------------------------
// Array contract
// ---------------------------------------------------------------------------

// ArrayAppend adds v at the end of a, taking ownership of v.
func ArrayAppend(a []Value, v Value) []Value {
	return append(a, v)
}

// ArrayExtend adds the elements of b at the end of a, taking ownership of
// them.
func ArrayExtend(a, b []Value) []Value {
	return append(a, b...)
}

// ArrayIndex returns a copy of element i, or false when i is outside a.
func ArrayIndex(a []Value, i int) (Value, bool) {
	if i < 0 || i >= len(a) {
		return Nothing, false
	}
	return a[i].Copy(), true
}

// ArrayResize pads a with Nothing or truncates it, releasing the dropped
// elements.
func ArrayResize(a []Value, n int) []Value {
	if n < 0 {
		n = 0
	}
	if n <= len(a) {
		for _, v := range a[n:] {
			v.Release()
		}
		return a[:n:n]
	}
	return append(a, make([]Value, n-len(a))...)
}

// ArraySet stores v at index i, growing the array with Nothing when i is
// past the end. The displaced element is released.
func ArraySet(a []Value, i int, v Value) []Value {
	if i >= len(a) {
		a = ArrayResize(a, i+1)
	}
	a[i].Release()
	a[i] = v
	return a
}

// ArraySlice returns copies of the selected elements.
func ArraySlice(a []Value, first int, firstFromEnd bool, last int, lastFromEnd bool) []Value {
	lo, hi := ResolveRange(len(a), first, firstFromEnd, last, lastFromEnd)
	out := make([]Value, 0, hi-lo)
	for _, v := range a[lo:hi] {
		out = append(out, v.Copy())
	}
	return out
}

// ArraySplice replaces the selected elements of a with copies of repl.
// The replaced elements are released.
func ArraySplice(a, repl []Value, first int, firstFromEnd bool, last int, lastFromEnd bool) []Value {
	lo, hi := ResolveRange(len(a), first, firstFromEnd, last, lastFromEnd)
	for _, v := range a[lo:hi] {
		v.Release()
	}
	out := make([]Value, 0, len(a)-(hi-lo)+len(repl))
	out = append(out, a[:lo]...)
	for _, v := range repl {
		out = append(out, v.Copy())
	}
	return append(out, a[hi:]...)
}

// ArrayRemove deletes the element at i, releasing it.
func ArrayRemove(a []Value, i int) []Value {
	a[i].Release()
	return append(a[:i], a[i+1:]...)
}

// ArrayFind returns the index of the first element equal to v, or -1.
func ArrayFind(a []Value, v Value) int {
	for i, e := range a {
		if e.Equal(v) {
			return i
		}
	}
	return -1
}

// ArrayReversed returns copies of the elements in reverse order.
func ArrayReversed(a []Value) []Value {
	out := make([]Value, len(a))
	for i, v := range a {
		out[len(a)-1-i] = v.Copy()
	}
	return out
}

// ---------------------------------------------------------------------------
// String contract (code-point offsets)
// ---------------------------------------------------------------------------

// StringLength returns the number of code points in s.
func StringLength(s string) int {
	return utf8.RuneCountInString(s)
}

// StringIndex returns the code point at offset i as a string, or ok=false
// when i is out of range.
func StringIndex(s string, i int) (string, bool) {
	if i < 0 {
		return "", false
	}
	n := 0
	for _, r := range s {
		if n == i {
			return string(r), true
		}
		n++
	}
	return "", false
}

// byteOffsets maps code-point boundaries to byte offsets; the result has
// one entry per code point plus a final entry for len(s).
func byteOffsets(s string) []int {
	offs := make([]int, 0, len(s)+1)
	for i := range s {
		offs = append(offs, i)
	}
	return append(offs, len(s))
}

// StringSubstring selects code points with the dual from-end convention.
func StringSubstring(s string, first int, firstFromEnd bool, last int, lastFromEnd bool) string {
	offs := byteOffsets(s)
	lo, hi := ResolveRange(len(offs)-1, first, firstFromEnd, last, lastFromEnd)
	return s[offs[lo]:offs[hi]]
}

// StringSplice replaces the selected code points with repl.
func StringSplice(s, repl string, first int, firstFromEnd bool, last int, lastFromEnd bool) string {
	offs := byteOffsets(s)
	lo, hi := ResolveRange(len(offs)-1, first, firstFromEnd, last, lastFromEnd)
	return s[:offs[lo]] + repl + s[offs[hi]:]
}

// ---------------------------------------------------------------------------
// Bytes contract (byte offsets)
// ---------------------------------------------------------------------------

// BytesRange returns a copy of the selected bytes.
func BytesRange(b []byte, first int, firstFromEnd bool, last int, lastFromEnd bool) []byte {
	lo, hi := ResolveRange(len(b), first, firstFromEnd, last, lastFromEnd)
	return append([]byte{}, b[lo:hi]...)
}

// BytesSplice returns b with the selected bytes replaced by repl.
func BytesSplice(b, repl []byte, first int, firstFromEnd bool, last int, lastFromEnd bool) []byte {
	lo, hi := ResolveRange(len(b), first, firstFromEnd, last, lastFromEnd)
	out := make([]byte, 0, len(b)-(hi-lo)+len(repl))
	out = append(out, b[:lo]...)
	out = append(out, repl...)
	return append(out, b[hi:]...)
}
