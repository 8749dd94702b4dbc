package vm

import (
	"fmt"

	"github.com/chazu/neon/number"
)

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

// Stack is the operand stack of one executor. Popping an empty stack or
// peeking past its depth is a VM bug and panics with an *InternalError.
type Stack struct {
	values []Value
	limit  int // 0 = unbounded
}

// NewStack creates a stack. A positive limit bounds its depth.
func NewStack(limit int) *Stack {
	return &Stack{values: make([]Value, 0, 256), limit: limit}
}

func stackUnderflow(want, have int) *InternalError {
	return &InternalError{PC: -1, Msg: fmt.Sprintf("stack underflow: need %d, have %d", want, have)}
}

// Depth returns the number of values on the stack.
func (s *Stack) Depth() int { return len(s.values) }

// Push adds v to the top of the stack, taking ownership of it.
func (s *Stack) Push(v Value) {
	if s.limit > 0 && len(s.values) >= s.limit {
		panic(&InternalError{PC: -1, Msg: fmt.Sprintf("operand stack limit %d exceeded", s.limit)})
	}
	s.values = append(s.values, v)
}

// Pop removes and returns the top value. The caller owns the result.
func (s *Stack) Pop() Value {
	n := len(s.values)
	if n == 0 {
		panic(stackUnderflow(1, 0))
	}
	v := s.values[n-1]
	s.values[n-1] = Value{}
	s.values = s.values[:n-1]
	return v
}

// PopN removes the top n values and returns them in push order.
func (s *Stack) PopN(n int) []Value {
	if n > len(s.values) {
		panic(stackUnderflow(n, len(s.values)))
	}
	base := len(s.values) - n
	out := make([]Value, n)
	copy(out, s.values[base:])
	clear(s.values[base:])
	s.values = s.values[:base]
	return out
}

// Peek returns a reference to the value n slots below the top (0 = top).
func (s *Stack) Peek(n int) *Value {
	if n < 0 || n >= len(s.values) {
		panic(stackUnderflow(n+1, len(s.values)))
	}
	return &s.values[len(s.values)-1-n]
}

// Top returns a reference to the top value.
func (s *Stack) Top() *Value { return s.Peek(0) }

// Drop pops and releases the top value.
func (s *Stack) Drop() {
	s.Pop().Release()
}

// Truncate releases values above depth.
func (s *Stack) Truncate(depth int) {
	if depth > len(s.values) {
		panic(&InternalError{PC: -1, Msg: fmt.Sprintf("cannot truncate stack of depth %d to %d", len(s.values), depth)})
	}
	for i := depth; i < len(s.values); i++ {
		s.values[i].Release()
		s.values[i] = Value{}
	}
	s.values = s.values[:depth]
}

// ---------------------------------------------------------------------------
// Typed pops used by instructions and builtins
// ---------------------------------------------------------------------------

// PopBoolean pops a Boolean.
func (s *Stack) PopBoolean() bool { return s.Pop().Boolean() }

// PopNumber pops a Number.
func (s *Stack) PopNumber() number.Number { return s.Pop().Number() }

// PopString pops a String.
func (s *Stack) PopString() string { return s.Pop().Str() }

// PopBytes pops a Bytes value.
func (s *Stack) PopBytes() []byte { return s.Pop().Bytes() }

// PopArray pops an Array, transferring ownership of its elements.
func (s *Stack) PopArray() []Value { return s.Pop().Array() }
