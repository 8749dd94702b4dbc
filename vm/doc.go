// Package vm implements the neon bytecode virtual machine.
//
// This package contains:
//   - the tagged Value union and its array, dictionary and string contracts
//   - Module decoding and encoding (.neonx files)
//   - the operand stack, call frames and record heap
//   - the Executor loop with structured exception unwinding
//   - the builtin table and the runtime library primitives
//   - foreign calls through dynamically loaded libraries
package vm
