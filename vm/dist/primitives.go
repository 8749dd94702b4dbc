package dist

import (
	"sync"

	"github.com/chazu/neon/vm"
)

// RegisterPrimitives adds the cbor$ family to t:
//
//	cbor$encode: v - Bytes; raises InvalidValueException for Pointers
//	             and Objects
//	cbor$decode: b - Value; raises InvalidValueException for malformed input
func RegisterPrimitives(t *vm.BuiltinTable) error {
	if _, err := t.Register("cbor$encode", 1, 1, func(ex *vm.Executor) error {
		v := ex.Stack().Pop()
		defer v.Release()
		data, err := MarshalValue(v)
		if err != nil {
			return vm.Raise(vm.ExcInvalidValue, err.Error())
		}
		ex.Stack().Push(vm.NewBytes(data))
		return nil
	}); err != nil {
		return err
	}
	_, err := t.Register("cbor$decode", 1, 1, func(ex *vm.Executor) error {
		v, err := UnmarshalValue(ex.Stack().PopBytes())
		if err != nil {
			return vm.Raise(vm.ExcInvalidValue, err.Error())
		}
		ex.Stack().Push(v)
		return nil
	})
	return err
}

var (
	builtinsOnce sync.Once
	builtins     *vm.BuiltinTable
)

// Builtins returns the standard table extended with the cbor$ family. The
// table is shared and frozen.
func Builtins() *vm.BuiltinTable {
	builtinsOnce.Do(func() {
		t := vm.DefaultBuiltins().Clone()
		if err := RegisterPrimitives(t); err != nil {
			panic(err)
		}
		t.Freeze()
		builtins = t
	})
	return builtins
}
