package vm

// ---------------------------------------------------------------------------
// Dictionary primitives
// ---------------------------------------------------------------------------

func registerDictionaryPrimitives(t *BuiltinTable) {
	// keys: d - Sorted Array of the keys
	t.add("builtin$dictionary__keys", 1, 1, func(ex *Executor) error {
		v := ex.stack.Pop()
		defer v.Release()
		keys := v.Dict().Keys()
		out := make([]Value, len(keys))
		for i, k := range keys {
			out[i] = NewString(k)
		}
		ex.stack.Push(NewArray(out))
		return nil
	})

	// remove: d, key - d without key; absent keys are ignored
	t.add("builtin$dictionary__remove", 2, 1, func(ex *Executor) error {
		key := ex.stack.PopString()
		v := ex.stack.Pop()
		v.Dict().Remove(key)
		ex.stack.Push(v)
		return nil
	})

	t.add("builtin$dictionary__size", 1, 1, func(ex *Executor) error {
		v := ex.stack.Pop()
		defer v.Release()
		ex.stack.Push(NewInt(int64(v.Dict().Len())))
		return nil
	})
}
