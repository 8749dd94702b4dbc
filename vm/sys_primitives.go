package vm

import (
	"os"
	"runtime"
)

// ---------------------------------------------------------------------------
// System and runtime primitives
// ---------------------------------------------------------------------------

func registerSysPrimitives(t *BuiltinTable) {
	// args: - Program arguments as an Array of Strings
	t.add("sys$args", 0, 1, func(ex *Executor) error {
		out := make([]Value, len(ex.args))
		for i, a := range ex.args {
			out[i] = NewString(a)
		}
		ex.stack.Push(NewArray(out))
		return nil
	})

	// exit: code - End the run with a status in 0..255
	t.add("sys$exit", 1, 0, func(ex *Executor) error {
		n := ex.stack.PopNumber()
		code, err := n.ToUint8()
		if err != nil {
			return Raise(ExcValueRange, "exit code must be 0..255: "+n.String())
		}
		log.Debugf("sys$exit(%d)", code)
		return &ExitError{Code: int(code)}
	})

	t.add("sys$getenv", 1, 2, func(ex *Executor) error {
		v, ok := os.LookupEnv(ex.stack.PopString())
		ex.stack.Push(NewString(v))
		ex.stack.Push(NewBoolean(ok))
		return nil
	})

	t.add("runtime$executorDepth", 0, 1, func(ex *Executor) error {
		ex.stack.Push(NewInt(int64(ex.Depth())))
		return nil
	})

	t.add("runtime$moduleIsMain", 0, 1, func(ex *Executor) error {
		ex.stack.Push(NewBoolean(ex.InMainModule()))
		return nil
	})

	t.add("runtime$platform", 0, 1, func(ex *Executor) error {
		ex.stack.Push(NewString(runtime.GOOS + "/" + runtime.GOARCH))
		return nil
	})

	// liveObjects: - Number of host objects not yet released
	t.add("runtime$liveObjects", 0, 1, func(ex *Executor) error {
		ex.stack.Push(NewInt(LiveObjects()))
		return nil
	})

	t.add("runtime$liveRecords", 0, 1, func(ex *Executor) error {
		ex.stack.Push(NewInt(int64(ex.heap.Live())))
		return nil
	})
}
