package vm

import (
	"errors"
	"io/fs"
	"os"
)

// ---------------------------------------------------------------------------
// File primitives: whole-file operations
// ---------------------------------------------------------------------------

// fileError maps an OS error onto the FileException family.
func fileError(err error, path string) error {
	switch {
	case errors.Is(err, fs.ErrExist):
		return Raise(ExcFileExists, path)
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return Raise(ExcFileOpen, path+": "+err.Error())
	default:
		return Raise(ExcFileIO, path+": "+err.Error())
	}
}

func registerFilePrimitives(t *BuiltinTable) {
	t.add("file$exists", 1, 1, func(ex *Executor) error {
		_, err := os.Stat(ex.stack.PopString())
		ex.stack.Push(NewBoolean(err == nil))
		return nil
	})

	t.add("file$readBytes", 1, 1, func(ex *Executor) error {
		path := ex.stack.PopString()
		data, err := os.ReadFile(path)
		if err != nil {
			return fileError(err, path)
		}
		ex.stack.Push(NewBytes(data))
		return nil
	})

	// writeBytes: path, data - Create or truncate path with data
	t.add("file$writeBytes", 2, 0, func(ex *Executor) error {
		data := ex.stack.PopBytes()
		path := ex.stack.PopString()
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fileError(err, path)
		}
		return nil
	})

	// delete: path - Remove path; a missing file is not an error
	t.add("file$delete", 1, 0, func(ex *Executor) error {
		path := ex.stack.PopString()
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fileError(err, path)
		}
		return nil
	})

	t.add("file$mkdir", 1, 0, func(ex *Executor) error {
		path := ex.stack.PopString()
		if err := os.Mkdir(path, 0o755); err != nil {
			return fileError(err, path)
		}
		return nil
	})
}
