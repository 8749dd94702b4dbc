package vm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ModuleExt is the file extension of compiled modules.
const ModuleExt = ".neonx"

// ---------------------------------------------------------------------------
// Module: one compiled unit
// ---------------------------------------------------------------------------

// ExceptionRange associates the half-open code range [Start, End) with a
// handler for the exception family named by string table entry ExceptionID.
type ExceptionRange struct {
	Start       uint16
	End         uint16
	ExceptionID uint16
	Handler     uint16
}

// Contains reports whether pc lies in the range.
func (r ExceptionRange) Contains(pc int) bool {
	return pc >= int(r.Start) && pc < int(r.End)
}

// Width returns the size of the range in bytes of code.
func (r ExceptionRange) Width() int {
	return int(r.End) - int(r.Start)
}

// Module is immutable once loaded and may be shared by several executors.
type Module struct {
	// Name identifies the module for cross-module calls and traces. It is
	// not part of the encoding.
	Name       string
	GlobalSize uint16
	Strings    []string
	Exceptions []ExceptionRange
	Code       []byte
}

// Str returns string table entry i.
func (m *Module) Str(i int) (string, bool) {
	if i < 0 || i >= len(m.Strings) {
		return "", false
	}
	return m.Strings[i], true
}

// Equal compares the encoded fields of two modules.
func (m *Module) Equal(o *Module) bool {
	if m.GlobalSize != o.GlobalSize || len(m.Strings) != len(o.Strings) ||
		len(m.Exceptions) != len(o.Exceptions) || !bytes.Equal(m.Code, o.Code) {
		return false
	}
	for i := range m.Strings {
		if m.Strings[i] != o.Strings[i] {
			return false
		}
	}
	for i := range m.Exceptions {
		if m.Exceptions[i] != o.Exceptions[i] {
			return false
		}
	}
	return true
}

// Validate checks the cross references between the tables and the code.
func (m *Module) Validate() error {
	for i, r := range m.Exceptions {
		switch {
		case r.Start > r.End:
			return &BytecodeError{Module: m.Name, Offset: i, Err: fmt.Errorf("%w: range %d start %d > end %d", ErrBadExceptionRange, i, r.Start, r.End)}
		case int(r.ExceptionID) >= len(m.Strings):
			return &BytecodeError{Module: m.Name, Offset: i, Err: fmt.Errorf("%w: range %d exception id %d outside string table", ErrBadExceptionRange, i, r.ExceptionID)}
		case int(r.Handler) > len(m.Code) || int(r.End) > len(m.Code):
			return &BytecodeError{Module: m.Name, Offset: i, Err: fmt.Errorf("%w: range %d points outside code", ErrBadExceptionRange, i)}
		}
	}
	return nil
}

// ReadModuleFile loads a module from disk, naming it after the file.
func ReadModuleFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := LoadModule(data)
	if err != nil {
		if be, ok := err.(*BytecodeError); ok {
			be.Module = path
		}
		return nil, err
	}
	m.Name = strings.TrimSuffix(filepath.Base(path), ModuleExt)
	return m, nil
}

// WriteFile stores the module to disk.
func (m *Module) WriteFile(path string) error {
	data, err := m.Store()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
