package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Store encodes the module. It is the exact inverse of LoadModule: a module
// Store accepts always loads back unchanged, and one the loader would refuse
// fails here with the same sentinel.
func (m *Module) Store() ([]byte, error) {
	for i, s := range m.Strings {
		switch {
		case strings.IndexByte(s, 0) >= 0:
			return nil, &BytecodeError{Module: m.Name, Offset: i, Err: fmt.Errorf("%w: entry %d", ErrEmbeddedNUL, i)}
		case !utf8.ValidString(s):
			return nil, &BytecodeError{Module: m.Name, Offset: i, Err: fmt.Errorf("%w: entry %d", ErrInvalidUTF8, i)}
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m.encode()
}

// encode lays out the tables without checking their contents.
func (m *Module) encode() ([]byte, error) {
	var table bytes.Buffer
	for _, s := range m.Strings {
		table.WriteString(s)
		table.WriteByte(0)
	}
	if table.Len() > math.MaxUint16 {
		return nil, &BytecodeError{Module: m.Name, Err: fmt.Errorf("%w: %d bytes", ErrStringTooLong, table.Len())}
	}
	if len(m.Exceptions) > math.MaxUint16 {
		return nil, &BytecodeError{Module: m.Name, Err: fmt.Errorf("%w: %d", ErrTooManyRanges, len(m.Exceptions))}
	}

	out := make([]byte, 0, 6+table.Len()+8*len(m.Exceptions)+len(m.Code))
	out = binary.BigEndian.AppendUint16(out, m.GlobalSize)
	out = binary.BigEndian.AppendUint16(out, uint16(table.Len()))
	out = append(out, table.Bytes()...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(m.Exceptions)))
	for _, r := range m.Exceptions {
		out = binary.BigEndian.AppendUint16(out, r.Start)
		out = binary.BigEndian.AppendUint16(out, r.End)
		out = binary.BigEndian.AppendUint16(out, r.ExceptionID)
		out = binary.BigEndian.AppendUint16(out, r.Handler)
	}
	return append(out, m.Code...), nil
}
