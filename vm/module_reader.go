package vm

import (
	"encoding/binary"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// ModuleReader: decodes the module layout
// ---------------------------------------------------------------------------
//
//	[u16 global_size]
//	[u16 strtable_len][strtable bytes: NUL-terminated UTF-8 entries]
//	[u16 exc_count][exc_count x (u16 start, u16 end, u16 excid, u16 handler)]
//	[code bytes ...]
//
// All integers are big-endian.

type moduleReader struct {
	data   []byte
	offset int
}

func (r *moduleReader) fail(err error) error {
	return &BytecodeError{Offset: r.offset, Err: err}
}

func (r *moduleReader) readUint16(onShort error) (uint16, error) {
	if len(r.data)-r.offset < 2 {
		return 0, r.fail(onShort)
	}
	v := binary.BigEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

func (r *moduleReader) readStringTable() ([]string, error) {
	size, err := r.readUint16(ErrTruncatedHeader)
	if err != nil {
		return nil, err
	}
	if len(r.data)-r.offset < int(size) {
		return nil, r.fail(ErrTruncatedStringTable)
	}
	table := r.data[r.offset : r.offset+int(size)]
	var strs []string
	for start := 0; start < len(table); {
		end := start
		for end < len(table) && table[end] != 0 {
			end++
		}
		if end == len(table) {
			r.offset += start
			return nil, r.fail(ErrUnterminatedString)
		}
		entry := table[start:end]
		if !utf8.Valid(entry) {
			r.offset += start
			return nil, r.fail(ErrInvalidUTF8)
		}
		strs = append(strs, string(entry))
		start = end + 1
	}
	r.offset += int(size)
	return strs, nil
}

func (r *moduleReader) readExceptionTable() ([]ExceptionRange, error) {
	count, err := r.readUint16(ErrTruncatedHeader)
	if err != nil {
		return nil, err
	}
	if len(r.data)-r.offset < int(count)*8 {
		return nil, r.fail(ErrTruncatedExceptionTable)
	}
	var ranges []ExceptionRange
	for i := 0; i < int(count); i++ {
		b := r.data[r.offset:]
		ranges = append(ranges, ExceptionRange{
			Start:       binary.BigEndian.Uint16(b[0:]),
			End:         binary.BigEndian.Uint16(b[2:]),
			ExceptionID: binary.BigEndian.Uint16(b[4:]),
			Handler:     binary.BigEndian.Uint16(b[6:]),
		})
		r.offset += 8
	}
	return ranges, nil
}

// LoadModule decodes a compiled module. Every failure is a *BytecodeError;
// the decoder never reads past the end of data.
func LoadModule(data []byte) (*Module, error) {
	r := &moduleReader{data: data}

	globals, err := r.readUint16(ErrTruncatedHeader)
	if err != nil {
		return nil, err
	}
	strs, err := r.readStringTable()
	if err != nil {
		return nil, err
	}
	ranges, err := r.readExceptionTable()
	if err != nil {
		return nil, err
	}

	m := &Module{
		GlobalSize: globals,
		Strings:    strs,
		Exceptions: ranges,
		Code:       append([]byte{}, data[r.offset:]...),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	loaderLog.Debugf("loaded module: %d globals, %d strings, %d ranges, %d code bytes",
		globals, len(strs), len(ranges), len(m.Code))
	return m, nil
}
