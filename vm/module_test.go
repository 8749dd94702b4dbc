package vm

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"
)

func sampleModule() *Module {
	c := newCode()
	c.globals = 3
	start, end, handler := c.NewLabel(), c.NewLabel(), c.NewLabel()
	r := c.try(start, end, "E", handler)
	c.EmitUint16(OpPushException, r)
	c.Mark(start)
	c.pushS("héllo")
	c.raise("E")
	c.Mark(end)
	c.Emit(OpHALT)
	c.Mark(handler)
	c.Emit(OpHALT)
	return c.module()
}

// ---------------------------------------------------------------------------
// Store / Load
// ---------------------------------------------------------------------------

func TestModuleRoundTrip(t *testing.T) {
	m := sampleModule()
	data, err := m.Store()
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := LoadModule(data)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if !got.Equal(m) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, m)
	}
	again, _ := got.Store()
	if string(again) != string(data) {
		t.Error("Store(LoadModule(b)) != b")
	}
}

func TestModuleLayout(t *testing.T) {
	m := &Module{GlobalSize: 2, Strings: []string{"ab", ""}, Code: []byte{byte(OpHALT)}}
	data, err := m.Store()
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	want := []byte{
		0x00, 0x02, // globals
		0x00, 0x04, 'a', 'b', 0, 0, // string table
		0x00, 0x00, // no ranges
		byte(OpHALT),
	}
	if string(data) != string(want) {
		t.Errorf("Store = % x, want % x", data, want)
	}
}

func TestLoadModuleMalformed(t *testing.T) {
	valid, _ := sampleModule().Store()

	badRange := func() []byte {
		m := &Module{Strings: []string{"E"}, Code: []byte{0, 0},
			Exceptions: []ExceptionRange{{Start: 2, End: 1}}}
		b, _ := m.encode()
		return b
	}
	badID := func() []byte {
		m := &Module{Code: []byte{0},
			Exceptions: []ExceptionRange{{Start: 0, End: 1, ExceptionID: 4}}}
		b, _ := m.encode()
		return b
	}
	outside := func() []byte {
		m := &Module{Strings: []string{"E"}, Code: []byte{0},
			Exceptions: []ExceptionRange{{Start: 0, End: 1, Handler: 9}}}
		b, _ := m.encode()
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncatedHeader},
		{"one byte", []byte{0}, ErrTruncatedHeader},
		{"no string table length", []byte{0, 0, 0}, ErrTruncatedHeader},
		{"short string table", []byte{0, 0, 0, 5, 'a'}, ErrTruncatedStringTable},
		{"unterminated", []byte{0, 0, 0, 2, 'a', 'b', 0, 0}, ErrUnterminatedString},
		{"invalid utf8", []byte{0, 0, 0, 2, 0xff, 0, 0, 0}, ErrInvalidUTF8},
		{"no exception count", []byte{0, 0, 0, 0}, ErrTruncatedHeader},
		{"short exception table", []byte{0, 0, 0, 0, 0, 1, 0, 0}, ErrTruncatedExceptionTable},
		{"truncated sample", valid[:len(valid)/2], nil},
		{"start after end", badRange(), ErrBadExceptionRange},
		{"id outside table", badID(), ErrBadExceptionRange},
		{"handler outside code", outside(), ErrBadExceptionRange},
	}
	for _, tt := range tests {
		_, err := LoadModule(tt.data)
		var be *BytecodeError
		if !errors.As(err, &be) {
			t.Errorf("%s: err = %v, want *BytecodeError", tt.name, err)
			continue
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestStoreRejectsEmbeddedNUL(t *testing.T) {
	m := &Module{Strings: []string{"ok", "a\x00b"}}
	_, err := m.Store()
	if !errors.Is(err, ErrEmbeddedNUL) {
		t.Errorf("err = %v, want ErrEmbeddedNUL", err)
	}
}

func TestStoreRejectsUnloadableModules(t *testing.T) {
	tests := []struct {
		name string
		m    *Module
		want error
	}{
		{"invalid utf8", &Module{Strings: []string{"ok", "\xff"}}, ErrInvalidUTF8},
		{"id outside table", &Module{Code: []byte{0, 0, 0, 0},
			Exceptions: []ExceptionRange{{Start: 0, End: 4}}}, ErrBadExceptionRange},
		{"start after end", &Module{Strings: []string{"E"}, Code: []byte{0, 0},
			Exceptions: []ExceptionRange{{Start: 2, End: 1}}}, ErrBadExceptionRange},
		{"handler outside code", &Module{Strings: []string{"E"}, Code: []byte{0},
			Exceptions: []ExceptionRange{{Start: 0, End: 1, Handler: 9}}}, ErrBadExceptionRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.m.Store()
			if !errors.Is(err, tt.want) {
				t.Errorf("Store = % x, %v; want %v", data, err, tt.want)
			}
			var be *BytecodeError
			if !errors.As(err, &be) {
				t.Errorf("err = %v, want *BytecodeError", err)
			}
			// The loader refuses the same module for the same reason.
			raw, _ := tt.m.encode()
			if _, err := LoadModule(raw); !errors.Is(err, tt.want) {
				t.Errorf("LoadModule = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStoreRejectsOversizedStringTable(t *testing.T) {
	big := make([]byte, 1<<16)
	for i := range big {
		big[i] = 'x'
	}
	m := &Module{Strings: []string{string(big)}}
	if _, err := m.Store(); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("err = %v, want ErrStringTooLong", err)
	}
}

func TestModuleFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog"+ModuleExt)
	m := sampleModule()
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadModuleFile(path)
	if err != nil {
		t.Fatalf("ReadModuleFile: %v", err)
	}
	if got.Name != "prog" || !got.Equal(m) {
		t.Errorf("loaded %q, equal=%v", got.Name, got.Equal(m))
	}
}

func TestModuleLoadedFromPath(t *testing.T) {
	dir := t.TempDir()
	lib := newCode()
	lib.pushI(41)
	lib.Emit(OpRet)
	if err := lib.module().WriteFile(filepath.Join(dir, "lib"+ModuleExt)); err != nil {
		t.Fatal(err)
	}

	main := newCode()
	main.EmitCallMF(main.str("lib"), 0)
	main.pushI(1)
	main.Emit(OpAddN)
	main.Emit(OpHALT)

	cfg := DefaultConfig()
	cfg.ModulePaths = []string{dir}
	ex := NewExecutor(cfg)
	defer ex.Close()
	v, err := ex.Run(main.module())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantNumber(t, v, "42")
}

// ---------------------------------------------------------------------------
// Fuzzing
// ---------------------------------------------------------------------------

// FuzzLoadModule checks that the decoder never panics and that anything it
// accepts stores back to the same bytes.
func FuzzLoadModule(f *testing.F) {
	valid, _ := sampleModule().Store()
	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte{0, 0, 0, 0, 0, 0})
	f.Add(binary.BigEndian.AppendUint16([]byte{0, 1, 0, 2, 'x', 0}, 0xffff))

	f.Fuzz(func(t *testing.T, data []byte) {
		m, err := LoadModule(data)
		if err != nil {
			var be *BytecodeError
			if !errors.As(err, &be) {
				t.Fatalf("error %v is not a *BytecodeError", err)
			}
			return
		}
		out, err := m.Store()
		if err != nil {
			t.Fatalf("Store after successful load: %v", err)
		}
		if string(out) != string(data) {
			t.Fatalf("Store(LoadModule(b)) != b")
		}
	})
}
