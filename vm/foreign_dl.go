//go:build darwin || linux

package vm

import (
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// nativeLibrary is a library opened with dlopen.
type nativeLibrary struct {
	name   string
	handle uintptr
}

type platformLoader struct{}

func (platformLoader) open(name string) (*nativeLibrary, error) {
	h, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, err
	}
	return &nativeLibrary{name: name, handle: h}, nil
}

func (l *nativeLibrary) lookup(symbol string) (NativeCallable, error) {
	addr, err := purego.Dlsym(l.handle, symbol)
	if err != nil {
		return nil, err
	}
	return &nativeSymbol{name: symbol, addr: addr}, nil
}

// nativeSymbol calls a C function taking and returning machine words.
// Numbers are passed as int64, Booleans as 0/1, Strings as NUL-terminated
// char pointers and Bytes as pointers to their first byte. The word result
// is returned as a Number.
type nativeSymbol struct {
	name string
	addr uintptr
}

func (s *nativeSymbol) Call(args []Value) ([]Value, error) {
	words := make([]uintptr, len(args))
	var pinned [][]byte
	for i, a := range args {
		switch a.Kind() {
		case KindNothing:
		case KindBoolean:
			if a.Boolean() {
				words[i] = 1
			}
		case KindNumber:
			n, err := a.Number().ToInt64()
			if err != nil {
				return nil, Raise(ExcValueRange, a.Number().String())
			}
			words[i] = uintptr(n)
		case KindString:
			buf := append([]byte(a.Str()), 0)
			pinned = append(pinned, buf)
			words[i] = uintptr(unsafe.Pointer(&buf[0]))
		case KindBytes:
			if b := a.Bytes(); len(b) > 0 {
				pinned = append(pinned, b)
				words[i] = uintptr(unsafe.Pointer(&b[0]))
			}
		case KindPointer:
			if !a.Pointer().IsNil() {
				return nil, Raise(ExcInvalidValue, "record pointers cannot be passed to native code")
			}
		default:
			return nil, Raise(ExcInvalidValue, "cannot pass "+a.Kind().String()+" to native code")
		}
	}
	r1, _, _ := purego.SyscallN(s.addr, words...)
	runtime.KeepAlive(pinned)
	return []Value{NewInt(int64(r1))}, nil
}
