//go:build !(darwin || linux)

package vm

import "errors"

type nativeLibrary struct{}

type platformLoader struct{}

func (platformLoader) open(name string) (*nativeLibrary, error) {
	return nil, errors.New("dynamic loading is not supported on this platform")
}

func (l *nativeLibrary) lookup(symbol string) (NativeCallable, error) {
	return nil, errors.New("dynamic loading is not supported on this platform")
}
