package vm

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
)

// ---------------------------------------------------------------------------
// Hash primitives
// ---------------------------------------------------------------------------

// popHashInput accepts either Bytes or a String (hashed as UTF-8).
func popHashInput(s *Stack) ([]byte, error) {
	v := s.Pop()
	defer v.Release()
	switch v.Kind() {
	case KindBytes:
		return v.Bytes(), nil
	case KindString:
		return []byte(v.Str()), nil
	}
	return nil, Raise(ExcInvalidValue, fmt.Sprintf("cannot hash %s", v.Kind()))
}

func registerHashPrimitives(t *BuiltinTable) {
	algorithms := []struct {
		name string
		new  func() hash.Hash
	}{
		{"md5", md5.New},
		{"sha1", sha1.New},
		{"sha256", sha256.New},
		{"sha3", sha3.New256},
	}
	for _, alg := range algorithms {
		sum := func(ex *Executor) ([]byte, error) {
			data, err := popHashInput(ex.stack)
			if err != nil {
				return nil, err
			}
			h := alg.new()
			h.Write(data)
			return h.Sum(nil), nil
		}
		t.add("hash$"+alg.name, 1, 1, func(ex *Executor) error {
			d, err := sum(ex)
			if err != nil {
				return err
			}
			ex.stack.Push(NewString(hex.EncodeToString(d)))
			return nil
		})
		t.add("hash$"+alg.name+"Raw", 1, 1, func(ex *Executor) error {
			d, err := sum(ex)
			if err != nil {
				return err
			}
			ex.stack.Push(NewBytes(d))
			return nil
		})
	}
}
