// Package dist implements the CBOR wire format neon uses to hand values and
// fatal-exception reports to embedders, plus the capability check applied
// to modules received from untrusted callers.
package dist

import (
	"fmt"

	"github.com/chazu/neon/number"
	"github.com/chazu/neon/vm"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// WireKind tags a WireValue. The numbering is part of the format.
type WireKind uint8

const (
	WireNothing    WireKind = 0
	WireBoolean    WireKind = 1
	WireNumber     WireKind = 2
	WireString     WireKind = 3
	WireBytes      WireKind = 4
	WireArray      WireKind = 5
	WireDictionary WireKind = 6
)

// WireValue is the serialized form of a vm.Value. Numbers travel as their
// canonical decimal text so no precision is lost. Pointers and Objects are
// process-local and have no wire form.
type WireValue struct {
	Kind  WireKind             `cbor:"1,keyasint"`
	Bool  bool                 `cbor:"2,keyasint,omitempty"`
	Text  string               `cbor:"3,keyasint,omitempty"` // Number or String
	Bytes []byte               `cbor:"4,keyasint,omitempty"`
	Elems []WireValue          `cbor:"5,keyasint,omitempty"`
	Dict  map[string]WireValue `cbor:"6,keyasint,omitempty"`
}

// ToWire converts v. It fails for Pointers and Objects, at any depth.
func ToWire(v vm.Value) (WireValue, error) {
	switch v.Kind() {
	case vm.KindNothing:
		return WireValue{Kind: WireNothing}, nil
	case vm.KindBoolean:
		return WireValue{Kind: WireBoolean, Bool: v.Boolean()}, nil
	case vm.KindNumber:
		return WireValue{Kind: WireNumber, Text: v.Number().String()}, nil
	case vm.KindString:
		return WireValue{Kind: WireString, Text: v.Str()}, nil
	case vm.KindBytes:
		return WireValue{Kind: WireBytes, Bytes: v.Bytes()}, nil
	case vm.KindArray:
		elems := v.Array()
		w := WireValue{Kind: WireArray, Elems: make([]WireValue, len(elems))}
		for i, e := range elems {
			ew, err := ToWire(e)
			if err != nil {
				return WireValue{}, err
			}
			w.Elems[i] = ew
		}
		return w, nil
	case vm.KindDictionary:
		d := v.Dict()
		w := WireValue{Kind: WireDictionary, Dict: make(map[string]WireValue, d.Len())}
		for _, k := range d.Keys() {
			e, _ := d.Get(k)
			ew, err := ToWire(e)
			if err != nil {
				return WireValue{}, err
			}
			w.Dict[k] = ew
		}
		return w, nil
	}
	return WireValue{}, fmt.Errorf("dist: %s values cannot be serialized", v.Kind())
}

// FromWire converts w back into a Value owned by the caller.
func FromWire(w WireValue) (vm.Value, error) {
	switch w.Kind {
	case WireNothing:
		return vm.Nothing, nil
	case WireBoolean:
		return vm.NewBoolean(w.Bool), nil
	case WireNumber:
		n, err := number.Parse(w.Text)
		if err != nil {
			return vm.Nothing, fmt.Errorf("dist: bad number %q: %w", w.Text, err)
		}
		return vm.NewNumber(n), nil
	case WireString:
		return vm.NewString(w.Text), nil
	case WireBytes:
		return vm.NewBytes(w.Bytes), nil
	case WireArray:
		out := make([]vm.Value, 0, len(w.Elems))
		for _, e := range w.Elems {
			v, err := FromWire(e)
			if err != nil {
				vm.NewArray(out).Release()
				return vm.Nothing, err
			}
			out = append(out, v)
		}
		return vm.NewArray(out), nil
	case WireDictionary:
		d := vm.NewDict()
		for k, e := range w.Dict {
			v, err := FromWire(e)
			if err != nil {
				vm.NewDictionary(d).Release()
				return vm.Nothing, err
			}
			d.Set(k, v)
		}
		return vm.NewDictionary(d), nil
	}
	return vm.Nothing, fmt.Errorf("dist: unknown wire kind %d", w.Kind)
}

// MarshalValue serializes v to CBOR bytes.
func MarshalValue(v vm.Value) ([]byte, error) {
	w, err := ToWire(v)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// UnmarshalValue deserializes a Value from CBOR bytes.
func UnmarshalValue(data []byte) (vm.Value, error) {
	var w WireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return vm.Nothing, fmt.Errorf("dist: unmarshal value: %w", err)
	}
	return FromWire(w)
}

// MarshalReport serializes a Report to CBOR bytes.
func MarshalReport(r *Report) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalReport deserializes a Report from CBOR bytes.
func UnmarshalReport(data []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal report: %w", err)
	}
	return &r, nil
}
