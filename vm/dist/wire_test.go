package dist

import (
	"errors"
	"testing"

	"github.com/chazu/neon/number"
	"github.com/chazu/neon/vm"
)

func sampleValue() vm.Value {
	d := vm.NewDict()
	d.Set("pi", vm.NewNumber(number.MustParse("3.14159265358979323846264338327950")))
	d.Set("flag", vm.NewBoolean(true))
	d.Set("raw", vm.NewBytes([]byte{0, 1, 2}))
	return vm.NewArray([]vm.Value{
		vm.Nothing,
		vm.NewString("héllo"),
		vm.NewDictionary(d),
		vm.NewArray(nil),
	})
}

func TestValue_CBORRoundTrip(t *testing.T) {
	v := sampleValue()
	data, err := MarshalValue(v)
	if err != nil {
		t.Fatalf("MarshalValue: %v", err)
	}
	got, err := UnmarshalValue(data)
	if err != nil {
		t.Fatalf("UnmarshalValue: %v", err)
	}
	if !got.Equal(v) {
		t.Errorf("round trip: got %s, want %s", got, v)
	}
}

func TestValue_CBORDeterministic(t *testing.T) {
	a, _ := MarshalValue(sampleValue())
	b, _ := MarshalValue(sampleValue())
	if string(a) != string(b) {
		t.Error("encoding is not deterministic")
	}
}

func TestValue_NumberPrecisionPreserved(t *testing.T) {
	n := number.MustParse("0.1000000000000000000000000000000001")
	data, _ := MarshalValue(vm.NewNumber(n))
	got, err := UnmarshalValue(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Number().String() != n.String() {
		t.Errorf("got %s, want %s", got.Number(), n)
	}
}

func TestValue_UnserializableKinds(t *testing.T) {
	o := vm.NewObjectHandle("test.Handle", nil, nil, nil)
	defer o.Release()
	tests := []vm.Value{
		vm.NilPointer(),
		vm.NewArray([]vm.Value{vm.NewObject(o)}),
	}
	for _, v := range tests {
		if _, err := MarshalValue(v); err == nil {
			t.Errorf("MarshalValue(%s) succeeded", v)
		}
	}
}

func TestValue_UnmarshalGarbage(t *testing.T) {
	if _, err := UnmarshalValue([]byte{0xff, 0x00}); err == nil {
		t.Error("garbage accepted")
	}
	bad, _ := cborEncMode.Marshal(WireValue{Kind: WireNumber, Text: "twelve"})
	if _, err := UnmarshalValue(bad); err == nil {
		t.Error("malformed number accepted")
	}
	unknown, _ := cborEncMode.Marshal(WireValue{Kind: 99})
	if _, err := UnmarshalValue(unknown); err == nil {
		t.Error("unknown kind accepted")
	}
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

func TestReport_FromUncaught(t *testing.T) {
	err := &vm.UncaughtException{
		Name:  "E.Sub",
		Info:  "boom",
		Code:  number.FromInt(7),
		Trace: []vm.TraceEntry{{Module: "main", PC: 12}, {Module: "main", PC: 3}},
	}
	r := NewReport(err)
	if r.Kind != ReportUncaught || r.Name != "E.Sub" || r.Code != "7" || len(r.Trace) != 2 {
		t.Fatalf("report = %+v", r)
	}

	data, merr := MarshalReport(r)
	if merr != nil {
		t.Fatalf("MarshalReport: %v", merr)
	}
	got, uerr := UnmarshalReport(data)
	if uerr != nil {
		t.Fatalf("UnmarshalReport: %v", uerr)
	}
	if got.String() != err.Report() {
		t.Errorf("String() = %q, want %q", got.String(), err.Report())
	}
}

func TestReport_Kinds(t *testing.T) {
	tests := []struct {
		err  error
		want ReportKind
	}{
		{&vm.BytecodeError{Module: "m", Offset: 4, Err: vm.ErrTruncatedHeader}, ReportBytecode},
		{&vm.InternalError{PC: 9, Msg: "stack underflow"}, ReportInternal},
		{&vm.ExitError{Code: 3}, ReportExit},
		{errors.New("other"), ReportInternal},
	}
	for _, tt := range tests {
		r := NewReport(tt.err)
		if r.Kind != tt.want {
			t.Errorf("NewReport(%v).Kind = %s, want %s", tt.err, r.Kind, tt.want)
		}
	}
	if NewReport(nil) != nil {
		t.Error("NewReport(nil) should be nil")
	}
	if r := NewReport(&vm.ExitError{Code: 3}); r.ExitCode != 3 {
		t.Errorf("ExitCode = %d", r.ExitCode)
	}
}
