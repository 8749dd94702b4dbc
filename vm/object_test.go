package vm

import (
	"errors"
	"path/filepath"
	"testing"
)

// ---------------------------------------------------------------------------
// Object reference counting
// ---------------------------------------------------------------------------

func newCountedObject(count *int) *Object {
	return NewObjectHandle("test.Handle", "payload", func(any) { *count++ }, nil)
}

func TestObjectReleasedOnceAcrossCopies(t *testing.T) {
	released := 0
	v := NewObject(newCountedObject(&released))
	c1 := v.Copy()
	arr := NewArray([]Value{v.Copy(), c1.Copy()})

	if got := v.Object().Refs(); got != 4 {
		t.Errorf("Refs = %d, want 4", got)
	}

	v.Release()
	c1.Release()
	if released != 0 {
		t.Fatal("released while the array still holds references")
	}
	arr.Release()
	if released != 1 {
		t.Errorf("release callback ran %d times, want 1", released)
	}
	if !arr.Array()[0].Object().Closed() {
		t.Error("object should be closed after last release")
	}
}

func TestObjectCloseEarly(t *testing.T) {
	released := 0
	o := newCountedObject(&released)
	v := NewObject(o)
	keep := v.Copy()

	o.Close()
	if released != 1 || !o.Closed() {
		t.Fatalf("Close: released=%d closed=%v", released, o.Closed())
	}
	v.Release()
	keep.Release()
	if released != 1 {
		t.Errorf("release callback ran %d times after Close, want 1", released)
	}
}

func TestObjectOverReleasePanics(t *testing.T) {
	o := NewObjectHandle("test.Handle", nil, nil, nil)
	o.Release()
	defer func() {
		if _, ok := recover().(*InternalError); !ok {
			t.Error("releasing a dead object should panic with *InternalError")
		}
	}()
	o.Release()
}

func TestLiveObjectsCounter(t *testing.T) {
	before := LiveObjects()
	o := NewObjectHandle("test.Handle", nil, nil, nil)
	if LiveObjects() != before+1 {
		t.Errorf("LiveObjects = %d, want %d", LiveObjects(), before+1)
	}
	o.Release()
	if LiveObjects() != before {
		t.Errorf("LiveObjects = %d after release, want %d", LiveObjects(), before)
	}
}

func TestObjectString(t *testing.T) {
	o := NewObjectHandle("test.Handle", "h", nil, func(h any) string { return "<" + h.(string) + ">" })
	defer o.Release()
	if o.String() != "<h>" {
		t.Errorf("String() = %q", o.String())
	}
	var nilObj *Object
	if nilObj.String() != "<object null>" {
		t.Errorf("nil String() = %q", nilObj.String())
	}
}

func TestExecutorReleasesObjectsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	c := newCode()
	c.globals = 1
	c.pushS(path)
	c.pushS("w")
	c.callP(t, "textio$open")
	c.EmitUint16(OpStoreG, 0)
	c.EmitUint16(OpLoadG, 0)
	c.EmitUint16(OpLoadG, 0)
	c.EmitUint16(OpConsA, 2)
	c.EmitUint16(OpStoreG, 0)
	c.Emit(OpHALT)

	before := LiveObjects()
	ex := NewExecutor(DefaultConfig())
	if _, err := ex.Run(c.module()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := LiveObjects(); got != before+1 {
		t.Fatalf("LiveObjects = %d while stored in a global, want %d", got, before+1)
	}
	ex.Close()
	if got := LiveObjects(); got != before {
		t.Errorf("LiveObjects = %d after Close, want %d", got, before)
	}
}

func TestObjectClosedRaises(t *testing.T) {
	o := NewObjectHandle(textFileType, &textFile{}, nil, nil)
	o.Close()
	s := NewStack(0)
	s.Push(NewObject(o))
	_, _, err := popObject(s, textFileType)
	var re *RaisedException
	if !errors.As(err, &re) || re.Name != ExcObjectClosed {
		t.Errorf("err = %v, want ObjectClosedException", err)
	}
}
