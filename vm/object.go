package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Object: reference-counted handle to a host resource
// ---------------------------------------------------------------------------

// Object wraps a host resource (open file, database connection, ...) that
// several Values may share. The release callback runs exactly once, when the
// last reference is dropped.
type Object struct {
	// Type names the resource family, e.g. "textio.File".
	Type   string
	Handle any
	ID     uuid.UUID

	refs      atomic.Int64
	once      sync.Once
	onRelease func(handle any)
	toString  func(handle any) string
	closed    atomic.Bool
}

var liveObjects atomic.Int64

// NewObjectHandle creates an Object with a reference count of one.
// onRelease and toString may be nil.
func NewObjectHandle(typ string, handle any, onRelease func(any), toString func(any) string) *Object {
	o := &Object{
		Type:      typ,
		Handle:    handle,
		ID:        uuid.New(),
		onRelease: onRelease,
		toString:  toString,
	}
	o.refs.Store(1)
	liveObjects.Add(1)
	return o
}

// LiveObjects returns the number of Objects whose release callback has not
// run yet, across all executors.
func LiveObjects() int64 { return liveObjects.Load() }

// Retain adds a reference.
func (o *Object) Retain() {
	o.refs.Add(1)
}

// Release drops a reference and runs the release callback when the count
// reaches zero.
func (o *Object) Release() {
	n := o.refs.Add(-1)
	if n == 0 {
		o.dispose()
	} else if n < 0 {
		panic(&InternalError{PC: -1, Msg: fmt.Sprintf("object %s released too many times", o.ID)})
	}
}

// Close runs the release callback early, leaving the handle closed while
// references to it remain. Later use of the handle should raise
// ObjectClosedException.
func (o *Object) Close() {
	o.dispose()
}

// Closed reports whether the release callback has run.
func (o *Object) Closed() bool { return o.closed.Load() }

// Refs returns the current reference count.
func (o *Object) Refs() int64 { return o.refs.Load() }

func (o *Object) dispose() {
	o.once.Do(func() {
		o.closed.Store(true)
		liveObjects.Add(-1)
		if o.onRelease != nil {
			o.onRelease(o.Handle)
		}
	})
}

func (o *Object) String() string {
	if o == nil {
		return "<object null>"
	}
	if o.toString != nil && !o.Closed() {
		return o.toString(o.Handle)
	}
	return fmt.Sprintf("<%s %s>", o.Type, o.ID)
}
