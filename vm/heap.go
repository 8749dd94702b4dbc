package vm

import "fmt"

// ---------------------------------------------------------------------------
// Records and pointers
// ---------------------------------------------------------------------------

// Pointer references a Record in an executor's RecordHeap. The zero Pointer
// is nil. A pointer whose record has been freed is dangling: it keeps its
// slot but its generation no longer matches.
type Pointer struct {
	slot uint32
	gen  uint32
}

// IsNil reports whether p is the nil pointer.
func (p Pointer) IsNil() bool { return p.slot == 0 }

func (p Pointer) String() string {
	if p.IsNil() {
		return "NIL"
	}
	return fmt.Sprintf("<p:%d>", p.slot)
}

type record struct {
	fields []Value
	gen    uint32
	live   bool
}

// RecordHeap is an arena of records addressed by generation-checked
// pointers. Slot 0 is reserved for nil.
type RecordHeap struct {
	records []record
	free    []uint32
	live    int
}

// NewRecordHeap creates an empty heap.
func NewRecordHeap() *RecordHeap {
	return &RecordHeap{records: make([]record, 1, 16)}
}

// Alloc creates a record of n Nothing fields.
func (h *RecordHeap) Alloc(n int) Pointer {
	fields := make([]Value, n)
	h.live++
	if k := len(h.free); k > 0 {
		slot := h.free[k-1]
		h.free = h.free[:k-1]
		r := &h.records[slot]
		r.fields = fields
		r.live = true
		return Pointer{slot: slot, gen: r.gen}
	}
	h.records = append(h.records, record{fields: fields, gen: 1, live: true})
	return Pointer{slot: uint32(len(h.records) - 1), gen: 1}
}

// Valid reports whether p refers to a live record.
func (h *RecordHeap) Valid(p Pointer) bool {
	if p.IsNil() || int(p.slot) >= len(h.records) {
		return false
	}
	r := &h.records[p.slot]
	return r.live && r.gen == p.gen
}

// Fields returns the field storage of the record p refers to. The error is a
// NullPointerException for nil and an InvalidPointerException for a
// dangling pointer.
func (h *RecordHeap) Fields(p Pointer) ([]Value, error) {
	if p.IsNil() {
		return nil, Raise(ExcNullPointer, "")
	}
	if !h.Valid(p) {
		return nil, Raise(ExcInvalidPointer, p.String())
	}
	return h.records[p.slot].fields, nil
}

// Free disposes of the record, releasing its fields. Every outstanding
// pointer to it becomes dangling.
func (h *RecordHeap) Free(p Pointer) error {
	if _, err := h.Fields(p); err != nil {
		return err
	}
	r := &h.records[p.slot]
	for _, f := range r.fields {
		f.Release()
	}
	r.fields = nil
	r.live = false
	r.gen++
	h.free = append(h.free, p.slot)
	h.live--
	return nil
}

// Live returns the number of allocated records.
func (h *RecordHeap) Live() int { return h.live }

// Close frees every live record.
func (h *RecordHeap) Close() {
	for slot := 1; slot < len(h.records); slot++ {
		r := &h.records[slot]
		if r.live {
			for _, f := range r.fields {
				f.Release()
			}
			r.fields = nil
			r.live = false
			r.gen++
		}
	}
	h.free = h.free[:0]
	h.records = h.records[:1]
	h.live = 0
}
