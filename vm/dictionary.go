package vm

import "sort"

// Dictionary maps String keys to Values. Iteration follows key order, not
// insertion order.
type Dictionary struct {
	m map[string]Value
}

// NewDict creates an empty dictionary.
func NewDict() *Dictionary {
	return &Dictionary{m: make(map[string]Value)}
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.m) }

// Get returns the value stored under key. The value is still owned by d.
func (d *Dictionary) Get(key string) (Value, bool) {
	v, ok := d.m[key]
	return v, ok
}

// Has reports whether key is present.
func (d *Dictionary) Has(key string) bool {
	_, ok := d.m[key]
	return ok
}

// Set stores v under key, taking ownership of v and releasing any value it
// replaces.
func (d *Dictionary) Set(key string, v Value) {
	if old, ok := d.m[key]; ok {
		old.Release()
	}
	d.m[key] = v
}

// Remove deletes key, releasing its value. Missing keys are ignored.
func (d *Dictionary) Remove(key string) {
	if old, ok := d.m[key]; ok {
		old.Release()
		delete(d.m, key)
	}
}

// Keys returns the keys in ascending order.
func (d *Dictionary) Keys() []string {
	keys := make([]string, 0, len(d.m))
	for k := range d.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copy deep-copies the dictionary.
func (d *Dictionary) Copy() *Dictionary {
	out := &Dictionary{m: make(map[string]Value, len(d.m))}
	for k, v := range d.m {
		out.m[k] = v.Copy()
	}
	return out
}

// Equal compares key sets and values.
func (d *Dictionary) Equal(o *Dictionary) bool {
	if len(d.m) != len(o.m) {
		return false
	}
	for k, v := range d.m {
		w, ok := o.m[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

func (d *Dictionary) release() {
	for _, v := range d.m {
		v.Release()
	}
}
