package object

import "github.com/quillrt/quill/internal/value"

// MaxArrayLength bounds array length the way the ECMAScript array exotic
// object does (2^32 - 1); NewPropertyKey's canonicalIndex already rejects
// anything above uint32 range, so this is mostly documentation for
// setLength's callers.
const MaxArrayLength = 0xFFFFFFFF

// IsArrayIndex reports whether key names an ECMAScript array index: a
// canonical non-negative integer string strictly less than 2^32-1.
func IsArrayIndex(key value.PropertyKey) bool {
	return key.Kind() == value.PropertyKeyIndex && key.Index() != MaxArrayLength
}

// Elements returns the array's own indexed values in ascending index order,
// skipping holes (spec.md §4.2's array exotic object has no requirement to
// materialize holes as values).
func (o *Object) Elements() []value.Value {
	if !o.isArray {
		return nil
	}
	out := make([]value.Value, 0, len(o.elements))
	for i := uint32(0); i < o.arrayLen; i++ {
		if v, ok := o.elements[i]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Length returns the array's current length property value.
func (o *Object) Length() uint32 { return o.arrayLen }

// Push appends v at the end of an array, growing length by one.
func (o *Object) Push(v value.Value) {
	if o.elements == nil {
		o.elements = map[uint32]value.Value{}
	}
	o.elements[o.arrayLen] = v
	o.arrayLen++
}
