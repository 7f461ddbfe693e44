// Package object implements the ordinary/exotic object model: property
// storage via hidden-class Shapes, descriptors, the prototype chain,
// proxies, and the TypedArray/DataView/ArrayBuffer family (spec.md §3.3,
// §3.4, §4.2). Grounded on nooga-paserati's op_setprop.go for the
// shape-keyed inline-cache lookup pattern and on
// original_source/crates/otter-vm-core for typed array / DataView
// semantics.
package object

import (
	"sync/atomic"

	"github.com/quillrt/quill/internal/value"
)

// Attrs packs a property's writable/enumerable/configurable bits plus
// whether it's an accessor, matching the PropertyDescriptor variants in
// spec.md §3.3.
type Attrs struct {
	Writable     bool
	Enumerable   bool
	Configurable bool
	IsAccessor   bool
}

// transitionKey identifies one edge out of a Shape node.
type transitionKey struct {
	key   value.PropertyKey
	attrs Attrs
}

// Shape is the hidden class describing an object's ordered own keys and
// their attributes (spec.md §3.3). Shapes form a transition tree: adding
// the same key (with the same attrs) to a shape twice returns the same
// child shape, and shape pointer identity is the key inline caches use
// (spec.md §3.6).
type Shape struct {
	parent      *Shape
	key         value.PropertyKey
	attrs       Attrs
	offset      int // index into the owning Object's Slots, -1 for the root
	transitions map[transitionKey]*Shape
	// lookup is a flattened key->offset/attrs index covering this shape and
	// every ancestor, built once at transition time so property lookups
	// are O(1) instead of O(depth). This trades memory for the read path,
	// the same trade-off classic hidden-class implementations make.
	lookup map[value.PropertyKey]shapeEntry
}

type shapeEntry struct {
	offset int
	attrs  Attrs
}

// RootShape is the empty shape every fresh ordinary object starts from.
func RootShape() *Shape {
	return &Shape{offset: -1, lookup: map[value.PropertyKey]shapeEntry{}}
}

// Transition returns the (possibly cached) child shape that adds key with
// attrs to the receiver.
func (s *Shape) Transition(key value.PropertyKey, attrs Attrs) *Shape {
	tk := transitionKey{key: key, attrs: attrs}
	if s.transitions == nil {
		s.transitions = make(map[transitionKey]*Shape)
	}
	if child, ok := s.transitions[tk]; ok {
		return child
	}
	offset := len(s.lookup)
	child := &Shape{
		parent: s,
		key:    key,
		attrs:  attrs,
		offset: offset,
		lookup: make(map[value.PropertyKey]shapeEntry, len(s.lookup)+1),
	}
	for k, v := range s.lookup {
		child.lookup[k] = v
	}
	child.lookup[key] = shapeEntry{offset: offset, attrs: attrs}
	s.transitions[tk] = child
	return child
}

// Lookup finds key's storage offset and attributes among this shape's own
// keys.
func (s *Shape) Lookup(key value.PropertyKey) (offset int, attrs Attrs, ok bool) {
	e, ok := s.lookup[key]
	return e.offset, e.attrs, ok
}

// Size is the number of own keys this shape (and its ancestors) describe.
func (s *Shape) Size() int { return len(s.lookup) }

// OwnKeys returns keys in insertion order (oldest first); callers re-sort
// per spec.md §4.2's OrdinaryOwnPropertyKeys ordering (integer-indexed
// ascending, then strings, then symbols) — see Object.OwnKeys.
func (s *Shape) OwnKeys() []value.PropertyKey {
	keys := make([]value.PropertyKey, s.Size())
	for n := s; n.parent != nil; n = n.parent {
		keys[n.offset] = n.key
	}
	return keys
}

// ProtoEpoch is a monotonically increasing per-isolate counter bumped
// whenever any object's [[Prototype]] is reassigned or a prototype's own
// properties mutate in a way that could invalidate chain lookups (spec.md
// §3.4). Inline caches stamp the epoch at cache time and treat a stale
// epoch as a miss.
type ProtoEpoch struct {
	n atomic.Uint64
}

func (e *ProtoEpoch) Current() uint64 { return e.n.Load() }
func (e *ProtoEpoch) Bump()           { e.n.Add(1) }
