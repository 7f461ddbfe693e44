package object

import (
	"sort"
	"unsafe"

	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/value"
)

// Caller lets the object model invoke accessor getters/setters without
// importing internal/vm (which imports internal/object), mirroring how the
// spec keeps the interpreter as the thing that "resolves" interception
// signals and accessor calls rather than baking call semantics into the
// object layer itself.
type Caller interface {
	Call(fn value.Value, this value.Value, args []value.Value) (value.Value, error)
}

type accessorPair struct {
	get, set value.Value
}

// Object is an ordinary property bag: a prototype pointer, a Shape
// describing its own string/symbol keys, dense-index storage for
// array-like keys, and the handful of exotic bits arrays need (spec.md
// §3.3).
type Object struct {
	shape      *Shape
	slots      []value.Value
	accessors  map[int]accessorPair
	deleted    map[value.PropertyKey]bool
	proto      *gc.Header
	extensible bool

	isArray    bool
	arrayLen   uint32
	elements   map[uint32]value.Value
	elemAccess map[uint32]accessorPair

	class string // "Object", "Array", "Error", "Arguments", ...
}

// New constructs a plain object with the given prototype (nil for null).
func New(proto *gc.Header) *Object {
	return &Object{shape: RootShape(), proto: proto, extensible: true, class: "Object"}
}

// NewArray constructs an empty array exotic object.
func NewArray(proto *gc.Header) *Object {
	o := New(proto)
	o.isArray = true
	o.class = "Array"
	return o
}

func (o *Object) Class() string    { return o.class }
func (o *Object) SetClass(c string) { o.class = c }
func (o *Object) IsArray() bool    { return o.isArray }
func (o *Object) Extensible() bool { return o.extensible }
func (o *Object) PreventExtensions() { o.extensible = false }
func (o *Object) Proto() *gc.Header  { return o.proto }

// SetProto reassigns [[Prototype]] and bumps the epoch, invalidating every
// IC that cached a lookup through this object's old chain (spec.md §3.4).
func (o *Object) SetProto(p *gc.Header, epoch *ProtoEpoch) {
	o.proto = p
	epoch.Bump()
}

// Trace implements gc.Traceable: visit the prototype, every data-slot
// value, array elements, and accessor function values that hold a heap
// reference.
func (o *Object) Trace(visit func(*gc.Header)) {
	if o.proto != nil {
		visit(o.proto)
	}
	for _, v := range o.slots {
		if r := v.Ref(); r != nil {
			visit(r)
		}
	}
	for _, a := range o.accessors {
		if r := a.get.Ref(); r != nil {
			visit(r)
		}
		if r := a.set.Ref(); r != nil {
			visit(r)
		}
	}
	for _, v := range o.elements {
		if r := v.Ref(); r != nil {
			visit(r)
		}
	}
}

// Finalize releases no external resources for ordinary objects.
func (o *Object) Finalize() {}

// GetOwn looks up key strictly among this object's own properties (no
// prototype walk, no accessor invocation): used by inline caches and by
// Object.keys-style enumeration.
func (o *Object) GetOwn(key value.PropertyKey) (v value.Value, attrs Attrs, ok bool) {
	if o.isArray && key.Kind() == value.PropertyKeyString && key.Str().Equal(lengthKey.Str()) {
		return value.Number(float64(o.arrayLen)), Attrs{Writable: true}, true
	}
	if key.Kind() == value.PropertyKeyIndex {
		if _, hasAcc := o.elemAccess[key.Index()]; hasAcc {
			return value.Undefined, Attrs{IsAccessor: true, Enumerable: true, Configurable: true}, true
		}
		if val, hasVal := o.elements[key.Index()]; hasVal {
			return val, Attrs{Writable: true, Enumerable: true, Configurable: true}, true
		}
		return value.Undefined, Attrs{}, false
	}
	if o.deleted[key] {
		return value.Undefined, Attrs{}, false
	}
	offset, attrs, found := o.shape.Lookup(key)
	if !found {
		return value.Undefined, Attrs{}, false
	}
	if attrs.IsAccessor {
		return value.Undefined, attrs, true
	}
	return o.slots[offset], attrs, true
}

// ShapeIdentity returns an opaque identity token for the object's current
// shape, suitable for stashing in a bytecode.Slot without internal/bytecode
// needing to import internal/object (spec.md §3.6).
func (o *Object) ShapeIdentity() uintptr {
	return uintptr(unsafe.Pointer(o.shape))
}

// GetAtOffset reads a data slot directly by cached offset, skipping the
// shape lookup entirely — the inline-cache fast path takes this once
// Lookup confirms the cached shape still matches (spec.md §3.6).
func (o *Object) GetAtOffset(offset int) (value.Value, bool) {
	if offset < 0 || offset >= len(o.slots) {
		return value.Undefined, false
	}
	return o.slots[offset], true
}

// lengthKey is the well-known "length" string property of arrays.
var lengthKey = value.NewPropertyKey(value.NewString("length"))

// Get implements the [[Get]] internal method: own lookup, falling back to
// the prototype chain, invoking accessor getters with receiver as `this`
// (spec.md §4.2). If the walk reaches a proxy, ErrInterception is returned
// so the interpreter can invoke the proxy's "get" trap.
func Get(startRef *gc.Header, start *Object, key value.PropertyKey, receiver value.Value, caller Caller) (value.Value, error) {
	if start.isArray && key.Kind() == value.PropertyKeyString && key.Str().Equal(lengthKey.Str()) {
		return value.Number(float64(start.arrayLen)), nil
	}
	cur := start
	for {
		if key.Kind() == value.PropertyKeyIndex {
			if a, ok := cur.elemAccess[key.Index()]; ok {
				if a.get.IsUndefined() {
					return value.Undefined, nil
				}
				return caller.Call(a.get, receiver, nil)
			}
			if v, ok := cur.elements[key.Index()]; ok {
				return v, nil
			}
		} else if !cur.deleted[key] {
			if offset, attrs, found := cur.shape.Lookup(key); found {
				if attrs.IsAccessor {
					a := cur.accessors[offset]
					if a.get.IsUndefined() {
						return value.Undefined, nil
					}
					return caller.Call(a.get, receiver, nil)
				}
				return cur.slots[offset], nil
			}
		}
		if cur.proto == nil {
			return value.Undefined, nil
		}
		if p, ok := cur.proto.Payload().(*Object); ok {
			cur = p
			continue
		}
		return value.Undefined, &ErrInterception{Ref: cur.proto, Trap: "get", Key: key}
	}
}

// Set implements the [[Set]] internal method: walks to find an existing
// data/accessor property (respecting writable/setter), otherwise creates
// an own property via DefineOwnProperty (spec.md §4.2).
func Set(ref *gc.Header, o *Object, key value.PropertyKey, v value.Value, receiver value.Value, caller Caller, epoch *ProtoEpoch) error {
	if o.isArray {
		if key.Kind() == value.PropertyKeyString && key.Str().Equal(lengthKey.Str()) {
			return o.setLength(v)
		}
		if key.Kind() == value.PropertyKeyIndex {
			if a, ok := o.elemAccess[key.Index()]; ok {
				if !a.set.IsUndefined() {
					_, err := caller.Call(a.set, receiver, []value.Value{v})
					return err
				}
				return nil
			}
			if o.elements == nil {
				o.elements = map[uint32]value.Value{}
			}
			o.elements[key.Index()] = v
			if key.Index() >= o.arrayLen {
				o.arrayLen = key.Index() + 1
			}
			return nil
		}
	} else if key.Kind() == value.PropertyKeyIndex {
		if o.elements == nil {
			o.elements = map[uint32]value.Value{}
		}
		o.elements[key.Index()] = v
		return nil
	}

	// Walk the chain looking for an existing accessor/non-writable data
	// property that governs the write.
	for curObj := o; ; {
		if !curObj.deleted[key] {
			if offset, attrs, found := curObj.shape.Lookup(key); found {
				if attrs.IsAccessor {
					a := curObj.accessors[offset]
					if a.set.IsUndefined() {
						return nil // no setter: silently ignored (non-strict) semantics
					}
					_, err := caller.Call(a.set, receiver, []value.Value{v})
					return err
				}
				if curObj == o {
					if !attrs.Writable {
						return nil
					}
					o.slots[offset] = v
					return nil
				}
				if !attrs.Writable {
					return nil
				}
				break // found on the prototype, writable data: fall through to own-define
			}
		}
		if curObj.proto == nil {
			break
		}
		if p, ok := curObj.proto.Payload().(*Object); ok {
			curObj = p
			continue
		}
		return &ErrInterception{Ref: curObj.proto, Trap: "set", Key: key}
	}
	return o.DefineOwnProperty(key, Descriptor{Value: v, Attrs: Attrs{Writable: true, Enumerable: true, Configurable: true}}, epoch)
}

func (o *Object) setLength(v value.Value) error {
	n := value.ToUint32(v.NumericValue())
	if n < o.arrayLen {
		for idx := range o.elements {
			if idx >= n {
				delete(o.elements, idx)
			}
		}
	}
	o.arrayLen = n
	return nil
}

// Descriptor is the data-or-accessor descriptor used by DefineOwnProperty,
// mirroring spec.md §3.3's PropertyDescriptor variants.
type Descriptor struct {
	Value      value.Value
	Get, Set   value.Value
	Attrs      Attrs
}

// DefineOwnProperty implements a simplified OrdinaryDefineOwnProperty
// (ES2024 §10.1.6): honors the non-configurable restrictions and
// transitions (or reuses) the object's shape.
func (o *Object) DefineOwnProperty(key value.PropertyKey, d Descriptor, epoch *ProtoEpoch) error {
	if key.Kind() == value.PropertyKeyIndex {
		if d.Attrs.IsAccessor {
			if o.elemAccess == nil {
				o.elemAccess = map[uint32]accessorPair{}
			}
			o.elemAccess[key.Index()] = accessorPair{get: d.Get, set: d.Set}
		} else {
			if o.elements == nil {
				o.elements = map[uint32]value.Value{}
			}
			o.elements[key.Index()] = d.Value
		}
		if o.isArray && key.Index() >= o.arrayLen {
			o.arrayLen = key.Index() + 1
		}
		return nil
	}

	if offset, existing, found := o.shape.Lookup(key); found && !o.deleted[key] {
		if !existing.Configurable {
			if existing.IsAccessor != d.Attrs.IsAccessor {
				return errNonConfigurable(key)
			}
			if !existing.IsAccessor && !existing.Writable && d.Attrs.Writable {
				return errNonConfigurable(key)
			}
		}
		if d.Attrs.IsAccessor {
			o.accessors[offset] = accessorPair{get: d.Get, set: d.Set}
		} else {
			o.slots[offset] = d.Value
		}
		return nil
	}
	if !o.extensible {
		return errNotExtensible(key)
	}
	delete(o.deleted, key)
	o.shape = o.shape.Transition(key, d.Attrs)
	o.slots = append(o.slots, value.Undefined)
	if d.Attrs.IsAccessor {
		if o.accessors == nil {
			o.accessors = map[int]accessorPair{}
		}
		o.accessors[len(o.slots)-1] = accessorPair{get: d.Get, set: d.Set}
	} else {
		o.slots[len(o.slots)-1] = d.Value
	}
	epoch.Bump()
	return nil
}

// Delete implements [[Delete]]: obeys non-configurability (spec.md §4.2).
func (o *Object) Delete(key value.PropertyKey) bool {
	if key.Kind() == value.PropertyKeyIndex {
		if _, ok := o.elements[key.Index()]; ok {
			delete(o.elements, key.Index())
			return true
		}
		if _, ok := o.elemAccess[key.Index()]; ok {
			delete(o.elemAccess, key.Index())
			return true
		}
		return true
	}
	_, attrs, found := o.shape.Lookup(key)
	if !found || o.deleted[key] {
		return true
	}
	if !attrs.Configurable {
		return false
	}
	if o.deleted == nil {
		o.deleted = map[value.PropertyKey]bool{}
	}
	o.deleted[key] = true
	return true
}

// OwnKeys returns string/index keys in insertion order then symbol keys in
// insertion order, with integer-indexed keys sorted ascending first
// (ES2024 §20.1.1.6 OrdinaryOwnPropertyKeys, spec.md §4.2).
func (o *Object) OwnKeys() []value.PropertyKey {
	var indices []uint32
	for idx := range o.elements {
		indices = append(indices, idx)
	}
	for idx := range o.elemAccess {
		if _, dup := o.elements[idx]; !dup {
			indices = append(indices, idx)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	var strings, symbols []value.PropertyKey
	for _, k := range o.shape.OwnKeys() {
		if o.deleted[k] {
			continue
		}
		if k.Kind() == value.PropertyKeySymbol {
			symbols = append(symbols, k)
		} else {
			strings = append(strings, k)
		}
	}

	out := make([]value.PropertyKey, 0, len(indices)+len(strings)+len(symbols))
	for _, idx := range indices {
		out = append(out, value.IndexKey(idx))
	}
	out = append(out, strings...)
	out = append(out, symbols...)
	return out
}

// ErrInterception is the sentinel the interpreter pattern-matches to
// redirect a core operation into a proxy trap call (spec.md §6, §9's
// "Interception signal"). It is never user-visible.
type ErrInterception struct {
	Ref  *gc.Header
	Trap string
	Key  value.PropertyKey
}

func (e *ErrInterception) Error() string { return "object: interception signal: " + e.Trap }

type definitionError struct {
	msg string
}

func (e *definitionError) Error() string { return e.msg }

func errNonConfigurable(key value.PropertyKey) error {
	return &definitionError{msg: "TypeError: cannot redefine non-configurable property"}
}

func errNotExtensible(key value.PropertyKey) error {
	return &definitionError{msg: "TypeError: object is not extensible"}
}
