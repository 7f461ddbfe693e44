package gc

// Traceable is implemented by every value that can live in a GC cell:
// objects, shapes, strings, functions, generator frames, and so on (see
// internal/object and internal/bytecode). It is the Go-idiomatic stand-in
// for the spec's type-erased trace_fn/drop_fn pair — Trace discovers
// outgoing references, Finalize runs the (type-erased, no user-visible
// finalizers) cleanup at sweep time.
type Traceable interface {
	// Trace calls visit once for every outgoing reference this value holds.
	Trace(visit func(*Header))
	// Finalize runs exactly once, when a cell is swept as unreachable.
	Finalize()
}

// Header is a cell's GC metadata plus its payload. A *Header is the
// runtime's GcRef: a raw interior pointer, safe to dereference because
// cells are only freed during a sweep that has already proved them
// unreachable (spec.md §3.9).
type Header struct {
	color   Color
	old     bool // generational: true once this cell survived a collection
	size    uint32
	block   *block // owning block; nil for large-object-space cells
	payload Traceable
}

// Payload returns the cell's value. Callers type-assert to the concrete
// type they expect (internal/object, internal/bytecode, internal/value own
// the concrete Traceable implementations).
func (h *Header) Payload() Traceable { return h.payload }

// Color reports the cell's current mark color.
func (h *Header) Color() Color { return h.color }

// Old reports whether this cell has been promoted to the old generation.
func (h *Header) Old() bool { return h.old }
