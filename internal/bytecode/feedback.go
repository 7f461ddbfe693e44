package bytecode

import "sync/atomic"

// ICState is an inline cache slot's lifecycle state (spec.md §3.6).
type ICState uint8

const (
	ICUninitialized ICState = iota
	ICMonomorphic
	ICPolymorphic
	ICMegamorphic
)

// maxPolymorphicEntries is the point at which a 5th distinct shape forces
// a transition to Megamorphic (spec.md §3.6's invariant).
const maxPolymorphicEntries = 4

// TypeFlags is a monotone bitfield of value kinds an IC site has observed;
// bits are only ever set, never cleared (spec.md §3.6).
type TypeFlags uint8

const (
	TypeUndefined TypeFlags = 1 << iota
	TypeNull
	TypeBoolean
	TypeInt32
	TypeNumber
	TypeString
	TypeObject
	TypeFunction
)

// shapeEntry is one cached (shape identity, property offset) pair. ShapeID
// is an opaque identity token the object layer hands in (e.g. a pointer
// cast to uintptr) — internal/bytecode never imports internal/object, so
// it can't compare *object.Shape directly; ShapeID decouples the two.
type shapeEntry struct {
	shapeID uintptr
	offset  int
}

// Slot is one feedback-vector entry: the IC state, up to 4 polymorphic
// cache entries, the hit counter, observed TypeFlags, and the proto_epoch
// stamped at cache time.
type Slot struct {
	state   ICState
	entries []shapeEntry
	hits    uint64
	types   TypeFlags
	epoch   uint64
}

func (s *Slot) State() ICState   { return s.state }
func (s *Slot) Hits() uint64     { return s.hits }
func (s *Slot) Types() TypeFlags { return s.types }
func (s *Slot) Epoch() uint64    { return s.epoch }

// RecordType ORs observed into the slot's TypeFlags (monotone, never
// cleared).
func (s *Slot) RecordType(observed TypeFlags) { s.types |= observed }

// Lookup returns the cached offset for shapeID if the slot is Monomorphic
// or Polymorphic and holds an entry for it, and the cached epoch still
// matches currentEpoch — otherwise a stale epoch or absent entry is a miss
// (spec.md §3.6's epoch-invalidation invariant).
func (s *Slot) Lookup(shapeID uintptr, currentEpoch uint64) (offset int, ok bool) {
	if s.epoch != currentEpoch {
		return 0, false
	}
	for _, e := range s.entries {
		if e.shapeID == shapeID {
			return e.offset, true
		}
	}
	return 0, false
}

// Update records a (shapeID, offset) observation, driving the
// Uninitialized -> Monomorphic -> Polymorphic(<=4) -> Megamorphic
// transition (spec.md §3.6). A stale epoch resets the slot before
// recording, matching "a stale proto_epoch MUST be treated as a miss and
// the cache re-initialised".
func (s *Slot) Update(shapeID uintptr, offset int, currentEpoch uint64) {
	if s.epoch != currentEpoch {
		s.state = ICUninitialized
		s.entries = nil
		s.epoch = currentEpoch
	}
	s.hits++

	for i, e := range s.entries {
		if e.shapeID == shapeID {
			s.entries[i].offset = offset
			return
		}
	}
	switch s.state {
	case ICUninitialized:
		s.entries = append(s.entries, shapeEntry{shapeID, offset})
		s.state = ICMonomorphic
	case ICMonomorphic:
		s.entries = append(s.entries, shapeEntry{shapeID, offset})
		s.state = ICPolymorphic
	case ICPolymorphic:
		if len(s.entries) >= maxPolymorphicEntries {
			s.state = ICMegamorphic
			s.entries = nil
			return
		}
		s.entries = append(s.entries, shapeEntry{shapeID, offset})
	case ICMegamorphic:
		// Megamorphic sites stop caching individual shapes; the interpreter
		// always falls back to a full shape walk for them.
	}
}

// FeedbackVector is a function's complete set of IC slots plus a debug-only
// thread-confinement token addressing spec.md §9's open question ("a
// Sync+Send wrapper exists purely to satisfy GC-ref bounds, with thread
// confinement asserted at the isolate boundary"): release builds never
// call assertConfined's panic path in a way that costs anything beyond one
// atomic CAS, so it stays compiled in rather than behind a build tag.
type FeedbackVector struct {
	slots []Slot
	token confinementToken
}

func NewFeedbackVector(n int) *FeedbackVector {
	return &FeedbackVector{slots: make([]Slot, n)}
}

// Slot returns the i'th IC slot, asserting single-goroutine confinement
// (spec.md §9).
func (fv *FeedbackVector) Slot(i int32, callerGoid int64) *Slot {
	fv.token.assertConfined(callerGoid)
	return &fv.slots[i]
}

func (fv *FeedbackVector) Len() int { return len(fv.slots) }

// confinementToken is FeedbackVector's half of the debug assertion: the
// first caller's goroutine-identifying token is latched, and any later
// caller presenting a different token panics. It is a coarse stand-in for
// a true goroutine id, exactly like gc.goidToken, whose role here is
// identical but which cannot be reused directly since internal/bytecode
// does not import internal/gc.
type confinementToken struct {
	owner atomic.Int64
	set   atomic.Bool
}

func (t *confinementToken) assertConfined(id int64) {
	if !t.set.CompareAndSwap(false, true) {
		if t.owner.Load() != id {
			panic("bytecode: FeedbackVector accessed from more than one thread-confined caller")
		}
		return
	}
	t.owner.Store(id)
}
