package value

import (
	"hash/fnv"
	"sync"
	"unicode/utf16"

	"github.com/holiman/bloomfilter/v2"

	"github.com/quillrt/quill/internal/gc"
)

// String is a UTF-16 code-unit sequence (spec.md §3.2). Strings are
// immutable and GC-managed; cheap cloning just copies the Go slice header,
// not the backing units. Strings hold no outgoing GC references, so Trace
// is a no-op; Finalize has nothing to release either (no user-visible
// finalizers, per spec.md §4.1).
type String struct {
	units []uint16
	hash  uint64
}

func (s *String) Trace(visit func(*gc.Header)) {}
func (s *String) Finalize()                    {}

// NewString builds a String from a Go string (decoding UTF-8 to UTF-16).
func NewString(s string) *String {
	units := utf16.Encode([]rune(s))
	return &String{units: units, hash: fnvHash(units)}
}

// NewStringFromUTF16 wraps an existing UTF-16 unit slice without copying.
func NewStringFromUTF16(units []uint16) *String {
	return &String{units: units, hash: fnvHash(units)}
}

func fnvHash(units []uint16) uint64 {
	h := fnv.New64a()
	b := make([]byte, len(units)*2)
	for i, u := range units {
		b[2*i] = byte(u)
		b[2*i+1] = byte(u >> 8)
	}
	h.Write(b)
	return h.Sum64()
}

func (s *String) Len() int { return len(s.units) }

func (s *String) Units() []uint16 { return s.units }

func (s *String) Equal(o *String) bool {
	if s == o {
		return true
	}
	if s.hash != o.hash || len(s.units) != len(o.units) {
		return false
	}
	for i, u := range s.units {
		if o.units[i] != u {
			return false
		}
	}
	return true
}

func (s *String) String() string {
	return string(utf16.Decode(s.units))
}

// internThreshold caps the length (in UTF-16 units) of literals eligible
// for interning; long strings built at runtime (concatenation results)
// aren't worth the dedup overhead.
const internThreshold = 64

// InternTable deduplicates short string literals across a realm. A bloom
// filter gives a cheap negative pre-check before the map lookup, the same
// role go-ethereum's bloomfilter plays for light-client negative
// membership checks — most interning probes during parsing are for
// strings seen once, so the fast "definitely not present" path matters.
type InternTable struct {
	mu     sync.Mutex
	filter *bloomfilter.Filter
	table  map[uint64][]*String
}

// NewInternTable constructs a table sized for roughly capacity distinct
// literals.
func NewInternTable(capacity uint64) *InternTable {
	if capacity == 0 {
		capacity = 4096
	}
	f, err := bloomfilter.NewOptimal(capacity, 0.01)
	if err != nil {
		// NewOptimal only fails on a degenerate (zero) capacity; capacity
		// is normalized above, so this is unreachable in practice.
		f = nil
	}
	return &InternTable{filter: f, table: make(map[uint64][]*String)}
}

// Intern returns the canonical *String equal to s, registering s as
// canonical if this is the first occurrence. Strings longer than
// internThreshold are returned as-is, uninterned.
func (t *InternTable) Intern(s *String) *String {
	if s.Len() > internThreshold {
		return s
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.filter != nil && !t.filter.Contains(s.hash) {
		t.filter.Add(s.hash)
		t.table[s.hash] = []*String{s}
		return s
	}
	for _, cand := range t.table[s.hash] {
		if cand.Equal(s) {
			return cand
		}
	}
	t.table[s.hash] = append(t.table[s.hash], s)
	if t.filter != nil {
		t.filter.Add(s.hash)
	}
	return s
}
