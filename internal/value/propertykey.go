package value

// PropertyKeyKind discriminates PropertyKey's three forms (spec.md §3.3).
type PropertyKeyKind uint8

const (
	PropertyKeyString PropertyKeyKind = iota
	PropertyKeyIndex
	PropertyKeySymbol
)

// PropertyKey is String | Index(u32) | Symbol(id); numeric keys within u32
// range are canonicalised to Index at construction time (spec.md §3.3).
type PropertyKey struct {
	kind  PropertyKeyKind
	str   *String
	index uint32
	sym   uint64
}

// NewPropertyKey canonicalises s: if it's exactly a non-negative integer
// literal representable in u32 (no leading zeros, no sign), it becomes an
// Index key; otherwise a String key.
func NewPropertyKey(s *String) PropertyKey {
	if idx, ok := canonicalIndex(s); ok {
		return PropertyKey{kind: PropertyKeyIndex, index: idx}
	}
	return PropertyKey{kind: PropertyKeyString, str: s}
}

func IndexKey(i uint32) PropertyKey {
	return PropertyKey{kind: PropertyKeyIndex, index: i}
}

func SymbolKey(id uint64) PropertyKey {
	return PropertyKey{kind: PropertyKeySymbol, sym: id}
}

func (k PropertyKey) Kind() PropertyKeyKind { return k.kind }
func (k PropertyKey) Str() *String          { return k.str }
func (k PropertyKey) Index() uint32         { return k.index }
func (k PropertyKey) SymbolID() uint64      { return k.sym }

func (k PropertyKey) Equal(o PropertyKey) bool {
	if k.kind != o.kind {
		return false
	}
	switch k.kind {
	case PropertyKeyString:
		return k.str.Equal(o.str)
	case PropertyKeyIndex:
		return k.index == o.index
	default:
		return k.sym == o.sym
	}
}

// canonicalIndex reports whether s is the canonical decimal representation
// of a uint32 ("0", "1", "23"; never "01", "-1", "4294967296").
func canonicalIndex(s *String) (uint32, bool) {
	units := s.Units()
	if len(units) == 0 || len(units) > 10 {
		return 0, false
	}
	if units[0] == '0' && len(units) > 1 {
		return 0, false
	}
	var n uint64
	for _, u := range units {
		if u < '0' || u > '9' {
			return 0, false
		}
		n = n*10 + uint64(u-'0')
		if n > 0xFFFFFFFF {
			return 0, false
		}
	}
	return uint32(n), true
}
