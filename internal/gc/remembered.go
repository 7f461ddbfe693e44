package gc

// RememberedSet tracks old-generation cells known to hold a reference into
// the young generation, used as extra roots for a young-only collection.
type RememberedSet struct {
	members map[*Header]struct{}
}

// NewRememberedSet constructs an empty remembered set.
func NewRememberedSet() *RememberedSet {
	return &RememberedSet{members: make(map[*Header]struct{})}
}

// Add records from as holding an old→young edge.
func (r *RememberedSet) Add(from *Header) {
	r.members[from] = struct{}{}
}

// Range visits every remembered cell.
func (r *RememberedSet) Range(visit func(*Header)) {
	for h := range r.members {
		visit(h)
	}
}

// Clear empties the set, typically after a full collection makes it
// redundant.
func (r *RememberedSet) Clear() {
	r.members = make(map[*Header]struct{})
}

// Len reports the number of remembered cells.
func (r *RememberedSet) Len() int { return len(r.members) }
