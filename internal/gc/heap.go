package gc

// Heap is the isolate's exclusive memory manager: one BlockDirectory per
// size class, a large-object space for cells over 8 KiB, the remembered
// set / card table for the generational barrier, and the incremental
// mark/sweep state machine.
type Heap struct {
	dirs  [14]*directory
	large []*Header

	roots []RootProvider

	remembered *RememberedSet
	cards      *CardTable

	phase    Phase
	worklist []*Header
	writeBuf []*Header

	bytesLive       uint64
	bytesSinceCycle uint64
	softLimit       uint64

	stats Stats
	token goidToken
}

// Stats are cumulative collector counters, surfaced by internal/metrics.
type Stats struct {
	Cycles         uint64
	CellsReclaimed uint64
	BytesReclaimed uint64
}

// NewHeap constructs an empty heap. softLimit is the byte threshold (sum of
// requested cell sizes since the last cycle) that triggers an automatic
// StartCycle from Alloc; zero disables automatic triggering (the embedder
// drives collection manually, e.g. in tests).
func NewHeap(softLimit uint64) *Heap {
	h := &Heap{
		remembered: NewRememberedSet(),
		cards:      NewCardTable(),
		softLimit:  softLimit,
	}
	for i, sz := range sizeClasses {
		h.dirs[i] = newDirectory(sz)
	}
	return h
}

// AddRoot registers a root provider. Roots are re-walked at the start of
// every collection cycle.
func (h *Heap) AddRoot(p RootProvider) {
	h.roots = append(h.roots, p)
}

// Alloc returns a *Header for a new cell sized to fit size bytes, running
// the payload's Trace/Finalize via the Traceable interface. Cells over
// 8 KiB go to large-object space, one allocation per record.
func (h *Heap) Alloc(size uint32, payload Traceable) *Header {
	var hdr *Header
	if idx, ok := sizeClassFor(size); ok {
		hdr = h.dirs[idx].alloc(size, payload)
	} else {
		hdr = &Header{color: White, size: size, payload: payload}
		h.large = append(h.large, hdr)
	}
	h.bytesLive += uint64(size)
	h.bytesSinceCycle += uint64(size)
	if h.phase == PhaseMarking {
		// Cells allocated mid-cycle are allocated black: they were not
		// part of the root snapshot, so they cannot be incorrectly swept
		// as unreachable white garbage this cycle.
		hdr.color = Black
	}
	if h.softLimit != 0 && h.phase == PhaseIdle && h.bytesSinceCycle >= h.softLimit {
		h.StartCycle()
	}
	return hdr
}

// Phase reports the collector's current activity.
func (h *Heap) Phase() Phase { return h.phase }

// BytesLive is the sum of requested sizes for all cells not yet known to
// be garbage (an upper bound, not an exact live-set size, until a sweep
// completes).
func (h *Heap) BytesLive() uint64 { return h.bytesLive }

// Remembered exposes the remembered set for the event loop / extension
// host to register cross-generation edges they hold directly (rare; most
// edges go through WriteBarrier).
func (h *Heap) Remembered() *RememberedSet { return h.remembered }

// Cards exposes the card table.
func (h *Heap) Cards() *CardTable { return h.cards }
