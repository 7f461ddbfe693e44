package gc

// StartCycle begins a new collection: every root is marked gray and queued
// on the mark worklist. Call Step repeatedly (e.g. from the interpreter's
// back-edge safepoint) until it returns false, then the cycle is complete
// and a sweep has already run.
func (h *Heap) StartCycle() {
	if h.phase != PhaseIdle {
		return
	}
	h.phase = PhaseMarking
	h.worklist = h.worklist[:0]
	for _, r := range h.roots {
		r.GCRoots(func(cell *Header) {
			if cell.color == White {
				cell.color = Gray
				h.worklist = append(h.worklist, cell)
			}
		})
	}
}

// Step performs up to budget units of marking work (one unit = one cell
// traced). It returns true if the cycle is still in progress (marking or
// sweeping), false once the heap has returned to PhaseIdle.
func (h *Heap) Step(budget int) bool {
	switch h.phase {
	case PhaseIdle:
		return false
	case PhaseMarking:
		h.markStep(budget)
		if len(h.worklist) == 0 && len(h.writeBuf) == 0 {
			h.phase = PhaseSweeping
		}
		return true
	case PhaseSweeping:
		h.sweepAll()
		h.phase = PhaseIdle
		h.stats.Cycles++
		h.bytesSinceCycle = 0
		return false
	default:
		return false
	}
}

// CollectNow runs a full cycle synchronously (StartCycle + Step until
// idle), used by tests and by the embedder for an explicit forced GC.
func (h *Heap) CollectNow() {
	if h.phase == PhaseIdle {
		h.StartCycle()
	}
	for h.Step(1 << 30) {
	}
}

func (h *Heap) markStep(budget int) {
	for budget > 0 {
		if len(h.writeBuf) > 0 {
			h.flushWriteBuffer()
		}
		if len(h.worklist) == 0 {
			return
		}
		n := len(h.worklist) - 1
		cell := h.worklist[n]
		h.worklist = h.worklist[:n]
		if cell.color == Black {
			continue // already processed via another path
		}
		cell.payload.Trace(func(ref *Header) {
			if ref == nil {
				return
			}
			if ref.color == White {
				ref.color = Gray
				h.worklist = append(h.worklist, ref)
			}
		})
		cell.color = Black
		budget--
	}
}

func (h *Heap) sweepAll() {
	var reclaimedBytes uint64
	var reclaimedCells uint64
	for _, d := range h.dirs {
		before := h.bytesLive
		n := d.sweep()
		reclaimedCells += uint64(n)
		reclaimedBytes += uint64(n) * uint64(d.cellSize)
		_ = before
	}
	live := h.large[:0]
	for _, hdr := range h.large {
		switch hdr.color {
		case White:
			hdr.payload.Finalize()
			reclaimedCells++
			reclaimedBytes += uint64(hdr.size)
		case Black:
			hdr.color = White
			hdr.old = true
			live = append(live, hdr)
		}
	}
	h.large = live

	// Cells that survive a cycle are promoted to the old generation; the
	// generational barrier only needs to track edges out of old cells, so
	// this is done lazily as part of sweep rather than a separate pass.
	for _, d := range h.dirs {
		for _, b := range d.blocks {
			for i := range b.cells {
				if !b.isFree(i) {
					b.cells[i].old = true
				}
			}
		}
	}

	if reclaimedBytes <= h.bytesLive {
		h.bytesLive -= reclaimedBytes
	} else {
		h.bytesLive = 0
	}
	h.stats.CellsReclaimed += reclaimedCells
	h.stats.BytesReclaimed += reclaimedBytes
}

// StatsSnapshot returns a snapshot of cumulative collector counters.
func (h *Heap) StatsSnapshot() Stats { return h.stats }
