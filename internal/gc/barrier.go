package gc

// writeBufferCap bounds the insertion barrier's buffer before it's flushed
// to the mark worklist, per spec.md §4.1 ("Optionally buffered — when a
// buffer reaches capacity it is flushed").
const writeBufferCap = 256

// WriteBarrier is the Dijkstra insertion barrier: called by the
// interpreter at every object-slot write `from.slot = to`. If from is
// already Black and to is White, to must be shaded Gray or the invariant
// "no Black cell points to a White cell" breaks mid-mark.
func (h *Heap) WriteBarrier(from, to *Header) {
	if to == nil || h.phase != PhaseMarking {
		return
	}
	if from != nil && from.color == Black && to.color == White {
		to.color = Gray
		h.writeBuf = append(h.writeBuf, to)
		if len(h.writeBuf) >= writeBufferCap {
			h.flushWriteBuffer()
		}
	}
}

func (h *Heap) flushWriteBuffer() {
	h.worklist = append(h.worklist, h.writeBuf...)
	h.writeBuf = h.writeBuf[:0]
}

// DeleteBarrier is the Yuasa (snapshot-at-the-beginning) deletion barrier:
// called before an object slot's old value is overwritten. Preserves the
// snapshot the concurrent mark phase is working from.
func (h *Heap) DeleteBarrier(oldValue *Header) {
	if oldValue == nil || h.phase != PhaseMarking {
		return
	}
	if oldValue.color == White {
		oldValue.color = Gray
		h.worklist = append(h.worklist, oldValue)
	}
}

// GenerationalBarrier records an old→young edge: if from is old and to is
// young, from is added to the remembered set and its card is dirtied.
// Young collections use the remembered set plus dirty cards as additional
// roots instead of rescanning the whole old generation.
func (h *Heap) GenerationalBarrier(from, to *Header) {
	if from == nil || to == nil {
		return
	}
	if from.old && !to.old {
		h.remembered.Add(from)
		h.cards.Dirty(from)
	}
}
