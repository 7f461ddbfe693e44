package gc

// block is a MarkedBlock: a fixed-size, fixed-cell-count arena for one size
// class. cells is allocated once at creation and never reallocated, so
// *Header pointers into it stay stable for the block's lifetime (spec.md
// §3.9's "cells are only freed during a sweep").
type block struct {
	cellSize  uint32
	cells     []Header
	freeBits  []uint64 // 1 = free, one bit per cell
	liveCount int
}

func newBlock(cellSize uint32) *block {
	count := blockBytes / int(cellSize)
	if count == 0 {
		count = 1
	}
	words := (count + 63) / 64
	b := &block{
		cellSize: cellSize,
		cells:    make([]Header, count),
		freeBits: make([]uint64, words),
	}
	for i := range b.freeBits {
		b.freeBits[i] = ^uint64(0)
	}
	// Clamp the last word's high bits so isEmpty/hasFree ignore padding
	// slots beyond count.
	if rem := count % 64; rem != 0 {
		b.freeBits[words-1] = (uint64(1) << uint(rem)) - 1
	}
	return b
}

func (b *block) capacity() int { return len(b.cells) }

func (b *block) isFree(i int) bool {
	return b.freeBits[i/64]&(uint64(1)<<uint(i%64)) != 0
}

func (b *block) setFree(i int, free bool) {
	word, bit := i/64, uint(i%64)
	if free {
		b.freeBits[word] |= 1 << bit
	} else {
		b.freeBits[word] &^= 1 << bit
	}
}

// firstFree returns the index of a free cell, or -1 if the block is full.
func (b *block) firstFree() int {
	for w, word := range b.freeBits {
		if word == 0 {
			continue
		}
		bit := trailingZeros64(word)
		idx := w*64 + bit
		if idx < len(b.cells) {
			return idx
		}
	}
	return -1
}

func (b *block) isEmpty() bool { return b.liveCount == 0 }

func trailingZeros64(x uint64) int {
	if x == 0 {
		return 64
	}
	n := 0
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

// alloc claims a free cell and returns its Header, or nil if the block is
// full.
func (b *block) alloc(size uint32, payload Traceable) *Header {
	i := b.firstFree()
	if i < 0 {
		return nil
	}
	b.setFree(i, false)
	b.liveCount++
	h := &b.cells[i]
	*h = Header{color: White, size: size, block: b, payload: payload}
	return h
}

// sweep walks every allocated cell in the block: White cells are finalized
// and freed, Black cells reset to White for the next cycle. Returns the
// number of cells reclaimed.
func (b *block) sweep() (reclaimed int) {
	for i := range b.cells {
		if b.isFree(i) {
			continue
		}
		h := &b.cells[i]
		switch h.color {
		case White:
			h.payload.Finalize()
			*h = Header{}
			b.setFree(i, true)
			b.liveCount--
			reclaimed++
		case Black:
			h.color = White
		case Gray:
			// Should not happen: sweep only runs once marking has
			// drained the worklist.
			h.color = White
		}
	}
	return reclaimed
}

// directory owns every block for one size class.
type directory struct {
	cellSize uint32
	blocks   []*block
}

func newDirectory(cellSize uint32) *directory {
	return &directory{cellSize: cellSize}
}

func (d *directory) alloc(size uint32, payload Traceable) *Header {
	for _, b := range d.blocks {
		if h := b.alloc(size, payload); h != nil {
			return h
		}
	}
	b := newBlock(d.cellSize)
	d.blocks = append(d.blocks, b)
	return b.alloc(size, payload)
}

// sweep sweeps every block in the directory, then trims empty blocks down
// to MaxEmptyBlocks so RSS doesn't grow unbounded with allocation bursts.
func (d *directory) sweep() (reclaimed int) {
	live := d.blocks[:0]
	empty := 0
	for _, b := range d.blocks {
		reclaimed += b.sweep()
		if b.isEmpty() {
			empty++
			if empty > MaxEmptyBlocks {
				continue // drop the block; Go's GC reclaims the backing array
			}
		}
		live = append(live, b)
	}
	d.blocks = live
	return reclaimed
}
