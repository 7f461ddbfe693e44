package gc

import "github.com/holiman/uint256"

// CardTable tracks dirty 512-byte cards over the old generation. Each
// MarkedBlock is 16 KiB, i.e. exactly cardsPerBlock (32) cards, so one
// uint256 word has room for 8 blocks' worth of dirty bits (32*8=256); we
// keep it simple and spend one word per block, using only its low 32 bits,
// the same "wide word, cheap bit ops" trick go-ethereum's EVM arithmetic
// gets from holiman/uint256 rather than a byte slice scanned one bit at a
// time.
type CardTable struct {
	words map[*block]*uint256.Int
}

// NewCardTable constructs an empty card table.
func NewCardTable() *CardTable {
	return &CardTable{words: make(map[*block]*uint256.Int)}
}

func (c *CardTable) wordFor(b *block) *uint256.Int {
	w, ok := c.words[b]
	if !ok {
		w = new(uint256.Int)
		c.words[b] = w
	}
	return w
}

func cardIndex(h *Header) int {
	if h.block == nil {
		return -1 // large objects have no card; they're always scanned directly
	}
	// A cell can straddle a card boundary: some size classes (48, 96, 192,
	// 384) do not divide cardBytes, and cells larger than cardBytes span
	// several cards. The card containing the cell's first byte is the one
	// used.
	cellIdx := -1
	for i := range h.block.cells {
		if &h.block.cells[i] == h {
			cellIdx = i
			break
		}
	}
	if cellIdx < 0 {
		return -1
	}
	byteOffset := cellIdx * int(h.block.cellSize)
	return byteOffset / cardBytes % cardsPerBlock
}

// Dirty marks the card containing from as dirty.
func (c *CardTable) Dirty(from *Header) {
	idx := cardIndex(from)
	if idx < 0 {
		return
	}
	w := c.wordFor(from.block)
	bit := new(uint256.Int).Lsh(uint256.NewInt(1), uint(idx))
	w.Or(w, bit)
}

// IsDirty reports whether from's card is dirty.
func (c *CardTable) IsDirty(from *Header) bool {
	idx := cardIndex(from)
	if idx < 0 {
		return true // large objects: always treated as dirty, always scanned
	}
	w, ok := c.words[from.block]
	if !ok {
		return false
	}
	bit := new(uint256.Int).Lsh(uint256.NewInt(1), uint(idx))
	return !new(uint256.Int).And(w, bit).IsZero()
}

// ClearBlock resets every card for a block, called after a young
// collection has scanned all of its dirty cards as extra roots.
func (c *CardTable) ClearBlock(b *block) {
	delete(c.words, b)
}
