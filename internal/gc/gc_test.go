package gc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// node is a minimal Traceable used across this package's tests: a cell that
// can point at up to two others.
type node struct {
	name       string
	finalized  *bool
	a, b       *Header
}

func (n *node) Trace(visit func(*Header)) {
	if n.a != nil {
		visit(n.a)
	}
	if n.b != nil {
		visit(n.b)
	}
}

func (n *node) Finalize() {
	if n.finalized != nil {
		*n.finalized = true
	}
}

func TestAllocAssignsSizeClass(t *testing.T) {
	h := NewHeap(0)
	hdr := h.Alloc(10, &node{name: "leaf"})
	require.Equal(t, White, hdr.Color())
	require.NotNil(t, hdr.block)
	require.Equal(t, uint32(16), hdr.block.cellSize)
}

func TestAllocLargeObject(t *testing.T) {
	h := NewHeap(0)
	hdr := h.Alloc(9000, &node{name: "big"})
	require.Nil(t, hdr.block)
	require.Contains(t, h.large, hdr)
}

func TestCollectReclaimsUnreachable(t *testing.T) {
	h := NewHeap(0)
	finalized := false
	garbage := h.Alloc(16, &node{name: "garbage", finalized: &finalized})
	_ = garbage

	h.CollectNow()

	require.True(t, finalized, "unreachable cell must be finalized on sweep")
}

func TestCollectKeepsReachableGraph(t *testing.T) {
	h := NewHeap(0)
	var rootRef *Header

	leaf := h.Alloc(16, &node{name: "leaf"})
	parent := h.Alloc(16, &node{name: "parent", a: leaf})
	rootRef = parent

	h.AddRoot(RootProviderFunc(func(visit func(*Header)) {
		visit(rootRef)
	}))

	h.CollectNow()

	require.Equal(t, White, rootRef.Color())
	require.Equal(t, White, leaf.Color())
	require.False(t, leaf.block.isFree(indexOf(leaf)))
}

func TestCyclicGraphIsCollected(t *testing.T) {
	h := NewHeap(0)
	aFinal, bFinal := false, false
	a := h.Alloc(16, &node{name: "a", finalized: &aFinal})
	b := h.Alloc(16, &node{name: "b", finalized: &bFinal})
	a.payload.(*node).a = b
	b.payload.(*node).a = a // cycle, no external root

	h.CollectNow()

	require.True(t, aFinal)
	require.True(t, bFinal)
}

func TestWriteBarrierShadesWhiteTarget(t *testing.T) {
	h := NewHeap(0)
	to := h.Alloc(16, &node{name: "to"})
	from := h.Alloc(16, &node{name: "from"})
	from.color = Black
	h.phase = PhaseMarking

	h.WriteBarrier(from, to)

	require.Equal(t, Gray, to.Color())
}

func TestDeleteBarrierPreservesSnapshot(t *testing.T) {
	h := NewHeap(0)
	old := h.Alloc(16, &node{name: "old"})
	h.phase = PhaseMarking

	h.DeleteBarrier(old)

	require.Equal(t, Gray, old.Color())
}

func TestGenerationalBarrierDirtiesCard(t *testing.T) {
	h := NewHeap(0)
	from := h.Alloc(16, &node{name: "from"})
	to := h.Alloc(16, &node{name: "to"})
	from.old = true

	h.GenerationalBarrier(from, to)

	require.True(t, h.cards.IsDirty(from))
	require.Equal(t, 1, h.remembered.Len())
}

func TestDirectoryTrimsEmptyBlocksToMax(t *testing.T) {
	d := newDirectory(16)
	cellsPerBlock := blockBytes / 16
	n := cellsPerBlock*(MaxEmptyBlocks+3) + 1
	headers := make([]*Header, 0, n)
	for i := 0; i < n; i++ {
		headers = append(headers, d.alloc(16, &node{name: "x"}))
	}
	for _, hdr := range headers {
		hdr.color = White
	}
	d.sweep()
	require.LessOrEqual(t, len(d.blocks), MaxEmptyBlocks+1, "at most MaxEmptyBlocks empty blocks plus the in-use tail should remain")
}

func indexOf(h *Header) int {
	for i := range h.block.cells {
		if &h.block.cells[i] == h {
			return i
		}
	}
	return -1
}
