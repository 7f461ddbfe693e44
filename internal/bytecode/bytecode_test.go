package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedbackSlotPolymorphicToMegamorphic(t *testing.T) {
	fv := NewFeedbackVector(1)
	slot := fv.Slot(0, 1)

	shapes := []uintptr{1, 2, 3, 4, 5, 6}
	for i, shapeID := range shapes {
		slot.Update(shapeID, i, 0)
	}
	require.Equal(t, ICMegamorphic, slot.State())

	// The sixth (and any further) access still resolves via the
	// megamorphic fallback path, not a cached entry.
	_, ok := slot.Lookup(shapes[5], 0)
	require.False(t, ok, "megamorphic slots never serve cached entries")
}

func TestFeedbackSlotStaleEpochIsMiss(t *testing.T) {
	fv := NewFeedbackVector(1)
	slot := fv.Slot(0, 1)
	slot.Update(42, 7, 0)

	offset, ok := slot.Lookup(42, 0)
	require.True(t, ok)
	require.Equal(t, 7, offset)

	_, ok = slot.Lookup(42, 1)
	require.False(t, ok, "a proto_epoch bump must invalidate the cache")
}

func TestFeedbackVectorConfinementPanicsAcrossGoroutines(t *testing.T) {
	fv := NewFeedbackVector(1)
	fv.Slot(0, 1)
	require.Panics(t, func() { fv.Slot(0, 2) })
}

func TestHotFunctionThresholdTransitionsOnce(t *testing.T) {
	f := NewFunction("f", 0, 0, 1, Flags{}, nil, nil)
	require.False(t, f.IsHot())
	for i := 0; i < HotFunctionThreshold-1; i++ {
		f.RecordCall()
	}
	require.False(t, f.IsHot())
	f.RecordCall()
	require.True(t, f.IsHot())
}

func TestSourceMapFindsLargestIndexLE(t *testing.T) {
	f := &Function{SourceMap: []SourceMapEntry{{Index: 0, Line: 1}, {Index: 5, Line: 2}, {Index: 10, Line: 3}}}
	line, ok := f.FindSourceLine(7)
	require.True(t, ok)
	require.Equal(t, uint32(2), line)
}

func TestFeedbackSlotAssignment(t *testing.T) {
	instrs := []Instruction{
		{Op: OpLoadConst},
		{Op: OpGetProp},
		{Op: OpAdd},
		{Op: OpJump},
	}
	f := NewFunction("f", 0, 0, 2, Flags{}, instrs, nil)
	require.Equal(t, int32(-1), f.Instructions[0].Feedback)
	require.Equal(t, int32(0), f.Instructions[1].Feedback)
	require.Equal(t, int32(1), f.Instructions[2].Feedback)
	require.Equal(t, int32(-1), f.Instructions[3].Feedback)
	require.Equal(t, 2, f.Feedback.Len())
}
