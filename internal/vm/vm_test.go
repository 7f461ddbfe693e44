package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillrt/quill/internal/bytecode"
	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/object"
	"github.com/quillrt/quill/internal/value"
)

type stubGlobals struct{ m map[string]value.Value }

func newStubGlobals() *stubGlobals { return &stubGlobals{m: map[string]value.Value{}} }

func (g *stubGlobals) GetGlobal(name string) (value.Value, bool) { v, ok := g.m[name]; return v, ok }
func (g *stubGlobals) SetGlobal(name string, v value.Value)      { g.m[name] = v }

func propKey(s string) value.PropertyKey { return value.NewPropertyKey(value.NewString(s)) }

// TestGeneratorReturnRunsFinallyBeforeCompleting exercises the
// try/finally-while-suspended-in-a-yield scenario: a .return() delivered
// to a generator suspended inside a finally-guarded try must still run the
// finally block, and only then complete with the returned value (spec.md
// §3.7/§8 concrete scenario 3).
func TestGeneratorReturnRunsFinallyBeforeCompleting(t *testing.T) {
	// try { yield 1 } finally { r2 = 99 }
	//
	// idx0 PushTry    finally entry patched to idx5, no catch clause
	// idx1 LoadConst  r0 <- 1
	// idx2 Yield      yield r0, resume value lands in r1
	// idx3 PopTry
	// idx4 Jump       -> idx5 (skips straight into finally on normal completion too)
	// idx5 LoadConst  r2 <- 99   (finally body)
	// idx6 EndFinally
	instrs := []bytecode.Instruction{
		{Op: bytecode.OpPushTry, A: 5, B: noCatchReg, Const: 0},
		{Op: bytecode.OpLoadConst, A: 0, Const: 0},
		{Op: bytecode.OpYield, A: 0, B: 1},
		{Op: bytecode.OpPopTry},
		{Op: bytecode.OpJump, A: 5},
		{Op: bytecode.OpLoadConst, A: 2, Const: 1},
		{Op: bytecode.OpEndFinally},
	}
	fn := bytecode.NewFunction("gen", 0, 0, 3, bytecode.Flags{IsGenerator: true}, instrs, nil)
	mod := &bytecode.Module{
		Functions: []*bytecode.Function{fn},
		Constants: []bytecode.Const{
			{Kind: bytecode.ConstNumber, Number: 1},
			{Kind: bytecode.ConstNumber, Number: 99},
		},
	}

	heap := gc.NewHeap(0)
	epoch := &object.ProtoEpoch{}
	interp := NewInterpreter(heap, newStubGlobals(), epoch, 1)

	cl := &Closure{Fn: fn, Module: mod}
	gf := NewGenerator(cl, value.Undefined, nil)

	yielded, done, err := interp.Next(gf)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, float64(1), yielded.NumericValue())
	require.Equal(t, GenSuspendedYield, gf.State)
	require.Len(t, gf.Frame.TryStack, 1)

	gf.ResumeWithReturn(value.Number(42))
	final, done2, err2 := interp.Next(gf)
	require.NoError(t, err2)
	require.True(t, done2)
	require.Equal(t, float64(42), final.NumericValue())
	require.Equal(t, GenCompleted, gf.State)
	require.Empty(t, gf.Frame.TryStack)
	require.Equal(t, float64(99), gf.Frame.Registers[2].NumericValue(),
		"finally block must run before the generator completes")
}

// TestGetPropInlineCacheTransitionsThroughFullLifecycle drives a single
// OpGetProp call site through Uninitialized -> Monomorphic -> Polymorphic
// -> Megamorphic by reading the same "x" property off five differently
// shaped objects, confirming both the IC state machine transitions
// correctly and every read returns the right value whether served from the
// cache or the full-lookup fallback (spec.md §3.6/§8 concrete scenario 6).
func TestGetPropInlineCacheTransitionsThroughFullLifecycle(t *testing.T) {
	heap := gc.NewHeap(0)
	epoch := &object.ProtoEpoch{}
	interp := NewInterpreter(heap, newStubGlobals(), epoch, 1)

	define := func(o *object.Object, key string, n float64) {
		require.NoError(t, o.DefineOwnProperty(propKey(key), object.Descriptor{
			Value: value.Number(n),
			Attrs: object.Attrs{Writable: true, Enumerable: true, Configurable: true},
		}, epoch))
	}

	mkShapeN := func(prefix string, xVal float64) *value.Value {
		o := object.New(nil)
		if prefix != "" {
			define(o, prefix, 0)
		}
		define(o, "x", xVal)
		ref := heap.Alloc(64, o)
		v := value.Object(value.KindObject, ref)
		return &v
	}

	objs := []*value.Value{
		mkShapeN("", 10),
		mkShapeN("a", 20),
		mkShapeN("b", 30),
		mkShapeN("c", 40),
		mkShapeN("d", 50),
	}
	want := []float64{10, 20, 30, 40, 50}

	fn := bytecode.NewFunction("get_x", 0, 0, 2, bytecode.Flags{},
		[]bytecode.Instruction{{Op: bytecode.OpGetProp, A: 0, B: 1, Const: 0}}, nil)
	mod := &bytecode.Module{
		Functions: []*bytecode.Function{fn},
		Constants: []bytecode.Const{{Kind: bytecode.ConstString, Str: value.NewString("x")}},
	}
	instr := fn.Instructions[0]
	frame := NewFrame(fn, mod, value.Undefined, 0, 1)

	slot := fn.Feedback.Slot(0, 1)
	require.Equal(t, bytecode.ICUninitialized, slot.State())

	for i, ov := range objs {
		frame.Registers[1] = *ov
		_, err := interp.step(frame, instr)
		require.NoError(t, err)
		require.Equal(t, want[i], frame.Registers[0].NumericValue())
	}
	require.Equal(t, bytecode.ICMegamorphic, slot.State())

	// A megamorphic site must still answer correctly for a shape it has
	// seen before, just without caching it.
	frame.Registers[1] = *objs[0]
	_, err := interp.step(frame, instr)
	require.NoError(t, err)
	require.Equal(t, float64(10), frame.Registers[0].NumericValue())
	require.Equal(t, bytecode.ICMegamorphic, slot.State())
}

// TestGetPropInlineCacheMonomorphicHitUsesFastPath confirms a repeated
// read against the very same shape stays Monomorphic and keeps answering
// correctly straight out of the cached offset.
func TestGetPropInlineCacheMonomorphicHitUsesFastPath(t *testing.T) {
	heap := gc.NewHeap(0)
	epoch := &object.ProtoEpoch{}
	interp := NewInterpreter(heap, newStubGlobals(), epoch, 1)

	o := object.New(nil)
	require.NoError(t, o.DefineOwnProperty(propKey("x"), object.Descriptor{
		Value: value.Number(7),
		Attrs: object.Attrs{Writable: true, Enumerable: true, Configurable: true},
	}, epoch))
	ref := heap.Alloc(64, o)
	ov := value.Object(value.KindObject, ref)

	fn := bytecode.NewFunction("get_x", 0, 0, 2, bytecode.Flags{},
		[]bytecode.Instruction{{Op: bytecode.OpGetProp, A: 0, B: 1, Const: 0}}, nil)
	mod := &bytecode.Module{
		Functions: []*bytecode.Function{fn},
		Constants: []bytecode.Const{{Kind: bytecode.ConstString, Str: value.NewString("x")}},
	}
	instr := fn.Instructions[0]
	frame := NewFrame(fn, mod, value.Undefined, 0, 1)
	frame.Registers[1] = ov

	for i := 0; i < 3; i++ {
		_, err := interp.step(frame, instr)
		require.NoError(t, err)
		require.Equal(t, float64(7), frame.Registers[0].NumericValue())
	}
	slot := fn.Feedback.Slot(0, 1)
	require.Equal(t, bytecode.ICMonomorphic, slot.State())
	// Hits only counts cache-population events (the initial miss); the two
	// follow-up reads are served straight from the cached offset and never
	// call Slot.Update.
	require.Equal(t, uint64(1), slot.Hits())
}
