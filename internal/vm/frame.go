// Package vm implements the register interpreter: call frames, the
// fetch-decode-dispatch main loop, try/catch/finally unwinding, generator
// and async frame capture, and the promise reaction state machine
// (spec.md §4.4, §3.7, §3.8). Grounded on tetratelabs-wazero's
// internal/engine/interpreter/interpreter.go (callEngine/callFrame
// fetch-decode-dispatch shape) and original_source/crates/otter-vm-core's
// generator.rs for the exact GeneratorFrame field list.
package vm

import (
	"github.com/quillrt/quill/internal/bytecode"
	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/value"
)

// tryHandler is one entry of a frame's try stack (spec.md §4.4). catchPC
// points at the catch block when hasCatch is true, or directly at a
// finally-only block otherwise (in which case the interpreter must
// re-raise the error once that block completes).
type tryHandler struct {
	catchPC     uint32
	catchReg    uint16
	hasCatchReg bool
	hasCatch    bool
}

// Frame is one interpreter activation record (spec.md §4.4). Frames are
// captured whole by a generator at yield (§3.7), so every field a resumed
// execution needs lives here rather than on a Go call stack.
type Frame struct {
	PC        uint32
	Fn        *bytecode.Function
	Module    *bytecode.Module
	Locals    []value.Value
	Registers []value.Value
	Upvalues  []*value.Value // captured cells, shared with the closing-over parent
	TryStack  []tryHandler
	This      value.Value
	IsConstruct bool
	FrameID   uint64
	Argc      int

	// PendingRethrow is set when a finally-only try handler (no catch
	// clause) begins running its finally block for an in-flight error;
	// OpEndFinally re-raises it once the finally block completes.
	PendingRethrow error
}

// NewFrame allocates a fresh activation record sized per fn's declared
// local/register counts.
func NewFrame(fn *bytecode.Function, mod *bytecode.Module, this value.Value, argc int, frameID uint64) *Frame {
	return &Frame{
		Fn:        fn,
		Module:    mod,
		Locals:    make([]value.Value, fn.LocalCount),
		Registers: make([]value.Value, fn.RegisterCount),
		This:      this,
		Argc:      argc,
		FrameID:   frameID,
	}
}

// CompletionKind discriminates a generator/async suspension's resumed
// completion type (spec.md §3.7).
type CompletionKind uint8

const (
	CompletionNormal CompletionKind = iota
	CompletionReturn
	CompletionThrow
)

// GeneratorState is a generator's lifecycle state machine (spec.md §3.7):
// SuspendedStart -> Executing -> (SuspendedYield -> Executing)* -> Completed.
type GeneratorState uint8

const (
	GenSuspendedStart GeneratorState = iota
	GenExecuting
	GenSuspendedYield
	GenCompleted
)

// GeneratorFrame captures everything needed to resume a suspended
// generator or async function (spec.md §3.7): the full Frame plus the
// one-shot received-value/pending-throw slots .next()/.throw() populate,
// and the destination register the yield expression's result lands in
// on resume.
type GeneratorFrame struct {
	Frame       *Frame
	State       GeneratorState
	YieldDest   uint16
	ReceivedVal value.Value // one-shot: consumed on the next resume
	HasReceived bool
	PendingThrow value.Value // one-shot: set by .throw(e)
	HasPendingThrow bool
	Completion  CompletionKind
}

func (g *GeneratorFrame) Trace(visit func(*gc.Header)) {
	for _, v := range g.Frame.Registers {
		if r := v.Ref(); r != nil {
			visit(r)
		}
	}
	for _, v := range g.Frame.Locals {
		if r := v.Ref(); r != nil {
			visit(r)
		}
	}
	if r := g.ReceivedVal.Ref(); r != nil {
		visit(r)
	}
	if r := g.PendingThrow.Ref(); r != nil {
		visit(r)
	}
}

func (g *GeneratorFrame) Finalize() {}

// Resume delivers v as the result of the yield expression that suspended
// this generator, transitioning SuspendedYield/SuspendedStart -> Executing.
func (g *GeneratorFrame) Resume(v value.Value) {
	g.ReceivedVal = v
	g.HasReceived = true
	g.State = GenExecuting
}

// ResumeWithThrow delivers e to be thrown at the suspension point — used
// by Generator.prototype.throw. Per spec.md §3.7, if any try-handler is
// live at the suspension point this must still run finally blocks before
// the throw propagates, which the interpreter's resume loop handles by
// consulting Frame.TryStack exactly as it would for an in-flight throw.
func (g *GeneratorFrame) ResumeWithThrow(e value.Value) {
	g.PendingThrow = e
	g.HasPendingThrow = true
	g.State = GenExecuting
}

// ResumeWithReturn implements .return(v): per spec.md §3.7, if a
// try-handler is live, resumption MUST still execute pending finally
// blocks before completing with Return(v).
func (g *GeneratorFrame) ResumeWithReturn(v value.Value) {
	g.Completion = CompletionReturn
	g.ReceivedVal = v
	g.HasReceived = true
	g.State = GenExecuting
}
