package vm

import (
	"github.com/quillrt/quill/internal/value"
	"github.com/quillrt/quill/internal/vmerr"
)

// NewGenerator starts a fresh generator/async activation in
// SuspendedStart, ready for its first Resume (spec.md §3.7).
func NewGenerator(cl *Closure, this value.Value, args []value.Value) *GeneratorFrame {
	frame := NewFrame(cl.Fn, cl.Module, this, len(args), frameIDCounter.Add(1))
	frame.Upvalues = cl.Upvalues
	for i := 0; i < len(args) && i < len(frame.Locals); i++ {
		frame.Locals[i] = args[i]
	}
	return &GeneratorFrame{Frame: frame, State: GenSuspendedStart}
}

// Next resumes gf until it yields, returns, or throws, implementing the
// three .next()/.throw()/.return() entry points' shared execution path
// (spec.md §3.7). Per spec.md §8's concrete scenario 3, a .return() with a
// live try-handler must still run the pending finally block before the
// generator reports Completed — Next handles that by popping the innermost
// try handler and resuming at its handler entry, then reporting the
// returned value once the frame runs off its end.
func (in *Interpreter) Next(gf *GeneratorFrame) (yielded value.Value, done bool, err error) {
	f := gf.Frame

	if gf.HasPendingThrow {
		e := gf.PendingThrow
		gf.HasPendingThrow = false
		if !in.unwind(f, vmerr.NewThrow(e, "generator.throw")) {
			gf.State = GenCompleted
			return value.Undefined, true, vmerr.NewThrow(e, "generator.throw")
		}
	} else if gf.Completion == CompletionReturn && len(f.TryStack) > 0 {
		// .return() called while a finally block is still outstanding: run
		// it before completing, per spec.md §3.7.
		top := f.TryStack[len(f.TryStack)-1]
		f.TryStack = f.TryStack[:len(f.TryStack)-1]
		f.PC = top.catchPC
	} else if gf.HasReceived {
		if gf.YieldDest != noCatchReg {
			f.Registers[gf.YieldDest] = gf.ReceivedVal
		}
		gf.HasReceived = false
	}

	for {
		if int(f.PC) >= len(f.Fn.Instructions) {
			gf.State = GenCompleted
			if gf.Completion == CompletionReturn {
				return gf.ReceivedVal, true, nil
			}
			return value.Undefined, true, nil
		}
		instr := f.Fn.Instructions[f.PC]
		f.PC++

		result, serr := in.step(f, instr)
		if serr != nil {
			if in.unwind(f, serr) {
				continue
			}
			gf.State = GenCompleted
			return value.Undefined, true, serr
		}
		switch result.kind {
		case stepReturn:
			gf.State = GenCompleted
			return result.value, true, nil
		case stepJump:
			f.PC = result.pc
		case stepYield, stepAwait:
			gf.State = GenSuspendedYield
			gf.YieldDest = uint16(result.pc)
			return result.value, false, nil
		}
	}
}
