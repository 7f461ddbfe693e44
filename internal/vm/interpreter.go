package vm

import (
	"math"
	"sync/atomic"

	"github.com/quillrt/quill/internal/bytecode"
	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/object"
	"github.com/quillrt/quill/internal/value"
	"github.com/quillrt/quill/internal/vmerr"
)

func newTypeError(msg string) error { return vmerr.TypeError(msg) }

// Interrupt is the process-wide cooperative-cancellation flag polled at
// every back-edge and call instruction (spec.md §4.4, §5). Setting it
// causes the next check to raise Error{Kind: Interrupted}.
var Interrupt atomic.Bool

// Globals is the minimal global-object contract the interpreter needs:
// OpLoadGlobal/OpStoreGlobal go through it rather than through
// internal/object directly, since the global object is realm-owned
// (internal/realm wires a concrete implementation backed by an
// *object.Object).
type Globals interface {
	GetGlobal(name string) (value.Value, bool)
	SetGlobal(name string, v value.Value)
}

// NativeFunc is a host function callable from bytecode (intrinsics,
// extension ops).
type NativeFunc func(interp *Interpreter, this value.Value, args []value.Value) (value.Value, error)

// Interpreter owns one isolate's execution state: the module/globals it
// runs against, the GC heap, and the goroutine-confinement id used for
// FeedbackVector's confinement assertion (spec.md §9).
type Interpreter struct {
	Heap    *gc.Heap
	Globals Globals
	Epoch   *object.ProtoEpoch
	goid    int64

	natives map[string]NativeFunc
	frames  []*Frame
}

func NewInterpreter(heap *gc.Heap, globals Globals, epoch *object.ProtoEpoch, goid int64) *Interpreter {
	return &Interpreter{Heap: heap, Globals: globals, Epoch: epoch, goid: goid, natives: map[string]NativeFunc{}}
}

func (in *Interpreter) RegisterNative(name string, fn NativeFunc) { in.natives[name] = fn }

// NativeValue wraps fn as a callable script value, for intrinsics/realm
// code installing host functions directly onto objects (e.g. Promise's
// prototype methods) rather than through the named RegisterNative table.
func (in *Interpreter) NativeValue(fn NativeFunc) value.Value {
	return value.Object(value.KindNativeFunction, in.Heap.Alloc(32, &nativeHolder{fn: fn}))
}

// Call implements object.Caller so accessor getters/setters and proxy
// traps can be invoked from inside internal/object without that package
// importing internal/vm.
func (in *Interpreter) Call(fn value.Value, this value.Value, args []value.Value) (value.Value, error) {
	if fn.Kind() == value.KindNativeFunction {
		if ref := fn.Ref(); ref != nil {
			if nf, ok := ref.Payload().(*nativeHolder); ok {
				return nf.fn(in, this, args)
			}
		}
	}
	if fn.Kind() == value.KindFunction {
		if ref := fn.Ref(); ref != nil {
			if closure, ok := ref.Payload().(*Closure); ok {
				return in.CallClosure(closure, this, args, false)
			}
		}
	}
	return value.Undefined, newTypeError("value is not callable")
}

// nativeHolder wraps a NativeFunc so it can live behind a *gc.Header the
// same way ordinary closures do.
type nativeHolder struct{ fn NativeFunc }

func (n *nativeHolder) Trace(visit func(*gc.Header)) {}
func (n *nativeHolder) Finalize()                    {}

// Closure pairs a compiled Function with its captured upvalue cells
// (spec.md §3.5).
type Closure struct {
	Fn       *bytecode.Function
	Module   *bytecode.Module
	Upvalues []*value.Value
}

func (c *Closure) Trace(visit func(*gc.Header)) {
	for _, cell := range c.Upvalues {
		if r := cell.Ref(); r != nil {
			visit(r)
		}
	}
}
func (c *Closure) Finalize() {}

var frameIDCounter atomic.Uint64

// CallClosure runs fn to completion (or until it yields/awaits, not
// modeled in this synchronous entry point — generator resumption goes
// through Resume instead) and returns its return value.
func (in *Interpreter) CallClosure(cl *Closure, this value.Value, args []value.Value, isConstruct bool) (value.Value, error) {
	cl.Fn.RecordCall()
	frame := NewFrame(cl.Fn, cl.Module, this, len(args), frameIDCounter.Add(1))
	frame.Upvalues = cl.Upvalues
	frame.IsConstruct = isConstruct
	for i := 0; i < len(args) && i < len(frame.Locals); i++ {
		frame.Locals[i] = args[i]
	}
	in.frames = append(in.frames, frame)
	defer func() { in.frames = in.frames[:len(in.frames)-1] }()
	return in.run(frame)
}

// run is the fetch-decode-dispatch main loop (spec.md §4.4).
func (in *Interpreter) run(f *Frame) (value.Value, error) {
	for {
		if Interrupt.Load() {
			return value.Undefined, vmerr.New(vmerr.KindInterrupted, "interrupted")
		}
		if int(f.PC) >= len(f.Fn.Instructions) {
			return value.Undefined, nil
		}
		instr := f.Fn.Instructions[f.PC]
		f.PC++

		result, err := in.step(f, instr)
		if err != nil {
			if in.unwind(f, err) {
				continue
			}
			return value.Undefined, err
		}
		switch result.kind {
		case stepNone:
			continue
		case stepReturn:
			return result.value, nil
		case stepJump:
			f.PC = result.pc
		}
	}
}

type stepResultKind uint8

const (
	stepNone stepResultKind = iota
	stepReturn
	stepJump
	stepYield
	stepAwait
)

type stepResult struct {
	kind  stepResultKind
	value value.Value
	pc    uint32
}

// step executes one instruction. Property-access opcodes consult the
// feedback slot first (spec.md §4.4's IC fast path) before falling back to
// a full shape walk.
func (in *Interpreter) step(f *Frame, instr bytecode.Instruction) (stepResult, error) {
	switch instr.Op {
	case bytecode.OpLoadConst:
		c := f.Module.Constants[instr.Const]
		f.Registers[instr.A] = constToValue(c)
	case bytecode.OpLoadUndefined:
		f.Registers[instr.A] = value.Undefined
	case bytecode.OpLoadNull:
		f.Registers[instr.A] = value.Null
	case bytecode.OpLoadTrue:
		f.Registers[instr.A] = value.True
	case bytecode.OpLoadFalse:
		f.Registers[instr.A] = value.False
	case bytecode.OpMove:
		f.Registers[instr.A] = f.Registers[instr.B]
	case bytecode.OpLoadGlobal:
		name := f.Module.Constants[instr.Const].Str.String()
		v, _ := in.Globals.GetGlobal(name)
		f.Registers[instr.A] = v
	case bytecode.OpStoreGlobal:
		name := f.Module.Constants[instr.Const].Str.String()
		in.Globals.SetGlobal(name, f.Registers[instr.A])
	case bytecode.OpGetProp:
		return stepResult{}, in.execGetProp(f, instr)
	case bytecode.OpSetProp:
		return stepResult{}, in.execSetProp(f, instr)
	case bytecode.OpGetIndex:
		return stepResult{}, in.execGetIndex(f, instr)
	case bytecode.OpSetIndex:
		return stepResult{}, in.execSetIndex(f, instr)
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		in.execArith(f, instr)
	case bytecode.OpNeg:
		f.Registers[instr.A] = value.Number(-f.Registers[instr.B].NumericValue())
	case bytecode.OpNot:
		f.Registers[instr.A] = value.Bool(!f.Registers[instr.B].ToBoolean())
	case bytecode.OpTypeof:
		f.Registers[instr.A] = value.Str(value.NewString(f.Registers[instr.B].TypeOf()))
	case bytecode.OpEq, bytecode.OpStrictEq:
		f.Registers[instr.A] = value.Bool(f.Registers[instr.B].StrictEqual(f.Registers[instr.C]))
	case bytecode.OpLess:
		f.Registers[instr.A] = value.Bool(f.Registers[instr.B].NumericValue() < f.Registers[instr.C].NumericValue())
	case bytecode.OpLessEq:
		f.Registers[instr.A] = value.Bool(f.Registers[instr.B].NumericValue() <= f.Registers[instr.C].NumericValue())
	case bytecode.OpGreater:
		f.Registers[instr.A] = value.Bool(f.Registers[instr.B].NumericValue() > f.Registers[instr.C].NumericValue())
	case bytecode.OpGreaterEq:
		f.Registers[instr.A] = value.Bool(f.Registers[instr.B].NumericValue() >= f.Registers[instr.C].NumericValue())
	case bytecode.OpJump:
		return stepResult{kind: stepJump, pc: uint32(instr.A)}, nil
	case bytecode.OpJumpIfFalse:
		if !f.Registers[instr.A].ToBoolean() {
			return stepResult{kind: stepJump, pc: uint32(instr.B)}, nil
		}
	case bytecode.OpJumpIfTrue:
		if f.Registers[instr.A].ToBoolean() {
			return stepResult{kind: stepJump, pc: uint32(instr.B)}, nil
		}
	case bytecode.OpReturn:
		return stepResult{kind: stepReturn, value: f.Registers[instr.A]}, nil
	case bytecode.OpThrow:
		return stepResult{}, vmerr.NewThrow(f.Registers[instr.A], "uncaught exception")
	case bytecode.OpPushTry:
		f.TryStack = append(f.TryStack, tryHandler{
			catchPC:     uint32(instr.A),
			hasCatch:    instr.Const == 1,
			catchReg:    instr.B,
			hasCatchReg: instr.B != noCatchReg,
		})
	case bytecode.OpPopTry:
		if len(f.TryStack) > 0 {
			f.TryStack = f.TryStack[:len(f.TryStack)-1]
		}
	case bytecode.OpEndFinally:
		if f.PendingRethrow != nil {
			err := f.PendingRethrow
			f.PendingRethrow = nil
			return stepResult{}, err
		}
	case bytecode.OpNewObject:
		o := object.New(nil)
		f.Registers[instr.A] = value.Object(value.KindObject, in.Heap.Alloc(64, o))
	case bytecode.OpNewArray:
		o := object.NewArray(nil)
		f.Registers[instr.A] = value.Object(value.KindObject, in.Heap.Alloc(64, o))
	case bytecode.OpCall:
		return stepResult{}, in.execCall(f, instr)
	case bytecode.OpClosure:
		fn := f.Module.Functions[instr.Const]
		cl := &Closure{Fn: fn, Module: f.Module}
		f.Registers[instr.A] = value.Object(value.KindFunction, in.Heap.Alloc(64, cl))
	case bytecode.OpYield:
		return stepResult{kind: stepYield, value: f.Registers[instr.A], pc: uint32(instr.B)}, nil
	case bytecode.OpAwait:
		return stepResult{kind: stepAwait, value: f.Registers[instr.A], pc: uint32(instr.B)}, nil
	case bytecode.OpDelete:
		if o, ok := f.Registers[instr.B].Ref().Payload().(*object.Object); ok {
			key := value.NewPropertyKey(f.Module.Constants[instr.Const].Str)
			f.Registers[instr.A] = value.Bool(o.Delete(key))
		}
	}
	return stepResult{}, nil
}

func constToValue(c bytecode.Const) value.Value {
	switch c.Kind {
	case bytecode.ConstNumber:
		return value.Number(c.Number)
	case bytecode.ConstString:
		return value.Str(c.Str)
	default:
		return value.Undefined
	}
}

func (in *Interpreter) execArith(f *Frame, instr bytecode.Instruction) {
	a, b := f.Registers[instr.B], f.Registers[instr.C]
	slot := in.icSlot(f, instr)
	if slot != nil {
		slot.RecordType(typeFlagsOf(a) | typeFlagsOf(b))
	}
	x, y := a.NumericValue(), b.NumericValue()
	var r float64
	switch instr.Op {
	case bytecode.OpAdd:
		if a.Kind() == value.KindString || b.Kind() == value.KindString {
			f.Registers[instr.A] = value.Str(value.NewString(toStr(a) + toStr(b)))
			return
		}
		r = x + y
	case bytecode.OpSub:
		r = x - y
	case bytecode.OpMul:
		r = x * y
	case bytecode.OpDiv:
		r = x / y
	case bytecode.OpMod:
		r = math.Mod(x, y)
	}
	f.Registers[instr.A] = value.Number(r)
}

func toStr(v value.Value) string {
	if v.Kind() == value.KindString {
		return v.Str().String()
	}
	return ""
}

func typeFlagsOf(v value.Value) bytecode.TypeFlags {
	switch v.Kind() {
	case value.KindUndefined:
		return bytecode.TypeUndefined
	case value.KindNull:
		return bytecode.TypeNull
	case value.KindBoolean:
		return bytecode.TypeBoolean
	case value.KindInt32:
		return bytecode.TypeInt32
	case value.KindNumber:
		return bytecode.TypeNumber
	case value.KindString:
		return bytecode.TypeString
	case value.KindFunction, value.KindNativeFunction:
		return bytecode.TypeFunction
	default:
		return bytecode.TypeObject
	}
}

func (in *Interpreter) icSlot(f *Frame, instr bytecode.Instruction) *bytecode.Slot {
	if instr.Feedback < 0 {
		return nil
	}
	return f.Fn.Feedback.Slot(instr.Feedback, in.goid)
}

func (in *Interpreter) execGetProp(f *Frame, instr bytecode.Instruction) error {
	objVal := f.Registers[instr.B]
	ref := objVal.Ref()
	if ref == nil {
		return newTypeError("cannot read property of non-object")
	}
	o, ok := ref.Payload().(*object.Object)
	if !ok {
		return newTypeError("cannot read property of non-ordinary object")
	}
	key := value.NewPropertyKey(f.Module.Constants[instr.Const].Str)

	if slot := in.icSlot(f, instr); slot != nil {
		if offset, hit := slot.Lookup(shapeIdentity(o), in.Epoch.Current()); hit {
			if v, ok := o.GetAtOffset(offset); ok {
				f.Registers[instr.A] = v
				return nil
			}
		}
	}

	v, err := object.Get(ref, o, key, objVal, in)
	if err != nil {
		if ic, ok := err.(*object.ErrInterception); ok {
			return in.resolveInterception(f, instr.A, ic, objVal, nil)
		}
		return err
	}
	f.Registers[instr.A] = v
	if slot := in.icSlot(f, instr); slot != nil {
		if offset, _, ok := o.GetOwn(key); ok {
			slot.Update(shapeIdentity(o), offset, in.Epoch.Current())
		}
	}
	return nil
}

func (in *Interpreter) execSetProp(f *Frame, instr bytecode.Instruction) error {
	objVal := f.Registers[instr.A]
	ref := objVal.Ref()
	if ref == nil {
		return newTypeError("cannot set property of non-object")
	}
	o, ok := ref.Payload().(*object.Object)
	if !ok {
		return newTypeError("cannot set property of non-ordinary object")
	}
	key := value.NewPropertyKey(f.Module.Constants[instr.Const].Str)
	v := f.Registers[instr.C]
	if err := object.Set(ref, o, key, v, objVal, in, in.Epoch); err != nil {
		if ic, ok := err.(*object.ErrInterception); ok {
			return in.resolveInterception(f, 0, ic, objVal, &v)
		}
		return err
	}
	return nil
}

func (in *Interpreter) execGetIndex(f *Frame, instr bytecode.Instruction) error {
	objVal := f.Registers[instr.B]
	ref := objVal.Ref()
	if ref == nil {
		return newTypeError("cannot read index of non-object")
	}
	o, ok := ref.Payload().(*object.Object)
	if !ok {
		return nil
	}
	idxVal := f.Registers[instr.C]
	key := value.IndexKey(value.ToUint32(idxVal.NumericValue()))
	v, err := object.Get(ref, o, key, objVal, in)
	if err != nil {
		return err
	}
	f.Registers[instr.A] = v
	return nil
}

func (in *Interpreter) execSetIndex(f *Frame, instr bytecode.Instruction) error {
	objVal := f.Registers[instr.A]
	ref := objVal.Ref()
	if ref == nil {
		return newTypeError("cannot set index of non-object")
	}
	o, ok := ref.Payload().(*object.Object)
	if !ok {
		return nil
	}
	key := value.IndexKey(uint32(instr.B))
	return object.Set(ref, o, key, f.Registers[instr.C], objVal, in, in.Epoch)
}

// resolveInterception redirects a core operation that hit a proxy into the
// matching trap call (spec.md §4.2, §7's InterceptionSignal handling).
func (in *Interpreter) resolveInterception(f *Frame, dest uint16, ic *object.ErrInterception, receiver value.Value, setVal *value.Value) error {
	px, ok := ic.Ref.Payload().(*object.Proxy)
	if !ok {
		return newTypeError("interception signal on a non-proxy prototype")
	}
	targetVal := value.Object(value.KindObject, px.Target)
	var args []value.Value
	trap := object.Trap(ic.Trap)
	if trap == object.TrapSet && setVal != nil {
		args = []value.Value{*setVal}
	}
	v, handled, err := px.Invoke(in, trap, targetVal, args)
	if err != nil {
		return err
	}
	if !handled {
		// Handler defines no trap for this operation: fall through to the
		// un-intercepted target, per spec.md §4.2.
		if to := px.TargetObject(); to != nil && trap == object.TrapGet {
			tv, err := object.Get(px.Target, to, ic.Key, receiver, in)
			if err != nil {
				return err
			}
			f.Registers[dest] = tv
		}
		return nil
	}
	if trap == object.TrapGet {
		f.Registers[dest] = v
	}
	return nil
}

func shapeIdentity(o *object.Object) uintptr {
	return o.ShapeIdentity()
}

func (in *Interpreter) execCall(f *Frame, instr bytecode.Instruction) error {
	calleeVal := f.Registers[instr.B]
	argStart := uint16(instr.Const)
	argc := int(instr.C)
	args := make([]value.Value, argc)
	for i := 0; i < argc; i++ {
		args[i] = f.Registers[int(argStart)+i]
	}
	v, err := in.Call(calleeVal, value.Undefined, args)
	if err != nil {
		return err
	}
	f.Registers[instr.A] = v
	return nil
}

// noCatchReg mirrors internal/compiler's sentinel for "no catch binding".
const noCatchReg = 0xFFFF

// unwind walks f's try stack looking for a handler for err (spec.md §4.4,
// §7), returning whether one was found. A real catch clause consumes the
// error and binds its value to the catch register; a finally-only handler
// instead remembers the error as f.PendingRethrow so OpEndFinally re-raises
// it once the finally block has run to completion, guaranteeing finally
// always executes before an uncaught error escapes the frame (spec.md
// §3.7's generator .return() requirement generalizes this same rule to
// suspension points).
func (in *Interpreter) unwind(f *Frame, err error) bool {
	if len(f.TryStack) == 0 {
		return false
	}
	top := f.TryStack[len(f.TryStack)-1]
	f.TryStack = f.TryStack[:len(f.TryStack)-1]
	if top.hasCatch {
		if top.hasCatchReg {
			f.Registers[top.catchReg] = errorToValue(err)
		}
		f.PC = top.catchPC
		return true
	}
	f.PendingRethrow = err
	f.PC = top.catchPC
	return true
}

// errorToValue extracts the script-visible value a caught error carries:
// the thrown value itself for vmerr.KindThrow, or a fresh string holding
// the error's text for the built-in error Kinds (no Error object is built).
func errorToValue(err error) value.Value {
	if ve, ok := err.(*vmerr.Error); ok {
		if ve.Kind == vmerr.KindThrow {
			return ve.Value
		}
		return value.Str(value.NewString(ve.Error()))
	}
	return value.Str(value.NewString(err.Error()))
}
