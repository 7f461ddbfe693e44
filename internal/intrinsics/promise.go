package intrinsics

import (
	"github.com/quillrt/quill/internal/eventloop"
	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/object"
	"github.com/quillrt/quill/internal/value"
	"github.com/quillrt/quill/internal/vm"
	"github.com/quillrt/quill/internal/vmerr"
)

var promiseKey = value.NewPropertyKey(value.NewString("__promise"))

// installPromise wires a Promise surface over internal/vm's Promise state
// machine: instances are plain objects (proto = the returned prototype
// header) carrying their underlying *vm.Promise behind a non-enumerable
// "__promise" slot, since KindPromise values aren't *object.Object and so
// can't carry .then/.catch/.finally as ordinary properties themselves.
//
// Scope decision (see DESIGN.md): `new Promise(executor)` is not wired
// because internal/compiler does not yet lower NewExpr to a construct
// call (a pre-existing gap distinct from the four requested fixes) — the
// surface here is reached via Promise.resolve/Promise.reject, which is
// sufficient to drive spec.md §8 concrete scenario 4.
func installPromise(interp *vm.Interpreter, epoch *object.ProtoEpoch, objProto *gc.Header, loop *eventloop.Loop) (value.Value, *gc.Header) {
	proto := object.New(objProto)
	protoHeader := interp.Heap.Alloc(64, proto)

	newInstance := func(p *vm.Promise) value.Value {
		inst := object.New(protoHeader)
		pref := interp.Heap.Alloc(48, p)
		_ = inst.DefineOwnProperty(promiseKey, object.Descriptor{
			Value: value.Object(value.KindPromise, pref),
		}, epoch)
		return value.Object(value.KindObject, interp.Heap.Alloc(64, inst))
	}

	getPromise := func(this value.Value) (*vm.Promise, bool) {
		ref := this.Ref()
		if ref == nil {
			return nil, false
		}
		o, ok := ref.Payload().(*object.Object)
		if !ok {
			return nil, false
		}
		v, _, ok := o.GetOwn(promiseKey)
		if !ok {
			return nil, false
		}
		pref := v.Ref()
		if pref == nil {
			return nil, false
		}
		p, ok := pref.Payload().(*vm.Promise)
		return p, ok
	}

	attach := func(p *vm.Promise, onFulfilled, onRejected value.Value) value.Value {
		downstream := vm.NewPromise()
		if immediate := p.Then(onFulfilled, onRejected, downstream); immediate != nil {
			loop.SettlePromise(interp, []vm.Reaction{*immediate}, p.State == vm.PromiseFulfilled, p.Value)
		}
		return newInstance(downstream)
	}

	defineMethod(proto, epoch, "then", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		p, ok := getPromise(this)
		if !ok {
			return value.Undefined, vmerr.TypeError("Promise.prototype.then called on a non-Promise")
		}
		onFulfilled, onRejected := value.Undefined, value.Undefined
		if len(args) > 0 {
			onFulfilled = args[0]
		}
		if len(args) > 1 {
			onRejected = args[1]
		}
		return attach(p, onFulfilled, onRejected), nil
	}, interp)

	defineMethod(proto, epoch, "catch", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		p, ok := getPromise(this)
		if !ok {
			return value.Undefined, vmerr.TypeError("Promise.prototype.catch called on a non-Promise")
		}
		onRejected := value.Undefined
		if len(args) > 0 {
			onRejected = args[0]
		}
		return attach(p, value.Undefined, onRejected), nil
	}, interp)

	defineMethod(proto, epoch, "finally", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		p, ok := getPromise(this)
		if !ok {
			return value.Undefined, vmerr.TypeError("Promise.prototype.finally called on a non-Promise")
		}
		if len(args) == 0 {
			return attach(p, value.Undefined, value.Undefined), nil
		}
		cb := args[0]
		onFulfilled := interp.NativeValue(func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
			if _, err := interp.Call(cb, value.Undefined, nil); err != nil {
				return value.Undefined, err
			}
			var v value.Value
			if len(args) > 0 {
				v = args[0]
			}
			return v, nil
		})
		onRejected := interp.NativeValue(func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
			if _, err := interp.Call(cb, value.Undefined, nil); err != nil {
				return value.Undefined, err
			}
			var reason value.Value
			if len(args) > 0 {
				reason = args[0]
			}
			return value.Undefined, vmerr.NewThrow(reason, "finally rethrow")
		})
		return attach(p, onFulfilled, onRejected), nil
	}, interp)

	statics := object.New(objProto)
	defineMethod(statics, epoch, "resolve", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		var v value.Value
		if len(args) > 0 {
			v = args[0]
		}
		p := vm.NewPromise()
		p.Fulfill(v)
		return newInstance(p), nil
	}, interp)
	defineMethod(statics, epoch, "reject", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		var v value.Value
		if len(args) > 0 {
			v = args[0]
		}
		p := vm.NewPromise()
		p.Reject(v)
		return newInstance(p), nil
	}, interp)

	return value.Object(value.KindObject, interp.Heap.Alloc(64, statics)), protoHeader
}
