// Package intrinsics installs the realm's canonical constructors,
// prototypes, and host-callable globals (spec.md §4.7, §3.4): the
// Object/Function prototype chain installed first so every later
// intrinsic can hang off it, Reflect's static methods and the proxy trap
// set (SPEC_FULL.md §4, from original_source/intrinsics_impl/reflect.rs),
// a Promise constructor/prototype wired to internal/vm's Promise state
// machine and internal/eventloop's reaction scheduler, and the
// setTimeout/setInterval/queueMicrotask globals that make spec.md §8
// concrete scenario 4 (timer/promise interleaving) drivable from script.
package intrinsics

import (
	"strconv"
	"time"

	"github.com/quillrt/quill/internal/eventloop"
	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/object"
	"github.com/quillrt/quill/internal/value"
	"github.com/quillrt/quill/internal/vm"
	"github.com/quillrt/quill/internal/vmerr"
)

// Table holds every installed intrinsic, so internal/realm can reach them
// (e.g. to parent newly-constructed objects off ObjectProto) without
// re-querying globals by name.
type Table struct {
	ObjectProto   *gc.Header
	FunctionProto *gc.Header
	PromiseProto  *gc.Header
	Reflect       *gc.Header
}

// Install builds the full intrinsics table and binds every global
// identifier script sees unqualified (Reflect, Promise, setTimeout, ...).
// Order matters: Object.prototype before Function.prototype before
// everything else (spec.md §4.7).
func Install(interp *vm.Interpreter, epoch *object.ProtoEpoch, globals vm.Globals, loop *eventloop.Loop) *Table {
	t := &Table{}

	objProto := object.New(nil)
	t.ObjectProto = interp.Heap.Alloc(64, objProto)

	funcProto := object.New(t.ObjectProto)
	t.FunctionProto = interp.Heap.Alloc(64, funcProto)

	t.Reflect = installReflect(interp, epoch, t.ObjectProto)
	globals.SetGlobal("Reflect", value.Object(value.KindObject, t.Reflect))

	ctor, proto := installPromise(interp, epoch, t.ObjectProto, loop)
	t.PromiseProto = proto
	globals.SetGlobal("Promise", ctor)

	installTimers(interp, globals, loop)

	return t
}

func defineMethod(o *object.Object, epoch *object.ProtoEpoch, name string, fn vm.NativeFunc, interp *vm.Interpreter) {
	_ = o.DefineOwnProperty(value.NewPropertyKey(value.NewString(name)), object.Descriptor{
		Value: interp.NativeValue(fn),
		Attrs: object.Attrs{Writable: true, Enumerable: false, Configurable: true},
	}, epoch)
}

// installReflect wires all seven Reflect static methods spec.md §6/§9
// names (SPEC_FULL.md §4): get, set, has, deleteProperty, ownKeys,
// getPrototypeOf, isExtensible.
func installReflect(interp *vm.Interpreter, epoch *object.ProtoEpoch, objProto *gc.Header) *gc.Header {
	r := object.New(objProto)

	defineMethod(r, epoch, "get", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		o, key, err := targetAndKey(args)
		if err != nil {
			return value.Undefined, err
		}
		return object.Get(args[0].Ref(), o, key, args[0], interp)
	}, interp)

	defineMethod(r, epoch, "set", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		o, key, err := targetAndKey(args)
		if err != nil {
			return value.Undefined, err
		}
		var v value.Value
		if len(args) > 2 {
			v = args[2]
		}
		if err := object.Set(args[0].Ref(), o, key, v, args[0], interp, epoch); err != nil {
			return value.False, err
		}
		return value.True, nil
	}, interp)

	defineMethod(r, epoch, "has", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		o, key, err := targetAndKey(args)
		if err != nil {
			return value.Undefined, err
		}
		for cur := o; cur != nil; {
			if _, _, found := cur.GetOwn(key); found {
				return value.True, nil
			}
			proto := cur.Proto()
			if proto == nil {
				break
			}
			next, ok := proto.Payload().(*object.Object)
			if !ok {
				break
			}
			cur = next
		}
		return value.False, nil
	}, interp)

	defineMethod(r, epoch, "deleteProperty", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		o, key, err := targetAndKey(args)
		if err != nil {
			return value.Undefined, err
		}
		return value.Bool(o.Delete(key)), nil
	}, interp)

	defineMethod(r, epoch, "ownKeys", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		o, err := targetOnly(args)
		if err != nil {
			return value.Undefined, err
		}
		arr := object.NewArray(objProto)
		for i, k := range o.OwnKeys() {
			var s *value.String
			switch k.Kind() {
			case value.PropertyKeyString:
				s = k.Str()
			default:
				s = value.NewString(keyToString(k))
			}
			_ = arr.DefineOwnProperty(value.IndexKey(uint32(i)), object.Descriptor{
				Value: value.Str(s),
				Attrs: object.Attrs{Writable: true, Enumerable: true, Configurable: true},
			}, epoch)
		}
		return value.Object(value.KindObject, interp.Heap.Alloc(64, arr)), nil
	}, interp)

	defineMethod(r, epoch, "getPrototypeOf", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		o, err := targetOnly(args)
		if err != nil {
			return value.Undefined, err
		}
		if p := o.Proto(); p != nil {
			return value.Object(value.KindObject, p), nil
		}
		return value.Null, nil
	}, interp)

	defineMethod(r, epoch, "isExtensible", func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		o, err := targetOnly(args)
		if err != nil {
			return value.Undefined, err
		}
		return value.Bool(o.Extensible()), nil
	}, interp)

	return interp.Heap.Alloc(64, r)
}

func targetOnly(args []value.Value) (*object.Object, error) {
	if len(args) == 0 || args[0].Ref() == nil {
		return nil, vmerr.TypeError("Reflect: target must be an object")
	}
	o, ok := args[0].Ref().Payload().(*object.Object)
	if !ok {
		return nil, vmerr.TypeError("Reflect: target must be an ordinary object")
	}
	return o, nil
}

func targetAndKey(args []value.Value) (*object.Object, value.PropertyKey, error) {
	o, err := targetOnly(args)
	if err != nil {
		return nil, value.PropertyKey{}, err
	}
	if len(args) < 2 {
		return o, value.NewPropertyKey(value.NewString("undefined")), nil
	}
	return o, value.NewPropertyKey(value.NewString(toKeyString(args[1]))), nil
}

func toKeyString(v value.Value) string {
	if v.Kind() == value.KindString {
		return v.Str().String()
	}
	return ""
}

func keyToString(k value.PropertyKey) string {
	if k.Kind() == value.PropertyKeyIndex {
		return strconv.FormatUint(uint64(k.Index()), 10)
	}
	return ""
}

// installTimers binds setTimeout/clearTimeout/setInterval/clearInterval/
// queueMicrotask (spec.md §4.5) as global natives over loop.
func installTimers(interp *vm.Interpreter, globals vm.Globals, loop *eventloop.Loop) {
	globals.SetGlobal("setTimeout", interp.NativeValue(makeScheduler(interp, loop, false)))
	globals.SetGlobal("setInterval", interp.NativeValue(makeScheduler(interp, loop, true)))
	globals.SetGlobal("clearTimeout", interp.NativeValue(clearTimer(loop)))
	globals.SetGlobal("clearInterval", interp.NativeValue(clearTimer(loop)))
	globals.SetGlobal("queueMicrotask", interp.NativeValue(func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Undefined, nil
		}
		cb := args[0]
		loop.QueueMicrotask(func() error {
			_, err := interp.Call(cb, value.Undefined, nil)
			return err
		})
		return value.Undefined, nil
	}))
}

func makeScheduler(interp *vm.Interpreter, loop *eventloop.Loop, repeating bool) vm.NativeFunc {
	return func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Undefined, vmerr.TypeError("setTimeout: callback required")
		}
		cb := args[0]
		delayMS := 0.0
		if len(args) > 1 {
			delayMS = args[1].NumericValue()
		}
		extra := []value.Value{}
		if len(args) > 2 {
			extra = append(extra, args[2:]...)
		}
		delay := time.Duration(delayMS) * time.Millisecond
		var interval time.Duration
		if repeating {
			interval = delay
		}
		id := loop.ScheduleTimer(func() error {
			_, err := interp.Call(cb, value.Undefined, extra)
			return err
		}, delay, interval, true)
		return value.Number(float64(id)), nil
	}
}

func clearTimer(loop *eventloop.Loop) vm.NativeFunc {
	return func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Undefined, nil
		}
		loop.ClearTimer(uint64(args[0].NumericValue()))
		return value.Undefined, nil
	}
}
