package realm

import (
	"github.com/quillrt/quill/internal/capability"
	"github.com/quillrt/quill/internal/ext"
	"github.com/quillrt/quill/internal/object"
	"github.com/quillrt/quill/internal/value"
	"github.com/quillrt/quill/internal/vm"
	"github.com/quillrt/quill/internal/vmerr"
)

// installEnvBridge installs the "env" extension's three ops (spec.md §6:
// "three global callables the process.env proxy's traps call through to")
// as sync ext ops, each consulting the capability gate as well as the
// envstore's own policy: has and get fail with PermissionDenied for a name
// the gate refuses, and keys leaves such names out.
func (r *Realm) installEnvBridge() {
	r.Ext.Install(ext.Extension{
		Name: "env",
		Ops: []ext.Op{
			{Name: "has", Sync: func(interp *vm.Interpreter, args []value.Value) (value.Value, error) {
				name, err := argString(args, 0, "env.has")
				if err != nil {
					return value.Undefined, err
				}
				if err := capability.Check(r.Capability.CanEnv(name), "env.has:"+name); err != nil {
					return value.Undefined, err
				}
				return value.Bool(r.Env.Has(name)), nil
			}},
			{Name: "get", Sync: func(interp *vm.Interpreter, args []value.Value) (value.Value, error) {
				name, err := argString(args, 0, "env.get")
				if err != nil {
					return value.Undefined, err
				}
				if err := capability.Check(r.Capability.CanEnv(name), "env.get:"+name); err != nil {
					return value.Undefined, err
				}
				v, ok := r.Env.Get(name)
				if !ok {
					return value.Undefined, nil
				}
				return value.Str(value.NewString(v)), nil
			}},
			{Name: "keys", Sync: func(interp *vm.Interpreter, args []value.Value) (value.Value, error) {
				var keys []string
				for _, k := range r.Env.Keys() {
					if r.Capability.CanEnv(k) {
						keys = append(keys, k)
					}
				}
				return r.stringArray(keys), nil
			}},
		},
	})
}

// installCapabilityGate installs the "capability" extension's six query
// ops (spec.md §6: "a process-wide queryable object with boolean/pattern
// methods"), mirroring the capability.Gate's six Can* methods.
func (r *Realm) installCapabilityGate() {
	r.Ext.Install(ext.Extension{
		Name: "capability",
		Ops: []ext.Op{
			{Name: "canNet", Sync: func(interp *vm.Interpreter, args []value.Value) (value.Value, error) {
				host, err := argString(args, 0, "capability.canNet")
				if err != nil {
					return value.Undefined, err
				}
				return value.Bool(r.Capability.CanNet(host)), nil
			}},
			{Name: "canRead", Sync: func(interp *vm.Interpreter, args []value.Value) (value.Value, error) {
				path, err := argString(args, 0, "capability.canRead")
				if err != nil {
					return value.Undefined, err
				}
				return value.Bool(r.Capability.CanRead(path)), nil
			}},
			{Name: "canWrite", Sync: func(interp *vm.Interpreter, args []value.Value) (value.Value, error) {
				path, err := argString(args, 0, "capability.canWrite")
				if err != nil {
					return value.Undefined, err
				}
				return value.Bool(r.Capability.CanWrite(path)), nil
			}},
			{Name: "canEnv", Sync: func(interp *vm.Interpreter, args []value.Value) (value.Value, error) {
				name, err := argString(args, 0, "capability.canEnv")
				if err != nil {
					return value.Undefined, err
				}
				return value.Bool(r.Capability.CanEnv(name)), nil
			}},
			{Name: "canSubprocess", Sync: func(interp *vm.Interpreter, args []value.Value) (value.Value, error) {
				return value.Bool(r.Capability.CanSubprocess()), nil
			}},
			{Name: "canHrtime", Sync: func(interp *vm.Interpreter, args []value.Value) (value.Value, error) {
				return value.Bool(r.Capability.CanHrtime()), nil
			}},
		},
	})
}

func argString(args []value.Value, i int, op string) (string, error) {
	if i >= len(args) || args[i].Kind() != value.KindString {
		return "", vmerr.TypeError(op + ": expected a string argument")
	}
	return args[i].Str().String(), nil
}

// stringArray builds a script-visible array of strings over the realm's
// Object.prototype, mirroring intrinsics' Reflect.ownKeys construction.
func (r *Realm) stringArray(items []string) value.Value {
	arr := object.NewArray(r.Intrinsics.ObjectProto)
	for i, s := range items {
		_ = arr.DefineOwnProperty(value.IndexKey(uint32(i)), object.Descriptor{
			Value: value.Str(value.NewString(s)),
			Attrs: object.Attrs{Writable: true, Enumerable: true, Configurable: true},
		}, r.Epoch)
	}
	return value.Object(value.KindObject, r.Heap.Alloc(64, arr))
}
