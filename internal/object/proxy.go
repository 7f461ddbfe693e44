package object

import (
	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/value"
)

// Trap names the thirteen ECMAScript proxy traps a handler may define.
type Trap string

const (
	TrapGet                     Trap = "get"
	TrapSet                     Trap = "set"
	TrapHas                     Trap = "has"
	TrapDeleteProperty           Trap = "deleteProperty"
	TrapOwnKeys                  Trap = "ownKeys"
	TrapGetOwnPropertyDescriptor Trap = "getOwnPropertyDescriptor"
	TrapDefineProperty           Trap = "defineProperty"
	TrapGetPrototypeOf           Trap = "getPrototypeOf"
	TrapSetPrototypeOf           Trap = "setPrototypeOf"
	TrapIsExtensible             Trap = "isExtensible"
	TrapPreventExtensions        Trap = "preventExtensions"
	TrapApply                    Trap = "apply"
	TrapConstruct                Trap = "construct"
)

// Proxy wraps a target with a handler object; any core operation that
// would otherwise touch target goes through the handler's matching trap
// function when present, or falls back to performing the operation on
// target directly (spec.md §4.2, the "interception signal" path Object.Get
// and friends raise via ErrInterception when their prototype walk reaches
// a Proxy).
type Proxy struct {
	Target  *gc.Header
	Handler *gc.Header

	targetObj  *Object
	handlerObj *Object
	revoked    bool
}

// NewProxy constructs a proxy over target with the given handler. Only
// ordinary-object payloads are resolved: a target or handler whose payload
// is not an *Object leaves the corresponding cached object nil.
func NewProxy(target, handler *gc.Header) *Proxy {
	t, _ := target.Payload().(*Object)
	h, _ := handler.Payload().(*Object)
	return &Proxy{Target: target, Handler: handler, targetObj: t, handlerObj: h}
}

func (p *Proxy) Trace(visit func(*gc.Header)) {
	if p.Target != nil {
		visit(p.Target)
	}
	if p.Handler != nil {
		visit(p.Handler)
	}
}

func (p *Proxy) Finalize() {}

// Revoke disables every trap: further operations raise a TypeError
// (spec.md §4.2's Proxy.revocable).
func (p *Proxy) Revoke() { p.revoked = true }

func (p *Proxy) Revoked() bool { return p.revoked }

// trapFn returns the handler's trap function, or the zero Value (Undefined)
// if the handler doesn't define this trap — the caller should then fall
// back to invoking the operation on Target.
func (p *Proxy) trapFn(t Trap) value.Value {
	if p.handlerObj == nil {
		return value.Undefined
	}
	v, _, ok := p.handlerObj.GetOwn(value.NewPropertyKey(value.NewString(string(t))))
	if !ok {
		return value.Undefined
	}
	return v
}

// Invoke calls trap t on the handler with (target, ...args) if defined,
// reporting ok=false when the handler has no such trap so the caller can
// fall back to the un-intercepted target operation.
func (p *Proxy) Invoke(caller Caller, t Trap, targetVal value.Value, args []value.Value) (result value.Value, ok bool, err error) {
	if p.revoked {
		return value.Undefined, true, &definitionError{msg: "TypeError: cannot perform operation on a revoked proxy"}
	}
	fn := p.trapFn(t)
	if fn.IsUndefined() {
		return value.Undefined, false, nil
	}
	full := append([]value.Value{targetVal}, args...)
	v, err := caller.Call(fn, value.Object(value.KindObject, p.Handler), full)
	return v, true, err
}

// TargetObject returns the proxy's target as an *Object when it is one
// (proxies over functions are not yet supported).
func (p *Proxy) TargetObject() *Object { return p.targetObj }
