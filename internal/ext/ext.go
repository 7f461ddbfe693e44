// Package ext implements the extension/op layer spec.md §4.6 describes:
// a named collection of native ops installed onto the global object, with
// async ops dispatched onto a bounded worker pool and their results
// crossing back over an MPSC channel rather than blocking the interpreter
// thread (SPEC_FULL.md §4, from original_source/extension.rs and
// worker.rs).
package ext

import (
	"sync/atomic"

	"github.com/JekaMas/workerpool"

	"github.com/quillrt/quill/internal/value"
	"github.com/quillrt/quill/internal/vm"
)

// SyncFn is a synchronous op body: it runs on the interpreter thread and
// returns its result (or error) immediately.
type SyncFn func(interp *vm.Interpreter, args []value.Value) (value.Value, error)

// AsyncFn is an async op body: it runs on the worker pool. Its result is
// marshalled back across opResult and applied to the op's deferred
// promise the next time the event loop polls (spec.md §4.6).
type AsyncFn func(args []value.Value) (value.Value, error)

// Op is one named native operation an Extension exposes, either Sync or
// Async (spec.md §4.6). Exactly one of Sync/Async is set.
type Op struct {
	Name  string
	Sync  SyncFn
	Async AsyncFn
}

// Extension is a named bundle of ops (spec.md §4.6).
type Extension struct {
	Name string
	Ops  []Op
}

// opResult is one completion message crossing the MPSC from a worker
// goroutine back to the registry (spec.md §4.6's "(id, result)").
type opResult struct {
	id     uint64
	value  value.Value
	err    error
}

// Registry installs extensions as native functions on an interpreter and
// dispatches their async ops on a workerpool.WorkerPool, tracking
// in-flight work so HasPendingAsyncOps reflects spec.md §4.6's
// "inflight_ops" counter.
type Registry struct {
	interp *vm.Interpreter
	pool   *workerpool.WorkerPool

	nextOpID uint64
	inflight atomic.Int64

	results chan opResult

	// deferreds maps an op id to the promise the op's NativeFunc returned
	// to script, so the event loop can look it up when opResult arrives.
	deferreds map[uint64]*vm.Promise

	// scheduleReactions is injected by internal/realm (which owns the
	// eventloop.Loop) so this package never imports internal/eventloop
	// directly — avoiding an ext <-> eventloop import cycle, since the
	// loop itself has no need to know about ops.
	scheduleReactions func(reactions []vm.Reaction, fulfilled bool, val value.Value)
}

// NewRegistry builds a registry bound to interp, running async ops on a
// pool of poolSize workers.
func NewRegistry(interp *vm.Interpreter, poolSize int) *Registry {
	return &Registry{
		interp:    interp,
		pool:      workerpool.New(poolSize),
		results:   make(chan opResult, 64),
		deferreds: map[uint64]*vm.Promise{},
	}
}

// SetReactionScheduler wires the callback internal/realm uses to hand
// settled-promise reactions to its internal/eventloop.Loop.
func (r *Registry) SetReactionScheduler(fn func(reactions []vm.Reaction, fulfilled bool, val value.Value)) {
	r.scheduleReactions = fn
}

// Install registers every op in ext as a native function on the global
// object, named "<ext.Name>.<op.Name>" (spec.md §4.6: "installs each op
// as a native function on the global object").
func (r *Registry) Install(ext Extension) {
	for _, op := range ext.Ops {
		op := op
		qualified := ext.Name + "." + op.Name
		switch {
		case op.Sync != nil:
			r.interp.RegisterNative(qualified, func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
				return op.Sync(interp, args)
			})
		case op.Async != nil:
			r.interp.RegisterNative(qualified, r.dispatchAsync(op.Async))
		}
	}
}

// dispatchAsync builds the NativeFunc for an async op: it allocates a
// deferred promise, spawns fn on the worker pool, and returns the promise
// to script immediately without blocking the interpreter (spec.md §4.6).
func (r *Registry) dispatchAsync(fn AsyncFn) vm.NativeFunc {
	return func(interp *vm.Interpreter, this value.Value, args []value.Value) (value.Value, error) {
		p := vm.NewPromise()
		r.nextOpID++
		id := r.nextOpID
		r.deferreds[id] = p
		r.inflight.Add(1)

		r.pool.Submit(func() {
			v, err := fn(args)
			r.results <- opResult{id: id, value: v, err: err}
		})

		return value.Object(value.KindPromise, interp.Heap.Alloc(64, p)), nil
	}
}

// PollCompletions drains every op result posted since the last poll,
// resolving or rejecting each op's deferred promise and forwarding the
// resulting reactions to the event loop. Called from the event loop's
// poll window (spec.md §5: "applied only during event-loop poll
// windows").
func (r *Registry) PollCompletions() {
	for {
		select {
		case res := <-r.results:
			r.applyResult(res)
		default:
			return
		}
	}
}

func (r *Registry) applyResult(res opResult) {
	p, ok := r.deferreds[res.id]
	if !ok {
		return
	}
	delete(r.deferreds, res.id)
	r.inflight.Add(-1)

	if res.err != nil {
		reactions := p.Reject(errToValueViaThrow(res.err))
		if r.scheduleReactions != nil {
			r.scheduleReactions(reactions, false, p.Value)
		}
		return
	}
	reactions := p.Fulfill(res.value)
	if r.scheduleReactions != nil {
		r.scheduleReactions(reactions, true, p.Value)
	}
}

// HasPendingAsyncOps reports whether any async op is still in flight
// (spec.md §4.6's "has_pending_async_ops").
func (r *Registry) HasPendingAsyncOps() bool { return r.inflight.Load() > 0 }

// Shutdown stops the worker pool, waiting for in-flight work to drain.
func (r *Registry) Shutdown() { r.pool.StopWait() }

// errToValueViaThrow wraps a Go error's message as a script-visible
// string value; ops return plain errors (spec.md §6: "the core wraps the
// string with InternalError unless the string matches a recognised
// prefix" — the prefix-recognition table is a collaborator concern this
// package leaves to internal/intrinsics' Error constructors).
func errToValueViaThrow(err error) value.Value {
	return value.Str(value.NewString(err.Error()))
}
