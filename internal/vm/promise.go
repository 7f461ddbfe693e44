package vm

import (
	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/value"
)

// PromiseState is one of the three ES2024 promise states (spec.md §3.8).
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// Reaction is one fulfill/reject handler pair attached via then/catch, plus
// the downstream promise its handler's return value settles (spec.md
// §3.8). Reactions enqueue microtask jobs rather than running inline,
// which is what gives promise chains their FIFO firing order
// (spec.md §8's "Promise reaction FIFO" law).
type Reaction struct {
	OnFulfilled value.Value // callable or Undefined
	OnRejected  value.Value // callable or Undefined
	Downstream  *Promise
}

// Promise is the internal promise record a host-visible promise object
// wraps (spec.md §3.8). Settling enqueues every attached reaction as one
// microtask job each, preserving attach order.
type Promise struct {
	State  PromiseState
	Value  value.Value // fulfillment value or rejection reason
	onFulfill []Reaction
	onReject  []Reaction
}

func NewPromise() *Promise { return &Promise{} }

func (p *Promise) Trace(visit func(*gc.Header)) {
	if r := p.Value.Ref(); r != nil {
		visit(r)
	}
	for _, reac := range p.onFulfill {
		if r := reac.OnFulfilled.Ref(); r != nil {
			visit(r)
		}
		if r := reac.OnRejected.Ref(); r != nil {
			visit(r)
		}
	}
}

func (p *Promise) Finalize() {}

// Fulfill transitions Pending -> Fulfilled exactly once and returns the
// reactions to schedule as microtasks, in attach order.
func (p *Promise) Fulfill(v value.Value) []Reaction {
	if p.State != PromisePending {
		return nil
	}
	p.State = PromiseFulfilled
	p.Value = v
	out := p.onFulfill
	p.onFulfill, p.onReject = nil, nil
	return out
}

// Reject transitions Pending -> Rejected exactly once and returns the
// reactions to schedule, in attach order.
func (p *Promise) Reject(reason value.Value) []Reaction {
	if p.State != PromisePending {
		return nil
	}
	p.State = PromiseRejected
	p.Value = reason
	out := p.onReject
	p.onFulfill, p.onReject = nil, nil
	return out
}

// Then attaches a reaction. If the promise has already settled, the
// reaction is returned immediately so the caller can schedule it as a
// microtask without delay; otherwise it's queued for Fulfill/Reject to
// return later.
func (p *Promise) Then(onFulfilled, onRejected value.Value, downstream *Promise) (immediate *Reaction) {
	r := Reaction{OnFulfilled: onFulfilled, OnRejected: onRejected, Downstream: downstream}
	switch p.State {
	case PromiseFulfilled, PromiseRejected:
		return &r
	default:
		p.onFulfill = append(p.onFulfill, r)
		p.onReject = append(p.onReject, r)
		return nil
	}
}
