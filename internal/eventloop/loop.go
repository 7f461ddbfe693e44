// Package eventloop implements the single-threaded microtask/timer/
// immediate scheduler described in spec.md §4.5: a microtask FIFO, a timer
// min-heap keyed by deadline, an immediate FIFO, and the poll-order
// algorithm that keeps microtasks strictly ahead of macrotasks (spec.md §5
// "Microtasks strictly before macrotasks").
//
// This is also where internal/vm's Promise reactions actually get run:
// Promise.Fulfill/Reject hand back the reactions to schedule as
// microtasks (internal/vm/promise.go), and Loop.SettlePromise is the
// consumer that turns that slice into real microtask jobs, invoking each
// reaction's handler through an *vm.Interpreter and recursively settling
// the reaction's downstream promise.
package eventloop

import (
	"container/heap"
	"time"

	"github.com/quillrt/quill/internal/value"
	"github.com/quillrt/quill/internal/vm"
	"github.com/quillrt/quill/internal/vmerr"
)

// MaxTimerNestingLevel and MinTimeoutMS implement the HTML5 nesting clamp
// (spec.md §4.5, §8 invariant 4): once a chain of timers scheduling
// timers goes deeper than MaxTimerNestingLevel, the effective delay is
// raised to at least MinTimeoutMS.
const (
	MaxTimerNestingLevel = 4
	MinTimeoutMS         = 4
)

// Logger is the minimal sink the loop reports timer/immediate callback
// panics and misfires to (spec.md §9 open question 2: callback panics are
// recovered, logged, and the loop continues). Defined locally, structurally
// compatible with internal/metrics.Logger, so this package doesn't need to
// import internal/metrics.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Callback is a scheduled job: a timer/immediate/microtask body.
type Callback func() error

// entry is one timer or immediate registration. Immediates reuse the same
// struct with interval == 0 and are kept in a plain FIFO slice rather than
// the heap (spec.md §4.5: "Immediates are identical [to timers] except
// with no delay").
type entry struct {
	id       uint64
	when     time.Time
	interval time.Duration
	nesting  int
	refed    bool
	cancelled bool
	fn       Callback
	heapIdx  int
}

// timerHeap is a container/heap.Interface ordered by (when, id), giving
// timer callbacks deterministic (deadline, id) ordering (spec.md §5).
type timerHeap []*entry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].id < h[j].id
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx, h[j].heapIdx = i, j
}
func (h *timerHeap) Push(x any) {
	e := x.(*entry)
	e.heapIdx = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Loop is one isolate's event loop (spec.md §4.5, §4.7: "the event loop
// runs on the same thread [as the interpreter] and only between bytecode
// execution resumptions").
type Loop struct {
	logger Logger

	microtasks []Callback

	timers  timerHeap
	byID    map[uint64]*entry
	nextID  uint64

	immediates []*entry

	// currentNesting is the timer-chain nesting depth of whatever timer
	// callback is presently executing, or 0 if none is (spec.md §4.5's
	// clamp is keyed off "the current nesting level").
	currentNesting int
}

// NewLoop constructs an empty loop. A nil logger installs a no-op.
func NewLoop(logger Logger) *Loop {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Loop{logger: logger, byID: map[uint64]*entry{}}
}

// ScheduleTimer registers a one-shot (interval == 0) or repeating timer,
// applying the nesting clamp if scheduled from inside a deeply nested
// timer chain.
func (l *Loop) ScheduleTimer(fn Callback, delay, interval time.Duration, refed bool) uint64 {
	nesting := l.currentNesting + 1
	if nesting > MaxTimerNestingLevel && delay < MinTimeoutMS*time.Millisecond {
		delay = MinTimeoutMS * time.Millisecond
	}
	l.nextID++
	id := l.nextID
	e := &entry{id: id, when: time.Now().Add(delay), interval: interval, nesting: nesting, refed: refed, fn: fn}
	heap.Push(&l.timers, e)
	l.byID[id] = e
	return id
}

// ScheduleImmediate registers a same-tick-after-current-microtasks job
// (spec.md §4.5: identical to a timer with no delay).
func (l *Loop) ScheduleImmediate(fn Callback, refed bool) uint64 {
	l.nextID++
	id := l.nextID
	e := &entry{id: id, refed: refed, fn: fn}
	l.immediates = append(l.immediates, e)
	l.byID[id] = e
	return id
}

// ClearTimer cancels a timer or immediate by id. Cancelling from within
// the timer's own callback prevents the next interval re-arm, since the
// re-arm path checks the cancelled flag before pushing a new heap entry.
func (l *Loop) ClearTimer(id uint64) {
	if e, ok := l.byID[id]; ok {
		e.cancelled = true
	}
}

// SetTimerRef updates whether id keeps the loop alive.
func (l *Loop) SetTimerRef(id uint64, refed bool) {
	if e, ok := l.byID[id]; ok {
		e.refed = refed
	}
}

// QueueMicrotask appends a job to the microtask FIFO directly (used by
// queueMicrotask() and by SettlePromise's reaction scheduling).
func (l *Loop) QueueMicrotask(fn Callback) {
	l.microtasks = append(l.microtasks, fn)
}

// drainMicrotasks runs the microtask queue to exhaustion, including jobs
// enqueued by jobs already running (spec.md §4.5 step 1, §5 "Microtasks
// enqueued during a microtask run before control leaves the microtask
// phase").
func (l *Loop) drainMicrotasks() {
	for len(l.microtasks) > 0 {
		job := l.microtasks[0]
		l.microtasks = l.microtasks[1:]
		if err := l.runProtected(job); err != nil {
			l.logger.Error("microtask failed", "err", err)
		}
	}
}

func (l *Loop) runProtected(fn Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("callback panicked", "recover", r)
		}
	}()
	return fn()
}

// Poll runs one iteration of the poll-order algorithm (spec.md §4.5):
// drain microtasks, run due timers (draining between each), run
// immediates (draining between each), and report how many macrotasks ran.
func (l *Loop) Poll() int {
	l.drainMicrotasks()

	executed := 0
	now := time.Now()
	for l.timers.Len() > 0 && l.timers[0].when.Compare(now) <= 0 {
		e := heap.Pop(&l.timers).(*entry)
		delete(l.byID, e.id)
		if e.cancelled {
			continue
		}
		executed++
		l.runTimer(e)
		l.drainMicrotasks()
		now = time.Now()
	}

	for len(l.immediates) > 0 {
		e := l.immediates[0]
		l.immediates = l.immediates[1:]
		delete(l.byID, e.id)
		if e.cancelled {
			continue
		}
		executed++
		if err := l.runProtected(e.fn); err != nil {
			l.logger.Error("immediate failed", "err", err)
		}
		l.drainMicrotasks()
	}

	return executed
}

// runTimer executes e's callback with the nesting level tracked for the
// duration of the call (so timers it schedules chain the clamp), and
// re-arms it if it's an interval and wasn't cancelled by its own callback.
func (l *Loop) runTimer(e *entry) {
	// Keep e findable by id while its callback runs, so a ClearTimer call
	// from inside the callback marks this very entry cancelled.
	l.byID[e.id] = e
	prev := l.currentNesting
	l.currentNesting = e.nesting
	err := l.runProtected(e.fn)
	l.currentNesting = prev
	if err != nil {
		l.logger.Warn("timer callback failed", "id", e.id, "err", err)
	}
	if e.interval > 0 && !e.cancelled {
		delay := e.interval
		nesting := e.nesting + 1
		if nesting > MaxTimerNestingLevel && delay < MinTimeoutMS*time.Millisecond {
			delay = MinTimeoutMS * time.Millisecond
		}
		ne := &entry{id: e.id, when: time.Now().Add(delay), interval: e.interval, nesting: nesting, refed: e.refed, fn: e.fn}
		heap.Push(&l.timers, ne)
		l.byID[ne.id] = ne
		return
	}
	delete(l.byID, e.id)
}

// HasPendingTasks reports whether the loop has work left to do: any
// microtask queued, or any non-cancelled refed timer/immediate (spec.md
// §4.5).
func (l *Loop) HasPendingTasks() bool {
	if len(l.microtasks) > 0 {
		return true
	}
	for _, e := range l.timers {
		if e.refed && !e.cancelled {
			return true
		}
	}
	for _, e := range l.immediates {
		if e.refed && !e.cancelled {
			return true
		}
	}
	return false
}

// QueueDepth is the combined microtask/timer/immediate queue length,
// polled by internal/realm and forwarded to internal/metrics.
func (l *Loop) QueueDepth() int {
	return len(l.microtasks) + l.timers.Len() + len(l.immediates)
}

// NextDeadline returns the earliest refed, non-cancelled deadline, or
// *now* if any refed immediate is pending (spec.md §4.5).
func (l *Loop) NextDeadline() (time.Time, bool) {
	for _, e := range l.immediates {
		if e.refed && !e.cancelled {
			return time.Now(), true
		}
	}
	best := time.Time{}
	found := false
	for _, e := range l.timers {
		if !e.refed || e.cancelled {
			continue
		}
		if !found || e.when.Before(best) {
			best, found = e.when, true
		}
	}
	return best, found
}

// Shutdown implements spec.md §4.5's teardown policy: drain microtasks and
// run already-due timers for a bounded budget, then stop. Remaining
// callback refs are left unprotected (the caller drops the isolate).
func (l *Loop) Shutdown(budget time.Duration) {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		if l.Poll() == 0 && len(l.microtasks) == 0 {
			return
		}
	}
}

// SettlePromise is the consumer half of internal/vm's Promise state
// machine: Fulfill/Reject return the reactions attached before settlement
// (internal/vm/promise.go), and this turns each into a microtask that
// invokes the right handler, then recursively settles the reaction's
// downstream promise with the handler's outcome (spec.md §3.8, §8's
// "Promise reaction FIFO" law — reactions are appended to the microtask
// queue in attach order, so they fire in that order).
func (l *Loop) SettlePromise(interp *vm.Interpreter, reactions []vm.Reaction, fulfilled bool, val value.Value) {
	for _, r := range reactions {
		r := r
		l.QueueMicrotask(func() error {
			l.runReaction(interp, r, fulfilled, val)
			return nil
		})
	}
}

func (l *Loop) runReaction(interp *vm.Interpreter, r vm.Reaction, fulfilled bool, val value.Value) {
	handler := r.OnRejected
	if fulfilled {
		handler = r.OnFulfilled
	}
	if handler.Kind() == value.KindUndefined {
		// No handler attached for this outcome: the value/reason passes
		// straight through to the downstream promise unchanged.
		l.settleDownstream(interp, r.Downstream, fulfilled, val)
		return
	}
	result, err := interp.Call(handler, value.Undefined, []value.Value{val})
	if err != nil {
		l.settleDownstream(interp, r.Downstream, false, errorToValue(err))
		return
	}
	l.settleDownstream(interp, r.Downstream, true, result)
}

func (l *Loop) settleDownstream(interp *vm.Interpreter, p *vm.Promise, fulfilled bool, val value.Value) {
	if p == nil {
		return
	}
	var next []vm.Reaction
	if fulfilled {
		next = p.Fulfill(val)
	} else {
		next = p.Reject(val)
	}
	l.SettlePromise(interp, next, fulfilled, val)
}

// errorToValue mirrors internal/vm's unexported helper of the same
// purpose: the script-visible value a caught error carries.
func errorToValue(err error) value.Value {
	if ve, ok := err.(*vmerr.Error); ok {
		if ve.Kind == vmerr.KindThrow {
			return ve.Value
		}
		return value.Str(value.NewString(ve.Error()))
	}
	return value.Str(value.NewString(err.Error()))
}
