// Package realm implements an isolate's wiring (spec.md §4.7): one heap,
// one proto-epoch, one interpreter, one global object, a compiled-module
// cache, and the event loop / extension registry / capability gate /
// environment store a realm hands to script. Grounded on wazero's
// runtime.go/builder.go (the "one constructor wires every subsystem"
// shape) and on the hashicorp/golang-lru-backed caches go-ethereum keeps
// for exactly this "compile once, reuse by content hash" purpose.
package realm

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/quillrt/quill/internal/bytecode"
	"github.com/quillrt/quill/internal/capability"
	"github.com/quillrt/quill/internal/compiler"
	"github.com/quillrt/quill/internal/envstore"
	"github.com/quillrt/quill/internal/eventloop"
	"github.com/quillrt/quill/internal/ext"
	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/intrinsics"
	"github.com/quillrt/quill/internal/metrics"
	"github.com/quillrt/quill/internal/object"
	"github.com/quillrt/quill/internal/value"
	"github.com/quillrt/quill/internal/vm"
)

// defaultModuleCacheSize bounds the compiled-module LRU so long-lived
// isolates that eval in a loop don't grow it unboundedly (SPEC_FULL.md
// §2).
const defaultModuleCacheSize = 256

// NewModuleCache builds a compiled-module LRU sized for sharing across
// several realms opened from one top-level Runtime (the top-level
// CompilationCache wraps this).
func NewModuleCache(size int) (*lru.Cache, error) {
	if size <= 0 {
		size = defaultModuleCacheSize
	}
	return lru.New(size)
}

// GlobalObject is the concrete vm.Globals implementation a realm installs:
// a plain *object.Object used as a data-binding bag via GetOwn/
// DefineOwnProperty directly, bypassing the full Get/Set accessor-
// invoking path since realm globals are never accessors (spec.md §4.7).
type GlobalObject struct {
	obj   *object.Object
	ref   *gc.Header
	epoch *object.ProtoEpoch
}

func newGlobalObject(heap *gc.Heap, epoch *object.ProtoEpoch) *GlobalObject {
	o := object.New(nil)
	return &GlobalObject{obj: o, ref: heap.Alloc(64, o), epoch: epoch}
}

func (g *GlobalObject) GetGlobal(name string) (value.Value, bool) {
	v, _, ok := g.obj.GetOwn(value.NewPropertyKey(value.NewString(name)))
	return v, ok
}

func (g *GlobalObject) SetGlobal(name string, v value.Value) {
	key := value.NewPropertyKey(value.NewString(name))
	_ = g.obj.DefineOwnProperty(key, object.Descriptor{
		Value: v,
		Attrs: object.Attrs{Writable: true, Enumerable: true, Configurable: true},
	}, g.epoch)
}

// Ref exposes the global object's heap header, e.g. for GC root
// registration.
func (g *GlobalObject) Ref() *gc.Header { return g.ref }

// Realm is one isolate (spec.md §4.7): "a single-threaded execution domain
// owning a memory manager, a root set, a module registry, an intrinsics
// table... and a global object."
type Realm struct {
	Heap       *gc.Heap
	Epoch      *object.ProtoEpoch
	Interp     *vm.Interpreter
	Globals    *GlobalObject
	Loop       *eventloop.Loop
	Ext        *ext.Registry
	Capability *capability.Gate
	Env        *envstore.Store
	Intrinsics *intrinsics.Table
	Metrics    *metrics.Registry
	Logger     metrics.Logger

	moduleCache *lru.Cache
}

// Config configures a Realm's construction.
type Config struct {
	HeapSoftLimit    uint64
	ModuleCacheSize  int
	AsyncWorkerCount int
	Capability       *capability.Gate
	Env              *envstore.Store
	Logger           metrics.Logger
	Metrics          *metrics.Registry

	// ModuleCache, when non-nil, is used instead of building a fresh LRU,
	// so several realms opened from one top-level Runtime/CompilationCache
	// share compiled modules by content hash (SPEC_FULL.md §0's cache.go).
	ModuleCache *lru.Cache
}

// New builds a fully wired realm: heap, epoch, interpreter, global object,
// intrinsics (Reflect, Promise, timers), event loop, extension registry,
// capability/environment bridges, and a content-hash-keyed compiled
// module cache. Intrinsics are installed in the defined order (spec.md
// §4.7: "Object.prototype -> Function.prototype -> everything else").
func New(cfg Config) (*Realm, error) {
	if cfg.ModuleCacheSize <= 0 {
		cfg.ModuleCacheSize = defaultModuleCacheSize
	}
	if cfg.AsyncWorkerCount <= 0 {
		cfg.AsyncWorkerCount = 4
	}
	if cfg.Capability == nil {
		cfg.Capability = capability.NewGate()
	}
	if cfg.Env == nil {
		cfg.Env = envstore.NewStore(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = metrics.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry()
	}

	cache := cfg.ModuleCache
	if cache == nil {
		var err error
		cache, err = lru.New(cfg.ModuleCacheSize)
		if err != nil {
			return nil, err
		}
	}

	heap := gc.NewHeap(cfg.HeapSoftLimit)
	epoch := &object.ProtoEpoch{}
	globals := newGlobalObject(heap, epoch)
	interp := vm.NewInterpreter(heap, globals, epoch, 1)
	heap.AddRoot(globals)

	loop := eventloop.NewLoop(cfg.Logger)
	extReg := ext.NewRegistry(interp, cfg.AsyncWorkerCount)
	extReg.SetReactionScheduler(func(reactions []vm.Reaction, fulfilled bool, val value.Value) {
		loop.SettlePromise(interp, reactions, fulfilled, val)
	})

	r := &Realm{
		Heap:        heap,
		Epoch:       epoch,
		Interp:      interp,
		Globals:     globals,
		Loop:        loop,
		Ext:         extReg,
		Capability:  cfg.Capability,
		Env:         cfg.Env,
		Metrics:     cfg.Metrics,
		Logger:      cfg.Logger,
		moduleCache: cache,
	}

	r.Intrinsics = intrinsics.Install(interp, epoch, globals, loop)
	r.installEnvBridge()
	r.installCapabilityGate()

	return r, nil
}

// GCRoots implements gc.RootProvider: the global object is always a GC
// root.
func (g *GlobalObject) GCRoots(visit func(*gc.Header)) { visit(g.ref) }

// moduleHash keys the compiled-module cache by source content rather than
// an identity/path, so re-evaluating identical source text (e.g. inside a
// loop) hits the cache (SPEC_FULL.md §2).
func moduleHash(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Compile returns src's compiled module, populating the LRU cache on a
// miss.
func (r *Realm) Compile(src string) (*bytecode.Module, error) {
	key := moduleHash(src)
	if cached, ok := r.moduleCache.Get(key); ok {
		return cached.(*bytecode.Module), nil
	}
	mod, err := compiler.Compile(src)
	if err != nil {
		return nil, err
	}
	r.moduleCache.Add(key, mod)
	return mod, nil
}

// Eval compiles (or reuses a cached compile of) src and runs its
// top-level script body to completion, returning its final expression
// value. Microtasks/timers it schedules are not drained here — call
// RunEventLoop or Poll afterward (spec.md §5: "the event loop runs... only
// between bytecode execution resumptions").
func (r *Realm) Eval(src string) (value.Value, error) {
	mod, err := r.Compile(src)
	if err != nil {
		return value.Undefined, err
	}
	cl := &vm.Closure{Fn: mod.Functions[0], Module: mod}
	return r.Interp.CallClosure(cl, value.Undefined, nil, false)
}

// Poll runs one event-loop iteration, also draining any completed async
// op results first so their promise settlements are visible to this
// poll's microtask drain.
func (r *Realm) Poll() int {
	r.Ext.PollCompletions()
	n := r.Loop.Poll()
	r.Metrics.SetEventLoopQueueDepth(r.Loop.QueueDepth())
	return n
}

// RunEventLoop polls until no pending tasks/async ops remain, sleeping
// until the next timer deadline between polls rather than busy-spinning
// (spec.md §4.5's has_pending_tasks/next_deadline pair is exactly this
// loop's stopping condition).
func (r *Realm) RunEventLoop() {
	for r.Loop.HasPendingTasks() || r.Ext.HasPendingAsyncOps() {
		if r.Poll() == 0 {
			if next, ok := r.Loop.NextDeadline(); ok {
				if d := time.Until(next); d > 0 {
					time.Sleep(d)
				}
			} else if !r.Ext.HasPendingAsyncOps() {
				break
			} else {
				time.Sleep(time.Millisecond)
			}
		}
	}
}

// Teardown implements spec.md §4.5's shutdown policy (drain microtasks
// and already-due timers for a bounded budget) and stops the extension
// registry's worker pool.
func (r *Realm) Teardown(budget time.Duration) {
	r.Loop.Shutdown(budget)
	r.Ext.Shutdown()
}

// SampleGC sets the metrics registry's heap-live-bytes gauge from the heap;
// call periodically or after CollectNow (internal/gc carries no metrics hooks
// itself, per DESIGN.md's decision not to touch a package that's already
// complete). The stats snapshot it reads is not forwarded: the GC cycle
// counter and pause histogram are not fed from here.
func (r *Realm) SampleGC() {
	stats := r.Heap.StatsSnapshot()
	r.Metrics.SetHeapLiveBytes(r.Heap.BytesLive())
	_ = stats.Cycles
}
