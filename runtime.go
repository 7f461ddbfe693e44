package quill

import (
	"time"

	"github.com/quillrt/quill/internal/realm"
	"github.com/quillrt/quill/internal/value"
)

// Runtime is the top-level entry point: one RuntimeConfig plus one shared
// CompilationCache, from which any number of isolated Realms are opened.
// Modeled on wazero's Runtime/NewRuntime pair (builder.go): construction
// is cheap and side-effect-free, all real work happens per-Realm.
type Runtime struct {
	cfg   *RuntimeConfig
	cache *CompilationCache
}

// NewRuntime builds a Runtime from cfg (nil uses NewRuntimeConfig's
// defaults), allocating its shared CompilationCache.
func NewRuntime(cfg *RuntimeConfig) (*Runtime, error) {
	if cfg == nil {
		cfg = NewRuntimeConfig()
	}
	cache, err := NewCompilationCache(cfg.moduleCacheSize)
	if err != nil {
		return nil, err
	}
	return &Runtime{cfg: cfg, cache: cache}, nil
}

// Cache returns the CompilationCache this Runtime's realms share, e.g. to
// inspect its size for diagnostics. It cannot be passed to another Runtime.
func (rt *Runtime) Cache() *CompilationCache { return rt.cache }

// NewRealm opens a fresh isolate sharing this Runtime's compiled-module
// cache and capability/environment/logging/metrics configuration
// (spec.md §4.7: realms are independent execution domains, but sharing a
// compile cache across them is exactly what makes repeated `eval` of the
// same source across many short-lived realms cheap).
func (rt *Runtime) NewRealm() (*Realm, error) {
	inner, err := realm.New(realm.Config{
		HeapSoftLimit:    rt.cfg.heapSoftLimit,
		AsyncWorkerCount: rt.cfg.asyncWorkerCount,
		Capability:       rt.cfg.capability,
		Env:              rt.cfg.env,
		Logger:           rt.cfg.logger,
		Metrics:          rt.cfg.metrics,
		ModuleCache:      rt.cache.lru,
	})
	if err != nil {
		return nil, err
	}
	return &Realm{inner: inner}, nil
}

// Realm is one isolate opened from a Runtime: a single-threaded execution
// domain with its own heap, globals, and event loop (spec.md §4.7).
type Realm struct {
	inner *realm.Realm
}

// Eval compiles (reusing the Runtime's CompilationCache on a repeat of
// identical source) and runs src's top-level script body to completion,
// returning its final expression value. It does not drain the event
// loop — call RunEventLoop afterward to let any scheduled timers/promise
// reactions/async ops settle (spec.md §5).
func (r *Realm) Eval(src string) (value.Value, error) {
	return r.inner.Eval(src)
}

// RunEventLoop polls microtasks, timers, and async-op completions until
// none remain pending, sleeping between polls rather than busy-spinning
// (spec.md §4.5).
func (r *Realm) RunEventLoop() {
	r.inner.RunEventLoop()
}

// Close tears the realm's event loop and extension worker pool down,
// draining whatever is already due within budget before returning
// (spec.md §4.5's shutdown policy).
func (r *Realm) Close(budget time.Duration) {
	r.inner.Teardown(budget)
}
