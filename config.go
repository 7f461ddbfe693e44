package quill

import (
	"github.com/quillrt/quill/internal/capability"
	"github.com/quillrt/quill/internal/envstore"
	"github.com/quillrt/quill/internal/metrics"
)

// RuntimeConfig controls realm construction, with the default
// implementation as NewRuntimeConfig. Modeled on wazero's RuntimeConfig/
// engineLessConfig/clone pattern: an immutable builder, configured via
// With... methods that each return a new value (SPEC_FULL.md §1.3).
type RuntimeConfig struct {
	heapSoftLimit    uint64
	moduleCacheSize  int
	asyncWorkerCount int
	timerNestingMax  int
	capability       *capability.Gate
	env              *envstore.Store
	logger           metrics.Logger
	metrics          *metrics.Registry
}

// defaultConfig avoids copy/pasting the wrong defaults.
var defaultConfig = &RuntimeConfig{
	heapSoftLimit:    64 << 20,
	moduleCacheSize:  256,
	asyncWorkerCount: 4,
	timerNestingMax:  4,
	capability:       capability.NewGate(),
	env:              envstore.NewStore(nil),
	logger:           metrics.NoopLogger{},
}

// clone ensures all fields are copied even if nil, so a With... call never
// mutates the receiver in place.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// NewRuntimeConfig returns a RuntimeConfig with every field defaulted: a
// 64MiB heap soft limit, a 256-entry compiled-module cache, 4 async
// workers, the HTML5 timer nesting clamp, a deny-by-default capability
// gate, an empty environment store, and a no-op logger.
func NewRuntimeConfig() *RuntimeConfig {
	return defaultConfig.clone()
}

// WithHeapSoftLimit sets the cumulative allocation threshold (bytes) that
// triggers an automatic GC cycle; zero disables automatic triggering.
func (c *RuntimeConfig) WithHeapSoftLimit(n uint64) *RuntimeConfig {
	ret := c.clone()
	ret.heapSoftLimit = n
	return ret
}

// WithModuleCacheSize bounds the compiled-module LRU cache entry count.
func (c *RuntimeConfig) WithModuleCacheSize(n int) *RuntimeConfig {
	ret := c.clone()
	ret.moduleCacheSize = n
	return ret
}

// WithAsyncWorkerCount sets the extension registry's worker pool size.
func (c *RuntimeConfig) WithAsyncWorkerCount(n int) *RuntimeConfig {
	ret := c.clone()
	ret.asyncWorkerCount = n
	return ret
}

// WithCapability installs a capability gate; realms default to a
// deny-by-default gate when this is never called.
func (c *RuntimeConfig) WithCapability(g *capability.Gate) *RuntimeConfig {
	ret := c.clone()
	ret.capability = g
	return ret
}

// WithEnv installs the process.env backing store.
func (c *RuntimeConfig) WithEnv(s *envstore.Store) *RuntimeConfig {
	ret := c.clone()
	ret.env = s
	return ret
}

// WithLogger installs the diagnostics sink the event loop logs callback
// failures to; the interpreter and GC do not log.
func (c *RuntimeConfig) WithLogger(l metrics.Logger) *RuntimeConfig {
	ret := c.clone()
	ret.logger = l
	return ret
}

// WithMetrics installs a prometheus-backed metrics registry; realms build
// their own private registry when this is never called.
func (c *RuntimeConfig) WithMetrics(m *metrics.Registry) *RuntimeConfig {
	ret := c.clone()
	ret.metrics = m
	return ret
}
