package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry exposes the runtime's Prometheus collectors: a GC pause
// histogram, a heap-live-bytes gauge, per-IC-state transition counters,
// and an event-loop queue-depth gauge (SPEC_FULL.md §2). internal/realm
// forwards the heap's live-byte count and internal/eventloop's queue
// depth here rather than either package importing
// prometheus directly, keeping the already-complete gc/vm packages free
// of observability wiring.
type Registry struct {
	reg *prometheus.Registry

	gcPause        prometheus.Histogram
	heapLiveBytes  prometheus.Gauge
	gcCycles       prometheus.Counter
	icTransitions  *prometheus.CounterVec
	loopQueueDepth prometheus.Gauge
}

// NewRegistry builds and registers every collector against a private
// prometheus.Registry (not the global DefaultRegisterer, so multiple
// isolates in one process don't collide).
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.gcPause = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quill",
		Subsystem: "gc",
		Name:      "pause_seconds",
		Help:      "Duration of each tri-color mark/sweep cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
	})
	r.heapLiveBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quill",
		Subsystem: "gc",
		Name:      "heap_live_bytes",
		Help:      "Bytes reachable as of the last StatsSnapshot poll.",
	})
	r.gcCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "gc",
		Name:      "cycles_total",
		Help:      "Completed mark/sweep cycles.",
	})
	r.icTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "bytecode",
		Name:      "ic_transitions_total",
		Help:      "Inline-cache state transitions, labeled by resulting state.",
	}, []string{"state"})
	r.loopQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quill",
		Subsystem: "eventloop",
		Name:      "queue_depth",
		Help:      "Combined microtask/timer/immediate queue depth as of the last poll.",
	})

	r.reg.MustRegister(r.gcPause, r.heapLiveBytes, r.gcCycles, r.icTransitions, r.loopQueueDepth)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP
// /metrics handler (wiring the handler itself is a collaborator concern,
// per spec.md §6's scope: only core<->collaborator interfaces are here).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveGCPause(d time.Duration) { r.gcPause.Observe(d.Seconds()) }
func (r *Registry) SetHeapLiveBytes(n uint64)      { r.heapLiveBytes.Set(float64(n)) }
func (r *Registry) IncGCCycle()                    { r.gcCycles.Inc() }
func (r *Registry) IncICTransition(state string)   { r.icTransitions.WithLabelValues(state).Inc() }
func (r *Registry) SetEventLoopQueueDepth(n int)   { r.loopQueueDepth.Set(float64(n)) }
