// Package observe provides in-process metrics for landscape-mcp with a
// Prometheus-compatible exposition endpoint on the HTTP gateway.
package observe

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	desc  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the counter's current value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a metric that can go up and down.
type Gauge struct {
	name  string
	desc  string
	value atomic.Int64
}

// Set sets the gauge value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the gauge's current value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks value distributions with pre-defined buckets.
type Histogram struct {
	mu      sync.Mutex
	name    string
	desc    string
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.buckets)]++ // +Inf bucket
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Registry collects application metrics.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates a metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// GetCounter returns (or creates) a counter metric.
func (r *Registry) GetCounter(name, description string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, desc: description}
	r.counters[name] = c
	return c
}

// GetGauge returns (or creates) a gauge metric.
func (r *Registry) GetGauge(name, description string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, desc: description}
	r.gauges[name] = g
	return g
}

// GetHistogram returns (or creates) a histogram metric.
func (r *Registry) GetHistogram(name, description string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	h := &Histogram{name: name, desc: description, buckets: sorted, counts: make([]int64, len(sorted)+1)}
	r.histograms[name] = h
	return h
}

// Metrics is the landscape-mcp metric suite.
type Metrics struct {
	Registry *Registry

	ToolCalls       *Counter
	ToolErrors      *Counter
	ToolLatency     *Histogram
	UpstreamCalls   *Counter
	UpstreamErrors  *Counter
	ResourceReads   *Counter
	PromptGets      *Counter
	SSESessions     *Gauge
	SSEMessagesSent *Counter
}

// NewMetrics creates the standard metric suite.
func NewMetrics() *Metrics {
	r := NewRegistry()
	latencyBuckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	return &Metrics{
		Registry: r,

		ToolCalls:       r.GetCounter("landscape_mcp_tool_calls_total", "Total tool invocations"),
		ToolErrors:      r.GetCounter("landscape_mcp_tool_errors_total", "Total failed tool invocations"),
		ToolLatency:     r.GetHistogram("landscape_mcp_tool_latency_seconds", "Tool invocation latency", latencyBuckets),
		UpstreamCalls:   r.GetCounter("landscape_mcp_upstream_calls_total", "Total Landscape API calls"),
		UpstreamErrors:  r.GetCounter("landscape_mcp_upstream_errors_total", "Total Landscape API errors"),
		ResourceReads:   r.GetCounter("landscape_mcp_resource_reads_total", "Total resource reads"),
		PromptGets:      r.GetCounter("landscape_mcp_prompt_gets_total", "Total prompt retrievals"),
		SSESessions:     r.GetGauge("landscape_mcp_sse_sessions", "Currently connected SSE sessions"),
		SSEMessagesSent: r.GetCounter("landscape_mcp_sse_messages_sent_total", "Total SSE messages sent"),
	}
}

// Handler returns an HTTP handler exporting the registry in Prometheus
// exposition format.
func Handler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		registry.mu.RLock()
		defer registry.mu.RUnlock()

		names := make([]string, 0, len(registry.counters))
		for name := range registry.counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := registry.counters[name]
			fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.desc)
			fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
			fmt.Fprintf(w, "%s %d\n", c.name, c.value.Load())
		}

		names = names[:0]
		for name := range registry.gauges {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			g := registry.gauges[name]
			fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.desc)
			fmt.Fprintf(w, "# TYPE %s gauge\n", g.name)
			fmt.Fprintf(w, "%s %d\n", g.name, g.value.Load())
		}

		names = names[:0]
		for name := range registry.histograms {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			h := registry.histograms[name]
			fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.desc)
			fmt.Fprintf(w, "# TYPE %s histogram\n", h.name)
			h.mu.Lock()
			cumulative := int64(0)
			for i, b := range h.buckets {
				cumulative += h.counts[i]
				fmt.Fprintf(w, "%s_bucket{le=\"%g\"} %d\n", h.name, b, cumulative)
			}
			cumulative += h.counts[len(h.buckets)]
			fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, cumulative)
			fmt.Fprintf(w, "%s_sum %g\n", h.name, h.sum)
			fmt.Fprintf(w, "%s_count %d\n", h.name, h.count)
			h.mu.Unlock()
		}
	}
}
