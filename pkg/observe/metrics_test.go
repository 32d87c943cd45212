package observe

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry()

	c := r.GetCounter("test_total", "Test counter")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("counter = %d, want 5", c.Value())
	}

	// Same name returns the same metric.
	if r.GetCounter("test_total", "Test counter") != c {
		t.Error("GetCounter should return the existing counter")
	}

	g := r.GetGauge("test_gauge", "Test gauge")
	g.Set(3)
	g.Inc()
	g.Dec()
	if g.Value() != 3 {
		t.Errorf("gauge = %d, want 3", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry()
	h := r.GetHistogram("test_latency", "Test histogram", []float64{0.1, 1, 10})

	for _, v := range []float64{0.05, 0.5, 5, 50} {
		h.Observe(v)
	}
	if h.Count() != 4 {
		t.Errorf("count = %d, want 4", h.Count())
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := NewMetrics()
	m.ToolCalls.Add(7)
	m.SSESessions.Set(2)
	m.ToolLatency.Observe(0.3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(m.Registry)(rec, req)

	body := rec.Body.String()

	if !strings.Contains(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
	for _, want := range []string{
		"# TYPE landscape_mcp_tool_calls_total counter",
		"landscape_mcp_tool_calls_total 7",
		"landscape_mcp_sse_sessions 2",
		"landscape_mcp_tool_latency_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q\n%s", want, body)
		}
	}
}
