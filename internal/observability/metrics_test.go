package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("test_total", "test counter")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Errorf("counter = %v, want 3", c.Value())
	}

	g := r.NewGauge("test_gauge", "test gauge")
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 4 {
		t.Errorf("gauge = %v, want 4", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("test_seconds", "test histogram", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100)

	if h.count != 3 {
		t.Errorf("count = %d, want 3", h.count)
	}
	if h.counts[0] != 1 || h.counts[1] != 1 || h.counts[3] != 1 {
		t.Errorf("bucket counts = %v", h.counts)
	}
}

func TestPrometheusOutput(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewCounter("crucible_test_total", "a counter").Add(7)
	h := r.NewHistogram("crucible_test_seconds", "a histogram", []float64{1, 5})
	h.Observe(0.5)
	h.Observe(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"# TYPE crucible_test_total counter",
		"crucible_test_total 7",
		"# TYPE crucible_test_seconds histogram",
		`crucible_test_seconds_bucket{le="1"} 1`,
		`crucible_test_seconds_bucket{le="5"} 2`,
		`crucible_test_seconds_bucket{le="+Inf"} 2`,
		"crucible_test_seconds_count 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("output missing %q:\n%s", want, body)
		}
	}
}

func TestCrucibleMetricsRecording(t *testing.T) {
	m := NewCrucibleMetrics()
	m.RecordLLMRequest(100*time.Millisecond, 250, nil)
	m.RecordLLMRequest(time.Second, 100, errTest)
	m.RecordIngestRun(time.Second, 4, 2, nil)

	if m.LLMRequests.Value() != 2 {
		t.Errorf("llm requests = %v", m.LLMRequests.Value())
	}
	if m.LLMErrors.Value() != 1 {
		t.Errorf("llm errors = %v", m.LLMErrors.Value())
	}
	if m.LLMTokens.Value() != 350 {
		t.Errorf("llm tokens = %v", m.LLMTokens.Value())
	}
	if m.VectorUpserts.Value() != 4 || m.VectorSkipped.Value() != 2 {
		t.Errorf("vector counters = %v/%v", m.VectorUpserts.Value(), m.VectorSkipped.Value())
	}
}

var errTest = errFake{}

type errFake struct{}

func (errFake) Error() string { return "fake" }
