package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics and serves them in Prometheus
// text format.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name  string
	help  string
	mu    sync.Mutex
	value float64
}

// Histogram tracks a distribution of values over fixed buckets.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram.
func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(buckets) == 0 {
		buckets = DefaultBuckets()
	}
	h := &Histogram{name: name, help: help, buckets: buckets, counts: make([]uint64, len(buckets)+1)}
	r.histos[name] = h
	return h
}

// DefaultBuckets are duration buckets in seconds suited to network calls.
func DefaultBuckets() []float64 {
	return []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
}

// Inc increments the counter by one.
func (c *Counter) Inc() { c.Add(1) }

// Add increments the counter by v.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the current counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by one.
func (g *Gauge) Inc() { g.Add(1) }

// Dec decrements the gauge by one.
func (g *Gauge) Dec() { g.Add(-1) }

// Add increments the gauge by v.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records one sample.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := len(h.buckets)
	for i, upper := range h.buckets {
		if v <= upper {
			idx = i
			break
		}
	}
	h.counts[idx]++
	h.sum += v
	h.count++
}

// ObserveDuration records the seconds elapsed since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves the registry in Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.writePrometheus(w)
	})
}

func (r *MetricsRegistry) writePrometheus(w http.ResponseWriter) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %s\n", name, c.help, name, name, formatFloat(c.Value()))
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n", name, g.help, name, name, formatFloat(g.Value()))
	}
	for _, name := range sortedKeys(r.histos) {
		writeHistogram(w, r.histos[name])
	}
}

func writeHistogram(w http.ResponseWriter, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	cumulative := uint64(0)
	for i, upper := range h.buckets {
		cumulative += h.counts[i]
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", h.name, formatFloat(upper), cumulative)
	}
	cumulative += h.counts[len(h.buckets)]
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, cumulative)
	fmt.Fprintf(w, "%s_sum %s\n", h.name, formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count %d\n", h.name, h.count)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// CrucibleMetrics bundles the metrics the pipeline components record.
type CrucibleMetrics struct {
	Registry *MetricsRegistry

	LLMRequests     *Counter
	LLMErrors       *Counter
	LLMTokens       *Counter
	LLMDuration     *Histogram
	EmbedBatches    *Counter
	EmbedTexts      *Counter
	VectorUpserts   *Counter
	VectorSkipped   *Counter
	VectorSearches  *Counter
	GraphWrites     *Counter
	GraphErrors     *Counter
	IngestRuns      *Counter
	IngestErrors    *Counter
	IngestDuration  *Histogram
	ActiveWorkflows *Gauge
}

// NewCrucibleMetrics registers the standard metric set.
func NewCrucibleMetrics() *CrucibleMetrics {
	r := NewMetricsRegistry()
	return &CrucibleMetrics{
		Registry:        r,
		LLMRequests:     r.NewCounter("crucible_llm_requests_total", "Total LLM completion and embedding requests"),
		LLMErrors:       r.NewCounter("crucible_llm_errors_total", "Total failed LLM requests"),
		LLMTokens:       r.NewCounter("crucible_llm_tokens_total", "Total tokens consumed by LLM requests"),
		LLMDuration:     r.NewHistogram("crucible_llm_duration_seconds", "LLM request latency", nil),
		EmbedBatches:    r.NewCounter("crucible_embed_batches_total", "Total embedding batches issued"),
		EmbedTexts:      r.NewCounter("crucible_embed_texts_total", "Total texts embedded"),
		VectorUpserts:   r.NewCounter("crucible_vector_upserts_total", "Total vector points inserted"),
		VectorSkipped:   r.NewCounter("crucible_vector_skipped_total", "Total vector points skipped as already present"),
		VectorSearches:  r.NewCounter("crucible_vector_searches_total", "Total vector similarity searches"),
		GraphWrites:     r.NewCounter("crucible_graph_writes_total", "Total graph write operations"),
		GraphErrors:     r.NewCounter("crucible_graph_errors_total", "Total failed graph operations"),
		IngestRuns:      r.NewCounter("crucible_ingest_runs_total", "Total ingestion runs"),
		IngestErrors:    r.NewCounter("crucible_ingest_errors_total", "Total failed ingestion runs"),
		IngestDuration:  r.NewHistogram("crucible_ingest_duration_seconds", "Ingestion run latency", nil),
		ActiveWorkflows: r.NewGauge("crucible_active_workflows", "Ingestion workflows currently in flight"),
	}
}

// RecordLLMRequest records one LLM call.
func (m *CrucibleMetrics) RecordLLMRequest(duration time.Duration, tokens int, err error) {
	m.LLMRequests.Inc()
	m.LLMTokens.Add(float64(tokens))
	m.LLMDuration.Observe(duration.Seconds())
	if err != nil {
		m.LLMErrors.Inc()
	}
}

// RecordIngestRun records one ingestion run outcome.
func (m *CrucibleMetrics) RecordIngestRun(duration time.Duration, inserted, skipped int, err error) {
	m.IngestRuns.Inc()
	m.IngestDuration.Observe(duration.Seconds())
	m.VectorUpserts.Add(float64(inserted))
	m.VectorSkipped.Add(float64(skipped))
	if err != nil {
		m.IngestErrors.Inc()
	}
}

// Handler serves this metric set.
func (m *CrucibleMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

var (
	defaultMetrics     *CrucibleMetrics
	defaultMetricsOnce sync.Once
)

// Metrics returns the process-wide metric set.
func Metrics() *CrucibleMetrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewCrucibleMetrics()
	})
	return defaultMetrics
}
