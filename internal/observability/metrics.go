package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics and renders them in
// Prometheus text format. It carries no external dependency so the
// /metrics endpoint works in every deployment.
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

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

func (r *MetricsRegistry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

func (r *MetricsRegistry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

func (r *MetricsRegistry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:    name,
		help:    help,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns latency buckets in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records the seconds elapsed since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler returns an HTTP handler serving Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.write(w)
	})
}

func (r *MetricsRegistry) write(w http.ResponseWriter) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %s\n", c.name, c.help, c.name, c.name, formatFloat(c.Value()))
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n", g.name, g.help, g.name, g.name, formatFloat(g.Value()))
	}
	for _, name := range sortedKeys(r.histos) {
		writeHistogram(w, r.histos[name])
	}
}

func writeHistogram(w http.ResponseWriter, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", h.name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
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

// QueryMetrics covers the question-answering path.
type QueryMetrics struct {
	Registry *MetricsRegistry

	QueriesTotal    *Counter
	QueryDuration   *Histogram
	NoAnswerTotal   *Counter
	ExtractiveTotal *Counter

	LLMRequestsTotal   *Counter
	LLMRequestDuration *Histogram
	LLMTokensTotal     *Counter
	LLMErrorsTotal     *Counter
	LLMFallbacksTotal  *Counter

	IngestedChunksTotal *Counter
	ActiveSessions      *Gauge
}

func NewQueryMetrics() *QueryMetrics {
	r := NewMetricsRegistry()
	return &QueryMetrics{
		Registry: r,

		QueriesTotal:    r.NewCounter("docquery_queries_total", "Total questions answered"),
		QueryDuration:   r.NewHistogram("docquery_query_duration_seconds", "End-to-end answer latency", nil),
		NoAnswerTotal:   r.NewCounter("docquery_no_answer_total", "Questions refused for lack of evidence"),
		ExtractiveTotal: r.NewCounter("docquery_extractive_answers_total", "Answers produced by the extractive fallback"),

		LLMRequestsTotal:   r.NewCounter("docquery_llm_requests_total", "Total LLM API requests"),
		LLMRequestDuration: r.NewHistogram("docquery_llm_request_duration_seconds", "LLM request duration", nil),
		LLMTokensTotal:     r.NewCounter("docquery_llm_tokens_total", "Total tokens used"),
		LLMErrorsTotal:     r.NewCounter("docquery_llm_errors_total", "Total LLM errors"),
		LLMFallbacksTotal:  r.NewCounter("docquery_llm_fallbacks_total", "Times the provider chain advanced past a failed provider"),

		IngestedChunksTotal: r.NewCounter("docquery_ingested_chunks_total", "Chunks written by ingest runs"),
		ActiveSessions:      r.NewGauge("docquery_active_sessions", "Sessions currently held in memory"),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *QueryMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordQuery records one answered question.
func (m *QueryMetrics) RecordQuery(duration time.Duration, provider string, noAnswer bool) {
	m.QueriesTotal.Inc()
	m.QueryDuration.Observe(duration.Seconds())
	if noAnswer {
		m.NoAnswerTotal.Inc()
	}
	if provider == "extractive" {
		m.ExtractiveTotal.Inc()
	}
}

// RecordLLMRequest records an LLM request.
func (m *QueryMetrics) RecordLLMRequest(duration time.Duration, tokens int, err error) {
	m.LLMRequestsTotal.Inc()
	m.LLMRequestDuration.Observe(duration.Seconds())
	m.LLMTokensTotal.Add(float64(tokens))
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}

var (
	globalMetrics *QueryMetrics
	metricsOnce   sync.Once
)

// Metrics returns the process-wide metrics instance.
func Metrics() *QueryMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewQueryMetrics()
	})
	return globalMetrics
}
