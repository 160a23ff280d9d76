package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	funcs    map[string]*ValueFunc
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// ValueFunc is a metric read from a callback at scrape time.
type ValueFunc struct {
	name  string
	help  string
	kind  string
	value func() float64
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		funcs:    make(map[string]*ValueFunc),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help, labels: labels}
	r.counters[key(name, labels)] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[key(name, labels)] = g
	return g
}

// NewCounterFunc registers a counter whose value is read from fn.
func (r *MetricsRegistry) NewCounterFunc(name, help string, fn func() float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = &ValueFunc{name: name, help: help, kind: "counter", value: fn}
}

// NewGaugeFunc registers a gauge whose value is read from fn.
func (r *MetricsRegistry) NewGaugeFunc(name, help string, fn func() float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = &ValueFunc{name: name, help: help, kind: "gauge", value: fn}
}

// NewHistogram creates and registers a histogram.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[key(name, labels)] = h
	return h
}

func key(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

// DefaultBuckets returns default histogram buckets for partition durations.
func DefaultBuckets() []float64 {
	return []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
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

// ObserveDuration records the time elapsed since start in seconds.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler for Prometheus metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes metrics in Prometheus text format, sorted by name.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var prev string
	for _, k := range sortedKeys(r.counters) {
		c := r.counters[k]
		c.mu.Lock()
		writeMetric(w, c.name, "counter", c.help, c.labels, c.value, c.name != prev)
		c.mu.Unlock()
		prev = c.name
	}
	for _, k := range sortedKeys(r.gauges) {
		g := r.gauges[k]
		g.mu.Lock()
		writeMetric(w, g.name, "gauge", g.help, g.labels, g.value, g.name != prev)
		g.mu.Unlock()
		prev = g.name
	}
	for _, k := range sortedKeys(r.funcs) {
		f := r.funcs[k]
		writeMetric(w, f.name, f.kind, f.help, nil, f.value(), true)
	}
	for _, k := range sortedKeys(r.histos) {
		h := r.histos[k]
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeMetric writes one sample, preceded by its HELP and TYPE lines
// unless an earlier sample of the same family already wrote them.
func writeMetric(w io.Writer, name, metricType, help string, labels map[string]string, value float64, header bool) {
	if header {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	}
	fmt.Fprintf(w, "%s%s %s\n", name, formatLabels(labels), formatFloat(value))
}

func writeHistogram(w io.Writer, h *Histogram) {
	fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", h.name)

	for i, bound := range h.buckets {
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, formatLabels(labels), h.counts[i])
	}

	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, formatLabels(labels), h.count)

	fmt.Fprintf(w, "%s_sum%s %s\n", h.name, formatLabels(h.labels), formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, formatLabels(h.labels), h.count)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range sortedKeys(labels) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k + "=\"" + labels[k] + "\"")
	}
	b.WriteByte('}')
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SearchMetrics contains the metrics exported during a search.
type SearchMetrics struct {
	Registry *MetricsRegistry

	RunsTotal         *Counter
	RunDuration       *Histogram
	PartitionsTotal   *Counter
	PartitionDuration *Histogram
	ActiveWorkers     *Gauge
	HighScore         *Gauge
	categories        map[string]*Gauge
}

// NewSearchMetrics creates the search metrics.
func NewSearchMetrics() *SearchMetrics {
	r := NewMetricsRegistry()

	return &SearchMetrics{
		Registry: r,

		RunsTotal:         r.NewCounter("bbsearch_runs_total", "Total searches completed", nil),
		RunDuration:       r.NewHistogram("bbsearch_run_duration_seconds", "Search wall time", nil, nil),
		PartitionsTotal:   r.NewCounter("bbsearch_partitions_total", "Total partitions completed", nil),
		PartitionDuration: r.NewHistogram("bbsearch_partition_duration_seconds", "Partition wall time", nil, nil),
		ActiveWorkers:     r.NewGauge("bbsearch_active_workers", "Number of running workers", nil),
		HighScore:         r.NewGauge("bbsearch_high_score", "High score of the last search", nil),
		categories:        make(map[string]*Gauge),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *SearchMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// TrackProgress exports machines processed and the space size, read from
// the given callbacks on every scrape.
func (m *SearchMetrics) TrackProgress(done, total func() uint64) {
	m.Registry.NewCounterFunc("bbsearch_machines_processed_total", "Machines classified so far",
		func() float64 { return float64(done()) })
	m.Registry.NewGaugeFunc("bbsearch_machines_total", "Machines in the search space",
		func() float64 { return float64(total()) })
}

// RecordPartition records one finished partition.
func (m *SearchMetrics) RecordPartition(duration time.Duration) {
	m.PartitionsTotal.Inc()
	m.PartitionDuration.Observe(duration.Seconds())
}

// RecordRun records a finished search: its duration, high score and the
// size of every category.
func (m *SearchMetrics) RecordRun(duration time.Duration, highScore uint32, categories map[string]uint64) {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(duration.Seconds())
	m.HighScore.Set(float64(highScore))
	for name, n := range categories {
		m.category(name).Set(float64(n))
	}
}

func (m *SearchMetrics) category(name string) *Gauge {
	m.Registry.mu.RLock()
	g, ok := m.categories[name]
	m.Registry.mu.RUnlock()
	if ok {
		return g
	}
	g = m.Registry.NewGauge("bbsearch_category_machines", "Machines per outcome category",
		map[string]string{"category": name})
	m.Registry.mu.Lock()
	m.categories[name] = g
	m.Registry.mu.Unlock()
	return g
}

var globalMetrics *SearchMetrics
var metricsOnce sync.Once

// Metrics returns the global metrics instance.
func Metrics() *SearchMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewSearchMetrics()
	})
	return globalMetrics
}
