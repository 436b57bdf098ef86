package telemetry

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "veritas"

// metric is one registered collector plus the tag keys it was created with.
type metric struct {
	counter   *prometheus.CounterVec
	histogram *prometheus.HistogramVec
	keys      []string
}

func (m *metric) record(value float64, tags map[string]string) {
	values := make([]string, len(m.keys))
	for i, k := range m.keys {
		values[i] = tags[k]
	}
	if m.counter != nil {
		if value < 0 {
			return
		}
		m.counter.WithLabelValues(values...).Add(value)
		return
	}
	m.histogram.WithLabelValues(values...).Observe(value)
}

// PrometheusSink registers every metric name on first use: event counts
// become counters (`_total`), everything else a histogram. Labels are the
// tag keys seen on first use; later tags are projected onto them.
type PrometheusSink struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	metrics map[string]*metric
}

// NewPrometheusSink creates a sink backed by its own registry, with the Go
// runtime and process collectors attached.
func NewPrometheusSink(logger *slog.Logger) *PrometheusSink {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if logger == nil {
		logger = slog.Default()
	}
	return &PrometheusSink{
		registry: reg,
		logger:   logger.With("component", "telemetry.prometheus"),
		metrics:  make(map[string]*metric),
	}
}

// Registry exposes the underlying registry.
func (p *PrometheusSink) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusSink) Record(name string, value float64, tags map[string]string) {
	if m := p.metricFor(name, tags); m != nil {
		m.record(value, tags)
	}
}

func (p *PrometheusSink) metricFor(name string, tags map[string]string) *metric {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.metrics[name]; ok {
		return m
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	labels := make([]string, len(keys))
	for i, k := range keys {
		labels[i] = sanitize(k)
	}

	m := &metric{keys: keys}
	var collector prometheus.Collector
	if IsCounter(name) {
		m.counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      sanitize(name) + "_total",
			Help:      "Pipeline event count " + name,
		}, labels)
		collector = m.counter
	} else {
		buckets := prometheus.LinearBuckets(0, 10, 11)
		if strings.HasSuffix(name, "_seconds") {
			buckets = prometheus.DefBuckets
		}
		m.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      sanitize(name),
			Help:      "Pipeline measurement " + name,
			Buckets:   buckets,
		}, labels)
		collector = m.histogram
	}

	if err := p.registry.Register(collector); err != nil {
		p.logger.Warn("failed to register metric", "metric", name, "error", err)
		p.metrics[name] = nil
		return nil
	}

	p.metrics[name] = m
	return m
}

// sanitize keeps [a-zA-Z0-9_] and replaces everything else with '_'.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

var _ Sink = (*PrometheusSink)(nil)
