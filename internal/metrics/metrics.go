// Package metrics exposes Prometheus instrumentation for loads, the cache,
// the parser and closure computation. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap/zapcore"
)

const namespace = "ontograph"

// Load outcomes and origins.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	OriginCache   = "cache"
	OriginSource  = "source"
)

// Metrics holds every ontograph collector.
type Metrics struct {
	loads        *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	cacheReqs    *prometheus.CounterVec
	cacheStores  *prometheus.CounterVec
	warnings     *prometheus.CounterVec
	terms        *prometheus.GaugeVec
	closures     *prometheus.CounterVec
	cycles       *prometheus.CounterVec
	logEntries   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Ontology loads by outcome.",
			},
			[]string{"ontology", "result"},
		),
		loadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Time to make an ontology queryable, by where it came from.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"ontology", "origin"},
		),
		cacheReqs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by result (hit, miss, corrupt).",
			},
			[]string{"result"},
		),
		cacheStores: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_store_total",
				Help:      "Cache writes by result.",
			},
			[]string{"result"},
		),
		warnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_warnings_total",
				Help:      "Recoverable parse anomalies by kind.",
			},
			[]string{"ontology", "kind"},
		),
		terms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "terms",
				Help:      "Terms held per loaded ontology.",
			},
			[]string{"ontology"},
		),
		closures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "closure_computations_total",
				Help:      "Transitive closures computed (memo misses).",
			},
			[]string{"policy", "direction"},
		),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "closure_cycles_total",
				Help:      "Distinct cycles pruned during closure computation.",
			},
			[]string{"policy"},
		),
		logEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_entries_total",
				Help:      "Log records emitted by level.",
			},
			[]string{"level"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.loads, m.loadDuration, m.cacheReqs, m.cacheStores,
			m.warnings, m.terms, m.closures, m.cycles, m.logEntries)
	}
	return m
}

// LoadFinished records one ontology load.
func (m *Metrics) LoadFinished(ontology, origin string, d time.Duration, terms int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.loads.WithLabelValues(ontology, ResultFailure).Inc()
		return
	}
	m.loads.WithLabelValues(ontology, ResultSuccess).Inc()
	m.loadDuration.WithLabelValues(ontology, origin).Observe(d.Seconds())
	m.terms.WithLabelValues(ontology).Set(float64(terms))
}

// ParseWarnings adds a parse's warning counts.
func (m *Metrics) ParseWarnings(ontology string, counts map[string]int) {
	if m == nil {
		return
	}
	for kind, n := range counts {
		m.warnings.WithLabelValues(ontology, kind).Add(float64(n))
	}
}

// CacheRequest implements cache.Observer.
func (m *Metrics) CacheRequest(result string) {
	if m == nil {
		return
	}
	m.cacheReqs.WithLabelValues(result).Inc()
}

// CacheStore implements cache.Observer.
func (m *Metrics) CacheStore(result string) {
	if m == nil {
		return
	}
	m.cacheStores.WithLabelValues(result).Inc()
}

// ClosureComputed implements closure.Observer.
func (m *Metrics) ClosureComputed(policy, direction string) {
	if m == nil {
		return
	}
	m.closures.WithLabelValues(policy, direction).Inc()
}

// CycleDetected implements closure.Observer.
func (m *Metrics) CycleDetected(policy string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(policy).Inc()
}

// LogRecorded counts a log record; it is the logging.Config OnRecord hook.
func (m *Metrics) LogRecorded(level zapcore.Level) {
	if m == nil {
		return
	}
	m.logEntries.WithLabelValues(level.String()).Inc()
}

// WriteText writes every metric family gathered from g in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Loads returns the load counter for (ontology, result).
func (m *Metrics) Loads(ontology, result string) prometheus.Counter {
	return m.loads.WithLabelValues(ontology, result)
}

// CacheRequests returns the cache lookup counter for result.
func (m *Metrics) CacheRequests(result string) prometheus.Counter {
	return m.cacheReqs.WithLabelValues(result)
}
