package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scriptkit"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Script metrics
	ScriptsTotal   *prometheus.CounterVec
	ScriptDuration prometheus.Histogram

	// Helper metrics
	HelperCalls     *prometheus.CounterVec
	MomentsResolved *prometheus.CounterVec
	Signatures      prometheus.Counter

	// Loader metrics
	PagesLoaded prometheus.Counter

	registry *prometheus.Registry

	// Snapshot for JSON output - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for JSON output
type Snapshot struct {
	Scripts       int64   `json:"scripts"`
	Failures      int64   `json:"failures"`
	HelperCalls   int64   `json:"helper_calls"`
	TotalDuration float64 `json:"total_duration_seconds"`
}

// NewMetrics creates a new metrics collector backed by a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScriptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scripts_total",
				Help:      "Total number of scripts executed",
			},
			[]string{"status"},
		),
		ScriptDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "script_duration_seconds",
				Help:      "Script execution duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),

		HelperCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "helper_calls_total",
				Help:      "Total number of helper calls made by scripts",
			},
			[]string{"helper"},
		),
		MomentsResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "moments_resolved_total",
				Help:      "Total number of lifecycle waits that resolved",
			},
			[]string{"moment"},
		),
		Signatures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wbi_signatures_total",
				Help:      "Total number of WBI signatures computed",
			},
		),

		PagesLoaded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_loaded_total",
				Help:      "Total number of pages replayed into a document",
			},
		),
	}
}

// Registry exposes the underlying registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordScript records a finished script run
func (m *Metrics) RecordScript(status string, duration time.Duration) {
	m.ScriptsTotal.WithLabelValues(status).Inc()
	m.ScriptDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Scripts++
	m.snapshot.TotalDuration += duration.Seconds()
	if status != StatusSuccess {
		m.snapshot.Failures++
	}
	m.mu.Unlock()
}

// RecordHelperCall records a call to a named script helper
func (m *Metrics) RecordHelperCall(helper string) {
	m.HelperCalls.WithLabelValues(helper).Inc()

	m.mu.Lock()
	m.snapshot.HelperCalls++
	m.mu.Unlock()
}

// RecordMoment records a resolved lifecycle wait
func (m *Metrics) RecordMoment(moment string) {
	m.MomentsResolved.WithLabelValues(moment).Inc()
}

// IncSignatures increments the signature counter
func (m *Metrics) IncSignatures() {
	m.Signatures.Inc()
}

// IncPagesLoaded increments the loaded pages counter
func (m *Metrics) IncPagesLoaded() {
	m.PagesLoaded.Inc()
}

// Snapshot returns a copy of the tracked values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// WriteTextfile writes every registered metric to path in text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
