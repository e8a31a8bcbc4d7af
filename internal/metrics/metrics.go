// Package metrics exposes clip collection counters for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quicknotes"

// Metrics groups the collectors updated by the note service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Captures      *prometheus.CounterVec
	Imported      prometheus.Counter
	Deleted       prometheus.Counter
	Exports       prometheus.Counter
	WriteFailures prometheus.Counter
	StoredClips   prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Captured clipboard strings by outcome (saved, duplicate, ignored).",
		}, []string{"outcome"}),
		Imported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imported_clips_total",
			Help:      "Clips merged in through import.",
		}),
		Deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deleted_clips_total",
			Help:      "Clips removed by delete.",
		}),
		Exports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export documents produced.",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_write_failures_total",
			Help:      "Saves rejected by the storage substrate.",
		}),
		StoredClips: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_clips",
			Help:      "Clips in the collection after the last operation.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Captures, m.Imported, m.Deleted, m.Exports, m.WriteFailures, m.StoredClips)
	}
	return m
}

func (m *Metrics) Capture(outcome string) {
	if m == nil {
		return
	}
	m.Captures.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Import(n int) {
	if m == nil {
		return
	}
	m.Imported.Add(float64(n))
}

func (m *Metrics) Delete(n int) {
	if m == nil {
		return
	}
	m.Deleted.Add(float64(n))
}

func (m *Metrics) Export() {
	if m == nil {
		return
	}
	m.Exports.Inc()
}

func (m *Metrics) WriteFailure() {
	if m == nil {
		return
	}
	m.WriteFailures.Inc()
}

func (m *Metrics) Stored(n int) {
	if m == nil {
		return
	}
	m.StoredClips.Set(float64(n))
}
