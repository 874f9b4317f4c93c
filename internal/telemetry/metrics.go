package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scan counters exposed on /metrics.
type Metrics struct {
	ScansStarted    prometheus.Counter
	RegionsFinished *prometheus.CounterVec
	Findings        *prometheus.CounterVec
	RegionDuration  prometheus.Histogram
}

// NewMetrics creates the scan metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "securescope",
			Name:      "scans_started_total",
			Help:      "Scans accepted by StartScan.",
		}),
		RegionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securescope",
			Name:      "regions_finished_total",
			Help:      "Region workers that reached a terminal status.",
		}, []string{"status"}),
		Findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securescope",
			Name:      "findings_total",
			Help:      "Findings persisted, by service and severity.",
		}, []string{"service", "severity"}),
		RegionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "securescope",
			Name:      "region_duration_seconds",
			Help:      "Wall time of one region worker.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ScansStarted, m.RegionsFinished, m.Findings, m.RegionDuration)
	}
	return m
}

// ScanStarted counts one accepted scan. Safe on a nil receiver.
func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.ScansStarted.Inc()
}

// RegionFinished records a region's terminal status and duration.
func (m *Metrics) RegionFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RegionsFinished.WithLabelValues(status).Inc()
	m.RegionDuration.Observe(d.Seconds())
}

// FindingRecorded counts one persisted finding.
func (m *Metrics) FindingRecorded(service, severity string) {
	if m == nil {
		return
	}
	m.Findings.WithLabelValues(service, severity).Inc()
}
