package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hamed0406/serverwatch/internal/domain"
)

// Metrics are optional; a nil *Metrics records nothing.
type Metrics struct {
	online   *prometheus.GaugeVec
	probes   *prometheus.CounterVec
	duration prometheus.Histogram
	skipped  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "serverwatch_target_online",
			Help: "1 if the target's confirmed status is online, 0 otherwise.",
		}, []string{"target"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serverwatch_probe_total",
			Help: "Probes issued, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "serverwatch_probe_duration_seconds",
			Help:    "Probe round-trip time.",
			Buckets: prometheus.DefBuckets,
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "serverwatch_probe_skipped_total",
			Help: "Probes skipped because the previous probe for the target was still in flight.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.online, m.probes, m.duration, m.skipped)
	}
	return m
}

func (m *Metrics) observeProbe(ok bool, took time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.probes.WithLabelValues(result).Inc()
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) setStatus(id domain.TargetID, s domain.Status) {
	if m == nil {
		return
	}
	v := 0.0
	if s == domain.StatusOnline {
		v = 1
	}
	m.online.WithLabelValues(string(id)).Set(v)
}

func (m *Metrics) forget(id domain.TargetID) {
	if m == nil {
		return
	}
	m.online.DeleteLabelValues(string(id))
}

func (m *Metrics) skip() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}
