package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GateMetrics records request gate outcomes.
type GateMetrics struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	lockWait  prometheus.Histogram
}

// NewGateMetrics registers the gate metrics on the provided registerer.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	if reg == nil {
		return &GateMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_reply_decisions_total",
		Help: "Entitlement decisions taken by the request gate.",
	}, []string{"plan", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_reply_duration_seconds",
		Help:    "End-to-end duration of AI reply requests.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"result"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ai_reply_lock_wait_seconds",
		Help:    "Time spent waiting for the per-user quota lock.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(decisions, duration, lockWait)
	return &GateMetrics{
		decisions: decisions,
		duration:  duration,
		lockWait:  lockWait,
	}
}

// IncDecision counts an allow or deny outcome ("allowed", "TRIAL_EXPIRED", ...).
func (g *GateMetrics) IncDecision(plan, outcome string) {
	if g == nil || g.decisions == nil {
		return
	}
	g.decisions.WithLabelValues(normalizeLabel(plan), normalizeLabel(outcome)).Inc()
}

// ObserveDuration records how long a reply request took, by result.
func (g *GateMetrics) ObserveDuration(result string, d time.Duration) {
	if g == nil || g.duration == nil {
		return
	}
	g.duration.WithLabelValues(normalizeLabel(result)).Observe(d.Seconds())
}

// ObserveLockWait records time spent acquiring the per-user lock.
func (g *GateMetrics) ObserveLockWait(d time.Duration) {
	if g == nil || g.lockWait == nil {
		return
	}
	g.lockWait.Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
