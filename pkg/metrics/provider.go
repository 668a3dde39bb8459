package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProviderMetrics records AI provider call attempts.
type ProviderMetrics struct {
	attempts *prometheus.CounterVec
}

// NewProviderMetrics registers the provider metrics on the provided registerer.
func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	if reg == nil {
		return &ProviderMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_provider_attempts_total",
		Help: "AI provider completion attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(attempts)
	return &ProviderMetrics{attempts: attempts}
}

// IncAttempt counts one attempt ("success", "rate_limited", "error").
func (p *ProviderMetrics) IncAttempt(outcome string) {
	if p == nil || p.attempts == nil {
		return
	}
	p.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}
