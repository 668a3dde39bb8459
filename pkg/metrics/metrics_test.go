package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestGateMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewGateMetrics(reg)
	metrics.IncDecision("pro", "allowed")
	metrics.IncDecision("pro", "allowed")
	metrics.IncDecision("", "LIMIT_REACHED")
	metrics.ObserveDuration("success", 250*time.Millisecond)
	metrics.ObserveLockWait(time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "ai_reply_decisions_total", "outcome", "allowed"); err != nil {
		t.Fatalf("fetch allowed: %v", err)
	} else if got != 2 {
		t.Fatalf("expected allowed=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "ai_reply_decisions_total", "plan", "unknown"); err != nil {
		t.Fatalf("fetch unknown plan: %v", err)
	} else if got != 1 {
		t.Fatalf("expected unknown plan=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "ai_reply_duration_seconds", "result", "success"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestProviderMetricsCountsAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewProviderMetrics(reg)
	metrics.IncAttempt("rate_limited")
	metrics.IncAttempt("success")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "ai_provider_attempts_total", "outcome", "rate_limited"); err != nil || got != 1 {
		t.Fatalf("expected rate_limited=1, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var gate *GateMetrics
	gate.IncDecision("free", "allowed")
	gate.ObserveDuration("success", time.Second)
	NewGateMetrics(nil).ObserveLockWait(time.Second)

	var provider *ProviderMetrics
	provider.IncAttempt("success")
}

func TestCronJobMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	metrics.IncSuccess("unverified-account-cleanup")
	metrics.IncFailure("unverified-account-cleanup")
	metrics.IncFailure("unverified-account-cleanup")
	metrics.ObserveDuration("unverified-account-cleanup", 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "replyriser_cron_job_failure_total", "job", "unverified-account-cleanup"); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 2 {
		t.Fatalf("expected failure=2, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "replyriser_cron_job_duration_seconds", "job", "unverified-account-cleanup"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewProviderMetrics(reg).IncAttempt("success")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ai_provider_attempts_total") {
		t.Fatalf("expected provider metric in body: %s", rec.Body.String())
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
