package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/mihaimyh/billingbridge/pkg/billing"
)

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestMetricsSatisfiesBillingInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var m billing.Metrics = NewMetrics(reg, "test")

	m.RecordWebhookError("stripe", "auth_failed")

	got := gatherCounter(t, reg, "test_billing_webhook_errors_total", map[string]string{
		"provider":   "stripe",
		"error_type": "auth_failed",
	})
	if got != 1 {
		t.Errorf("counter = %v, want 1", got)
	}
}

func TestMetricsRecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	m.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	m.RecordWebhookEvent("stripe", "invoice.payment_failed", "dropped")

	got := gatherCounter(t, reg, "test_billing_webhook_events_total", map[string]string{
		"provider":   "stripe",
		"event_type": "checkout.session.completed",
		"status":     "success",
	})
	if got != 2 {
		t.Errorf("counter = %v, want 2", got)
	}
}

func TestMetricsRecordPlanChange(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordPlanChange("stripe", "trial", "monthly")

	got := gatherCounter(t, reg, "test_billing_plan_changes_total", map[string]string{
		"provider":  "stripe",
		"from_plan": "trial",
		"to_plan":   "monthly",
	})
	if got != 1 {
		t.Errorf("counter = %v, want 1", got)
	}
}

func TestMetricsRecordAPICallDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordAPICall("stripe", "subscription_retrieve", "success")
	m.RecordAPICallDuration("stripe", "subscription_retrieve", 150*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() == "test_billing_api_call_duration_seconds" {
			found = true
			if n := mf.GetMetric()[0].GetHistogram().GetSampleCount(); n != 1 {
				t.Errorf("sample count = %d, want 1", n)
			}
		}
	}
	if !found {
		t.Error("histogram not registered")
	}
}
