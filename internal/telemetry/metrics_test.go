package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ---------------------------------------------------------------------------
// Metric registration sanity checks: verify every exported metric is properly
// registered and carries the expected fully-qualified name.
//
// We check registration via Describe() rather than DefaultGatherer.Gather()
// because Gather() only returns series that have been observed at least once;
// *Vec metrics with no label combinations yet used are silently absent from
// Gather output even though they are correctly registered.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"login_attempts_total", LoginAttemptsTotal},
		{"webhook_deliveries_total", WebhookDeliveriesTotal},
		{"webhook_delivery_duration_seconds", WebhookDeliveryDuration},
		{"deployments_total", DeploymentsTotal},
		{"pak_command_duration_seconds", PakCommandDuration},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				// prometheus.Desc.String() returns a Go syntax string of the form:
				//   Desc{fqName: "<name>", help: "...", constLabels: {}, variableLabels: [...]}
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestMetrics_HTTPRequestsTotal_CanBeIncremented(t *testing.T) {
	before := counterValue(t, HTTPRequestsTotal, prometheus.Labels{
		"method": "GET", "path": "/test", "status": "200",
	})
	HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Inc()
	after := counterValue(t, HTTPRequestsTotal, prometheus.Labels{
		"method": "GET", "path": "/test", "status": "200",
	})
	if after-before < 1 {
		t.Errorf("HTTPRequestsTotal.Inc() did not increase counter (before=%.0f after=%.0f)", before, after)
	}
}

func TestMetrics_LoginAttemptsTotal_CanBeIncremented(t *testing.T) {
	before := counterValue(t, LoginAttemptsTotal, prometheus.Labels{"outcome": "locked"})
	LoginAttemptsTotal.WithLabelValues("locked").Inc()
	after := counterValue(t, LoginAttemptsTotal, prometheus.Labels{"outcome": "locked"})
	if after-before < 1 {
		t.Errorf("LoginAttemptsTotal.Inc() did not increase counter")
	}
}

func TestMetrics_WebhookDeliveriesTotal_CanBeIncremented(t *testing.T) {
	before := counterValue(t, WebhookDeliveriesTotal, prometheus.Labels{
		"event": "deployment.completed", "outcome": "success",
	})
	WebhookDeliveriesTotal.WithLabelValues("deployment.completed", "success").Inc()
	after := counterValue(t, WebhookDeliveriesTotal, prometheus.Labels{
		"event": "deployment.completed", "outcome": "success",
	})
	if after-before < 1 {
		t.Errorf("WebhookDeliveriesTotal.Inc() did not increase counter")
	}
}

func TestMetrics_WebhookDeliveryDuration_CanBeObserved(t *testing.T) {
	WebhookDeliveryDuration.Observe(0.5)
	WebhookDeliveryDuration.Observe(1.5)
	// If no panic, the histogram is functioning.
}

func TestMetrics_DeploymentsTotal_CanBeIncremented(t *testing.T) {
	before := counterValue(t, DeploymentsTotal, prometheus.Labels{"status": "success"})
	DeploymentsTotal.WithLabelValues("success").Inc()
	after := counterValue(t, DeploymentsTotal, prometheus.Labels{"status": "success"})
	if after-before < 1 {
		t.Errorf("DeploymentsTotal.Inc() did not increase counter")
	}
}

func TestMetrics_PakCommandDuration_CanBeObserved(t *testing.T) {
	PakCommandDuration.WithLabelValues("deploy").Observe(2.0)
	PakCommandDuration.WithLabelValues("status").Observe(0.2)
}

func TestMetrics_DBOpenConnections_CanBeSet(t *testing.T) {
	DBOpenConnections.Set(5)
	// If no panic, gauge is working.
	DBOpenConnections.Set(0) // reset to neutral value
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 20)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
