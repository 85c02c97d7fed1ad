package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mpst-workbench/core/verify"
)

func TestRecordReport_CountsFindingsByCheckAndSeverity(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	report := &verify.Report{
		Multicast: []verify.Finding{
			{Check: "multicast", Severity: verify.SeverityWarning, Message: "m1"},
		},
		ChoiceDeterminism: []verify.Finding{
			{Check: "choice_determinism", Severity: verify.SeverityError, Message: "m2"},
		},
	}
	flat := report.Flatten(false)

	RecordReport(metrics, "run-1", flat)

	if got := counterValue(t, metrics.findingsTotal, prometheus.Labels{"run_id": "run-1", "check": "multicast", "severity": "warning"}); got != 1 {
		t.Fatalf("multicast/warning = %v, want 1", got)
	}
	if got := counterValue(t, metrics.findingsTotal, prometheus.Labels{"run_id": "run-1", "check": "choice_determinism", "severity": "error"}); got != 1 {
		t.Fatalf("choice_determinism/error = %v, want 1", got)
	}
}

func TestRecordReport_NilMetricsIsNoop(t *testing.T) {
	report := &verify.Report{Multicast: []verify.Finding{{Check: "multicast", Severity: verify.SeverityWarning}}}
	RecordReport(nil, "run-1", report.Flatten(false))
}
