package telemetry

import "github.com/mpst-workbench/core/verify"

// RecordReport feeds every finding in flat into metrics' findings_total
// counter, one increment per (check, severity) pair. The verifier has no
// event bus of its own (Verify is a single synchronous call returning a
// *Report, not a stream of events), so this is a direct call rather than
// a Subscriber.Attach registration.
func RecordReport(metrics *Metrics, runID string, flat verify.Flat) {
	if metrics == nil {
		return
	}
	for _, f := range flat.Errors {
		metrics.RecordFinding(runID, f.Check, string(f.Severity))
	}
	for _, f := range flat.Warnings {
		metrics.RecordFinding(runID, f.Check, string(f.Severity))
	}
}
