/*
Package monitoring collects Prometheus metrics for script runs and helper
calls.

# Overview

Each Metrics value owns its own registry, so independent runs and tests
never collide on collector names. The CLI is short-lived, so metrics are
exported by writing the registry in text exposition format to a file a
node exporter textfile collector can pick up.

# Usage

	metrics := monitoring.NewMetrics()

	timer := monitoring.NewTimer(metrics)
	// ... run the script ...
	timer.Stop("success")

	metrics.RecordHelperCall("encWbi")
	metrics.RecordMoment("document-end")

	if err := metrics.WriteTextfile("/var/lib/node_exporter/scriptkit.prom"); err != nil {
		// handle
	}
*/
package monitoring
