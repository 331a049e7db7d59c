// Package otel reports Manager metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers observable instruments and one callback that reads
// [authclient.Manager.MetricsSnapshot] per collection. Latency histograms are
// exported as a "_bucket" gauge labelled by "le" plus a "_count" gauge, so
// the names line up with the Prometheus exporter.
//
// The caller owns the MeterProvider. The exporter never changes session
// state, and closing it leaves the Manager running.
package otel
