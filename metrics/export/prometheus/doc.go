// Package prometheus exposes Manager metrics through client_golang.
//
// [NewCollector] wraps an [authclient.Manager] in a [prometheus.Collector] that
// reads [authclient.Manager.MetricsSnapshot] on each scrape. Counter names are
// prefixed authclient_*_total; login and refresh latencies are histograms in
// seconds. [Collector.Handler] serves the collector from a private registry.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate Manager state.
package prometheus
