// Package internaldefs holds the metric names, help strings and bucket
// boundaries shared by the exporter packages.
//
// Both the Prometheus and OTel exporters read these tables so the two never
// disagree on names. Changes here affect every exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
