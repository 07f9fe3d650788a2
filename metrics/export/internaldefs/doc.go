// Package internaldefs holds the metric names and bucket bounds shared by the
// exporters, so the Prometheus and OpenTelemetry outputs stay identical.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
