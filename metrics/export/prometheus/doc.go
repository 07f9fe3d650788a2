// Package prometheus exposes engine metrics as a Prometheus collector.
//
// [NewPrometheusExporter] wraps an [authflow.Engine]. Register the exporter
// with any registry, or mount [PrometheusExporter.Handler] which serves it
// from a private one. Counter names are authflow_*_total; the single
// histogram is authflow_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry.
//   - Mutate engine state.
package prometheus
