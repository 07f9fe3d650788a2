// Package otel binds engine metrics to an OpenTelemetry meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter for each engine
// counter and an Int64ObservableGauge for each cumulative latency bucket. A
// single callback reads [authflow.Engine.MetricsSnapshot] per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
