// Package otel provides OpenTelemetry metric exporter bindings for authcore
// engine counters.
//
// [NewExporter] registers an Int64ObservableCounter instrument per engine
// counter. A single callback reads the engine snapshot on each collection
// cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
