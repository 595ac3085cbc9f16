// Package prometheus renders authcore engine counters in Prometheus text
// exposition format.
//
// [NewExporter] accepts an [authcore.Engine] and exposes an [net/http.Handler]
// that renders every engine counter. Counter names are prefixed
// authcore_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the
//     Handler.
//   - Mutate engine state.
package prometheus
