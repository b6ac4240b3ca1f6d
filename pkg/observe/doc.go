// Package observe provides production observers for derive components.
//
// # Prometheus Metrics
//
// The Prometheus observer counts settle passes, computed evaluations and
// writes, fired watchers and failures, and records pass duration:
//
//	c, err := derive.New(def, derive.WithObserver(observe.Prometheus()))
//
// Expose the metrics with promhttp.Handler() or gather them from the
// registry passed to WithRegistry.
//
// # OpenTelemetry Tracing
//
// The OpenTelemetry observer opens one span per settle pass:
//
//	derive.New(def, derive.WithObserver(observe.OpenTelemetry(
//	    observe.WithTracerName("my-app"),
//	    observe.WithIncludePaths(true),
//	)))
//
// Spans are parented to the context given with derive.WithContext.
package observe
