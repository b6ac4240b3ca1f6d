package observe

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/derive/pkg/derive"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "derive").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for pass duration.
	// Default: fine-grained buckets from 10µs to 250ms.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultBuckets suit settle passes, which usually finish well under a
// millisecond.
var defaultBuckets = []float64{.00001, .000025, .00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "derive",
		Buckets:   defaultBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for settle passes.
type metrics struct {
	passesTotal  *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	evaluations  *prometheus.CounterVec
	writes       *prometheus.CounterVec
	fired        *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
}

// globalMetrics is the singleton metrics instance, created on the first call
// to Prometheus.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &metrics{
		passesTotal: counter("settle_passes_total",
			"Total number of settle passes", "component", "kind"),

		passDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "settle_duration_seconds",
			Help:        "Settle pass duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"component"}),

		evaluations: counter("computed_evaluations_total",
			"Total number of computed property evaluations", "component"),

		writes: counter("computed_writes_total",
			"Total number of computed values written back into component data", "component"),

		fired: counter("watchers_fired_total",
			"Total number of watch callbacks invoked", "component"),

		errorsTotal: counter("errors_total",
			"Total number of settle pass failures by kind", "component", "kind"),
	}
}

// Prometheus returns an observer that records settle pass metrics.
//
// Metrics collected:
//   - derive_settle_passes_total: Counter of passes by component and kind (initial, update)
//   - derive_settle_duration_seconds: Histogram of pass duration
//   - derive_computed_evaluations_total: Counter of computed evaluations
//   - derive_computed_writes_total: Counter of computed values written
//   - derive_watchers_fired_total: Counter of watch callbacks invoked
//   - derive_errors_total: Counter of failures by kind (cycle, compute, recompute_limit, watch)
//
// The metrics are registered once per process; options passed to later calls
// are ignored.
//
// Example:
//
//	c, err := derive.New(def, derive.WithObserver(observe.Prometheus(
//	    observe.WithNamespace("myapp"),
//	)))
func Prometheus(opts ...MetricsOption) derive.Observer {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return derive.ObserverFunc(func(context.Context, derive.PassInfo) func(*derive.Report) {
		return m.record
	})
}

func (m *metrics) record(r *derive.Report) {
	component := r.Component
	kind := "update"
	if r.Initial {
		kind = "initial"
	}

	m.passesTotal.WithLabelValues(component, kind).Inc()
	m.passDuration.WithLabelValues(component).Observe(r.Duration.Seconds())
	m.evaluations.WithLabelValues(component).Add(float64(len(r.Evaluated)))
	m.writes.WithLabelValues(component).Add(float64(len(r.Written)))
	m.fired.WithLabelValues(component).Add(float64(len(r.Fired)))

	for _, err := range r.Errors {
		m.errorsTotal.WithLabelValues(component, categorizeError(err)).Inc()
	}
}

// categorizeError maps a pass failure to a low-cardinality label.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, derive.ErrCycle):
		return "cycle"
	case errors.Is(err, derive.ErrRecomputeLimit):
		return "recompute_limit"
	case errors.Is(err, derive.ErrComputeFailed):
		return "compute"
	default:
		return "watch"
	}
}
