package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/vango-dev/derive/pkg/derive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name.
const defaultTracerName = "derive"

// OTelConfig configures the OpenTelemetry observer.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "derive").
	TracerName string

	// TracerProvider supplies the tracer.
	// Default: the global provider from otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// IncludePaths adds the touched, evaluated and written paths as span
	// attributes. Disabled by default.
	IncludePaths bool

	// Filter determines which passes to trace.
	// If nil, all passes are traced.
	Filter func(info derive.PassInfo) bool
}

// OTelOption configures the OpenTelemetry observer.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithIncludePaths enables path list attributes.
func WithIncludePaths(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludePaths = include
	}
}

// WithPassFilter sets a filter function for passes.
func WithPassFilter(filter func(info derive.PassInfo) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// OpenTelemetry returns an observer that traces every settle pass.
//
// Each pass gets a span named "derive.settle" carrying the component name,
// batch number and counts of evaluated, written and fired entries. Failures
// are recorded as span events and set the span status to Error.
//
// The tracer comes from the global OpenTelemetry tracer provider unless
// WithTracerProvider is given.
func OpenTelemetry(opts ...OTelOption) derive.Observer {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	tracer := config.TracerProvider.Tracer(config.TracerName)

	return derive.ObserverFunc(func(ctx context.Context, info derive.PassInfo) func(*derive.Report) {
		if config.Filter != nil && !config.Filter(info) {
			return nil
		}

		attrs := []attribute.KeyValue{
			attribute.String("derive.component", info.Component),
			attribute.Int64("derive.batch", int64(info.Batch)),
			attribute.Bool("derive.initial", info.Initial),
			attribute.Int("derive.touched_count", len(info.Touched)),
		}
		if config.IncludePaths {
			attrs = append(attrs, attribute.StringSlice("derive.touched", info.Touched))
		}

		_, span := tracer.Start(ctx, "derive.settle",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attrs...),
		)

		return func(r *derive.Report) {
			defer span.End()

			span.SetAttributes(
				attribute.Int("derive.evaluated_count", len(r.Evaluated)),
				attribute.Int("derive.written_count", len(r.Written)),
				attribute.Int("derive.fired_count", len(r.Fired)),
				attribute.Int64("derive.duration_us", r.Duration.Microseconds()),
			)
			if config.IncludePaths {
				span.SetAttributes(
					attribute.StringSlice("derive.evaluated", r.Evaluated),
					attribute.StringSlice("derive.written", r.Written),
					attribute.StringSlice("derive.fired", r.Fired),
				)
			}

			if len(r.Errors) == 0 {
				span.SetStatus(codes.Ok, "")
				return
			}
			for _, err := range r.Errors {
				span.RecordError(err, trace.WithAttributes(
					attribute.String("derive.error_kind", categorizeError(err)),
				))
			}
			span.SetStatus(codes.Error, fmt.Sprintf("%d failures: %v", len(r.Errors), errors.Join(r.Errors...)))
		}
	})
}
