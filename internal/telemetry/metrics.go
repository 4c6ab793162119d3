package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/wolfeidau/webbuild"

// Metrics holds the OpenTelemetry instruments recorded by builds and the dev
// server.
type Metrics struct {
	// Build metrics
	BuildsTotal      metric.Int64Counter
	BuildErrorsTotal metric.Int64Counter
	BuildDuration    metric.Float64Histogram

	// Dependency pre-bundling metrics
	DepsOptimizedTotal metric.Int64Counter
	DepsCacheHitsTotal metric.Int64Counter

	// Dev server metrics
	RebuildsTotal     metric.Int64Counter
	DevRequestsTotal  metric.Int64Counter
	LiveReloadClients metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it against
// the global meter provider on first use.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for build spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"webbuild.builds.total",
		metric.WithDescription("Total number of builds"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"webbuild.builds.errors.total",
		metric.WithDescription("Total number of failed builds"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"webbuild.builds.duration",
		metric.WithDescription("Duration of builds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)

	m.DepsOptimizedTotal, _ = meter.Int64Counter(
		"webbuild.deps.optimized.total",
		metric.WithDescription("Total number of dependencies pre-bundled"),
		metric.WithUnit("{dependency}"),
	)

	m.DepsCacheHitsTotal, _ = meter.Int64Counter(
		"webbuild.deps.cache_hits.total",
		metric.WithDescription("Total number of times pre-bundled dependencies were reused"),
		metric.WithUnit("{hit}"),
	)

	m.RebuildsTotal, _ = meter.Int64Counter(
		"webbuild.dev.rebuilds.total",
		metric.WithDescription("Total number of dev server rebuilds"),
		metric.WithUnit("{rebuild}"),
	)

	m.DevRequestsTotal, _ = meter.Int64Counter(
		"webbuild.dev.requests.total",
		metric.WithDescription("Total number of dev server requests"),
		metric.WithUnit("{request}"),
	)

	m.LiveReloadClients, _ = meter.Int64UpDownCounter(
		"webbuild.dev.live_reload.clients",
		metric.WithDescription("Number of connected live reload clients"),
		metric.WithUnit("{client}"),
	)

	return m
}
