// Package telemetry records cache and upstream metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const meterName = "github.com/mmcdole/catalog"

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus handler.
	EnablePrometheus bool

	// FlushInterval is how often to push OTLP metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	cacheReadsTotal     metric.Int64Counter
	cacheWritesTotal    metric.Int64Counter
	cacheWriteSize      metric.Float64Histogram
	fetchesTotal        metric.Int64Counter
	upstreamTotal       metric.Int64Counter
	upstreamDuration    metric.Float64Histogram
	connectivityChanges metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the metrics system once.
// Returns a shutdown function that should be called on application exit.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})
	if initErr != nil {
		return nil, initErr
	}
	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "catalog"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		)))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		opts = append(opts, sdkmetric.WithReader(promExp))
		promHandler = promhttp.Handler()
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m
	return nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	m.cacheReadsTotal, err = meter.Int64Counter(
		"catalog_cache_reads_total",
		metric.WithDescription("Cache reads by result"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, err
	}

	m.cacheWritesTotal, err = meter.Int64Counter(
		"catalog_cache_writes_total",
		metric.WithDescription("Cache writes by outcome"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, err
	}

	m.cacheWriteSize, err = meter.Float64Histogram(
		"catalog_cache_write_size_bytes",
		metric.WithDescription("Serialized size of cache entries"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(512, 2048, 8192, 32768, 131072, 524288, 2097152),
	)
	if err != nil {
		return nil, err
	}

	m.fetchesTotal, err = meter.Int64Counter(
		"catalog_fetches_total",
		metric.WithDescription("Content fetches by entity and source"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	m.upstreamTotal, err = meter.Int64Counter(
		"catalog_upstream_requests_total",
		metric.WithDescription("API requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.upstreamDuration, err = meter.Float64Histogram(
		"catalog_upstream_request_duration_seconds",
		metric.WithDescription("Duration of API requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	m.connectivityChanges, err = meter.Int64Counter(
		"catalog_connectivity_changes_total",
		metric.WithDescription("Network state transitions by connection type"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordCacheRead records a cache lookup: "hit", "miss", "expired" or "corrupt".
func RecordCacheRead(ctx context.Context, result string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.cacheReadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCacheWrite records a save with its outcome and serialized size.
func RecordCacheWrite(ctx context.Context, outcome string, size int) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	globalMetrics.cacheWritesTotal.Add(ctx, 1, attrs)
	if size > 0 {
		globalMetrics.cacheWriteSize.Record(ctx, float64(size), attrs)
	}
}

// RecordFetch records where a fetch was served from: "network", "cache" or "error".
func RecordFetch(ctx context.Context, entity, source string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.fetchesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("source", source),
	))
}

// RecordUpstream records one API round trip.
func RecordUpstream(ctx context.Context, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	globalMetrics.upstreamTotal.Add(ctx, 1, attrs)
	globalMetrics.upstreamDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordConnectivityChange records a network transition.
func RecordConnectivityChange(ctx context.Context, connectionType string, online bool) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.connectivityChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", connectionType),
		attribute.Bool("online", online),
	))
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns 404 if Prometheus export is not enabled.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}
