package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.38.0"
)

const (
	meterName = "github.com/wolfeidau/cursor-cache"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	requestsTotal           metric.Int64Counter
	responseBytesTotal      metric.Int64Counter
	requestDuration         metric.Float64Histogram
	requestsByEndpointTotal metric.Int64Counter

	// Preview cache metrics
	lookupsTotal      metric.Int64Counter
	resolveDuration   metric.Float64Histogram
	resolveTotal      metric.Int64Counter
	cacheEntries      metric.Int64Gauge
	cachePending      metric.Int64Gauge
	evictionsTotal    metric.Int64Counter
	evictionBytes     metric.Int64Counter
	policyEventsTotal metric.Int64Counter

	// Backend metrics
	backendRequestDuration metric.Float64Histogram
	backendRequestsTotal   metric.Int64Counter
	backendBytesTotal      metric.Int64Counter

	// Preload metrics
	preloadItemsTotal  metric.Int64Counter
	preloadRunDuration metric.Float64Histogram

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
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
		cfg.ServiceName = "cursor-cache"
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

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(), // Use WithTLSCredentials for production
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m

	return nil
}

// newMetrics creates every instrument on the given meter.
func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"cursor_cache_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.responseBytesTotal, err = meter.Int64Counter(
		"cursor_cache_http_response_bytes_total",
		metric.WithDescription("Total bytes sent in HTTP responses"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.requestDuration, err = meter.Float64Histogram(
		"cursor_cache_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.requestsByEndpointTotal, err = meter.Int64Counter(
		"cursor_cache_http_requests_by_endpoint_total",
		metric.WithDescription("Total number of HTTP requests by endpoint (detail metric)"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.lookupsTotal, err = meter.Int64Counter(
		"cursor_cache_lookups_total",
		metric.WithDescription("Preview cache lookups by cache and outcome (hit, miss, shared)"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	m.resolveDuration, err = meter.Float64Histogram(
		"cursor_cache_resolve_duration_seconds",
		metric.WithDescription("Duration of single-flight preview resolutions"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	m.resolveTotal, err = meter.Int64Counter(
		"cursor_cache_resolve_total",
		metric.WithDescription("Total single-flight preview resolutions by outcome"),
		metric.WithUnit("{resolve}"),
	)
	if err != nil {
		return nil, err
	}

	m.cacheEntries, err = meter.Int64Gauge(
		"cursor_cache_entries",
		metric.WithDescription("Current entries in each preview cache"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	m.cachePending, err = meter.Int64Gauge(
		"cursor_cache_pending",
		metric.WithDescription("Current in-flight resolutions in each preview cache"),
		metric.WithUnit("{resolve}"),
	)
	if err != nil {
		return nil, err
	}

	m.evictionsTotal, err = meter.Int64Counter(
		"cursor_cache_evictions_total",
		metric.WithDescription("Total preview cache evictions"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	m.evictionBytes, err = meter.Int64Counter(
		"cursor_cache_eviction_bytes_total",
		metric.WithDescription("Total bytes freed by preview cache eviction"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.policyEventsTotal, err = meter.Int64Counter(
		"cursor_cache_s3fifo_events_total",
		metric.WithDescription("S3-FIFO policy events (admission, ghost_hit, promotion, second_chance)"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.backendRequestDuration, err = meter.Float64Histogram(
		"cursor_cache_backend_request_duration_seconds",
		metric.WithDescription("Duration of native backend decode operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	m.backendRequestsTotal, err = meter.Int64Counter(
		"cursor_cache_backend_requests_total",
		metric.WithDescription("Total number of native backend decode operations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.backendBytesTotal, err = meter.Int64Counter(
		"cursor_cache_backend_bytes_total",
		metric.WithDescription("Total encoded preview bytes produced by the backend"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.preloadItemsTotal, err = meter.Int64Counter(
		"cursor_cache_preload_items_total",
		metric.WithDescription("Preload items by outcome (loaded, failed, skipped)"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	m.preloadRunDuration, err = meter.Float64Histogram(
		"cursor_cache_preload_run_duration_seconds",
		metric.WithDescription("Duration of preload batches"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
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

// RecordHTTP records HTTP request metrics.
// Call this from the logging middleware after the request completes.
// Cache result and endpoint are read from request tags set by middleware and handlers.
func RecordHTTP(ctx context.Context, r *http.Request, status int, bytesSent int64, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	tags := GetTags(r)

	cacheResult := string(CacheBypass)
	endpoint := ""
	if tags != nil {
		if tags.CacheResult != "" {
			cacheResult = string(tags.CacheResult)
		}
		endpoint = tags.Endpoint
	}

	statusClass := StatusClass(status)

	// Shared metrics: low cardinality {status_class, cache_result}
	sharedAttrs := []attribute.KeyValue{
		attribute.String("status_class", statusClass),
		attribute.String("cache_result", cacheResult),
	}
	globalMetrics.requestsTotal.Add(ctx, 1, metric.WithAttributes(sharedAttrs...))
	globalMetrics.responseBytesTotal.Add(ctx, bytesSent, metric.WithAttributes(sharedAttrs...))
	globalMetrics.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(sharedAttrs...))

	if endpoint != "" {
		detailAttrs := []attribute.KeyValue{
			attribute.String("endpoint", endpoint),
			attribute.String("status_class", statusClass),
			attribute.String("cache_result", cacheResult),
		}
		globalMetrics.requestsByEndpointTotal.Add(ctx, 1, metric.WithAttributes(detailAttrs...))
	}
}

// RecordLookup records one registry lookup. cache is the registry name
// ("static" or "animated"), result is the lookup outcome.
func RecordLookup(ctx context.Context, cache string, result CacheResult) {
	if globalMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("cache", cache),
		attribute.String("result", string(result)),
	}
	globalMetrics.lookupsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordResolve records a completed single-flight resolution.
func RecordResolve(ctx context.Context, cache, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("cache", cache),
		attribute.String("outcome", outcome),
	}
	globalMetrics.resolveTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.resolveDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// UpdateCacheState records the current entry and pending counts of a cache.
func UpdateCacheState(ctx context.Context, cache string, entries, pending int) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cache", cache))
	globalMetrics.cacheEntries.Record(ctx, int64(entries), attrs)
	globalMetrics.cachePending.Record(ctx, int64(pending), attrs)
}

// RecordEviction records an entry dropped from a cache by its eviction policy.
func RecordEviction(ctx context.Context, cache string, bytes int64) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cache", cache))
	globalMetrics.evictionsTotal.Add(ctx, 1, attrs)
	if bytes > 0 {
		globalMetrics.evictionBytes.Add(ctx, bytes, attrs)
	}
}

// RecordS3FIFOEvent records a policy decision that did not evict.
// event is "admission", "ghost_hit", "promotion" or "second_chance".
func RecordS3FIFOEvent(ctx context.Context, cache, queue, event string) {
	if globalMetrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("cache", cache),
		attribute.String("queue", queue),
		attribute.String("event", event),
	}
	globalMetrics.policyEventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBackendOp records backend operation metrics.
func RecordBackendOp(ctx context.Context, backend, op, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	}
	globalMetrics.backendRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.backendRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if bytes > 0 {
		globalMetrics.backendBytesTotal.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}

// RecordPreloadRun records one preload batch and its per-item outcomes.
func RecordPreloadRun(ctx context.Context, loaded, failed, skipped int, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	for _, o := range []struct {
		outcome string
		n       int
	}{{"loaded", loaded}, {"failed", failed}, {"skipped", skipped}} {
		if o.n > 0 {
			globalMetrics.preloadItemsTotal.Add(ctx, int64(o.n), metric.WithAttributes(attribute.String("outcome", o.outcome)))
		}
	}
	globalMetrics.preloadRunDuration.Record(ctx, duration.Seconds())
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// StatusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx).
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
