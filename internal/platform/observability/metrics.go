package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Upstream API metrics
	APICalls    metric.Int64Counter
	APIDuration metric.Float64Histogram

	// Realtime feed metrics
	FeedConnections   metric.Int64Counter
	FeedReconnections metric.Int64Counter
	FeedConnected     metric.Int64Gauge
	TicksReceived     metric.Int64Counter
	TicksDropped      metric.Int64Counter
	Subscriptions     metric.Int64Gauge

	// Alert metrics
	AlertsFired metric.Int64Counter

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Error metrics
	Errors metric.Int64Counter

	// Prometheus exporter for HTTP handler
	exporter *prometheus.Exporter
}

// NewMetrics creates a new Metrics instance
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

func (m *Metrics) initMetrics() error {
	var err error

	if m.CacheHits, err = m.meter.Int64Counter(
		"cache_hits_total",
		metric.WithDescription("Number of cache hits per resource kind"),
	); err != nil {
		return err
	}

	if m.CacheMisses, err = m.meter.Int64Counter(
		"cache_misses_total",
		metric.WithDescription("Number of cache misses per resource kind"),
	); err != nil {
		return err
	}

	if m.APICalls, err = m.meter.Int64Counter(
		"api_calls_total",
		metric.WithDescription("Number of upstream REST API calls"),
	); err != nil {
		return err
	}

	if m.APIDuration, err = m.meter.Float64Histogram(
		"api_call_duration_seconds",
		metric.WithDescription("Upstream REST API call duration"),
	); err != nil {
		return err
	}

	if m.FeedConnections, err = m.meter.Int64Counter(
		"feed_connections_total",
		metric.WithDescription("Number of WebSocket feed connection attempts"),
	); err != nil {
		return err
	}

	if m.FeedReconnections, err = m.meter.Int64Counter(
		"feed_reconnections_total",
		metric.WithDescription("Number of WebSocket feed reconnections"),
	); err != nil {
		return err
	}

	if m.FeedConnected, err = m.meter.Int64Gauge(
		"feed_connected",
		metric.WithDescription("Whether the WebSocket feed is connected (1) or not (0)"),
	); err != nil {
		return err
	}

	if m.TicksReceived, err = m.meter.Int64Counter(
		"ticks_received_total",
		metric.WithDescription("Number of price ticks received from the feed"),
	); err != nil {
		return err
	}

	if m.TicksDropped, err = m.meter.Int64Counter(
		"ticks_dropped_total",
		metric.WithDescription("Number of ticks dropped because a listener buffer was full"),
	); err != nil {
		return err
	}

	if m.Subscriptions, err = m.meter.Int64Gauge(
		"feed_subscriptions",
		metric.WithDescription("Number of symbols currently subscribed on the feed"),
	); err != nil {
		return err
	}

	if m.AlertsFired, err = m.meter.Int64Counter(
		"alerts_fired_total",
		metric.WithDescription("Number of price alerts published"),
	); err != nil {
		return err
	}

	if m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"circuit_breaker_state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	); err != nil {
		return err
	}

	if m.Errors, err = m.meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Number of errors by type"),
	); err != nil {
		return err
	}

	return nil
}

// RecordCacheHit records a cache hit for a resource kind
func (m *Metrics) RecordCacheHit(ctx context.Context, resource string) {
	if m.CacheHits != nil {
		m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
	}
}

// RecordCacheMiss records a cache miss for a resource kind
func (m *Metrics) RecordCacheMiss(ctx context.Context, resource string) {
	if m.CacheMisses != nil {
		m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
	}
}

// RecordAPICall records an upstream REST API call
func (m *Metrics) RecordAPICall(ctx context.Context, endpoint, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	if m.APICalls != nil {
		m.APICalls.Add(ctx, 1, attrs)
	}
	if m.APIDuration != nil {
		m.APIDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordFeedConnection records a feed connection attempt and its outcome
func (m *Metrics) RecordFeedConnection(ctx context.Context, success bool) {
	if m.FeedConnections != nil {
		m.FeedConnections.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	}
	m.SetFeedConnected(ctx, success)
}

// RecordFeedReconnection records an automatic reconnection
func (m *Metrics) RecordFeedReconnection(ctx context.Context) {
	if m.FeedReconnections != nil {
		m.FeedReconnections.Add(ctx, 1)
	}
}

// SetFeedConnected sets the feed connectivity gauge
func (m *Metrics) SetFeedConnected(ctx context.Context, connected bool) {
	if m.FeedConnected != nil {
		val := int64(0)
		if connected {
			val = 1
		}
		m.FeedConnected.Record(ctx, val)
	}
}

// RecordTick records a decoded price tick
func (m *Metrics) RecordTick(ctx context.Context, symbol string) {
	if m.TicksReceived != nil {
		m.TicksReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
	}
}

// RecordTickDropped records a tick dropped due to a full listener buffer
func (m *Metrics) RecordTickDropped(ctx context.Context, symbol string) {
	if m.TicksDropped != nil {
		m.TicksDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", symbol)))
	}
}

// SetSubscriptions sets the current subscribed-symbol count
func (m *Metrics) SetSubscriptions(ctx context.Context, count int64) {
	if m.Subscriptions != nil {
		m.Subscriptions.Record(ctx, count)
	}
}

// RecordAlertFired records a published price alert
func (m *Metrics) RecordAlertFired(ctx context.Context, symbol, direction string) {
	if m.AlertsFired != nil {
		m.AlertsFired.Add(ctx, 1, metric.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("direction", direction),
		))
	}
}

// SetCircuitBreakerState records circuit breaker state for a service
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if m.CircuitBreakerState != nil {
		m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("service", service)))
	}
}

// RecordError records an error by type
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if m.Errors != nil {
		m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("error_type", errorType)))
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
