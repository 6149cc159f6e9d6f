package observability

import (
	"context"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics:
// - Preview runs: outcome, duration, polls and concurrent runs
// - Gateway: latency and failures of calls to the preview server
// - HTTP: requests served by the reference server
// - Dispatcher: status callback delivery
type Metrics struct {
	meter metric.Meter

	// Preview run metrics (Latency, Traffic, Errors, Saturation)
	RunDuration metric.Float64Histogram
	RunsTotal   metric.Int64Counter
	RunsActive  metric.Int64UpDownCounter
	PollsTotal  metric.Int64Counter

	// Gateway metrics (Latency, Errors)
	GatewayDuration metric.Float64Histogram
	GatewayErrors   metric.Int64Counter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Dispatcher metrics (Latency, Traffic, Errors, Saturation)
	DispatcherDuration  metric.Float64Histogram
	DispatcherDelivered metric.Int64Counter
	DispatcherFailed    metric.Int64Counter
	DispatcherDropped   metric.Int64Counter
	DispatcherSkipped   metric.Int64Counter
	DispatcherQueueSize metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
// Each call gets its own registry; the returned handler serves only it.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("preview")
	m := &Metrics{meter: meter}

	// Preview run metrics
	m.RunDuration, err = meter.Float64Histogram(
		"preview_run_duration_seconds",
		metric.WithDescription("Time from submission to terminal outcome in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(5, 10, 30, 60, 90, 120, 300, 600, 900),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsTotal, err = meter.Int64Counter(
		"preview_runs_total",
		metric.WithDescription("Total number of preview runs by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsActive, err = meter.Int64UpDownCounter(
		"preview_runs_active",
		metric.WithDescription("Number of preview runs currently polling (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"preview_polls_total",
		metric.WithDescription("Total number of job status checks"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Gateway metrics
	m.GatewayDuration, err = meter.Float64Histogram(
		"gateway_request_duration_seconds",
		metric.WithDescription("Preview server call latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.GatewayErrors, err = meter.Int64Counter(
		"gateway_errors_total",
		metric.WithDescription("Total number of failed preview server calls"),
	)
	if err != nil {
		return nil, nil, err
	}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Dispatcher metrics
	m.DispatcherDuration, err = meter.Float64Histogram(
		"dispatcher_duration_seconds",
		metric.WithDescription("Callback delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDelivered, err = meter.Int64Counter(
		"dispatcher_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherFailed, err = meter.Int64Counter(
		"dispatcher_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDropped, err = meter.Int64Counter(
		"dispatcher_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherSkipped, err = meter.Int64Counter(
		"dispatcher_skipped_total",
		metric.WithDescription("Total events skipped because the destination circuit was open"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherQueueSize, err = meter.Int64Gauge(
		"dispatcher_queue_size",
		metric.WithDescription("Current number of events in dispatcher queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// RecordRunStarted records a preview job being submitted.
func (m *Metrics) RecordRunStarted(ctx context.Context, format string) {
	m.RunsActive.Add(ctx, 1, metric.WithAttributes(formatAttr(format)))
}

// RecordRunFinished records a preview run reaching a terminal outcome.
// Outcome is "completed", "cancelled" or an error kind.
func (m *Metrics) RecordRunFinished(ctx context.Context, format, outcome string, durationSeconds float64) {
	attrs := metric.WithAttributes(formatAttr(format), outcomeAttr(outcome))
	m.RunDuration.Record(ctx, durationSeconds, attrs)
	m.RunsTotal.Add(ctx, 1, attrs)
	m.RunsActive.Add(ctx, -1, metric.WithAttributes(formatAttr(format)))
}

// RecordPoll records one job status check.
func (m *Metrics) RecordPoll(ctx context.Context, state string) {
	m.PollsTotal.Add(ctx, 1, metric.WithAttributes(stateAttr(state)))
}

// RecordGatewayCall records a call to the preview server.
func (m *Metrics) RecordGatewayCall(ctx context.Context, op string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(opAttr(op), successAttr(success))
	m.GatewayDuration.Record(ctx, durationSeconds, attrs)
	if !success {
		m.GatewayErrors.Add(ctx, 1, metric.WithAttributes(opAttr(op)))
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherSkipped records an event skipped on an open circuit.
func (m *Metrics) RecordDispatcherSkipped(ctx context.Context) {
	m.DispatcherSkipped.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}
