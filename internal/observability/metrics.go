package observability

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector gathers runtime counters and histograms and exposes them
// on a Prometheus scrape endpoint. A collector built from a disabled config
// records nothing; every Record method nil-checks its instrument.
type MetricsCollector struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	// Turn loop metrics
	turns          metric.Int64Counter
	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram

	// Provider metrics
	providerRequests metric.Int64Counter
	providerLatency  metric.Float64Histogram
	providerTokens   metric.Int64Counter
	providerCost     metric.Float64Counter

	// Scheduler and streaming metrics
	schedulerFires      metric.Int64Counter
	streamCancellations metric.Int64Counter
	cacheEvents         metric.Int64Counter
	approvals           metric.Int64Counter

	// Runtime manager gauge
	agentsRunning metric.Int64UpDownCounter

	// Server for Prometheus scraping
	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a new metrics collector. A disabled config
// yields a no-op collector and starts no scrape server.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("optimaizer")

	c := &MetricsCollector{
		meterProvider: provider,
		meter:         meter,
	}

	c.turns, err = meter.Int64Counter(
		"optimaizer_agent_turns_total",
		metric.WithDescription("Completed agent turns by channel and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turns counter: %w", err)
	}

	c.toolExecutions, err = meter.Int64Counter(
		"optimaizer_tool_executions_total",
		metric.WithDescription("Tool executions by tool, side-effect class and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool executions counter: %w", err)
	}

	c.toolDuration, err = meter.Float64Histogram(
		"optimaizer_tool_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	c.providerRequests, err = meter.Int64Counter(
		"optimaizer_provider_requests_total",
		metric.WithDescription("Model provider requests by provider, model and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider requests counter: %w", err)
	}

	c.providerLatency, err = meter.Float64Histogram(
		"optimaizer_provider_latency_seconds",
		metric.WithDescription("Model provider request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider latency histogram: %w", err)
	}

	c.providerTokens, err = meter.Int64Counter(
		"optimaizer_provider_tokens_total",
		metric.WithDescription("Tokens exchanged with model providers by direction"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider tokens counter: %w", err)
	}

	c.providerCost, err = meter.Float64Counter(
		"optimaizer_provider_cost_usd_total",
		metric.WithDescription("Estimated provider spend in USD"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider cost counter: %w", err)
	}

	c.schedulerFires, err = meter.Int64Counter(
		"optimaizer_scheduler_fires_total",
		metric.WithDescription("Scheduler activations by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler fires counter: %w", err)
	}

	c.streamCancellations, err = meter.Int64Counter(
		"optimaizer_stream_cancellations_total",
		metric.WithDescription("Cancelled streaming requests by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream cancellations counter: %w", err)
	}

	c.cacheEvents, err = meter.Int64Counter(
		"optimaizer_stream_cache_events_total",
		metric.WithDescription("Streaming response cache lookups by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache events counter: %w", err)
	}

	c.approvals, err = meter.Int64Counter(
		"optimaizer_approvals_total",
		metric.WithDescription("Approval gate decisions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create approvals counter: %w", err)
	}

	c.agentsRunning, err = meter.Int64UpDownCounter(
		"optimaizer_agents_running",
		metric.WithDescription("Agent engines currently deployed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agents running gauge: %w", err)
	}

	if config.PrometheusPort > 0 {
		c.startPrometheusServer(config.PrometheusPort)
	}

	return c, nil
}

func (c *MetricsCollector) startPrometheusServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	c.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := c.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("prometheus server error: %v", err)
		}
	}()
}

// Shutdown stops the scrape server and flushes the meter provider.
func (c *MetricsCollector) Shutdown(ctx context.Context) error {
	if c.prometheusServer != nil {
		if err := c.prometheusServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	if c.meterProvider != nil {
		return c.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordTurn counts a completed agent turn.
func (c *MetricsCollector) RecordTurn(ctx context.Context, channel, status string) {
	if c.turns == nil {
		return
	}
	c.turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status),
	))
}

// RecordToolExecution counts a tool run and records its duration.
func (c *MetricsCollector) RecordToolExecution(ctx context.Context, tool, class, status string, duration time.Duration) {
	if c.toolExecutions == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("class", class),
		attribute.String("status", status),
	)
	c.toolExecutions.Add(ctx, 1, attrs)
	c.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordProviderRequest counts a model provider call with its latency and
// token usage.
func (c *MetricsCollector) RecordProviderRequest(ctx context.Context, provider, model, status string, latency time.Duration, tokensIn, tokensOut int64) {
	if c.providerRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("status", status),
	)
	c.providerRequests.Add(ctx, 1, attrs)
	c.providerLatency.Record(ctx, latency.Seconds(), attrs)

	if tokensIn > 0 {
		c.providerTokens.Add(ctx, tokensIn, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("direction", "in"),
		))
	}
	if tokensOut > 0 {
		c.providerTokens.Add(ctx, tokensOut, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("direction", "out"),
		))
	}
}

// RecordProviderCost accumulates estimated spend for budget dashboards.
func (c *MetricsCollector) RecordProviderCost(ctx context.Context, model string, usd float64) {
	if c.providerCost == nil {
		return
	}
	c.providerCost.Add(ctx, usd, metric.WithAttributes(
		attribute.String("model", model),
	))
}

// RecordSchedulerFire counts a scheduler activation. Kind is one of cron,
// one_shot, subscription or location.
func (c *MetricsCollector) RecordSchedulerFire(ctx context.Context, kind string) {
	if c.schedulerFires == nil {
		return
	}
	c.schedulerFires.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordStreamCancellation counts a cancelled stream. Reason is client or
// replaced.
func (c *MetricsCollector) RecordStreamCancellation(ctx context.Context, reason string) {
	if c.streamCancellations == nil {
		return
	}
	c.streamCancellations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCacheEvent counts a response cache lookup.
func (c *MetricsCollector) RecordCacheEvent(ctx context.Context, hit bool) {
	if c.cacheEvents == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordApproval counts an approval gate outcome: approved, denied or timeout.
func (c *MetricsCollector) RecordApproval(ctx context.Context, outcome string) {
	if c.approvals == nil {
		return
	}
	c.approvals.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// AgentStarted increments the running agent gauge.
func (c *MetricsCollector) AgentStarted(ctx context.Context) {
	if c.agentsRunning == nil {
		return
	}
	c.agentsRunning.Add(ctx, 1)
}

// AgentStopped decrements the running agent gauge.
func (c *MetricsCollector) AgentStopped(ctx context.Context) {
	if c.agentsRunning == nil {
		return
	}
	c.agentsRunning.Add(ctx, -1)
}
