package observability

import (
	"context"
	"fmt"

	id "github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures distributed tracing
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"` // otlp, zipkin
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"` // 0.0 to 1.0
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
}

const tracerName = "optimaizer"

// TracerProvider owns the configured span pipeline. Span creation goes
// through the process-wide tracer via StartSpan; this type only carries the
// shutdown handle.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// NewTracerProvider builds the exporter pipeline and installs it as the
// process-wide tracer provider. Disabled config installs nothing, leaving
// the global no-op in place.
func NewTracerProvider(config TracingConfig) (*TracerProvider, error) {
	if !config.Enabled {
		return &TracerProvider{}, nil
	}

	// Default service name
	if config.ServiceName == "" {
		config.ServiceName = "optimaizer"
	}

	// Default sample rate
	if config.SampleRate <= 0 || config.SampleRate > 1.0 {
		config.SampleRate = 1.0
	}

	// Create exporter based on config
	var exporter sdktrace.SpanExporter
	var err error

	switch config.Exporter {
	case "otlp":
		endpoint := config.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		exporter, err = otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	case "zipkin":
		endpoint := config.ZipkinEndpoint
		if endpoint == "" {
			endpoint = "http://localhost:9411/api/v2/spans"
		}
		exporter, err = zipkin.New(endpoint)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", config.Exporter)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create trace provider
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SampleRate)),
	)

	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider}, nil
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan opens a span on the process-wide tracer, tagged with the
// identifiers carried on ctx. Before a provider is installed the global
// tracer is a no-op, so call sites need no enabled check.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ids := id.IDsFromContext(ctx)
	if ids.UserID != "" {
		attrs = append(attrs, attribute.String(AttrUserID, ids.UserID))
	}
	if ids.AgentID != "" {
		attrs = append(attrs, attribute.String(AttrAgentID, ids.AgentID))
	}
	if ids.RequestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, ids.RequestID))
	}

	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Common span names
const (
	SpanAgentTurn     = "optimaizer.agent.turn"
	SpanToolRound     = "optimaizer.agent.tool_round"
	SpanToolExecute   = "optimaizer.tool.execute"
	SpanProviderCall  = "optimaizer.provider.stream"
	SpanHTTPServer    = "optimaizer.http.request"
	SpanSSEConnection = "optimaizer.sse.connection"
	SpanSchedulerFire = "optimaizer.scheduler.fire"
	SpanCouncilRun    = "optimaizer.council.run"
)

// Common attribute keys
const (
	AttrUserID       = "optimaizer.user_id"
	AttrAgentID      = "optimaizer.agent_id"
	AttrRequestID    = "optimaizer.request_id"
	AttrToolName     = "optimaizer.tool_name"
	AttrToolClass    = "optimaizer.tool_class"
	AttrModel        = "optimaizer.provider.model"
	AttrTokenCount   = "optimaizer.provider.token_count"
	AttrInputTokens  = "optimaizer.provider.input_tokens"
	AttrOutputTokens = "optimaizer.provider.output_tokens"
	AttrCost         = "optimaizer.cost"
	AttrRound        = "optimaizer.round"
	AttrRoute        = "optimaizer.route"
	AttrStatus       = "optimaizer.status"
	AttrError        = "optimaizer.error"
)

// Helper functions to add common attributes

// ToolAttrs creates tool attributes
func ToolAttrs(toolName, class string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, toolName),
		attribute.String(AttrToolClass, class),
	}
}

// ProviderAttrs creates model provider attributes
func ProviderAttrs(model string, inputTokens, outputTokens int, cost float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrModel, model),
		attribute.Int(AttrInputTokens, inputTokens),
		attribute.Int(AttrOutputTokens, outputTokens),
		attribute.Int(AttrTokenCount, inputTokens+outputTokens),
	}
	if cost > 0 {
		attrs = append(attrs, attribute.Float64(AttrCost, cost))
	}
	return attrs
}

// RoundAttrs creates tool round attributes
func RoundAttrs(round int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrRound, round),
	}
}

// StatusAttrs creates status attributes
func StatusAttrs(status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStatus, status),
	}
}

// ErrorAttrs creates error attributes
func ErrorAttrs(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.Bool(AttrError, true),
		attribute.String("error.message", err.Error()),
	}
}
