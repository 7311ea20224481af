package observability

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds OpenTelemetry tracing settings.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
	LangfuseHost   string
	PublicKey      string
	SecretKey      string
}

// TracerProvider wraps the SDK provider with enablement state and cleanup.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	enabled  bool
}

// InitTracing wires up OTLP/HTTP export to Langfuse. When disabled it
// returns a provider whose tracers are no-ops.
func InitTracing(ctx context.Context, config Config) (*TracerProvider, error) {
	if !config.Enabled {
		return &TracerProvider{enabled: false}, nil
	}

	exporter, err := newLangfuseExporter(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Langfuse exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		attribute.String("deployment.environment", config.Environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(100),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(storyInjector{}),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return &TracerProvider{provider: tp, enabled: true}, nil
}

// GetTracer returns a tracer for the given name.
func (tp *TracerProvider) GetTracer(name string, options ...trace.TracerOption) trace.Tracer {
	if !tp.enabled {
		return trace.NewNoopTracerProvider().Tracer(name, options...)
	}
	return otel.Tracer(name, options...)
}

// Shutdown flushes pending spans and shuts down the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if !tp.enabled || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// IsEnabled reports whether tracing is active.
func (tp *TracerProvider) IsEnabled() bool {
	return tp.enabled
}

func newLangfuseExporter(ctx context.Context, config Config) (sdktrace.SpanExporter, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(config.PublicKey + ":" + config.SecretKey))

	host := strings.TrimSuffix(config.LangfuseHost, "/")
	endpoint := fmt.Sprintf("%s/api/public/otel/v1/traces", host)

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
		otlptracehttp.WithHeaders(map[string]string{
			"Authorization": "Basic " + auth,
		}),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		otlptracehttp.WithTimeout(30*time.Second),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}

	return exporter, nil
}

// LoadConfigFromEnv reads tracing configuration from the environment.
func LoadConfigFromEnv() Config {
	enabled := os.Getenv("OTEL_TRACES_ENABLED") == "true"

	if !enabled {
		return Config{
			ServiceName:    "storyloop",
			ServiceVersion: "1.0.0",
			Environment:    "development",
			Enabled:        false,
		}
	}

	langfuseHost := os.Getenv("LANGFUSE_HOST")
	if langfuseHost == "" {
		langfuseHost = "https://cloud.langfuse.com"
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	return Config{
		ServiceName:    "storyloop",
		ServiceVersion: "1.0.0",
		Environment:    environment,
		Enabled:        enabled,
		LangfuseHost:   langfuseHost,
		PublicKey:      os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey:      os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// CreateGenAIAttributes builds GenAI semantic convention attributes for
// completion spans.
func CreateGenAIAttributes(system, model string, inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.operation.name", "chat"),
		attribute.String("gen_ai.system", system),
		attribute.String("gen_ai.request.model", model),
	}

	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.usage.input_tokens", inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.usage.output_tokens", outputTokens))
	}

	return attrs
}

// storyInjector stamps the story run id onto every span started under a
// context that carries one, so a whole story shows up as one Langfuse
// session.
type storyInjector struct{}

func (storyInjector) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if id := StoryIDFromContext(ctx); id != "" {
		s.SetAttributes(
			attribute.String("langfuse.session.id", id),
			attribute.String("session.id", id),
		)
	}
}

func (storyInjector) OnEnd(s sdktrace.ReadOnlySpan)       {}
func (storyInjector) Shutdown(context.Context) error      { return nil }
func (storyInjector) ForceFlush(context.Context) error    { return nil }

type contextKey string

const storyIDKey contextKey = "story_id"

// WithStoryID attaches a story run id to the context.
func WithStoryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, storyIDKey, id)
}

// StoryIDFromContext returns the story run id carried by ctx, if any.
func StoryIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(storyIDKey).(string); ok {
		return id
	}
	return ""
}
