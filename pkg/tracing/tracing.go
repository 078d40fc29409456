package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"flattener/internal/config"
)

const defaultServiceName = "flattener-service"

// Resource attribute keys describing the stage a process hosts.
const (
	StageKey           = attribute.Key("flattener.stage")
	TransformSourceKey = attribute.Key("flattener.transform.source")
)

// Sampler types accepted in tracing.sampler.type.
const (
	SamplerAlwaysOn                = "always_on"
	SamplerAlwaysOff               = "always_off"
	SamplerTraceIDRatio            = "traceidratio"
	SamplerParentBasedAlwaysOn     = "parentbased_always_on"
	SamplerParentBasedTraceIDRatio = "parentbased_traceidratio"
)

// StageInfo identifies the process in exported spans.
type StageInfo struct {
	ServiceName string
	InstanceID  string
	Stage       string
	Source      string
}

type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

func (tp *TracerProvider) Tracer(name string) trace.Tracer {
	return tp.tp.Tracer(name)
}

func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp != nil {
		return tp.tp.Shutdown(ctx)
	}
	return nil
}

// Init installs the W3C propagator and, when tracing is enabled, an OTLP
// exporting provider as the global one. With tracing disabled no spans are
// exported, but trace context on incoming records still reaches the output
// records.
func Init(cfg config.TracingConfig, info StageInfo) (*TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return &TracerProvider{tp: sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))}, nil
	}

	if cfg.OTLP.Endpoint == "" {
		return nil, fmt.Errorf("tracing is enabled but tracing.otlp.endpoint is empty")
	}

	sampler, err := newSampler(cfg.Sampler)
	if err != nil {
		return nil, err
	}

	if info.ServiceName == "" {
		info.ServiceName = cfg.ServiceName
	}
	res, err := newResource(info)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint),
	}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return &TracerProvider{tp: tp}, nil
}

func newResource(info StageInfo) (*resource.Resource, error) {
	name := info.ServiceName
	if name == "" {
		name = defaultServiceName
	}

	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(name)}
	if info.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceIDKey.String(info.InstanceID))
	}
	if info.Stage != "" {
		attrs = append(attrs, StageKey.String(info.Stage))
	}
	if info.Source != "" {
		attrs = append(attrs, TransformSourceKey.String(info.Source))
	}

	return resource.New(context.Background(), resource.WithAttributes(attrs...))
}

// newSampler builds the configured sampler. An empty type follows the
// upstream sampling decision; ratio samplers need a param in [0, 1].
func newSampler(cfg config.SamplerConfig) (sdktrace.Sampler, error) {
	switch cfg.Type {
	case SamplerTraceIDRatio, SamplerParentBasedTraceIDRatio:
		if cfg.Param < 0 || cfg.Param > 1 {
			return nil, fmt.Errorf("sampler %s needs a ratio between 0 and 1, got %v", cfg.Type, cfg.Param)
		}
	}

	switch cfg.Type {
	case "", SamplerParentBasedAlwaysOn:
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	case SamplerAlwaysOn:
		return sdktrace.AlwaysSample(), nil
	case SamplerAlwaysOff:
		return sdktrace.NeverSample(), nil
	case SamplerTraceIDRatio:
		return sdktrace.TraceIDRatioBased(cfg.Param), nil
	case SamplerParentBasedTraceIDRatio:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Param)), nil
	default:
		return nil, fmt.Errorf("unknown sampler type: %s", cfg.Type)
	}
}

func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
