package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/semconv/v1.26.0"

	"flattener/internal/config"
)

func TestNewResource(t *testing.T) {
	res, err := newResource(StageInfo{
		ServiceName: "flattener-service",
		InstanceID:  "host-1",
		Stage:       "orders-attributes",
		Source:      "postgres",
	})
	require.NoError(t, err)

	set := res.Set()
	for key, want := range map[attribute.Key]string{
		semconv.ServiceNameKey:       "flattener-service",
		semconv.ServiceInstanceIDKey: "host-1",
		StageKey:                     "orders-attributes",
		TransformSourceKey:           "postgres",
	} {
		v, ok := set.Value(key)
		require.True(t, ok, string(key))
		assert.Equal(t, want, v.AsString(), string(key))
	}
}

func TestNewResource_Defaults(t *testing.T) {
	res, err := newResource(StageInfo{})
	require.NoError(t, err)

	v, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, defaultServiceName, v.AsString())

	_, ok = res.Set().Value(StageKey)
	assert.False(t, ok)
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SamplerConfig
		want    string
		wantErr bool
	}{
		{name: "default follows parent", cfg: config.SamplerConfig{}, want: "ParentBased{root:AlwaysOnSampler"},
		{name: "always on", cfg: config.SamplerConfig{Type: SamplerAlwaysOn}, want: "AlwaysOnSampler"},
		{name: "always off", cfg: config.SamplerConfig{Type: SamplerAlwaysOff}, want: "AlwaysOffSampler"},
		{name: "ratio", cfg: config.SamplerConfig{Type: SamplerTraceIDRatio, Param: 0.25}, want: "TraceIDRatioBased{0.25}"},
		{name: "parent ratio", cfg: config.SamplerConfig{Type: SamplerParentBasedTraceIDRatio, Param: 0.5}, want: "ParentBased{root:TraceIDRatioBased{0.5}"},
		{name: "ratio out of range", cfg: config.SamplerConfig{Type: SamplerTraceIDRatio, Param: 1.5}, wantErr: true},
		{name: "unknown", cfg: config.SamplerConfig{Type: "sometimes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := newSampler(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, sampler.Description(), tt.want)
		})
	}
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(config.TracingConfig{}, StageInfo{Stage: "s1"})
	require.NoError(t, err)
	assert.NotNil(t, otel.GetTextMapPropagator())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestInit_EnabledWithoutEndpoint(t *testing.T) {
	_, err := Init(config.TracingConfig{Enabled: true}, StageInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestGinMiddleware_SkipsUntracedPaths(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware("flattener-service", "/health"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/transform/config", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/api/v1/transform/config"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name(), "/api/v1/transform/config")
}
