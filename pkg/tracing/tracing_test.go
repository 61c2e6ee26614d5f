package tracing

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"junction/internal/config"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestKafkaHeadersRoundTrip(t *testing.T) {
	ctx := spanContext(t)

	headers := InjectKafkaHeaders(ctx, []kafka.Header{{Key: "x", Value: []byte("y")}})
	require.Len(t, headers, 2)
	assert.Equal(t, "traceparent", headers[1].Key)

	got := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", got.TraceID().String())
}

func TestAMQPHeadersRoundTrip(t *testing.T) {
	ctx := spanContext(t)

	headers := InjectAMQPHeaders(ctx, nil)
	require.Contains(t, headers, "traceparent")

	got := trace.SpanContextFromContext(ExtractAMQPHeaders(context.Background(), headers))
	assert.Equal(t, "00f067aa0ba902b7", got.SpanID().String())

	assert.Equal(t, context.Background(), ExtractAMQPHeaders(context.Background(), amqp.Table(nil)))
}

func TestInitDisabled(t *testing.T) {
	tp, err := Init(config.TracingConfig{Enabled: false}, "junction")
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := make(map[attribute.Key]string)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestStartWorkerSpan(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartWorkerSpan(context.Background(), "router", "event", "r1",
		MessageIDKey.String("m-1"),
		EventTypeKey.String("ack"),
	)
	EndSpan(span, nil)

	_, failed := StartWorkerSpan(context.Background(), "router", "outbound", "r1")
	EndSpan(failed, stderrors.New("channel gone"))

	ended := rec.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, "router.event", ended[0].Name())
	assert.Equal(t, trace.SpanKindConsumer, ended[0].SpanKind())
	assert.Equal(t, map[attribute.Key]string{
		ComponentKey: "router",
		ConnectorKey: "r1",
		MessageIDKey: "m-1",
		EventTypeKey: "ack",
	}, attrs(ended[0]))
	assert.Equal(t, codes.Unset, ended[0].Status().Code)

	assert.Equal(t, "router.outbound", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "channel gone", ended[1].Status().Description)
}

func TestGinMiddlewareNamesSpansByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := recordSpans(t)

	engine := gin.New()
	engine.Use(GinMiddleware("junction"))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/api/v1/channels/:channel_id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/api/v1/channels/chan-1"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "GET /api/v1/channels/:channel_id", ended[0].Name())
}

func TestResolveServiceName(t *testing.T) {
	assert.Equal(t, "api", resolveServiceName(config.TracingConfig{ServiceName: "cfg"}, "api"))
	assert.Equal(t, "cfg", resolveServiceName(config.TracingConfig{ServiceName: "cfg"}, ""))
	assert.Equal(t, "junction", resolveServiceName(config.TracingConfig{}, ""))
}
