package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/bigandbest/admin-deployed-sub000/pkg/logger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "ecommerce.fulfillment.stock_updated", Topic("fulfillment", "stock_updated"))
	assert.Equal(t, "ecommerce.dlq.ecommerce.product.deleted", DLQTopic("ecommerce.product.deleted"))
}

func TestNewEventFromContext_CarriesCorrelationID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")

	event, err := NewEventFromContext(ctx, "fulfillment.stock_updated", "42", "warehouse", "fulfillment-service",
		map[string]int{"quantity": 5})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, 1, event.Version)

	raw, err := event.Marshal()
	require.NoError(t, err)
	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)

	var payload map[string]int
	require.NoError(t, decoded.UnmarshalData(&payload))
	assert.Equal(t, 5, payload["quantity"])
}

func TestNewEvent_UnmarshalablePayload(t *testing.T) {
	_, err := NewEvent("x", "1", "y", "z", make(chan int))
	assert.Error(t, err)
}

func TestKafkaHeaderCarrier_RoundTripsTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	var headers []kafka.Header
	prop := propagation.TraceContext{}
	prop.Inject(ctx, NewKafkaHeaderCarrier(&headers))
	require.NotEmpty(t, headers)

	carrier := NewKafkaHeaderCarrier(&headers)
	assert.Contains(t, carrier.Keys(), "traceparent")

	extracted := prop.Extract(context.Background(), carrier)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())

	carrier.Set("traceparent", "overwritten")
	assert.Equal(t, "overwritten", carrier.Get("traceparent"))
	assert.Len(t, headers, len(carrier.Keys()))
	assert.Empty(t, carrier.Get("missing"))
}

func TestDLQMessage_AddsProvenanceHeaders(t *testing.T) {
	msg := kafka.Message{
		Topic:     "ecommerce.product.deleted",
		Partition: 2,
		Offset:    17,
		Key:       []byte("p-1"),
		Value:     []byte(`{}`),
		Headers:   []kafka.Header{{Key: "event_type", Value: []byte("product.deleted")}},
	}

	out := dlqMessage(msg, errors.New("boom"), "fulfillment-service")

	assert.Equal(t, "ecommerce.dlq.ecommerce.product.deleted", out.Topic)
	got := map[string]string{}
	for _, h := range out.Headers {
		got[h.Key] = string(h.Value)
	}
	assert.Equal(t, "product.deleted", got["event_type"])
	assert.Equal(t, "2", got["dlq.original_partition"])
	assert.Equal(t, "17", got["dlq.original_offset"])
	assert.Equal(t, "fulfillment-service", got["dlq.consumer_group"])
	assert.Equal(t, "boom", got["dlq.error"])
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Add(ctx, "evt-1"))
	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, 0, store.Len())
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisIdempotencyStore(client, "fulfillment:events", time.Hour)

	seen, err := store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "evt-1"))
	assert.True(t, mr.Exists("fulfillment:events:evt-1"))

	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Hour)
	seen, err = store.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Hour)
	calls := 0
	handler := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		return nil
	}, discardLogger())

	event := &Event{EventID: "evt-1", EventType: "product.deleted"}
	require.NoError(t, handler(ctx, event))
	require.NoError(t, handler(ctx, event))
	assert.Equal(t, 1, calls)

	require.NoError(t, handler(ctx, &Event{}))
	require.NoError(t, handler(ctx, &Event{}))
	assert.Equal(t, 3, calls)
}

func TestIdempotentHandler_FailureIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Hour)
	handler := IdempotentHandler(store, func(context.Context, *Event) error {
		return errors.New("downstream unavailable")
	}, discardLogger())

	err := handler(ctx, &Event{EventID: "evt-2"})
	require.Error(t, err)

	seen, _ := store.Contains(ctx, "evt-2")
	assert.False(t, seen)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	assert.ErrorContains(t, err, "no brokers")
}
