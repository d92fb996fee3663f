package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// --- Fakes ---

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// --- Event ---

func TestNewEvent_Fields(t *testing.T) {
	type redeemed struct {
		VoucherID string `json:"voucher_id"`
		Amount    int64  `json:"amount"`
	}
	event, err := NewEvent("redeemable.redeemed", "tnt_1", "v_1", "voucher", "redeemables", redeemed{"v_1", 500})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "redeemable.redeemed", event.EventType)
	assert.Equal(t, "tnt_1", event.TenantID)
	assert.Equal(t, "v_1", event.AggregateID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.JSONEq(t, `{"voucher_id":"v_1","amount":500}`, string(event.Data))
	assert.Equal(t, []byte("tnt_1/v_1"), event.PartitionKey())
}

func TestNewEvent_UnmarshalablePayload(t *testing.T) {
	_, err := NewEvent("x", "t", "a", "b", "c", make(chan int))
	assert.Error(t, err)
}

func TestEvent_Chaining(t *testing.T) {
	event, err := NewEvent("x", "t", "a", "b", "c", nil)
	require.NoError(t, err)

	same := event.WithCorrelationID("corr-1").WithMetadata("k", "v")
	assert.Same(t, event, same)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, map[string]string{"k": "v"}, event.Metadata)
}

func TestUnmarshalEvent(t *testing.T) {
	original, err := NewEvent("voucher.changed", "tnt_1", "SUMMER", "voucher", "catalog", map[string]string{"code": "SUMMER"})
	require.NoError(t, err)
	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.TenantID, restored.TenantID)

	var payload map[string]string
	require.NoError(t, restored.UnmarshalData(&payload))
	assert.Equal(t, "SUMMER", payload["code"])

	_, err = UnmarshalEvent([]byte(`{broken`))
	assert.Error(t, err)
	_, err = UnmarshalEvent([]byte(`{"data":{}}`))
	assert.ErrorContains(t, err, "missing event_type")
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "redeemables.redeemable.redeemed", Topic("redeemable", "redeemed"))
	assert.Equal(t, "redeemables.validation.completed", Topic("validation", "completed"))
}

// --- Producer ---

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"broker1:9092"})
	assert.Equal(t, []string{"broker1:9092"}, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.False(t, cfg.Async)
}

func TestProducer_PublishHeadersAndKey(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, nil)

	event, err := NewEvent("redeemable.redeemed", "tnt_1", "v_1", "voucher", "redeemables", nil)
	require.NoError(t, err)
	event.WithCorrelationID("corr-9")

	require.NoError(t, p.Publish(context.Background(), "redeemables.redeemable.redeemed", event))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "redeemables.redeemable.redeemed", msg.Topic)
	assert.Equal(t, []byte("tnt_1/v_1"), msg.Key)
	assert.Equal(t, "redeemable.redeemed", header(msg, "event_type"))
	assert.Equal(t, "tnt_1", header(msg, "tenant_id"))
	assert.Equal(t, "corr-9", header(msg, "correlation_id"))
}

func TestProducer_PublishInjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	w := &fakeWriter{}
	event, err := NewEvent("x", "t", "a", "b", "c", nil)
	require.NoError(t, err)
	require.NoError(t, newProducer(w, nil, nil).Publish(ctx, "topic", event))

	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header(w.msgs[0], "traceparent"))
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	event, err := NewEvent("x", "t", "a", "b", "c", nil)
	require.NoError(t, err)

	err = newProducer(w, nil, nil).Publish(context.Background(), "topic", event)
	assert.ErrorContains(t, err, "publish event to topic")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newProducer(w, nil, nil).Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoneConfigured(t *testing.T) {
	assert.ErrorContains(t, PingBrokers(context.Background(), nil), "no brokers")
}
