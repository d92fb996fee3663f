package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestTraceQuery_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), "GetVoucherByCode", "SELECT id FROM vouchers WHERE code = $1")
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "db.GetVoucherByCode", span.Name)
	assert.Equal(t, codes.Unset, span.Status.Code)

	attrs := make(map[string]string)
	for _, a := range span.Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	assert.Equal(t, "postgresql", attrs["db.system"])
	assert.Equal(t, "GetVoucherByCode", attrs["db.operation"])
	assert.Equal(t, "SELECT id FROM vouchers WHERE code = $1", attrs["db.statement"])
}

func TestTraceQuery_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), "CommitRedemption", "UPDATE vouchers SET redeemed_quantity = redeemed_quantity + 1")
	end(errors.New("connection refused"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events)
}

func TestTraceQuery_ChildOfParent(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, parent := otel.Tracer("test").Start(context.Background(), "parent")
	_, end := TraceQuery(ctx, "ListActiveVouchers", "SELECT 1")
	end(nil)
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestSlowQueryLogging(t *testing.T) {
	tests := []struct {
		name      string
		threshold time.Duration
		err       error
		want      []string
		wantNone  bool
	}{
		{name: "slow", threshold: time.Nanosecond, want: []string{"slow query detected", "SlowSelect", "SELECT * FROM redemptions"}},
		{name: "slow with error", threshold: time.Nanosecond, err: errors.New("deadlock detected"), want: []string{"deadlock detected"}},
		{name: "fast", threshold: time.Hour, wantNone: true},
		{name: "disabled", threshold: 0, wantNone: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setupTestTracer(t)
			var buf bytes.Buffer
			SetSlowQueryLogging(tc.threshold, slog.New(slog.NewJSONHandler(&buf, nil)))
			t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

			_, end := TraceQuery(context.Background(), "SlowSelect", "SELECT * FROM redemptions")
			end(tc.err)

			if tc.wantNone {
				assert.Empty(t, buf.String())
				return
			}
			for _, s := range tc.want {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}
