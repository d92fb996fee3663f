package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pkgkafka "github.com/utafrali/redeemables/pkg/kafka"
)

// ConsumerGroupID is the consumer group of the cache invalidator.
const ConsumerGroupID = "redeemables-cache"

// VoucherChangesSkipped counts voucher.changed events that could not be used.
var VoucherChangesSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "voucher_change_events_skipped_total",
		Help: "voucher.changed events skipped by the cache invalidator",
	},
	[]string{"reason"},
)

// VoucherChangedData is the payload of a voucher.changed event.
type VoucherChangedData struct {
	TenantID  string `json:"tenant_id"`
	VoucherID string `json:"voucher_id"`
	Code      string `json:"code"`
}

// Invalidator drops cached vouchers.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string, codesOrIDs ...string) error
}

// CacheInvalidator evicts cached vouchers when they change upstream.
type CacheInvalidator struct {
	cache  Invalidator
	logger *slog.Logger
}

// NewCacheInvalidator creates a new voucher cache invalidator.
func NewCacheInvalidator(cache Invalidator, logger *slog.Logger) *CacheInvalidator {
	return &CacheInvalidator{cache: cache, logger: logger}
}

// Handle implements pkgkafka.Handler. Unusable events are logged and
// acknowledged; only cache failures are returned so the consumer retries.
func (h *CacheInvalidator) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != EventVoucherChanged {
		h.skip(ctx, event, "unknown_type")
		return nil
	}

	var data VoucherChangedData
	if err := event.UnmarshalData(&data); err != nil {
		h.skip(ctx, event, "malformed")
		return nil
	}
	if data.TenantID == "" {
		data.TenantID = event.TenantID
	}
	if data.VoucherID == "" {
		data.VoucherID = event.AggregateID
	}
	if data.TenantID == "" || (data.VoucherID == "" && data.Code == "") {
		h.skip(ctx, event, "incomplete")
		return nil
	}

	if err := h.cache.Invalidate(ctx, data.TenantID, data.Code, data.VoucherID); err != nil {
		return fmt.Errorf("invalidate voucher %s: %w", data.VoucherID, err)
	}

	h.logger.DebugContext(ctx, "voucher cache invalidated",
		slog.String("tenant_id", data.TenantID),
		slog.String("voucher_id", data.VoucherID),
		slog.String("code", data.Code),
	)
	return nil
}

func (h *CacheInvalidator) skip(ctx context.Context, event *pkgkafka.Event, reason string) {
	VoucherChangesSkipped.WithLabelValues(reason).Inc()
	h.logger.WarnContext(ctx, "skipping voucher change event",
		slog.String("reason", reason),
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.EventType),
	)
}
