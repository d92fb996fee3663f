// Package event publishes engine events to Kafka and reacts to voucher
// changes made elsewhere.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/redeemables/internal/domain"
	pkgkafka "github.com/utafrali/redeemables/pkg/kafka"
	"github.com/utafrali/redeemables/pkg/logger"
)

// Event types.
const (
	EventValidationCompleted = "redeemable.validation.completed"
	EventRedeemed            = "redeemable.redeemed"
	EventVoucherChanged      = "voucher.changed"
)

// Kafka topics.
var (
	TopicValidationCompleted = pkgkafka.Topic("validation", "completed")
	TopicRedeemed            = pkgkafka.Topic("redemption", "redeemed")
	TopicVoucherChanged      = pkgkafka.Topic("voucher", "changed")
)

// Aggregate types.
const (
	AggregateTypeValidation = "validation"
	AggregateTypeVoucher    = "voucher"
)

// SourceEngine identifies events published by this service.
const SourceEngine = "redeemables-engine"

// ValidationCompletedData is the payload of a redeemable.validation.completed event.
type ValidationCompletedData struct {
	TrackingID   string `json:"tracking_id"`
	Valid        bool   `json:"valid"`
	Requested    int    `json:"requested"`
	Applicable   int    `json:"applicable"`
	Skipped      int    `json:"skipped"`
	Inapplicable int    `json:"inapplicable"`
	SessionKey   string `json:"session_key,omitempty"`
	TotalAmount  int64  `json:"total_amount"`
}

// RedeemedData is the payload of a redeemable.redeemed event.
type RedeemedData struct {
	RedemptionID string                `json:"redemption_id"`
	Kind         domain.RedeemableKind `json:"kind"`
	Code         string                `json:"code"`
	VoucherID    string                `json:"voucher_id"`
	CustomerID   string                `json:"customer_id,omitempty"`
	OrderID      string                `json:"order_id,omitempty"`
	Amount       int64                 `json:"amount"`
	TrackingID   string                `json:"tracking_id,omitempty"`
}

// Sender is the part of the Kafka producer the publisher needs.
type Sender interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Publisher publishes engine events.
type Publisher struct {
	sender Sender
	logger *slog.Logger
}

// NewPublisher creates a new event publisher.
func NewPublisher(sender Sender, logger *slog.Logger) *Publisher {
	return &Publisher{sender: sender, logger: logger}
}

// PublishValidationCompleted publishes the summary of a stack validation.
func (p *Publisher) PublishValidationCompleted(ctx context.Context, tenantID string, res *domain.StackValidationResult) error {
	data := ValidationCompletedData{
		TrackingID:   res.TrackingID,
		Valid:        res.Valid,
		Requested:    len(res.Redeemables),
		Applicable:   len(res.Applicable()),
		Skipped:      len(res.Skipped),
		Inapplicable: len(res.Inapplicable),
		TotalAmount:  res.Order.TotalAmount,
	}
	if res.Session != nil {
		data.SessionKey = res.Session.Key
	}

	return p.publish(ctx, TopicValidationCompleted, EventValidationCompleted, tenantID, res.TrackingID, AggregateTypeValidation, data)
}

// PublishRedeemed publishes one committed redemption.
func (p *Publisher) PublishRedeemed(ctx context.Context, kind domain.RedeemableKind, code string, r *domain.Redemption) error {
	data := RedeemedData{
		RedemptionID: r.ID,
		Kind:         kind,
		Code:         code,
		VoucherID:    r.VoucherID,
		CustomerID:   r.CustomerID,
		OrderID:      r.OrderID,
		Amount:       r.Amount,
		TrackingID:   r.TrackingID,
	}

	return p.publish(ctx, TopicRedeemed, EventRedeemed, r.TenantID, r.VoucherID, AggregateTypeVoucher, data)
}

func (p *Publisher) publish(ctx context.Context, topic, eventType, tenantID, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(eventType, tenantID, aggregateID, aggregateType, SourceEngine, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.sender.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("event_type", eventType),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
