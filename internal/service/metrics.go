package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/redeemables/internal/domain"
)

var (
	// RedeemableOutcomes counts classified redeemables by status and by error
	// code or skip key.
	RedeemableOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redeemable_outcomes_total",
			Help: "Total number of redeemable classifications",
		},
		[]string{"status", "reason"},
	)

	// StackValidationDuration observes the duration of stack validations.
	StackValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stack_validation_duration_seconds",
			Help:    "Duration of stack validations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RedemptionsTotal counts redeem attempts per redeemable by result status.
	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Total number of redemption attempts by result",
		},
		[]string{"status"},
	)
)

func recordOutcome(o domain.RedeemableOutcome) {
	reason := "none"
	switch {
	case o.Error != nil:
		reason = o.Error.Code
	case o.SkipReason != nil:
		reason = o.SkipReason.Key
	}
	RedeemableOutcomes.WithLabelValues(string(o.Status), reason).Inc()
}

func recordSingle(out *domain.ValidationOutcome) {
	if out.Valid {
		RedeemableOutcomes.WithLabelValues(string(domain.StatusApplicable), "none").Inc()
		return
	}
	RedeemableOutcomes.WithLabelValues(string(domain.StatusInapplicable), out.Code).Inc()
}
