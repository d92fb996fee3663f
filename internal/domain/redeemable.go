package domain

// RedeemableKind identifies what a redeemable reference points at.
type RedeemableKind string

// Redeemable kinds accepted in a validation request.
const (
	KindVoucher        RedeemableKind = "voucher"
	KindGiftCard       RedeemableKind = "gift_card"
	KindLoyaltyCard    RedeemableKind = "loyalty_card"
	KindPromotionTier  RedeemableKind = "promotion_tier"
	KindPromotionStack RedeemableKind = "promotion_stack"
)

// IsPromotion reports whether the kind is a promotion type, which the engine
// recognises but does not apply.
func (k RedeemableKind) IsPromotion() bool {
	return k == KindPromotionTier || k == KindPromotionStack
}

// IsSupported reports whether the kind resolves to a voucher-backed redeemable.
func (k RedeemableKind) IsSupported() bool {
	switch k {
	case KindVoucher, KindGiftCard, KindLoyaltyCard:
		return true
	default:
		return false
	}
}

// RedeemableRef is a caller-supplied reference to a redeemable. Order inside a
// request matters.
type RedeemableRef struct {
	Kind RedeemableKind `json:"kind" validate:"required"`
	ID   string         `json:"id" validate:"required"`
}

// Key returns the (kind, id) identity used for duplicate detection and locks.
func (r RedeemableRef) Key() string {
	return string(r.Kind) + ":" + r.ID
}

// OutcomeStatus classifies a processed redeemable.
type OutcomeStatus string

// Outcome statuses.
const (
	StatusApplicable   OutcomeStatus = "APPLICABLE"
	StatusInapplicable OutcomeStatus = "INAPPLICABLE"
	StatusSkipped      OutcomeStatus = "SKIPPED"
)

// OutcomeError carries the code and message of an INAPPLICABLE outcome.
type OutcomeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SkipReason carries the key and message of a SKIPPED outcome.
type SkipReason struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// DiscountResult is the payload of an applicable discount voucher.
type DiscountResult struct {
	Type           DiscountType `json:"type"`
	DiscountAmount int64        `json:"discount_amount"`
}

// GiftResult is the payload of an applicable gift card.
type GiftResult struct {
	Balance       int64 `json:"balance"`
	CreditsAmount int64 `json:"credits_amount"`
}

// LoyaltyResult is the payload of an applicable loyalty card.
type LoyaltyResult struct {
	Points  int64 `json:"points"`
	Balance int64 `json:"balance"`
}

// RedeemableResult holds exactly one populated variant, chosen by voucher type.
type RedeemableResult struct {
	Discount    *DiscountResult `json:"discount,omitempty"`
	Gift        *GiftResult     `json:"gift,omitempty"`
	LoyaltyCard *LoyaltyResult  `json:"loyalty_card,omitempty"`
}

// Amount returns the money the result takes off the order.
func (r *RedeemableResult) Amount() int64 {
	if r == nil {
		return 0
	}
	switch {
	case r.Discount != nil:
		return r.Discount.DiscountAmount
	case r.Gift != nil:
		return r.Gift.CreditsAmount
	default:
		return 0
	}
}

// OutcomeDetails is populated only when the caller asked for expansion.
type OutcomeDetails struct {
	Voucher    *Voucher    `json:"voucher,omitempty"`
	Categories []Category  `json:"categories,omitempty"`
	Order      []OrderLine `json:"order_lines,omitempty"`
}

// RedeemableOutcome is the classification of one processed reference.
type RedeemableOutcome struct {
	Kind       RedeemableKind    `json:"kind"`
	ID         string            `json:"id"`
	Status     OutcomeStatus     `json:"status"`
	VoucherID  string            `json:"voucher_id,omitempty"`
	Result     *RedeemableResult `json:"result,omitempty"`
	Error      *OutcomeError     `json:"error,omitempty"`
	SkipReason *SkipReason       `json:"skip_reason,omitempty"`
	Details    *OutcomeDetails   `json:"details,omitempty"`
}

// Ref returns the reference the outcome was produced for.
func (o RedeemableOutcome) Ref() RedeemableRef {
	return RedeemableRef{Kind: o.Kind, ID: o.ID}
}

// ExpandOptions selects the optional metadata attached to outcomes.
type ExpandOptions struct {
	Order      bool `json:"order"`
	Redeemable bool `json:"redeemable"`
	Category   bool `json:"category"`
}

// StackValidationResult is the complete classification of one stack request.
type StackValidationResult struct {
	Valid        bool                `json:"valid"`
	TrackingID   string              `json:"tracking_id,omitempty"`
	Redeemables  []RedeemableOutcome `json:"redeemables"`
	Skipped      []RedeemableOutcome `json:"skipped_redeemables"`
	Inapplicable []RedeemableOutcome `json:"inapplicable_redeemables"`
	Order        OrderSummary        `json:"order"`
	Session      *Session            `json:"session,omitempty"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
}

// Applicable returns the admitted outcomes in processing order.
func (r *StackValidationResult) Applicable() []RedeemableOutcome {
	out := make([]RedeemableOutcome, 0, len(r.Redeemables))
	for _, o := range r.Redeemables {
		if o.Status == StatusApplicable {
			out = append(out, o)
		}
	}
	return out
}
