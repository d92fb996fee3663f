package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// VoucherType selects which specification a voucher carries.
type VoucherType string

// Voucher types.
const (
	VoucherTypeDiscount    VoucherType = "DISCOUNT_VOUCHER"
	VoucherTypeGift        VoucherType = "GIFT_VOUCHER"
	VoucherTypeLoyaltyCard VoucherType = "LOYALTY_CARD"
)

// MatchesKind reports whether a voucher of this type may be requested as kind.
func (t VoucherType) MatchesKind(kind RedeemableKind) bool {
	switch kind {
	case KindVoucher:
		return t == VoucherTypeDiscount
	case KindGiftCard:
		return t == VoucherTypeGift
	case KindLoyaltyCard:
		return t == VoucherTypeLoyaltyCard
	default:
		return false
	}
}

// DiscountType is the discount calculation method.
type DiscountType string

// Discount types.
const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountAmount  DiscountType = "AMOUNT"
	DiscountFixed   DiscountType = "FIXED"
	DiscountUnit    DiscountType = "UNIT"
)

// Discount describes how a discount voucher reduces an order. Amounts are in
// minor currency units.
type Discount struct {
	Type        DiscountType    `json:"type"`
	PercentOff  decimal.Decimal `json:"percent_off"`
	AmountOff   int64           `json:"amount_off"`
	UnitOff     int64           `json:"unit_off"`
	AmountLimit int64           `json:"amount_limit,omitempty"`
}

// Gift describes a gift card balance.
type Gift struct {
	Amount  int64 `json:"amount"`
	Balance int64 `json:"balance"`
}

// LoyaltyCard describes a loyalty card points balance.
type LoyaltyCard struct {
	Points  int64 `json:"points"`
	Balance int64 `json:"balance"`
}

// TimeSlot is a daily validity slot. Times are "HH:MM" in the validity timezone.
type TimeSlot struct {
	StartTime      string         `json:"start_time"`
	ExpirationTime string         `json:"expiration_time"`
	DaysOfWeek     []time.Weekday `json:"days_of_week,omitempty"`
}

// Timeframe is a rolling window: active for Duration out of every Interval.
type Timeframe struct {
	IntervalSeconds int64 `json:"interval_seconds"`
	DurationSeconds int64 `json:"duration_seconds"`
}

// Validity groups the recurrence rules of a voucher.
type Validity struct {
	Timezone   string         `json:"timezone,omitempty"`
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	Daily      []TimeSlot     `json:"daily,omitempty"`
	Timeframe  *Timeframe     `json:"timeframe,omitempty"`
}

// IsZero reports whether no recurrence rule is configured.
func (v *Validity) IsZero() bool {
	return v == nil || (len(v.DaysOfWeek) == 0 && len(v.Daily) == 0 && v.Timeframe == nil)
}

// RedemptionLimits caps how often a voucher may be redeemed. Nil means unlimited.
type RedemptionLimits struct {
	Quantity         *int `json:"quantity,omitempty"`
	PerCustomer      *int `json:"per_customer,omitempty"`
	RedeemedQuantity int  `json:"redeemed_quantity"`
}

// Category tags vouchers for eligibility filtering and stacking accounting.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Hierarchy int    `json:"hierarchy,omitempty"`
}

// Token returns the lowercase name used for exclusive/joint membership tests.
func (c Category) Token() string {
	return strings.ToLower(strings.TrimSpace(c.Name))
}

// Voucher is the aggregate the engine validates.
type Voucher struct {
	ID             string                     `json:"id"`
	TenantID       string                     `json:"tenant_id"`
	Code           string                     `json:"code"`
	CampaignID     string                     `json:"campaign_id,omitempty"`
	Type           VoucherType                `json:"type"`
	Discount       *Discount                  `json:"discount,omitempty"`
	Gift           *Gift                      `json:"gift,omitempty"`
	LoyaltyCard    *LoyaltyCard               `json:"loyalty_card,omitempty"`
	Active         bool                       `json:"active"`
	StartDate      *time.Time                 `json:"start_date,omitempty"`
	ExpirationDate *time.Time                 `json:"expiration_date,omitempty"`
	Validity       *Validity                  `json:"validity,omitempty"`
	HolderID       string                     `json:"holder_id,omitempty"`
	Redemption     RedemptionLimits           `json:"redemption"`
	Categories     []Category                 `json:"categories"`
	Assignments    []ValidationRuleAssignment `json:"validation_rules_assignments,omitempty"`
	Metadata       map[string]any             `json:"metadata,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// CategoryIDs returns the ids of the voucher's categories.
func (v *Voucher) CategoryIDs() []string {
	ids := make([]string, 0, len(v.Categories))
	for _, c := range v.Categories {
		ids = append(ids, c.ID)
	}
	return ids
}

// ValidVoucherTypes returns the set of valid voucher types.
func ValidVoucherTypes() []VoucherType {
	return []VoucherType{VoucherTypeDiscount, VoucherTypeGift, VoucherTypeLoyaltyCard}
}

// IsValidDiscountType checks whether t is a known discount type.
func IsValidDiscountType(t DiscountType) bool {
	switch t {
	case DiscountPercent, DiscountAmount, DiscountFixed, DiscountUnit:
		return true
	default:
		return false
	}
}
