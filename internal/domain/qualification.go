package domain

import "time"

// Scenario selects the candidate pool and validation mode of a qualification search.
type Scenario string

// Qualification scenarios.
const (
	ScenarioAll            Scenario = "ALL"
	ScenarioCustomerWallet Scenario = "CUSTOMER_WALLET"
	ScenarioAudienceOnly   Scenario = "AUDIENCE_ONLY"
)

// IsValidScenario checks whether s is a known scenario.
func IsValidScenario(s Scenario) bool {
	switch s {
	case ScenarioAll, ScenarioCustomerWallet, ScenarioAudienceOnly:
		return true
	default:
		return false
	}
}

// Qualification page size bounds.
const (
	DefaultQualificationLimit = 5
	MaxQualificationLimit     = 50
)

// Junction combines field filters.
type Junction string

// Filter junctions.
const (
	JunctionAnd Junction = "AND"
	JunctionOr  Junction = "OR"
)

// Filter fields supported by qualification search.
const (
	FilterCategory     = "category"
	FilterCampaignID   = "campaign_id"
	FilterVoucherType  = "voucher_type"
	FilterCode         = "code"
	FilterResourceID   = "resource_id"
	FilterResourceType = "resource_type"
)

// FieldFilter is one field condition, e.g. {"voucher_type": {"$in": [...]}}.
type FieldFilter struct {
	Field      string         `json:"field"`
	Conditions map[string]any `json:"conditions"`
}

// QualificationFilters is the set of field filters and how they combine.
type QualificationFilters struct {
	Junction Junction      `json:"junction,omitempty"`
	Fields   []FieldFilter `json:"fields,omitempty"`
}

// QualificationRequest describes a qualification search.
type QualificationRequest struct {
	Scenario Scenario             `json:"scenario"`
	Customer *Customer            `json:"customer,omitempty"`
	Order    *Order               `json:"order,omitempty"`
	Filters  QualificationFilters `json:"filters"`
	Cursor   *time.Time           `json:"starting_after,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
}

// QualifiedRedeemable is one voucher that would qualify.
type QualifiedRedeemable struct {
	Kind       RedeemableKind `json:"kind"`
	ID         string         `json:"id"`
	CampaignID string         `json:"campaign_id,omitempty"`
	Categories []Category     `json:"categories,omitempty"`
	Discount   int64          `json:"discount_amount"`
	Order      *OrderSummary  `json:"order,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// QualificationPage is one page of qualification results.
type QualificationPage struct {
	Items      []QualifiedRedeemable `json:"redeemables"`
	HasMore    bool                  `json:"has_more"`
	NextCursor *time.Time            `json:"more_starting_after,omitempty"`
}

// KindForVoucherType maps a voucher type back to the reference kind callers use.
func KindForVoucherType(t VoucherType) RedeemableKind {
	switch t {
	case VoucherTypeGift:
		return KindGiftCard
	case VoucherTypeLoyaltyCard:
		return KindLoyaltyCard
	default:
		return KindVoucher
	}
}
