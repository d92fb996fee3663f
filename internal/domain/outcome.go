package domain

// Eligibility error codes. These are part of the public contract.
const (
	CodeVoucherNotFound          = "voucher_not_found"
	CodeVoucherInactive          = "voucher_inactive"
	CodeVoucherExpired           = "voucher_expired"
	CodeVoucherNotAssigned       = "voucher_not_assigned"
	CodeRedemptionLimitExceeded  = "redemption_limit_exceeded"
	CodePerCustomerLimitExceeded = "redemption_limit_per_customer_exceeded"
	CodeCustomerRequired         = "customer_required"
	CodeRuleFailed               = "rule_failed"
	CodeVoucherCategoryMismatch  = "voucher_category_mismatch"
	CodeUnsupportedRedeemable    = "unsupported_redeemable"
	CodeInvalidRedeemableType    = "invalid_redeemable_type"
)

// Skip reason keys produced by the stacking pass.
const (
	SkipPrecedingValidationFailed    = "preceding_validation_failed"
	SkipPromotionNotSupported        = "promotion_not_supported"
	SkipExclusionRulesNotMet         = "exclusion_rules_not_met"
	SkipExclusiveLimitExceeded       = "applicable_exclusive_redeemables_limit_exceeded"
	SkipExclusivePerCategoryExceeded = "applicable_exclusive_redeemables_per_category_limit_exceeded"
	SkipPerCategoryLimitExceeded     = "applicable_redeemables_per_category_limit_exceeded"
	SkipApplicableLimitExceeded      = "applicable_redeemables_limit_exceeded"
)

// ValidationOutcome is the result of a single-voucher eligibility check.
type ValidationOutcome struct {
	Valid    bool          `json:"valid"`
	Code     string        `json:"code,omitempty"`
	Voucher  *Voucher      `json:"voucher,omitempty"`
	Discount int64         `json:"discount_amount"`
	Order    *OrderSummary `json:"order,omitempty"`
	Error    *OutcomeError `json:"error,omitempty"`
}

// Fail builds an invalid outcome carrying code and message.
func Fail(v *Voucher, code, message string) *ValidationOutcome {
	return &ValidationOutcome{
		Valid:   false,
		Code:    code,
		Voucher: v,
		Error:   &OutcomeError{Code: code, Message: message},
	}
}
