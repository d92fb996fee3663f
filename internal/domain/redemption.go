package domain

import "time"

// Redemption records one committed use of a voucher.
type Redemption struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	VoucherID  string    `json:"voucher_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	Amount     int64     `json:"amount"`
	TrackingID string    `json:"tracking_id,omitempty"`
	SessionKey string    `json:"session_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RedemptionResult is the outcome of a redeem call for one redeemable.
type RedemptionResult struct {
	Kind       RedeemableKind `json:"kind"`
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Redemption *Redemption    `json:"redemption,omitempty"`
	Error      *OutcomeError  `json:"error,omitempty"`
}

// Redemption result statuses.
const (
	RedemptionSucceeded = "SUCCEEDED"
	RedemptionFailed    = "FAILED"
)
