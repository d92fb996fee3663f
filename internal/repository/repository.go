package repository

import (
	"context"
	"errors"
	"time"

	"github.com/utafrali/redeemables/internal/domain"
)

// Errors returned by RedemptionRepository.Commit when a limit would be exceeded.
var (
	ErrQuantityExceeded    = errors.New("redemption quantity limit exceeded")
	ErrPerCustomerExceeded = errors.New("redemption per-customer limit exceeded")
)

// VoucherFilter narrows voucher pool listings.
type VoucherFilter struct {
	// CreatedBefore keeps only vouchers created strictly before this instant.
	CreatedBefore *time.Time
	Limit         int
}

// VoucherRepository defines the read operations the engine needs on vouchers.
type VoucherRepository interface {
	// GetByCode retrieves a voucher, with its categories and rule assignments,
	// by code or id within a tenant.
	GetByCode(ctx context.Context, tenantID, code string) (*domain.Voucher, error)

	// ListActive returns the tenant's active vouchers, newest first.
	ListActive(ctx context.Context, tenantID string, filter VoucherFilter) ([]domain.Voucher, error)

	// ListHeldBy returns the active vouchers held by a customer, newest first.
	ListHeldBy(ctx context.Context, tenantID, customerID string, filter VoucherFilter) ([]domain.Voucher, error)
}

// RedemptionRepository defines redemption counters and the commit path.
type RedemptionRepository interface {
	// CountTotal returns how often the voucher has been redeemed.
	CountTotal(ctx context.Context, tenantID, voucherID string) (int, error)

	// CountForCustomer returns how often the customer has redeemed the voucher.
	CountForCustomer(ctx context.Context, tenantID, voucherID, customerID string) (int, error)

	// Commit atomically checks the limits and records the redemption. It
	// returns ErrQuantityExceeded or ErrPerCustomerExceeded when a limit is hit.
	Commit(ctx context.Context, r *domain.Redemption, limits domain.RedemptionLimits) error
}

// ValidationRuleRepository defines lookups of validation rules.
type ValidationRuleRepository interface {
	// GetByIDs returns the rules with the given ids. Missing ids are simply
	// absent from the result.
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]domain.ValidationRule, error)
}

// SessionLockRepository defines persistence of session locks.
type SessionLockRepository interface {
	// ReplaceLocks deletes every lock under the key and inserts locks, as one
	// atomic unit.
	ReplaceLocks(ctx context.Context, tenantID, key string, locks []domain.SessionLock) error

	// DeleteLocks removes every lock under the key.
	DeleteLocks(ctx context.Context, tenantID, key string) error

	// GetLocks returns the locks under the key, expired ones included.
	GetLocks(ctx context.Context, tenantID, key string) ([]domain.SessionLock, error)
}
