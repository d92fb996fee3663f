package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/repository"
	"github.com/utafrali/redeemables/pkg/database"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// RedemptionRepository implements repository.RedemptionRepository using
// PostgreSQL.
type RedemptionRepository struct {
	db database.DBTX
}

// NewRedemptionRepository creates a new PostgreSQL-backed redemption repository.
func NewRedemptionRepository(db database.DBTX) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

// CountTotal returns the voucher's redeemed quantity.
func (r *RedemptionRepository) CountTotal(ctx context.Context, tenantID, voucherID string) (_ int, err error) {
	query := `SELECT redeemed_quantity FROM vouchers WHERE tenant_id = $1 AND id = $2`

	ctx, end := database.TraceQuery(ctx, "CountRedemptions", query)
	defer func() { end(err) }()

	var n int
	if err = r.db.QueryRow(ctx, query, tenantID, voucherID).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NotFound("voucher", voucherID)
		}
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return n, nil
}

// CountForCustomer returns how often customerID redeemed the voucher.
func (r *RedemptionRepository) CountForCustomer(ctx context.Context, tenantID, voucherID, customerID string) (_ int, err error) {
	query := `
		SELECT count(*) FROM redemptions
		WHERE tenant_id = $1 AND voucher_id = $2 AND customer_id = $3`

	ctx, end := database.TraceQuery(ctx, "CountCustomerRedemptions", query)
	defer func() { end(err) }()

	var n int
	if err = r.db.QueryRow(ctx, query, tenantID, voucherID, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count customer redemptions: %w", err)
	}
	return n, nil
}

// Commit increments the voucher's redeemed quantity and records the
// redemption in one transaction. The conditional UPDATE locks the voucher
// row, so the per-customer count that follows cannot race with another
// commit of the same voucher.
func (r *RedemptionRepository) Commit(ctx context.Context, red *domain.Redemption, limits domain.RedemptionLimits) (err error) {
	ctx, end := database.TraceQuery(ctx, "CommitRedemption", "redemption transaction")
	defer func() { end(err) }()

	return database.InTx(ctx, r.db, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE vouchers
			SET redeemed_quantity = redeemed_quantity + 1, updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2
			  AND ($3::int IS NULL OR redeemed_quantity < $3)`,
			red.TenantID, red.VoucherID, limits.Quantity,
		)
		if err != nil {
			return fmt.Errorf("increment redeemed quantity: %w", err)
		}
		if ct.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM vouchers WHERE tenant_id = $1 AND id = $2)`,
				red.TenantID, red.VoucherID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check voucher: %w", err)
			}
			if !exists {
				return apperrors.NotFound("voucher", red.VoucherID)
			}
			return repository.ErrQuantityExceeded
		}

		if limits.PerCustomer != nil && red.CustomerID != "" {
			var n int
			if err := tx.QueryRow(ctx, `
				SELECT count(*) FROM redemptions
				WHERE tenant_id = $1 AND voucher_id = $2 AND customer_id = $3`,
				red.TenantID, red.VoucherID, red.CustomerID,
			).Scan(&n); err != nil {
				return fmt.Errorf("count customer redemptions: %w", err)
			}
			if n >= *limits.PerCustomer {
				return repository.ErrPerCustomerExceeded
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO redemptions (
				id, tenant_id, voucher_id, customer_id, order_id, amount,
				tracking_id, session_key, created_at
			) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), $9)`,
			red.ID, red.TenantID, red.VoucherID, red.CustomerID, red.OrderID, red.Amount,
			red.TrackingID, red.SessionKey, red.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}
		return nil
	})
}
