package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/repository"
	"github.com/utafrali/redeemables/pkg/database"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// voucherColumns selects a voucher with its categories and the rule
// assignments attached to it or to its campaign, aggregated as JSON.
const voucherColumns = `
		v.id, v.tenant_id, v.code, COALESCE(v.campaign_id, ''), v.type,
		v.discount, v.gift, v.loyalty_card, v.active, v.start_date,
		v.expiration_date, v.validity, COALESCE(v.holder_id, ''),
		v.redemption_quantity, v.redemption_per_customer, v.redeemed_quantity,
		v.metadata, v.created_at, v.updated_at,
		COALESCE((
			SELECT json_agg(json_build_object('id', c.id, 'name', c.name, 'hierarchy', c.hierarchy) ORDER BY c.hierarchy, c.id)
			FROM voucher_categories vc
			JOIN categories c ON c.id = vc.category_id
			WHERE vc.voucher_id = v.id
		), '[]'::json),
		COALESCE((
			SELECT json_agg(json_build_object(
				'id', a.id, 'rule_id', a.rule_id,
				'related_object_type', a.related_object_type,
				'related_object_id', a.related_object_id) ORDER BY a.id)
			FROM validation_rule_assignments a
			WHERE a.tenant_id = v.tenant_id
			  AND ((a.related_object_type = 'voucher' AND a.related_object_id = v.id)
			    OR (a.related_object_type = 'campaign' AND a.related_object_id = v.campaign_id))
		), '[]'::json)`

// VoucherRepository implements repository.VoucherRepository using PostgreSQL.
type VoucherRepository struct {
	db database.DBTX
}

// NewVoucherRepository creates a new PostgreSQL-backed voucher repository.
func NewVoucherRepository(db database.DBTX) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// GetByCode retrieves a voucher by code, falling back to its id.
func (r *VoucherRepository) GetByCode(ctx context.Context, tenantID, code string) (_ *domain.Voucher, err error) {
	query := `SELECT` + voucherColumns + `
		FROM vouchers v
		WHERE v.tenant_id = $1 AND (v.code = $2 OR v.id = $2)
		ORDER BY (v.code = $2) DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "GetVoucherByCode", query)
	defer func() { end(err) }()

	v, err := scanVoucher(r.db.QueryRow(ctx, query, tenantID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("voucher", code)
		}
		return nil, database.StoreError("postgres", fmt.Errorf("get voucher %s: %w", code, err))
	}
	return v, nil
}

// ListActive returns the tenant's active vouchers, newest first.
func (r *VoucherRepository) ListActive(ctx context.Context, tenantID string, filter repository.VoucherFilter) ([]domain.Voucher, error) {
	return r.list(ctx, "ListActiveVouchers", []string{"v.tenant_id = $1", "v.active"}, []any{tenantID}, filter)
}

// ListHeldBy returns the active vouchers held by customerID, newest first.
func (r *VoucherRepository) ListHeldBy(ctx context.Context, tenantID, customerID string, filter repository.VoucherFilter) ([]domain.Voucher, error) {
	return r.list(ctx, "ListHeldVouchers",
		[]string{"v.tenant_id = $1", "v.active", "v.holder_id = $2"},
		[]any{tenantID, customerID}, filter)
}

func (r *VoucherRepository) list(ctx context.Context, op string, conditions []string, args []any, filter repository.VoucherFilter) (_ []domain.Voucher, err error) {
	argIndex := len(args) + 1
	if filter.CreatedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("v.created_at < $%d", argIndex))
		args = append(args, *filter.CreatedBefore)
		argIndex++
	}

	query := `SELECT` + voucherColumns + `
		FROM vouchers v
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY v.created_at DESC, v.id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf("\n\t\tLIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.StoreError("postgres", fmt.Errorf("list vouchers: %w", err))
	}
	defer rows.Close()

	vouchers := []domain.Voucher{}
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voucher row: %w", err)
		}
		vouchers = append(vouchers, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voucher rows: %w", err)
	}
	return vouchers, nil
}

// scanVoucher scans one row selected with voucherColumns.
func scanVoucher(row pgx.Row) (*domain.Voucher, error) {
	var (
		v                                   domain.Voucher
		discountJSON, giftJSON, loyaltyJSON []byte
		validityJSON, metadataJSON          []byte
		categoriesJSON, assignmentsJSON     []byte
	)

	err := row.Scan(
		&v.ID,
		&v.TenantID,
		&v.Code,
		&v.CampaignID,
		&v.Type,
		&discountJSON,
		&giftJSON,
		&loyaltyJSON,
		&v.Active,
		&v.StartDate,
		&v.ExpirationDate,
		&validityJSON,
		&v.HolderID,
		&v.Redemption.Quantity,
		&v.Redemption.PerCustomer,
		&v.Redemption.RedeemedQuantity,
		&metadataJSON,
		&v.CreatedAt,
		&v.UpdatedAt,
		&categoriesJSON,
		&assignmentsJSON,
	)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"discount", discountJSON, &v.Discount},
		{"gift", giftJSON, &v.Gift},
		{"loyalty_card", loyaltyJSON, &v.LoyaltyCard},
		{"validity", validityJSON, &v.Validity},
		{"metadata", metadataJSON, &v.Metadata},
		{"categories", categoriesJSON, &v.Categories},
		{"validation_rules_assignments", assignmentsJSON, &v.Assignments},
	} {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", f.name, err)
		}
	}
	if v.Categories == nil {
		v.Categories = []domain.Category{}
	}

	return &v, nil
}
