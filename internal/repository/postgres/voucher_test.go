package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/repository"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

const tenant = "tnt_1"

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func voucherColumnNames() []string {
	return []string{
		"id", "tenant_id", "code", "campaign_id", "type",
		"discount", "gift", "loyalty_card", "active", "start_date",
		"expiration_date", "validity", "holder_id",
		"redemption_quantity", "redemption_per_customer", "redeemed_quantity",
		"metadata", "created_at", "updated_at", "categories", "assignments",
	}
}

func sampleVoucher() *domain.Voucher {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := created.Add(30 * 24 * time.Hour)
	quantity := 100
	return &domain.Voucher{
		ID:         "v_001",
		TenantID:   tenant,
		Code:       "SUMMER20",
		CampaignID: "camp_1",
		Type:       domain.VoucherTypeDiscount,
		Discount: &domain.Discount{
			Type:        domain.DiscountPercent,
			PercentOff:  decimal.RequireFromString("20"),
			AmountLimit: 5000,
		},
		Active:         true,
		ExpirationDate: &expires,
		Validity:       &domain.Validity{Timezone: "Europe/Istanbul", DaysOfWeek: []time.Weekday{time.Saturday, time.Sunday}},
		Redemption:     domain.RedemptionLimits{Quantity: &quantity, RedeemedQuantity: 7},
		Categories:     []domain.Category{{ID: "cat_1", Name: "Summer", Hierarchy: 1}},
		Assignments: []domain.ValidationRuleAssignment{
			{ID: "asgm_1", RuleID: "val_1", RelatedObject: "campaign", RelatedID: "camp_1"},
		},
		Metadata:  map[string]any{"channel": "web"},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func voucherRows(t *testing.T, vouchers ...*domain.Voucher) *pgxmock.Rows {
	rows := pgxmock.NewRows(voucherColumnNames())
	for _, v := range vouchers {
		var validity []byte
		if v.Validity != nil {
			validity = mustJSON(t, v.Validity)
		}
		var discount []byte
		if v.Discount != nil {
			discount = mustJSON(t, v.Discount)
		}
		var gift []byte
		if v.Gift != nil {
			gift = mustJSON(t, v.Gift)
		}
		rows.AddRow(
			v.ID, v.TenantID, v.Code, v.CampaignID, v.Type,
			discount, gift, []byte(nil), v.Active, v.StartDate,
			v.ExpirationDate, validity, v.HolderID,
			v.Redemption.Quantity, v.Redemption.PerCustomer, v.Redemption.RedeemedQuantity,
			mustJSON(t, v.Metadata), v.CreatedAt, v.UpdatedAt,
			mustJSON(t, v.Categories), mustJSON(t, v.Assignments),
		)
	}
	return rows
}

// ---------------------------------------------------------------------------
// GetByCode
// ---------------------------------------------------------------------------

func TestVoucherRepository_GetByCode_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewVoucherRepository(mock)
	v := sampleVoucher()

	mock.ExpectQuery("SELECT .+ FROM vouchers v WHERE v.tenant_id = ").
		WithArgs(tenant, v.Code).
		WillReturnRows(voucherRows(t, v))

	got, err := repo.GetByCode(context.Background(), tenant, v.Code)
	require.NoError(t, err)

	assert.Equal(t, v.ID, got.ID)
	assert.Equal(t, v.CampaignID, got.CampaignID)
	assert.Equal(t, domain.VoucherTypeDiscount, got.Type)
	require.NotNil(t, got.Discount)
	assert.True(t, got.Discount.PercentOff.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, int64(5000), got.Discount.AmountLimit)
	assert.Nil(t, got.Gift)
	assert.Nil(t, got.LoyaltyCard)
	assert.Equal(t, v.ExpirationDate, got.ExpirationDate)
	assert.Nil(t, got.StartDate)
	require.NotNil(t, got.Validity)
	assert.Equal(t, "Europe/Istanbul", got.Validity.Timezone)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, got.Validity.DaysOfWeek)
	require.NotNil(t, got.Redemption.Quantity)
	assert.Equal(t, 100, *got.Redemption.Quantity)
	assert.Nil(t, got.Redemption.PerCustomer)
	assert.Equal(t, 7, got.Redemption.RedeemedQuantity)
	assert.Equal(t, v.Categories, got.Categories)
	assert.Equal(t, v.Assignments, got.Assignments)
	assert.Equal(t, "web", got.Metadata["channel"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepository_GetByCode_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewVoucherRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM vouchers v").
		WithArgs(tenant, "NOPE").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByCode(context.Background(), tenant, "NOPE")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepository_GetByCode_QueryError(t *testing.T) {
	mock := newMock(t)
	repo := NewVoucherRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM vouchers v").
		WithArgs(tenant, "X").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByCode(context.Background(), tenant, "X")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "get voucher X")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepository_GetByCode_NoCategoriesIsEmptySlice(t *testing.T) {
	mock := newMock(t)
	repo := NewVoucherRepository(mock)
	v := sampleVoucher()
	v.Categories = nil
	v.Assignments = nil

	mock.ExpectQuery("SELECT .+ FROM vouchers v").
		WithArgs(tenant, v.Code).
		WillReturnRows(voucherRows(t, v))

	got, err := repo.GetByCode(context.Background(), tenant, v.Code)
	require.NoError(t, err)
	assert.NotNil(t, got.Categories)
	assert.Empty(t, got.Categories)
	assert.Empty(t, got.Assignments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ListActive / ListHeldBy
// ---------------------------------------------------------------------------

func TestVoucherRepository_ListActive_WithCursorAndLimit(t *testing.T) {
	mock := newMock(t)
	repo := NewVoucherRepository(mock)

	newer := sampleVoucher()
	older := sampleVoucher()
	older.ID, older.Code = "v_000", "SPRING10"
	older.CreatedAt = newer.CreatedAt.Add(-time.Hour)
	cursor := newer.CreatedAt.Add(time.Hour)

	mock.ExpectQuery("SELECT .+ FROM vouchers v WHERE v.tenant_id = .+ AND v.active AND v.created_at < .+ ORDER BY v.created_at DESC, v.id DESC LIMIT").
		WithArgs(tenant, cursor, 10).
		WillReturnRows(voucherRows(t, newer, older))

	got, err := repo.ListActive(context.Background(), tenant, repository.VoucherFilter{CreatedBefore: &cursor, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SUMMER20", got[0].Code)
	assert.Equal(t, "SPRING10", got[1].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepository_ListActive_EmptyIsNonNil(t *testing.T) {
	mock := newMock(t)
	repo := NewVoucherRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM vouchers v WHERE v.tenant_id = .+ AND v.active ORDER BY").
		WithArgs(tenant).
		WillReturnRows(pgxmock.NewRows(voucherColumnNames()))

	got, err := repo.ListActive(context.Background(), tenant, repository.VoucherFilter{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepository_ListHeldBy(t *testing.T) {
	mock := newMock(t)
	repo := NewVoucherRepository(mock)
	v := sampleVoucher()
	v.HolderID = "cust_1"

	mock.ExpectQuery("SELECT .+ FROM vouchers v WHERE .+ AND v.holder_id = ").
		WithArgs(tenant, "cust_1").
		WillReturnRows(voucherRows(t, v))

	got, err := repo.ListHeldBy(context.Background(), tenant, "cust_1", repository.VoucherFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cust_1", got[0].HolderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepository_ListActive_QueryError(t *testing.T) {
	mock := newMock(t)
	repo := NewVoucherRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM vouchers v").
		WithArgs(tenant).
		WillReturnError(errors.New("timeout"))

	_, err := repo.ListActive(context.Background(), tenant, repository.VoucherFilter{})
	assert.ErrorContains(t, err, "list vouchers")
	assert.NoError(t, mock.ExpectationsWereMet())
}
