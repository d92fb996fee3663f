package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/redeemables/internal/domain"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// --- Mocks ---

type mockCounters struct {
	mock.Mock
}

func (m *mockCounters) CountTotal(ctx context.Context, tenantID, voucherID string) (int, error) {
	args := m.Called(ctx, tenantID, voucherID)
	return args.Int(0), args.Error(1)
}

func (m *mockCounters) CountForCustomer(ctx context.Context, tenantID, voucherID, customerID string) (int, error) {
	args := m.Called(ctx, tenantID, voucherID, customerID)
	return args.Int(0), args.Error(1)
}

type mockRules struct {
	mock.Mock
}

func (m *mockRules) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]domain.ValidationRule, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ValidationRule), args.Error(1)
}

// --- Test Helpers ---

const tenant = "tnt_1"

var now = time.Date(2025, 6, 4, 14, 30, 0, 0, time.UTC) // Wednesday

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestChecker() (*Checker, *mockCounters, *mockRules) {
	counters := new(mockCounters)
	rules := new(mockRules)
	c := NewChecker(counters, rules, newTestLogger())
	c.now = func() time.Time { return now }
	return c, counters, rules
}

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

func percentVoucher(pct int64) *domain.Voucher {
	return &domain.Voucher{
		ID:        "v_1",
		TenantID:  tenant,
		Code:      "SUMMER10",
		Type:      domain.VoucherTypeDiscount,
		Discount:  &domain.Discount{Type: domain.DiscountPercent, PercentOff: decimal.NewFromInt(pct)},
		Active:    true,
		CreatedAt: now.Add(-72 * time.Hour),
	}
}

func input(v *domain.Voucher) CheckInput {
	return CheckInput{
		TenantID: tenant,
		Voucher:  v,
		Customer: &domain.Customer{ID: "cust_a"},
		Order:    &domain.Order{Amount: 1000},
	}
}

func requireCode(t *testing.T, out *domain.ValidationOutcome, code string) {
	t.Helper()
	require.NotNil(t, out)
	assert.False(t, out.Valid)
	assert.Equal(t, code, out.Code)
	require.NotNil(t, out.Error)
	assert.Equal(t, code, out.Error.Code)
}

// --- Tests ---

func TestCheck_ValidPercentDiscount(t *testing.T) {
	c, _, _ := newTestChecker()

	out, err := c.Check(context.Background(), input(percentVoucher(10)))
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Equal(t, int64(100), out.Discount)
	require.NotNil(t, out.Order)
	assert.Equal(t, int64(900), out.Order.TotalAmount)
}

func TestCheck_VoucherNotFound(t *testing.T) {
	c, _, _ := newTestChecker()
	out, err := c.Check(context.Background(), CheckInput{TenantID: tenant})
	require.NoError(t, err)
	requireCode(t, out, domain.CodeVoucherNotFound)
}

func TestCheck_ActivationWindow(t *testing.T) {
	c, _, _ := newTestChecker()

	v := percentVoucher(10)
	v.Active = false
	out, _ := c.Check(context.Background(), input(v))
	requireCode(t, out, domain.CodeVoucherInactive)

	v = percentVoucher(10)
	v.StartDate = timePtr(now.Add(time.Hour))
	out, _ = c.Check(context.Background(), input(v))
	requireCode(t, out, domain.CodeVoucherInactive)

	v = percentVoucher(10)
	v.ExpirationDate = timePtr(now.Add(-time.Second))
	out, _ = c.Check(context.Background(), input(v))
	requireCode(t, out, domain.CodeVoucherExpired)
}

func TestCheck_InactiveBeatsExpired(t *testing.T) {
	c, _, _ := newTestChecker()
	v := percentVoucher(10)
	v.Active = false
	v.ExpirationDate = timePtr(now.Add(-time.Hour))
	out, _ := c.Check(context.Background(), input(v))
	requireCode(t, out, domain.CodeVoucherInactive)
}

func TestCheck_Recurrence(t *testing.T) {
	c, _, _ := newTestChecker()

	v := percentVoucher(10)
	v.Validity = &domain.Validity{DaysOfWeek: []time.Weekday{time.Monday}}
	out, _ := c.Check(context.Background(), input(v))
	requireCode(t, out, domain.CodeVoucherInactive)

	v.Validity = &domain.Validity{DaysOfWeek: []time.Weekday{time.Wednesday}}
	out, _ = c.Check(context.Background(), input(v))
	assert.True(t, out.Valid)
}

func TestCheck_HolderAssignment(t *testing.T) {
	c, _, _ := newTestChecker()
	v := percentVoucher(10)
	v.HolderID = "cust_a"

	in := input(v)
	in.Customer = &domain.Customer{ID: "cust_b"}
	out, _ := c.Check(context.Background(), in)
	requireCode(t, out, domain.CodeVoucherNotAssigned)

	in.Customer = nil
	out, _ = c.Check(context.Background(), in)
	requireCode(t, out, domain.CodeVoucherNotAssigned)

	in.Customer = &domain.Customer{ID: "cust_a"}
	out, err := c.Check(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, out.Valid)
}

func TestCheck_QuantityLimit(t *testing.T) {
	c, counters, _ := newTestChecker()
	v := percentVoucher(10)
	v.Redemption.Quantity = intPtr(2)

	counters.On("CountTotal", mock.Anything, tenant, "v_1").Return(2, nil).Once()
	out, err := c.Check(context.Background(), input(v))
	require.NoError(t, err)
	requireCode(t, out, domain.CodeRedemptionLimitExceeded)

	counters.On("CountTotal", mock.Anything, tenant, "v_1").Return(1, nil).Once()
	out, err = c.Check(context.Background(), input(v))
	require.NoError(t, err)
	assert.True(t, out.Valid)
	counters.AssertExpectations(t)
}

func TestCheck_PerCustomerLimit(t *testing.T) {
	c, counters, _ := newTestChecker()
	v := percentVoucher(10)
	v.Redemption.PerCustomer = intPtr(1)

	counters.On("CountForCustomer", mock.Anything, tenant, "v_1", "cust_a").Return(1, nil)
	out, err := c.Check(context.Background(), input(v))
	require.NoError(t, err)
	requireCode(t, out, domain.CodePerCustomerLimitExceeded)
	assert.Contains(t, out.Error.Message, "only once")
}

func TestCheck_PerCustomerMessagePluralizes(t *testing.T) {
	assert.Equal(t, "Customer may redeem this voucher only once", perCustomerMessage(1))
	assert.Equal(t, "Customer may redeem this voucher 3 times", perCustomerMessage(3))
}

func TestCheck_PerCustomerLimitRequiresCustomer(t *testing.T) {
	c, _, _ := newTestChecker()
	v := percentVoucher(10)
	v.Redemption.PerCustomer = intPtr(1)

	in := input(v)
	in.Customer = nil
	out, err := c.Check(context.Background(), in)
	require.NoError(t, err)
	requireCode(t, out, domain.CodeCustomerRequired)
}

func TestCheck_CounterErrorIsFatal(t *testing.T) {
	c, counters, _ := newTestChecker()
	v := percentVoucher(10)
	v.Redemption.Quantity = intPtr(5)
	counters.On("CountTotal", mock.Anything, tenant, "v_1").Return(0, errors.New("connection refused"))

	out, err := c.Check(context.Background(), input(v))
	assert.Nil(t, out)
	assert.ErrorContains(t, err, "connection refused")
}

func TestCheck_RuleFailureUsesCustomError(t *testing.T) {
	c, _, rules := newTestChecker()
	v := percentVoucher(10)
	v.Assignments = []domain.ValidationRuleAssignment{{ID: "asgm_1", RuleID: "val_1"}}

	rules.On("GetByIDs", mock.Anything, tenant, []string{"val_1"}).Return([]domain.ValidationRule{{
		ID: "val_1",
		Rules: map[string]domain.RuleCondition{
			"1": {Fact: "order.amount", Conditions: map[string]json.RawMessage{"$gte": json.RawMessage(`5000`)}},
		},
		Error: &domain.RuleError{Code: "min_basket", Message: "Basket below 50.00"},
	}}, nil)

	out, err := c.Check(context.Background(), input(v))
	require.NoError(t, err)
	requireCode(t, out, "min_basket")
	assert.Equal(t, "Basket below 50.00", out.Error.Message)
}

func TestCheck_RuleFailureDefaultCode(t *testing.T) {
	c, _, rules := newTestChecker()
	v := percentVoucher(10)
	v.Assignments = []domain.ValidationRuleAssignment{{RuleID: "val_1"}}

	rules.On("GetByIDs", mock.Anything, tenant, []string{"val_1"}).Return([]domain.ValidationRule{{
		ID: "val_1",
		Rules: map[string]domain.RuleCondition{
			"1": {Fact: "unknown.fact", Conditions: map[string]json.RawMessage{"$eq": json.RawMessage(`1`)}},
		},
	}}, nil)

	out, err := c.Check(context.Background(), input(v))
	require.NoError(t, err)
	requireCode(t, out, domain.CodeRuleFailed)
}

func TestCheck_RuleReadsRedemptionCounter(t *testing.T) {
	c, counters, rules := newTestChecker()
	v := percentVoucher(10)
	v.Redemption.Quantity = intPtr(100)
	v.Assignments = []domain.ValidationRuleAssignment{{RuleID: "val_1"}}

	// The quantity check and the rule share a single counter lookup.
	counters.On("CountTotal", mock.Anything, tenant, "v_1").Return(3, nil).Once()
	rules.On("GetByIDs", mock.Anything, tenant, []string{"val_1"}).Return([]domain.ValidationRule{{
		ID: "val_1",
		Rules: map[string]domain.RuleCondition{
			"1": {Fact: "redemptions.count.total", Conditions: map[string]json.RawMessage{"$lt": json.RawMessage(`[5]`)}},
		},
	}}, nil)

	out, err := c.Check(context.Background(), input(v))
	require.NoError(t, err)
	assert.True(t, out.Valid)
	counters.AssertExpectations(t)
}

func TestCheck_MissingRuleIsFatal(t *testing.T) {
	c, _, rules := newTestChecker()
	v := percentVoucher(10)
	v.Assignments = []domain.ValidationRuleAssignment{{RuleID: "val_missing"}}
	rules.On("GetByIDs", mock.Anything, tenant, []string{"val_missing"}).Return([]domain.ValidationRule{}, nil)

	out, err := c.Check(context.Background(), input(v))
	assert.Nil(t, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheck_AudienceOnlySkipsOrderRules(t *testing.T) {
	c, _, rules := newTestChecker()
	v := percentVoucher(10)
	v.Assignments = []domain.ValidationRuleAssignment{{RuleID: "val_1"}}
	rules.On("GetByIDs", mock.Anything, tenant, []string{"val_1"}).Return([]domain.ValidationRule{{
		ID: "val_1",
		Rules: map[string]domain.RuleCondition{
			"1": {Fact: "order.amount", Conditions: map[string]json.RawMessage{"$gte": json.RawMessage(`5000`)}},
		},
	}}, nil)

	in := input(v)
	in.AudienceOnly = true
	out, err := c.Check(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, out.Valid)
}

func TestCheck_CategoryApplicability(t *testing.T) {
	c, _, _ := newTestChecker()
	v := percentVoucher(10)
	v.Categories = []domain.Category{{ID: "cat_1", Name: "Electronics"}}

	// A scoped request naming no categories cannot match a categorised voucher.
	in := input(v)
	in.ScopeCategories = true
	out, _ := c.Check(context.Background(), in)
	requireCode(t, out, domain.CodeVoucherCategoryMismatch)

	in.Categories = []string{"cat_2"}
	out, _ = c.Check(context.Background(), in)
	requireCode(t, out, domain.CodeVoucherCategoryMismatch)

	in.Categories = []string{"cat_1"}
	out, _ = c.Check(context.Background(), in)
	assert.True(t, out.Valid)

	in.Categories = []string{"ELECTRONICS"}
	out, _ = c.Check(context.Background(), in)
	assert.True(t, out.Valid)

	// Unscoped checks, as stack members without request categories run, skip it.
	in.ScopeCategories = false
	in.Categories = nil
	out, _ = c.Check(context.Background(), in)
	assert.True(t, out.Valid)

	in.Categories = []string{"cat_2"}
	out, _ = c.Check(context.Background(), in)
	assert.True(t, out.Valid)
}

func TestCheck_GiftCardCredits(t *testing.T) {
	c, _, _ := newTestChecker()
	v := &domain.Voucher{ID: "gc_1", Type: domain.VoucherTypeGift, Gift: &domain.Gift{Amount: 5000, Balance: 300}, Active: true}

	out, err := c.Check(context.Background(), input(v))
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Zero(t, out.Discount)
	assert.Equal(t, int64(300), out.Order.GiftCreditsAmount)
	assert.Equal(t, int64(700), out.Order.TotalAmount)
}
