package qualification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/eligibility"
	"github.com/utafrali/redeemables/internal/repository"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// --- Mocks ---

type mockPool struct {
	mock.Mock
}

func (m *mockPool) ListActive(ctx context.Context, tenantID string, filter repository.VoucherFilter) ([]domain.Voucher, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Voucher), args.Error(1)
}

func (m *mockPool) ListHeldBy(ctx context.Context, tenantID, customerID string, filter repository.VoucherFilter) ([]domain.Voucher, error) {
	args := m.Called(ctx, tenantID, customerID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Voucher), args.Error(1)
}

type zeroCounters struct{}

func (zeroCounters) CountTotal(context.Context, string, string) (int, error) { return 0, nil }

func (zeroCounters) CountForCustomer(context.Context, string, string, string) (int, error) {
	return 0, nil
}

type staticRules []domain.ValidationRule

func (s staticRules) GetByIDs(context.Context, string, []string) ([]domain.ValidationRule, error) {
	return s, nil
}

// --- Helpers ---

const tenant = "tnt_1"

var base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestSearch(rules staticRules) (*Search, *mockPool) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	pool := new(mockPool)
	checker := eligibility.NewChecker(zeroCounters{}, rules, logger)
	return NewSearch(pool, checker, logger), pool
}

// voucherAt builds an active amount voucher created hoursAfter the base time.
func voucherAt(code string, hoursAfter int) domain.Voucher {
	return domain.Voucher{
		ID:        "v_" + code,
		Code:      code,
		Type:      domain.VoucherTypeDiscount,
		Discount:  &domain.Discount{Type: domain.DiscountAmount, AmountOff: 100},
		Active:    true,
		CreatedAt: base.Add(time.Duration(hoursAfter) * time.Hour),
	}
}

func codes(p *domain.QualificationPage) []string {
	out := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		out = append(out, it.ID)
	}
	return out
}

// --- Tests ---

func TestQualify_NewestFirstWithPagination(t *testing.T) {
	s, pool := newTestSearch(nil)
	vouchers := []domain.Voucher{voucherAt("A", 1), voucherAt("C", 3), voucherAt("B", 2), voucherAt("D", 4)}
	pool.On("ListActive", mock.Anything, tenant, mock.Anything).Return(vouchers, nil)

	page, err := s.Qualify(context.Background(), tenant, domain.QualificationRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "C"}, codes(page))
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, base.Add(3*time.Hour), *page.NextCursor)

	page, err = s.Qualify(context.Background(), tenant, domain.QualificationRequest{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, codes(page))
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)
}

func TestQualify_SkipsIneligible(t *testing.T) {
	s, pool := newTestSearch(nil)
	inactive := voucherAt("OFF", 5)
	inactive.Active = false
	pool.On("ListActive", mock.Anything, tenant, mock.Anything).Return([]domain.Voucher{inactive, voucherAt("ON", 1)}, nil)

	page, err := s.Qualify(context.Background(), tenant, domain.QualificationRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ON"}, codes(page))
	assert.False(t, page.HasMore)
}

func TestQualify_HasMoreOnlyCountsValidCandidates(t *testing.T) {
	s, pool := newTestSearch(nil)
	expired := voucherAt("OLD", 1)
	expired.ExpirationDate = &base
	pool.On("ListActive", mock.Anything, tenant, mock.Anything).Return([]domain.Voucher{voucherAt("NEW", 9), expired}, nil)

	page, err := s.Qualify(context.Background(), tenant, domain.QualificationRequest{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW"}, codes(page))
	assert.False(t, page.HasMore)
}

func TestQualify_CustomerWallet(t *testing.T) {
	s, pool := newTestSearch(nil)
	held := voucherAt("MINE", 1)
	held.HolderID = "cust_a"
	pool.On("ListHeldBy", mock.Anything, tenant, "cust_a", mock.Anything).Return([]domain.Voucher{held}, nil)

	page, err := s.Qualify(context.Background(), tenant, domain.QualificationRequest{
		Scenario: domain.ScenarioCustomerWallet,
		Customer: &domain.Customer{ID: "cust_a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"MINE"}, codes(page))
	pool.AssertNotCalled(t, "ListActive", mock.Anything, mock.Anything, mock.Anything)

	_, err = s.Qualify(context.Background(), tenant, domain.QualificationRequest{Scenario: domain.ScenarioCustomerWallet})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestQualify_AudienceOnlyIgnoresOrderRules(t *testing.T) {
	rules := staticRules{{
		ID: "val_1",
		Rules: map[string]domain.RuleCondition{
			"1": {Fact: "order.amount", Conditions: map[string]json.RawMessage{"$gte": json.RawMessage(`100000`)}},
		},
	}}
	s, pool := newTestSearch(rules)
	v := voucherAt("BIGSPENDER", 1)
	v.Assignments = []domain.ValidationRuleAssignment{{RuleID: "val_1"}}
	pool.On("ListActive", mock.Anything, tenant, mock.Anything).Return([]domain.Voucher{v}, nil)

	order := &domain.Order{Amount: 1000}
	page, err := s.Qualify(context.Background(), tenant, domain.QualificationRequest{Order: order})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = s.Qualify(context.Background(), tenant, domain.QualificationRequest{Scenario: domain.ScenarioAudienceOnly, Order: order})
	require.NoError(t, err)
	assert.Equal(t, []string{"BIGSPENDER"}, codes(page))
}

func TestQualify_FieldFilters(t *testing.T) {
	a := voucherAt("A", 3)
	a.CampaignID = "camp_1"
	a.Categories = []domain.Category{{ID: "cat_1", Name: "Electronics"}}
	b := voucherAt("B", 2)
	b.CampaignID = "camp_2"
	c := voucherAt("C", 1)
	c.Type = domain.VoucherTypeGift
	c.Discount = nil
	c.Gift = &domain.Gift{Balance: 500}

	tests := []struct {
		name    string
		filters domain.QualificationFilters
		want    []string
	}{
		{"no filters", domain.QualificationFilters{}, []string{"A", "B", "C"}},
		{"campaign is", domain.QualificationFilters{Fields: []domain.FieldFilter{
			{Field: domain.FilterCampaignID, Conditions: map[string]any{"$is": "camp_1"}},
		}}, []string{"A"}},
		{"voucher type not in", domain.QualificationFilters{Fields: []domain.FieldFilter{
			{Field: domain.FilterVoucherType, Conditions: map[string]any{"$not_in": []any{"GIFT_VOUCHER"}}},
		}}, []string{"A", "B"}},
		{"category by name", domain.QualificationFilters{Fields: []domain.FieldFilter{
			{Field: domain.FilterCategory, Conditions: map[string]any{"$in": []any{"electronics"}}},
		}}, []string{"A"}},
		{"and junction", domain.QualificationFilters{Fields: []domain.FieldFilter{
			{Field: domain.FilterCode, Conditions: map[string]any{"$in": []any{"A", "B"}}},
			{Field: domain.FilterCampaignID, Conditions: map[string]any{"$is_not": "camp_1"}},
		}}, []string{"B"}},
		{"or junction", domain.QualificationFilters{Junction: domain.JunctionOr, Fields: []domain.FieldFilter{
			{Field: domain.FilterCode, Conditions: map[string]any{"$is": "C"}},
			{Field: domain.FilterCampaignID, Conditions: map[string]any{"$is": "camp_1"}},
		}}, []string{"A", "C"}},
		{"resource type", domain.QualificationFilters{Fields: []domain.FieldFilter{
			{Field: domain.FilterResourceType, Conditions: map[string]any{"$is": "gift_card"}},
		}}, []string{"C"}},
		{"resource id", domain.QualificationFilters{Fields: []domain.FieldFilter{
			{Field: domain.FilterResourceID, Conditions: map[string]any{"$is": "v_B"}},
		}}, []string{"B"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, pool := newTestSearch(nil)
			pool.On("ListActive", mock.Anything, tenant, mock.Anything).Return([]domain.Voucher{a, b, c}, nil)

			page, err := s.Qualify(context.Background(), tenant, domain.QualificationRequest{Filters: tc.filters, Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, tc.want, codes(page))
		})
	}
}

func TestQualify_RejectsBadRequests(t *testing.T) {
	s, _ := newTestSearch(nil)
	tests := []domain.QualificationRequest{
		{Scenario: "EVERYTHING"},
		{Limit: -1},
		{Filters: domain.QualificationFilters{Junction: "XOR"}},
		{Filters: domain.QualificationFilters{Fields: []domain.FieldFilter{{Field: "holder", Conditions: map[string]any{"$is": "x"}}}}},
		{Filters: domain.QualificationFilters{Fields: []domain.FieldFilter{{Field: "code", Conditions: map[string]any{"$lt": 3}}}}},
		{Filters: domain.QualificationFilters{Fields: []domain.FieldFilter{{Field: "code"}}}},
	}
	for _, req := range tests {
		_, err := s.Qualify(context.Background(), tenant, req)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
}

func TestQualify_LimitIsCapped(t *testing.T) {
	s, pool := newTestSearch(nil)
	vouchers := make([]domain.Voucher, 0, 60)
	for i := 0; i < 60; i++ {
		vouchers = append(vouchers, voucherAt(string(rune('A'+i)), i))
	}
	pool.On("ListActive", mock.Anything, tenant, mock.Anything).Return(vouchers, nil)

	page, err := s.Qualify(context.Background(), tenant, domain.QualificationRequest{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, page.Items, domain.MaxQualificationLimit)
	assert.True(t, page.HasMore)

	page, err = s.Qualify(context.Background(), tenant, domain.QualificationRequest{})
	require.NoError(t, err)
	assert.Len(t, page.Items, domain.DefaultQualificationLimit)
}

func TestQualify_PoolError(t *testing.T) {
	s, pool := newTestSearch(nil)
	pool.On("ListActive", mock.Anything, tenant, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := s.Qualify(context.Background(), tenant, domain.QualificationRequest{})
	assert.ErrorContains(t, err, "timeout")
}
