// Package eligibility decides whether a single voucher may be applied for a
// customer and order.
package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/redeemables/internal/discount"
	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/rules"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// Counters supplies redemption counters.
type Counters interface {
	CountTotal(ctx context.Context, tenantID, voucherID string) (int, error)
	CountForCustomer(ctx context.Context, tenantID, voucherID, customerID string) (int, error)
}

// RuleSource supplies validation rules by id.
type RuleSource interface {
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]domain.ValidationRule, error)
}

// CheckInput holds everything one eligibility check looks at.
type CheckInput struct {
	TenantID string
	Voucher  *domain.Voucher
	Customer *domain.Customer
	Order    *domain.Order

	// Categories are the category ids or names the request is scoped to.
	Categories []string
	// ScopeCategories enables the category applicability check. When set, a
	// voucher with categories fails against a request that names none.
	ScopeCategories bool
	// AudienceOnly skips rule conditions that read the order.
	AudienceOnly bool
	// Now overrides the evaluation instant; zero means the checker's clock.
	Now time.Time
}

func (in *CheckInput) customerID() string {
	return in.Customer.Identity()
}

// Checker runs the ordered eligibility checks.
type Checker struct {
	counters Counters
	rules    RuleSource
	logger   *slog.Logger
	now      func() time.Time
}

// NewChecker creates a new eligibility checker.
func NewChecker(counters Counters, rules RuleSource, logger *slog.Logger) *Checker {
	return &Checker{
		counters: counters,
		rules:    rules,
		logger:   logger,
		now:      time.Now,
	}
}

// Check runs the checks in order and returns the first failure as an invalid
// outcome. Errors are reserved for lookup failures and missing rules.
func (c *Checker) Check(ctx context.Context, in CheckInput) (*domain.ValidationOutcome, error) {
	v := in.Voucher
	if v == nil {
		return domain.Fail(nil, domain.CodeVoucherNotFound, "Voucher not found"), nil
	}

	now := in.Now
	if now.IsZero() {
		now = c.now()
	}

	if !v.Active {
		return c.fail(ctx, v, domain.CodeVoucherInactive, "Voucher is disabled"), nil
	}
	if v.StartDate != nil && now.Before(*v.StartDate) {
		return c.fail(ctx, v, domain.CodeVoucherInactive, "Voucher is not active yet"), nil
	}
	if v.ExpirationDate != nil && now.After(*v.ExpirationDate) {
		return c.fail(ctx, v, domain.CodeVoucherExpired, "Voucher has expired"), nil
	}
	if !withinRecurrence(v, now) {
		return c.fail(ctx, v, domain.CodeVoucherInactive, "Voucher is outside its validity window"), nil
	}
	if v.HolderID != "" && !holds(in.Customer, v.HolderID) {
		return c.fail(ctx, v, domain.CodeVoucherNotAssigned, "Voucher is assigned to another customer"), nil
	}

	res := newFactResolver(ctx, c.counters, &in)

	if limit := v.Redemption.Quantity; limit != nil {
		n, err := res.totalCount()
		if err != nil {
			return nil, err
		}
		if n >= *limit {
			return c.fail(ctx, v, domain.CodeRedemptionLimitExceeded, "Voucher redemption limit exceeded"), nil
		}
	}

	if limit := v.Redemption.PerCustomer; limit != nil {
		if in.customerID() == "" {
			return c.fail(ctx, v, domain.CodeCustomerRequired, "Customer is required to redeem this voucher"), nil
		}
		n, err := res.customerCount()
		if err != nil {
			return nil, err
		}
		if n >= *limit {
			return c.fail(ctx, v, domain.CodePerCustomerLimitExceeded, perCustomerMessage(*limit)), nil
		}
	}

	if out, err := c.checkRules(ctx, &in, res); err != nil || out != nil {
		return out, err
	}

	if in.ScopeCategories && len(v.Categories) > 0 && !matchesCategories(v.Categories, in.Categories) {
		return c.fail(ctx, v, domain.CodeVoucherCategoryMismatch, "Voucher does not apply to the requested categories"), nil
	}

	amount := discount.OrderAmount(in.Order)
	off := discount.Calculate(v, in.Order)
	var gift int64
	if v.Type == domain.VoucherTypeGift && v.Gift != nil {
		gift = discount.GiftCredits(v.Gift.Balance, amount-off)
	}
	summary := discount.Summarize(amount, off, gift)

	return &domain.ValidationOutcome{
		Valid:    true,
		Voucher:  v,
		Discount: off,
		Order:    &summary,
	}, nil
}

// checkRules evaluates every assigned rule in assignment order. It returns a
// failed outcome for the first unsatisfied rule, or nil when all pass.
func (c *Checker) checkRules(ctx context.Context, in *CheckInput, res *factResolver) (*domain.ValidationOutcome, error) {
	v := in.Voucher
	ids := ruleIDs(v.Assignments)
	if len(ids) == 0 {
		return nil, nil
	}

	stored, err := c.rules.GetByIDs(ctx, in.TenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get validation rules for voucher %s: %w", v.ID, err)
	}
	byID := make(map[string]*domain.ValidationRule, len(stored))
	for i := range stored {
		byID[stored[i].ID] = &stored[i]
	}

	for _, id := range ids {
		vr, ok := byID[id]
		if !ok {
			return nil, apperrors.NotFound("validation rule", id)
		}
		r := rules.Parse(vr)
		satisfied := r.Evaluate(res, rules.Options{AudienceOnly: in.AudienceOnly})
		if res.err != nil {
			return nil, res.err
		}
		if satisfied {
			continue
		}
		code, msg := domain.CodeRuleFailed, fmt.Sprintf("Validation rule %s is not satisfied", id)
		if r.Error != nil {
			if r.Error.Code != "" {
				code = r.Error.Code
			}
			if r.Error.Message != "" {
				msg = r.Error.Message
			}
		}
		return c.fail(ctx, v, code, msg), nil
	}
	return nil, nil
}

func (c *Checker) fail(ctx context.Context, v *domain.Voucher, code, message string) *domain.ValidationOutcome {
	c.logger.DebugContext(ctx, "voucher ineligible",
		slog.String("voucher_id", v.ID),
		slog.String("code", code),
	)
	return domain.Fail(v, code, message)
}

func holds(customer *domain.Customer, holderID string) bool {
	if customer == nil {
		return false
	}
	return customer.ID == holderID || (customer.SourceID != "" && customer.SourceID == holderID)
}

func perCustomerMessage(limit int) string {
	if limit == 1 {
		return "Customer may redeem this voucher only once"
	}
	return fmt.Sprintf("Customer may redeem this voucher %d times", limit)
}

func ruleIDs(assignments []domain.ValidationRuleAssignment) []string {
	seen := make(map[string]struct{}, len(assignments))
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.RuleID]; ok {
			continue
		}
		seen[a.RuleID] = struct{}{}
		ids = append(ids, a.RuleID)
	}
	return ids
}

// matchesCategories reports whether any voucher category matches a requested
// token by id or by lowercase name.
func matchesCategories(categories []domain.Category, requested []string) bool {
	for _, c := range categories {
		name := c.Token()
		for _, r := range requested {
			if r == c.ID || (name != "" && domain.Category{Name: r}.Token() == name) {
				return true
			}
		}
	}
	return false
}
