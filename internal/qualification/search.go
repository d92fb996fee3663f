// Package qualification lists the vouchers that would qualify for a customer
// and order without applying any of them.
package qualification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/eligibility"
	"github.com/utafrali/redeemables/internal/repository"
	"github.com/utafrali/redeemables/internal/rules"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// Pool supplies candidate vouchers.
type Pool interface {
	ListActive(ctx context.Context, tenantID string, filter repository.VoucherFilter) ([]domain.Voucher, error)
	ListHeldBy(ctx context.Context, tenantID, customerID string, filter repository.VoucherFilter) ([]domain.Voucher, error)
}

// Eligibility checks a single voucher.
type Eligibility interface {
	Check(ctx context.Context, in eligibility.CheckInput) (*domain.ValidationOutcome, error)
}

// Search runs qualification queries.
type Search struct {
	pool    Pool
	checker Eligibility
	logger  *slog.Logger
}

// NewSearch creates a new qualification search.
func NewSearch(pool Pool, checker Eligibility, logger *slog.Logger) *Search {
	return &Search{pool: pool, checker: checker, logger: logger}
}

// Qualify returns one page of vouchers that pass the filters and the
// eligibility checks, newest first.
func (s *Search) Qualify(ctx context.Context, tenantID string, req domain.QualificationRequest) (*domain.QualificationPage, error) {
	if req.Scenario == "" {
		req.Scenario = domain.ScenarioAll
	}
	if !domain.IsValidScenario(req.Scenario) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported scenario %q", req.Scenario))
	}
	limit, err := pageLimit(req.Limit)
	if err != nil {
		return nil, err
	}
	match, err := compileFilters(req.Filters)
	if err != nil {
		return nil, err
	}

	candidates, err := s.candidates(ctx, tenantID, &req)
	if err != nil {
		return nil, err
	}

	page := &domain.QualificationPage{Items: []domain.QualifiedRedeemable{}}
	for i := range candidates {
		v := &candidates[i]
		if req.Cursor != nil && !v.CreatedAt.Before(*req.Cursor) {
			continue
		}
		if !match(v) {
			continue
		}

		out, err := s.checker.Check(ctx, eligibility.CheckInput{
			TenantID:     tenantID,
			Voucher:      v,
			Customer:     req.Customer,
			Order:        req.Order,
			AudienceOnly: req.Scenario == domain.ScenarioAudienceOnly,
		})
		if err != nil {
			return nil, err
		}
		if !out.Valid {
			continue
		}

		if len(page.Items) == limit {
			page.HasMore = true
			break
		}
		page.Items = append(page.Items, domain.QualifiedRedeemable{
			Kind:       domain.KindForVoucherType(v.Type),
			ID:         v.Code,
			CampaignID: v.CampaignID,
			Categories: v.Categories,
			Discount:   out.Discount,
			Order:      out.Order,
			CreatedAt:  v.CreatedAt,
		})
	}

	if page.HasMore {
		last := page.Items[len(page.Items)-1].CreatedAt
		page.NextCursor = &last
	}

	s.logger.DebugContext(ctx, "qualification completed",
		slog.String("scenario", string(req.Scenario)),
		slog.Int("candidates", len(candidates)),
		slog.Int("qualified", len(page.Items)),
		slog.Bool("has_more", page.HasMore),
	)
	return page, nil
}

// candidates fetches the scenario's pool and sorts it newest first.
func (s *Search) candidates(ctx context.Context, tenantID string, req *domain.QualificationRequest) ([]domain.Voucher, error) {
	filter := repository.VoucherFilter{CreatedBefore: req.Cursor}

	var (
		pool []domain.Voucher
		err  error
	)
	if req.Scenario == domain.ScenarioCustomerWallet {
		if req.Customer == nil || req.Customer.ID == "" {
			return nil, apperrors.InvalidInput("customer is required for the CUSTOMER_WALLET scenario")
		}
		pool, err = s.pool.ListHeldBy(ctx, tenantID, req.Customer.ID, filter)
	} else {
		pool, err = s.pool.ListActive(ctx, tenantID, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("list qualification candidates: %w", err)
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].CreatedAt.After(pool[j].CreatedAt)
	})
	return pool, nil
}

func pageLimit(n int) (int, error) {
	switch {
	case n < 0:
		return 0, apperrors.InvalidInput("limit must not be negative")
	case n == 0:
		return domain.DefaultQualificationLimit, nil
	case n > domain.MaxQualificationLimit:
		return domain.MaxQualificationLimit, nil
	default:
		return n, nil
	}
}

// fieldCondition is one compiled field comparison.
type fieldCondition struct {
	field   string
	op      rules.Operator
	operand rules.Value
}

var filterOperators = map[rules.Operator]struct{}{
	rules.OpIs:    {},
	rules.OpIsNot: {},
	rules.OpIn:    {},
	rules.OpNotIn: {},
}

var filterFields = map[string]struct{}{
	domain.FilterCategory:     {},
	domain.FilterCampaignID:   {},
	domain.FilterVoucherType:  {},
	domain.FilterCode:         {},
	domain.FilterResourceID:   {},
	domain.FilterResourceType: {},
}

// compileFilters validates the filters and returns a predicate over vouchers.
func compileFilters(f domain.QualificationFilters) (func(*domain.Voucher) bool, error) {
	junction := f.Junction
	if junction == "" {
		junction = domain.JunctionAnd
	}
	if junction != domain.JunctionAnd && junction != domain.JunctionOr {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported filter junction %q", f.Junction))
	}

	// Conditions of one field always combine with AND; the junction joins fields.
	groups := make([][]fieldCondition, 0, len(f.Fields))
	for _, ff := range f.Fields {
		if _, ok := filterFields[ff.Field]; !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported filter field %q", ff.Field))
		}
		if len(ff.Conditions) == 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("filter %q has no conditions", ff.Field))
		}
		group := make([]fieldCondition, 0, len(ff.Conditions))
		for op, raw := range ff.Conditions {
			o := rules.Operator(op)
			if _, ok := filterOperators[o]; !ok {
				return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported filter operator %q", op))
			}
			v, err := rules.FromAny(raw)
			if err != nil {
				return nil, apperrors.InvalidInput(fmt.Sprintf("filter %q: %v", ff.Field, err))
			}
			group = append(group, fieldCondition{field: ff.Field, op: o, operand: v})
		}
		groups = append(groups, group)
	}

	return func(v *domain.Voucher) bool {
		if len(groups) == 0 {
			return true
		}
		for _, g := range groups {
			ok := true
			for _, c := range g {
				if !rules.Match(c.op, fieldValue(v, c.field), c.operand) {
					ok = false
					break
				}
			}
			if ok && junction == domain.JunctionOr {
				return true
			}
			if !ok && junction == domain.JunctionAnd {
				return false
			}
		}
		return junction == domain.JunctionAnd
	}, nil
}

func fieldValue(v *domain.Voucher, field string) rules.Value {
	switch field {
	case domain.FilterCategory:
		tokens := make([]string, 0, 3*len(v.Categories))
		for _, c := range v.Categories {
			tokens = append(tokens, c.ID, c.Name, c.Token())
		}
		return rules.Strings(tokens)
	case domain.FilterCampaignID:
		return rules.String(v.CampaignID)
	case domain.FilterVoucherType:
		return rules.String(string(v.Type))
	case domain.FilterCode:
		return rules.String(v.Code)
	case domain.FilterResourceID:
		return rules.String(v.ID)
	case domain.FilterResourceType:
		return rules.String(string(domain.KindForVoucherType(v.Type)))
	default:
		return rules.Value{}
	}
}
