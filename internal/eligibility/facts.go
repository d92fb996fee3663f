package eligibility

import (
	"context"
	"fmt"

	"github.com/utafrali/redeemables/internal/discount"
	"github.com/utafrali/redeemables/internal/rules"
)

// factResolver resolves rule facts for one voucher check. Redemption counters
// are fetched at most once and the first lookup error is kept so the caller can
// fail the whole check instead of silently treating the fact as unknown.
type factResolver struct {
	ctx      context.Context
	counters Counters
	in       *CheckInput

	total       *int
	perCustomer *int
	err         error
}

func newFactResolver(ctx context.Context, counters Counters, in *CheckInput) *factResolver {
	return &factResolver{ctx: ctx, counters: counters, in: in}
}

func (r *factResolver) totalCount() (int, error) {
	if r.total == nil {
		n, err := r.counters.CountTotal(r.ctx, r.in.TenantID, r.in.Voucher.ID)
		if err != nil {
			return 0, fmt.Errorf("count redemptions for voucher %s: %w", r.in.Voucher.ID, err)
		}
		r.total = &n
	}
	return *r.total, nil
}

func (r *factResolver) customerCount() (int, error) {
	if r.perCustomer == nil {
		n, err := r.counters.CountForCustomer(r.ctx, r.in.TenantID, r.in.Voucher.ID, r.in.customerID())
		if err != nil {
			return 0, fmt.Errorf("count customer redemptions for voucher %s: %w", r.in.Voucher.ID, err)
		}
		r.perCustomer = &n
	}
	return *r.perCustomer, nil
}

// Resolve implements rules.Resolver.
func (r *factResolver) Resolve(f rules.Fact) (rules.Value, bool) {
	v := r.in.Voucher
	switch f {
	case rules.FactRedemptionsTotal:
		n, err := r.totalCount()
		if err != nil {
			r.fail(err)
			return rules.Value{}, false
		}
		return rules.Int(int64(n)), true
	case rules.FactRedemptionsPerCustomer:
		if r.in.customerID() == "" {
			return rules.Value{}, false
		}
		n, err := r.customerCount()
		if err != nil {
			r.fail(err)
			return rules.Value{}, false
		}
		return rules.Int(int64(n)), true
	case rules.FactOrderAmount:
		if r.in.Order == nil {
			return rules.Value{}, false
		}
		return rules.Int(discount.OrderAmount(r.in.Order)), true
	case rules.FactOrderItemsCount:
		if r.in.Order == nil {
			return rules.Value{}, false
		}
		return rules.Int(int64(len(r.in.Order.Items))), true
	case rules.FactOrderItemsQuantity:
		if r.in.Order == nil {
			return rules.Value{}, false
		}
		var n int64
		for _, it := range r.in.Order.Items {
			n += int64(it.Quantity)
		}
		return rules.Int(n), true
	case rules.FactCustomerID:
		if r.in.customerID() == "" {
			return rules.Value{}, false
		}
		return rules.String(r.in.customerID()), true
	case rules.FactCustomerSegments:
		if r.in.Customer == nil {
			return rules.Value{}, false
		}
		return rules.Strings(r.in.Customer.Segments), true
	case rules.FactVoucherCode:
		return rules.String(v.Code), true
	case rules.FactVoucherType:
		return rules.String(string(v.Type)), true
	case rules.FactVoucherCategories:
		tokens := make([]string, 0, 2*len(v.Categories))
		for _, c := range v.Categories {
			tokens = append(tokens, c.ID)
			if name := c.Token(); name != "" {
				tokens = append(tokens, name)
			}
		}
		return rules.Strings(tokens), true
	case rules.FactCampaignID:
		if v.CampaignID == "" {
			return rules.Value{}, false
		}
		return rules.String(v.CampaignID), true
	default:
		return rules.Value{}, false
	}
}

func (r *factResolver) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

var _ rules.Resolver = (*factResolver)(nil)
