// Package discount turns a voucher's discount specification and an order into
// concrete amounts. All amounts are integer minor currency units.
package discount

import (
	"github.com/shopspring/decimal"

	"github.com/utafrali/redeemables/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// OrderAmount returns the order amount, falling back to the sum of its lines
// when no amount was supplied.
func OrderAmount(order *domain.Order) int64 {
	if order == nil {
		return 0
	}
	if order.Amount > 0 {
		return order.Amount
	}
	var total int64
	for _, l := range Lines(order) {
		total += l.Amount
	}
	return total
}

// Calculate returns the discount a voucher grants against order. Gift and
// loyalty vouchers grant no discount; see GiftCredits for gift cards.
func Calculate(v *domain.Voucher, order *domain.Order) int64 {
	if v == nil || v.Type != domain.VoucherTypeDiscount || v.Discount == nil {
		return 0
	}
	d := v.Discount
	switch d.Type {
	case domain.DiscountPercent:
		amount := decimal.NewFromInt(OrderAmount(order))
		off := amount.Mul(d.PercentOff).Div(hundred).Truncate(0).IntPart()
		if d.AmountLimit > 0 && off > d.AmountLimit {
			off = d.AmountLimit
		}
		return nonNegative(off)
	case domain.DiscountAmount, domain.DiscountFixed:
		return nonNegative(d.AmountOff)
	case domain.DiscountUnit:
		off := d.UnitOff
		if off == 0 {
			off = d.AmountOff
		}
		return nonNegative(off * UnitCount(v, order))
	default:
		return 0
	}
}

// UnitCount is the summed item quantity of the order, falling back to the
// voucher's redemption quantity and finally to one.
func UnitCount(v *domain.Voucher, order *domain.Order) int64 {
	if order != nil && len(order.Items) > 0 {
		var n int64
		for _, it := range order.Items {
			n += int64(it.Quantity)
		}
		return n
	}
	if v != nil && v.Redemption.Quantity != nil && *v.Redemption.Quantity > 0 {
		return int64(*v.Redemption.Quantity)
	}
	return 1
}

// GiftCredits returns how much of a gift balance applies to the remaining
// order amount.
func GiftCredits(balance, remaining int64) int64 {
	if balance <= 0 || remaining <= 0 {
		return 0
	}
	return min(balance, remaining)
}

// Lines builds the quantity x price breakdown of the order items.
func Lines(order *domain.Order) []domain.OrderLine {
	if order == nil || len(order.Items) == 0 {
		return nil
	}
	lines := make([]domain.OrderLine, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, domain.OrderLine{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Amount:    int64(it.Quantity) * it.Price,
		})
	}
	return lines
}

// Summarize recomputes the order totals. The total never goes below zero.
func Summarize(amount, discount, gift int64) domain.OrderSummary {
	return domain.OrderSummary{
		Amount:            amount,
		DiscountAmount:    discount,
		GiftCreditsAmount: gift,
		TotalAmount:       nonNegative(amount - discount - gift),
	}
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
