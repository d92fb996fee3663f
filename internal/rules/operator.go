package rules

import "strings"

// Fact names a value resolved from the validation context.
type Fact string

// Supported facts. Anything else is unknown and fails its condition.
const (
	FactRedemptionsTotal       Fact = "redemptions.count.total"
	FactRedemptionsPerCustomer Fact = "redemptions.count.per_customer"
	FactOrderAmount            Fact = "order.amount"
	FactOrderItemsCount        Fact = "order.items.count"
	FactOrderItemsQuantity     Fact = "order.items.quantity"
	FactCustomerID             Fact = "customer.id"
	FactCustomerSegments       Fact = "customer.segments"
	FactVoucherCode            Fact = "voucher.code"
	FactVoucherType            Fact = "voucher.type"
	FactVoucherCategories      Fact = "voucher.categories"
	FactCampaignID             Fact = "campaign.id"
)

var knownFacts = map[Fact]struct{}{
	FactRedemptionsTotal:       {},
	FactRedemptionsPerCustomer: {},
	FactOrderAmount:            {},
	FactOrderItemsCount:        {},
	FactOrderItemsQuantity:     {},
	FactCustomerID:             {},
	FactCustomerSegments:       {},
	FactVoucherCode:            {},
	FactVoucherType:            {},
	FactVoucherCategories:      {},
	FactCampaignID:             {},
}

// Known reports whether f is a supported fact.
func (f Fact) Known() bool {
	_, ok := knownFacts[f]
	return ok
}

// OrderDependent reports whether f is read from the order.
func (f Fact) OrderDependent() bool {
	return strings.HasPrefix(string(f), "order.")
}

// Operator is a comparison or membership operator.
type Operator string

// Supported operators.
const (
	OpLt    Operator = "$lt"
	OpLte   Operator = "$lte"
	OpGt    Operator = "$gt"
	OpGte   Operator = "$gte"
	OpEq    Operator = "$eq"
	OpNe    Operator = "$ne"
	OpIs    Operator = "$is"
	OpIsNot Operator = "$is_not"
	OpIn    Operator = "$in"
	OpNotIn Operator = "$not_in"
)

// Known reports whether op is a supported operator.
func (op Operator) Known() bool {
	switch op {
	case OpLt, OpLte, OpGt, OpGte, OpEq, OpNe, OpIs, OpIsNot, OpIn, OpNotIn:
		return true
	default:
		return false
	}
}

// Match applies op to a resolved fact and an operand. Unknown operators and
// invalid values never match.
func Match(op Operator, fact, operand Value) bool {
	if !fact.Valid() || !operand.Valid() {
		return false
	}
	switch op {
	case OpLt, OpLte, OpGt, OpGte:
		return compare(op, fact, operand)
	case OpEq, OpIs:
		return contains(fact, operand.scalar())
	case OpNe, OpIsNot:
		return !contains(fact, operand.scalar())
	case OpIn:
		return intersects(fact, operand)
	case OpNotIn:
		return !intersects(fact, operand)
	default:
		return false
	}
}

func compare(op Operator, fact, operand Value) bool {
	a, ok := fact.decimal()
	if !ok {
		return false
	}
	b, ok := operand.decimal()
	if !ok {
		return false
	}
	switch op {
	case OpLt:
		return a.LessThan(b)
	case OpLte:
		return a.LessThanOrEqual(b)
	case OpGt:
		return a.GreaterThan(b)
	default:
		return a.GreaterThanOrEqual(b)
	}
}

// contains reports whether the fact equals the operand or, for list facts,
// whether any element does.
func contains(fact, operand Value) bool {
	for _, item := range fact.scalar().items() {
		if equal(item, operand) {
			return true
		}
	}
	return false
}

func intersects(fact, operand Value) bool {
	for _, want := range operand.items() {
		if contains(fact, want) {
			return true
		}
	}
	return false
}
