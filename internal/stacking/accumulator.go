package stacking

import "github.com/utafrali/redeemables/internal/domain"

// accumulator holds the running counters of one admission pass.
type accumulator struct {
	admitted          int
	perCategory       map[string]int
	exclusive         int
	exclusivePerCat   map[string]int
	exclusiveAdmitted bool
	discount          int64
	gift              int64
	precedingFailed   bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		perCategory:     make(map[string]int),
		exclusivePerCat: make(map[string]int),
	}
}

// classified splits a voucher's categories by stacking membership.
type classified struct {
	exclusive []domain.Category
	joint     bool
}

func classify(rules *domain.StackingRules, categories []domain.Category) classified {
	var c classified
	for _, cat := range categories {
		if rules.IsExclusive(cat) {
			c.exclusive = append(c.exclusive, cat)
		}
		if rules.IsJoint(cat) {
			c.joint = true
		}
	}
	return c
}

func (c classified) isExclusive() bool { return len(c.exclusive) > 0 }

// capacity returns the skip key of the first limit the voucher would exceed,
// or "" when it fits. Checks run exclusive-global, exclusive-per-category,
// per-category, then global.
func (a *accumulator) capacity(rules *domain.StackingRules, v *domain.Voucher, c classified) string {
	if c.isExclusive() {
		if limit := rules.ApplicableExclusiveLimit; limit > 0 && a.exclusive >= limit {
			return domain.SkipExclusiveLimitExceeded
		}
		if limit := rules.ApplicableExclusivePerCategory; limit > 0 {
			for _, cat := range c.exclusive {
				if a.exclusivePerCat[cat.ID] >= limit {
					return domain.SkipExclusivePerCategoryExceeded
				}
			}
		}
	}
	for _, cat := range v.Categories {
		if limit := rules.CategoryLimit(cat.ID); limit > 0 && a.perCategory[cat.ID] >= limit {
			return domain.SkipPerCategoryLimitExceeded
		}
	}
	if limit := rules.ApplicableRedeemablesLimit; limit > 0 && a.admitted >= limit {
		return domain.SkipApplicableLimitExceeded
	}
	return ""
}

// admit records an admitted voucher and its money.
func (a *accumulator) admit(v *domain.Voucher, c classified, discount, gift int64) {
	a.admitted++
	for _, cat := range v.Categories {
		a.perCategory[cat.ID]++
	}
	if c.isExclusive() {
		a.exclusive++
		a.exclusiveAdmitted = true
		for _, cat := range c.exclusive {
			a.exclusivePerCat[cat.ID]++
		}
	}
	a.discount += discount
	a.gift += gift
}
