package domain

import "strings"

// ApplicationMode decides between all-or-nothing and best-effort stacking.
type ApplicationMode string

// Application modes. Anything other than ALL is treated as partial.
const (
	ApplicationModeAll     ApplicationMode = "ALL"
	ApplicationModePartial ApplicationMode = "PARTIAL"
)

// SortingRule decides the processing order of a stack.
type SortingRule string

// Sorting rules.
const (
	SortingNone              SortingRule = "NONE"
	SortingCategoryHierarchy SortingRule = "CATEGORY_HIERARCHY"
)

// MaxRedeemablesLimit is the hard cap on the size of one request.
const MaxRedeemablesLimit = 30

// StackingRules is the tenant-level stacking configuration. Zero-valued limits
// for the per-category variants mean "no limit".
type StackingRules struct {
	ApplicationMode                     ApplicationMode `json:"redeemables_application_mode" yaml:"redeemables_application_mode"`
	RedeemablesLimit                    int             `json:"redeemables_limit" yaml:"redeemables_limit"`
	ApplicableRedeemablesLimit          int             `json:"applicable_redeemables_limit" yaml:"applicable_redeemables_limit"`
	ApplicableRedeemablesPerCategory    int             `json:"applicable_redeemables_per_category_limit" yaml:"applicable_redeemables_per_category_limit"`
	ApplicableRedeemablesCategoryLimits map[string]int  `json:"applicable_redeemables_category_limits,omitempty" yaml:"applicable_redeemables_category_limits"`
	ApplicableExclusiveLimit            int             `json:"applicable_exclusive_redeemables_limit" yaml:"applicable_exclusive_redeemables_limit"`
	ApplicableExclusivePerCategory      int             `json:"applicable_exclusive_redeemables_per_category_limit" yaml:"applicable_exclusive_redeemables_per_category_limit"`
	ExclusiveCategories                 []string        `json:"exclusive_categories" yaml:"exclusive_categories"`
	JointCategories                     []string        `json:"joint_categories" yaml:"joint_categories"`
	SortingRule                         SortingRule     `json:"redeemables_sorting_rule" yaml:"redeemables_sorting_rule"`
}

// DefaultStackingRules returns the configuration applied when a tenant does
// not override anything.
func DefaultStackingRules() StackingRules {
	return StackingRules{
		ApplicationMode:            ApplicationModePartial,
		RedeemablesLimit:           MaxRedeemablesLimit,
		ApplicableRedeemablesLimit: 5,
		ApplicableExclusiveLimit:   1,
		SortingRule:                SortingNone,
	}
}

// IsAll reports whether the rules demand all-or-nothing application.
func (s StackingRules) IsAll() bool {
	return s.ApplicationMode == ApplicationModeAll
}

// EffectiveRedeemablesLimit returns the request-size cap, never above 30.
func (s StackingRules) EffectiveRedeemablesLimit() int {
	if s.RedeemablesLimit <= 0 || s.RedeemablesLimit > MaxRedeemablesLimit {
		return MaxRedeemablesLimit
	}
	return s.RedeemablesLimit
}

// CategoryLimit returns the per-category admission limit for the category,
// preferring a category-specific override.
func (s StackingRules) CategoryLimit(categoryID string) int {
	if limit, ok := s.ApplicableRedeemablesCategoryLimits[categoryID]; ok {
		return limit
	}
	return s.ApplicableRedeemablesPerCategory
}

// IsExclusive reports whether the category is listed as exclusive, matching
// its id exactly or its name case-insensitively.
func (s StackingRules) IsExclusive(c Category) bool {
	return containsToken(s.ExclusiveCategories, c)
}

// IsJoint reports whether the category is listed as joint, matching its id
// exactly or its name case-insensitively.
func (s StackingRules) IsJoint(c Category) bool {
	return containsToken(s.JointCategories, c)
}

func containsToken(tokens []string, c Category) bool {
	name := c.Token()
	for _, t := range tokens {
		if t == c.ID || (name != "" && strings.ToLower(strings.TrimSpace(t)) == name) {
			return true
		}
	}
	return false
}
