package config

import (
	"fmt"

	"github.com/utafrali/redeemables/internal/domain"
	pkgconfig "github.com/utafrali/redeemables/pkg/config"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// rulesFile is the layout of STACKING_RULES_FILE:
//
//	tenants:
//	  acme:
//	    redeemables_application_mode: ALL
//	    applicable_redeemables_limit: 3
//	    exclusive_categories: [vip]
type rulesFile struct {
	Tenants map[string]domain.StackingRules `yaml:"tenants"`
}

// RuleBook resolves the stacking rules of a tenant.
type RuleBook struct {
	defaults domain.StackingRules
	tenants  map[string]domain.StackingRules
}

// NewRuleBook returns a rule book that applies defaults to every tenant.
func NewRuleBook(defaults domain.StackingRules) *RuleBook {
	return &RuleBook{defaults: defaults}
}

// LoadRuleBook reads per-tenant rules from a YAML file. Only tenants listed in
// the file are known to the returned book.
func LoadRuleBook(path string) (*RuleBook, error) {
	var f rulesFile
	if err := pkgconfig.LoadYAML(path, &f); err != nil {
		return nil, fmt.Errorf("load stacking rules: %w", err)
	}
	if len(f.Tenants) == 0 {
		return nil, fmt.Errorf("load stacking rules: %s lists no tenants", path)
	}
	for tenant, r := range f.Tenants {
		if err := validateRules(r); err != nil {
			return nil, fmt.Errorf("stacking rules for tenant %s: %w", tenant, err)
		}
	}
	return &RuleBook{tenants: f.Tenants}, nil
}

// RulesFor returns the tenant's stacking rules. With a rules file loaded an
// unlisted tenant is NotFound.
func (b *RuleBook) RulesFor(tenantID string) (domain.StackingRules, error) {
	if b.tenants == nil {
		return b.defaults, nil
	}
	r, ok := b.tenants[tenantID]
	if !ok {
		return domain.StackingRules{}, apperrors.NotFound("tenant", tenantID)
	}
	return r, nil
}

func validateRules(r domain.StackingRules) error {
	switch r.ApplicationMode {
	case domain.ApplicationModeAll, domain.ApplicationModePartial, "":
	default:
		return fmt.Errorf("unknown application mode %q", r.ApplicationMode)
	}
	switch r.SortingRule {
	case domain.SortingNone, domain.SortingCategoryHierarchy, "":
	default:
		return fmt.Errorf("unknown sorting rule %q", r.SortingRule)
	}
	if r.RedeemablesLimit < 0 || r.RedeemablesLimit > domain.MaxRedeemablesLimit {
		return fmt.Errorf("redeemables limit must be between 0 and %d", domain.MaxRedeemablesLimit)
	}
	if r.ApplicableRedeemablesLimit < 0 || r.ApplicableExclusiveLimit < 0 ||
		r.ApplicableRedeemablesPerCategory < 0 || r.ApplicableExclusivePerCategory < 0 {
		return fmt.Errorf("stacking limits must not be negative")
	}
	for id, limit := range r.ApplicableRedeemablesCategoryLimits {
		if limit < 0 {
			return fmt.Errorf("category limit for %s must not be negative", id)
		}
	}
	return nil
}
