package domain

import (
	"encoding/json"
	"time"
)

// RuleCondition is one named sub-rule of a validation rule: a fact and a
// single-key comparison map such as {"$lt": [5]}.
type RuleCondition struct {
	Fact       string                     `json:"name"`
	Conditions map[string]json.RawMessage `json:"conditions"`
}

// RuleError is the custom failure a rule author attaches to a validation rule.
type RuleError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationRule is a stored condition tree. Rules maps rule ids to conditions;
// Logic combines ids ("1 AND (2 OR 3)"). Empty Logic means all rules AND'd.
type ValidationRule struct {
	ID        string                   `json:"id"`
	TenantID  string                   `json:"tenant_id"`
	Name      string                   `json:"name"`
	Rules     map[string]RuleCondition `json:"rules"`
	Logic     string                   `json:"logic,omitempty"`
	Error     *RuleError               `json:"error,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// ValidationRuleAssignment attaches a rule to a related object (a voucher or
// campaign).
type ValidationRuleAssignment struct {
	ID            string `json:"id"`
	RuleID        string `json:"rule_id"`
	RelatedObject string `json:"related_object_type"`
	RelatedID     string `json:"related_object_id"`
}
