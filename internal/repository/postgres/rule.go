package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/pkg/database"
)

// ValidationRuleRepository implements repository.ValidationRuleRepository
// using PostgreSQL.
type ValidationRuleRepository struct {
	db database.DBTX
}

// NewValidationRuleRepository creates a new PostgreSQL-backed rule repository.
func NewValidationRuleRepository(db database.DBTX) *ValidationRuleRepository {
	return &ValidationRuleRepository{db: db}
}

// GetByIDs returns the tenant's rules among ids. Unknown ids are skipped.
func (r *ValidationRuleRepository) GetByIDs(ctx context.Context, tenantID string, ids []string) (_ []domain.ValidationRule, err error) {
	if len(ids) == 0 {
		return []domain.ValidationRule{}, nil
	}

	query := `
		SELECT id, tenant_id, name, rules, logic, error, created_at
		FROM validation_rules
		WHERE tenant_id = $1 AND id = ANY($2)
		ORDER BY id`

	ctx, end := database.TraceQuery(ctx, "GetValidationRules", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get validation rules: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ValidationRule, 0, len(ids))
	for rows.Next() {
		var (
			rule      domain.ValidationRule
			rulesJSON []byte
			errorJSON []byte
		)
		if err := rows.Scan(
			&rule.ID,
			&rule.TenantID,
			&rule.Name,
			&rulesJSON,
			&rule.Logic,
			&errorJSON,
			&rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan validation rule row: %w", err)
		}

		if err := json.Unmarshal(rulesJSON, &rule.Rules); err != nil {
			return nil, fmt.Errorf("unmarshal rules of %s: %w", rule.ID, err)
		}
		if len(errorJSON) > 0 {
			if err := json.Unmarshal(errorJSON, &rule.Error); err != nil {
				return nil, fmt.Errorf("unmarshal error of %s: %w", rule.ID, err)
			}
		}
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation rule rows: %w", err)
	}
	return result, nil
}
