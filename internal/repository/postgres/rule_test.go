package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/redeemables/internal/domain"
)

func ruleColumnNames() []string {
	return []string{"id", "tenant_id", "name", "rules", "logic", "error", "created_at"}
}

func TestValidationRuleRepository_GetByIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewValidationRuleRepository(mock)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rules := []byte(`{"1":{"name":"order.amount","conditions":{"$more_than":[10000]}},"2":{"name":"customer.segment","conditions":{"$is":["vip"]}}}`)
	ruleErr := []byte(`{"code":"min_spend","message":"Spend at least 100"}`)

	mock.ExpectQuery("SELECT .+ FROM validation_rules WHERE tenant_id = ").
		WithArgs(tenant, []string{"val_1", "val_2", "val_missing"}).
		WillReturnRows(pgxmock.NewRows(ruleColumnNames()).
			AddRow("val_1", tenant, "min spend", rules, "1 AND 2", ruleErr, created).
			AddRow("val_2", tenant, "", []byte(`{}`), "", []byte(nil), created))

	got, err := repo.GetByIDs(context.Background(), tenant, []string{"val_1", "val_2", "val_missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "val_1", got[0].ID)
	assert.Equal(t, "1 AND 2", got[0].Logic)
	require.Contains(t, got[0].Rules, "1")
	assert.Equal(t, "order.amount", got[0].Rules["1"].Fact)
	assert.JSONEq(t, `[10000]`, string(got[0].Rules["1"].Conditions["$more_than"]))
	require.NotNil(t, got[0].Error)
	assert.Equal(t, &domain.RuleError{Code: "min_spend", Message: "Spend at least 100"}, got[0].Error)

	assert.Equal(t, "val_2", got[1].ID)
	assert.Empty(t, got[1].Rules)
	assert.Nil(t, got[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidationRuleRepository_GetByIDs_EmptySkipsQuery(t *testing.T) {
	mock := newMock(t)
	repo := NewValidationRuleRepository(mock)

	got, err := repo.GetByIDs(context.Background(), tenant, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidationRuleRepository_GetByIDs_BadJSON(t *testing.T) {
	mock := newMock(t)
	repo := NewValidationRuleRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM validation_rules").
		WithArgs(tenant, []string{"val_1"}).
		WillReturnRows(pgxmock.NewRows(ruleColumnNames()).
			AddRow("val_1", tenant, "", []byte(`{"1":`), "", []byte(nil), time.Now()))

	_, err := repo.GetByIDs(context.Background(), tenant, []string{"val_1"})
	assert.ErrorContains(t, err, "unmarshal rules of val_1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidationRuleRepository_GetByIDs_QueryError(t *testing.T) {
	mock := newMock(t)
	repo := NewValidationRuleRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM validation_rules").
		WithArgs(tenant, []string{"val_1"}).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetByIDs(context.Background(), tenant, []string{"val_1"})
	assert.ErrorContains(t, err, "get validation rules")
	assert.NoError(t, mock.ExpectationsWereMet())
}
