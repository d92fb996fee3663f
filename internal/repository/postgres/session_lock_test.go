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

func sampleLocks() []domain.SessionLock {
	created := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	expires := created.Add(time.Hour)
	return []domain.SessionLock{
		{TenantID: tenant, SessionKey: "ssn_1", Kind: domain.KindVoucher, ID: "SUMMER20", ExpiresAt: &expires, CreatedAt: created},
		{TenantID: tenant, SessionKey: "ssn_1", Kind: domain.KindGiftCard, ID: "GIFT-1", ExpiresAt: &expires, CreatedAt: created},
	}
}

func TestSessionLockRepository_ReplaceLocks(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionLockRepository(mock)
	locks := sampleLocks()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM session_locks").
		WithArgs(tenant, "ssn_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	for _, l := range locks {
		mock.ExpectExec("INSERT INTO session_locks").
			WithArgs(tenant, "ssn_1", l.Kind, l.ID, l.ExpiresAt, l.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceLocks(context.Background(), tenant, "ssn_1", locks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionLockRepository_ReplaceLocks_InsertErrorRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionLockRepository(mock)
	locks := sampleLocks()[:1]

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM session_locks").
		WithArgs(tenant, "ssn_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO session_locks").
		WithArgs(tenant, "ssn_1", locks[0].Kind, locks[0].ID, locks[0].ExpiresAt, locks[0].CreatedAt).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.ReplaceLocks(context.Background(), tenant, "ssn_1", locks)
	assert.ErrorContains(t, err, "insert session lock SUMMER20")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionLockRepository_DeleteLocks(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionLockRepository(mock)

	mock.ExpectExec("DELETE FROM session_locks").
		WithArgs(tenant, "ssn_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, repo.DeleteLocks(context.Background(), tenant, "ssn_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionLockRepository_GetLocks(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionLockRepository(mock)
	locks := sampleLocks()

	rows := pgxmock.NewRows([]string{"tenant_id", "session_key", "kind", "redeemable_id", "expires_at", "created_at"})
	for _, l := range locks {
		rows.AddRow(l.TenantID, l.SessionKey, l.Kind, l.ID, l.ExpiresAt, l.CreatedAt)
	}
	mock.ExpectQuery("SELECT .+ FROM session_locks").
		WithArgs(tenant, "ssn_1").
		WillReturnRows(rows)

	got, err := repo.GetLocks(context.Background(), tenant, "ssn_1")
	require.NoError(t, err)
	assert.Equal(t, locks, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionLockRepository_GetLocks_QueryError(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionLockRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM session_locks").
		WithArgs(tenant, "ssn_1").
		WillReturnError(errors.New("timeout"))

	_, err := repo.GetLocks(context.Background(), tenant, "ssn_1")
	assert.ErrorContains(t, err, "get session locks")
	assert.NoError(t, mock.ExpectationsWereMet())
}
