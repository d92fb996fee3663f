package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/pkg/database"
)

// SessionLockRepository implements repository.SessionLockRepository using
// PostgreSQL.
type SessionLockRepository struct {
	db database.DBTX
}

// NewSessionLockRepository creates a new PostgreSQL-backed session lock store.
func NewSessionLockRepository(db database.DBTX) *SessionLockRepository {
	return &SessionLockRepository{db: db}
}

// ReplaceLocks swaps the locks under key for locks in one transaction.
func (r *SessionLockRepository) ReplaceLocks(ctx context.Context, tenantID, key string, locks []domain.SessionLock) (err error) {
	ctx, end := database.TraceQuery(ctx, "ReplaceSessionLocks", "session lock transaction")
	defer func() { end(err) }()

	return database.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM session_locks WHERE tenant_id = $1 AND session_key = $2`,
			tenantID, key,
		); err != nil {
			return fmt.Errorf("delete session locks: %w", err)
		}

		for _, l := range locks {
			if _, err := tx.Exec(ctx, `
				INSERT INTO session_locks (tenant_id, session_key, kind, redeemable_id, expires_at, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (tenant_id, session_key, kind, redeemable_id) DO NOTHING`,
				tenantID, key, l.Kind, l.ID, l.ExpiresAt, l.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert session lock %s: %w", l.ID, err)
			}
		}
		return nil
	})
}

// DeleteLocks removes every lock under key.
func (r *SessionLockRepository) DeleteLocks(ctx context.Context, tenantID, key string) (err error) {
	query := `DELETE FROM session_locks WHERE tenant_id = $1 AND session_key = $2`

	ctx, end := database.TraceQuery(ctx, "DeleteSessionLocks", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, tenantID, key); err != nil {
		return fmt.Errorf("delete session locks: %w", err)
	}
	return nil
}

// GetLocks returns the locks under key ordered by creation time.
func (r *SessionLockRepository) GetLocks(ctx context.Context, tenantID, key string) (_ []domain.SessionLock, err error) {
	query := `
		SELECT tenant_id, session_key, kind, redeemable_id, expires_at, created_at
		FROM session_locks
		WHERE tenant_id = $1 AND session_key = $2
		ORDER BY created_at, redeemable_id`

	ctx, end := database.TraceQuery(ctx, "GetSessionLocks", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, tenantID, key)
	if err != nil {
		return nil, fmt.Errorf("get session locks: %w", err)
	}
	defer rows.Close()

	locks := []domain.SessionLock{}
	for rows.Next() {
		var l domain.SessionLock
		if err := rows.Scan(&l.TenantID, &l.SessionKey, &l.Kind, &l.ID, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session lock row: %w", err)
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session lock rows: %w", err)
	}
	return locks, nil
}
