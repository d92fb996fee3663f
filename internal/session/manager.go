// Package session reserves admitted redeemables under a session key so a later
// redeem call can act on the same decision.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/repository"
	apperrors "github.com/utafrali/redeemables/pkg/errors"
)

// keyPrefix marks generated session keys.
const keyPrefix = "ssn_"

// Manager acquires and releases session locks.
type Manager struct {
	store  repository.SessionLockRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a new session lock manager.
func NewManager(store repository.SessionLockRepository, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// ValidateRequest checks a session request before any processing happens.
func ValidateRequest(req *domain.SessionRequest) error {
	if req == nil {
		return nil
	}
	if req.Type != domain.SessionTypeLock {
		return apperrors.InvalidInput(fmt.Sprintf("unsupported session type %q", req.Type))
	}
	if req.TTL == nil {
		return nil
	}
	if *req.TTL <= 0 {
		return apperrors.InvalidInput("session ttl must be positive")
	}
	if _, err := req.TTLUnit.Duration(*req.TTL); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	return nil
}

// Acquire replaces every lock under the request's key with one lock per
// admitted redeemable. A key is generated when none was supplied; no TTL means
// the locks never expire.
func (m *Manager) Acquire(ctx context.Context, tenantID string, req *domain.SessionRequest, admitted []domain.RedeemableRef) (*domain.Session, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.InvalidInput("session request is required")
	}

	key := req.Key
	if key == "" {
		key = keyPrefix + uuid.New().String()
	}

	now := m.now().UTC()
	var expiresAt *time.Time
	if req.TTL != nil {
		d, _ := req.TTLUnit.Duration(*req.TTL)
		t := now.Add(d)
		expiresAt = &t
	}

	locks := make([]domain.SessionLock, 0, len(admitted))
	for _, ref := range admitted {
		locks = append(locks, domain.SessionLock{
			TenantID:   tenantID,
			SessionKey: key,
			Kind:       ref.Kind,
			ID:         ref.ID,
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
		})
	}

	if err := m.store.ReplaceLocks(ctx, tenantID, key, locks); err != nil {
		return nil, fmt.Errorf("acquire session %s: %w", key, err)
	}

	m.logger.InfoContext(ctx, "session locks acquired",
		slog.String("session_key", key),
		slog.Int("locked", len(locks)),
	)

	return &domain.Session{
		Key:       key,
		Type:      domain.SessionTypeLock,
		ExpiresAt: expiresAt,
		Locked:    len(locks),
	}, nil
}

// Release clears every lock under the key.
func (m *Manager) Release(ctx context.Context, tenantID, key string) error {
	if key == "" {
		return apperrors.InvalidInput("session key is required")
	}
	if err := m.store.DeleteLocks(ctx, tenantID, key); err != nil {
		return fmt.Errorf("release session %s: %w", key, err)
	}

	m.logger.InfoContext(ctx, "session locks released", slog.String("session_key", key))
	return nil
}

// Active returns the unexpired locks under the key.
func (m *Manager) Active(ctx context.Context, tenantID, key string) ([]domain.SessionLock, error) {
	if key == "" {
		return nil, apperrors.InvalidInput("session key is required")
	}
	locks, err := m.store.GetLocks(ctx, tenantID, key)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}

	now := m.now()
	active := make([]domain.SessionLock, 0, len(locks))
	for _, l := range locks {
		if !l.ExpiredAt(now) {
			active = append(active, l)
		}
	}
	return active, nil
}

// Covers reports whether the active locks reserve every ref.
func Covers(locks []domain.SessionLock, refs []domain.RedeemableRef) bool {
	if len(refs) == 0 {
		return false
	}
	held := make(map[string]struct{}, len(locks))
	for _, l := range locks {
		held[l.Ref().Key()] = struct{}{}
	}
	for _, r := range refs {
		if _, ok := held[r.Key()]; !ok {
			return false
		}
	}
	return true
}
