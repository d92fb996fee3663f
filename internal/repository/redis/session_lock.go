package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/pkg/database"
)

const sessionKeyPrefix = "session:"

// SessionLockRepository implements repository.SessionLockRepository using
// Redis. All locks of a session live in one key whose TTL follows the latest
// lock expiry.
type SessionLockRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewSessionLockRepository creates a new Redis-backed session lock store.
func NewSessionLockRepository(client *redis.Client) *SessionLockRepository {
	return &SessionLockRepository{client: client, now: time.Now}
}

func sessionKey(tenantID, key string) string {
	return sessionKeyPrefix + tenantID + ":" + key
}

// ReplaceLocks overwrites the session's locks in a single MULTI/EXEC.
func (r *SessionLockRepository) ReplaceLocks(ctx context.Context, tenantID, key string, locks []domain.SessionLock) error {
	rkey := sessionKey(tenantID, key)

	var data []byte
	if len(locks) > 0 {
		var err error
		if data, err = json.Marshal(locks); err != nil {
			return fmt.Errorf("marshal session locks: %w", err)
		}
	}
	ttl, expired := r.ttlFor(locks)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rkey)
		if len(locks) > 0 && !expired {
			pipe.Set(ctx, rkey, data, ttl)
		}
		return nil
	})
	if err != nil {
		return database.StoreError("redis", fmt.Errorf("redis replace session locks: %w", err))
	}
	return nil
}

// ttlFor returns the key TTL covering the latest lock expiry. Zero means no
// expiry. expired reports that every lock has already lapsed.
func (r *SessionLockRepository) ttlFor(locks []domain.SessionLock) (ttl time.Duration, expired bool) {
	var latest time.Time
	for _, l := range locks {
		if l.ExpiresAt == nil {
			return 0, false
		}
		if l.ExpiresAt.After(latest) {
			latest = *l.ExpiresAt
		}
	}
	if len(locks) == 0 {
		return 0, false
	}
	ttl = latest.Sub(r.now())
	if ttl <= 0 {
		return 0, true
	}
	return ttl, false
}

// DeleteLocks removes the session key.
func (r *SessionLockRepository) DeleteLocks(ctx context.Context, tenantID, key string) error {
	if err := r.client.Del(ctx, sessionKey(tenantID, key)).Err(); err != nil {
		return database.StoreError("redis", fmt.Errorf("redis del session locks: %w", err))
	}
	return nil
}

// GetLocks returns the session's locks; a missing key yields none.
func (r *SessionLockRepository) GetLocks(ctx context.Context, tenantID, key string) ([]domain.SessionLock, error) {
	data, err := r.client.Get(ctx, sessionKey(tenantID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []domain.SessionLock{}, nil
		}
		return nil, database.StoreError("redis", fmt.Errorf("redis get session locks: %w", err))
	}

	var locks []domain.SessionLock
	if err := json.Unmarshal(data, &locks); err != nil {
		return nil, fmt.Errorf("unmarshal session locks: %w", err)
	}
	return locks, nil
}
