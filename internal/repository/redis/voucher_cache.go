package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/redeemables/internal/domain"
	"github.com/utafrali/redeemables/internal/repository"
)

const voucherKeyPrefix = "voucher:"

// CachedVoucherRepository is a read-through cache in front of a
// repository.VoucherRepository. Only GetByCode is cached; pool listings go
// straight to the underlying repository. Cache failures are logged and the
// lookup falls through.
type CachedVoucherRepository struct {
	next   repository.VoucherRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedVoucherRepository wraps next with a Redis cache of the given TTL.
func NewCachedVoucherRepository(next repository.VoucherRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedVoucherRepository {
	return &CachedVoucherRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func voucherKey(tenantID, code string) string {
	return voucherKeyPrefix + tenantID + ":" + code
}

// GetByCode serves the voucher from the cache, loading and storing it on a
// miss. Lookup errors, including not-found, are never cached.
func (c *CachedVoucherRepository) GetByCode(ctx context.Context, tenantID, code string) (*domain.Voucher, error) {
	key := voucherKey(tenantID, code)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v domain.Voucher
		if err := json.Unmarshal(data, &v); err == nil {
			return &v, nil
		}
		c.logger.WarnContext(ctx, "dropping undecodable cached voucher", slog.String("key", key))
		c.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "voucher cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	v, err := c.next.GetByCode(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(v); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "voucher cache write failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return v, nil
}

// ListActive delegates to the underlying repository.
func (c *CachedVoucherRepository) ListActive(ctx context.Context, tenantID string, filter repository.VoucherFilter) ([]domain.Voucher, error) {
	return c.next.ListActive(ctx, tenantID, filter)
}

// ListHeldBy delegates to the underlying repository.
func (c *CachedVoucherRepository) ListHeldBy(ctx context.Context, tenantID, customerID string, filter repository.VoucherFilter) ([]domain.Voucher, error) {
	return c.next.ListHeldBy(ctx, tenantID, customerID, filter)
}

// Invalidate drops the cached entries stored under any of the given codes or
// ids. Empty values are ignored.
func (c *CachedVoucherRepository) Invalidate(ctx context.Context, tenantID string, codesOrIDs ...string) error {
	keys := make([]string, 0, len(codesOrIDs))
	for _, k := range codesOrIDs {
		if k != "" {
			keys = append(keys, voucherKey(tenantID, k))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis invalidate vouchers: %w", err)
	}
	return nil
}
