package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const cacheTTL = 5 * time.Minute

// MemoryAccrualCache is the in-process default when no Redis address is
// configured.
type MemoryAccrualCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryCacheEntry
}

type memoryCacheEntry struct {
	total     decimal.Decimal
	expiresAt time.Time
}

func NewMemoryAccrualCache() *MemoryAccrualCache {
	return &MemoryAccrualCache{
		entries: make(map[uuid.UUID]memoryCacheEntry),
	}
}

func (c *MemoryAccrualCache) GetTotal(_ context.Context, merchantID uuid.UUID) (decimal.Decimal, bool) {
	c.mu.RLock()
	entry, ok := c.entries[merchantID]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return decimal.Zero, false
	}
	return entry.total, true
}

func (c *MemoryAccrualCache) SetTotal(_ context.Context, merchantID uuid.UUID, total decimal.Decimal) {
	c.mu.Lock()
	c.entries[merchantID] = memoryCacheEntry{
		total:     total,
		expiresAt: time.Now().Add(cacheTTL),
	}
	c.mu.Unlock()
}

func (c *MemoryAccrualCache) Invalidate(_ context.Context, merchantID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, merchantID)
	c.mu.Unlock()
}

// RedisAccrualCache shares the projection across instances. Cache errors are
// logged and treated as misses; the journal query always stands behind it.
type RedisAccrualCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisAccrualCache(client *redis.Client, logger *slog.Logger) *RedisAccrualCache {
	return &RedisAccrualCache{
		client: client,
		logger: logger,
	}
}

func accrualKey(merchantID uuid.UUID) string {
	return "accrual:" + merchantID.String()
}

func (c *RedisAccrualCache) GetTotal(ctx context.Context, merchantID uuid.UUID) (decimal.Decimal, bool) {
	val, err := c.client.Get(ctx, accrualKey(merchantID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Accrual cache read failed", "merchant_id", merchantID, "error", err)
		}
		return decimal.Zero, false
	}

	total, err := decimal.NewFromString(val)
	if err != nil {
		c.logger.Warn("Accrual cache held unparseable total", "merchant_id", merchantID, "value", val)
		return decimal.Zero, false
	}
	return total, true
}

func (c *RedisAccrualCache) SetTotal(ctx context.Context, merchantID uuid.UUID, total decimal.Decimal) {
	if err := c.client.Set(ctx, accrualKey(merchantID), total.String(), cacheTTL).Err(); err != nil {
		c.logger.Warn("Accrual cache write failed", "merchant_id", merchantID, "error", err)
	}
}

func (c *RedisAccrualCache) Invalidate(ctx context.Context, merchantID uuid.UUID) {
	if err := c.client.Del(ctx, accrualKey(merchantID)).Err(); err != nil {
		c.logger.Warn("Accrual cache invalidation failed", "merchant_id", merchantID, "error", err)
	}
}
