package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/terminal-bench/vestcore/internal/vesting"
)

// Cache is a Redis read-through decorator over another vesting.Store.
// Writes go to the inner store first and invalidate the cached copy, so the
// inner store stays the single source of truth; a cold or unreachable Redis
// only costs latency, never correctness.
type Cache struct {
	inner vesting.Store
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCache(inner vesting.Store, rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{inner: inner, rdb: rdb, ttl: ttl}
}

func cacheKey(id vesting.ScheduleID) string {
	return "vesting:schedule:" + id.String()
}

func (c *Cache) Get(ctx context.Context, id vesting.ScheduleID) (*vesting.Schedule, error) {
	if cached, err := c.rdb.Get(ctx, cacheKey(id)).Result(); err == nil {
		var s vesting.Schedule
		if json.Unmarshal([]byte(cached), &s) == nil {
			return &s, nil
		}
	}

	s, err := c.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(s); err == nil {
		c.rdb.Set(ctx, cacheKey(id), payload, c.ttl)
	}
	return s, nil
}

func (c *Cache) Put(ctx context.Context, s *vesting.Schedule) error {
	if err := c.inner.Put(ctx, s); err != nil {
		return err
	}
	c.rdb.Del(ctx, cacheKey(s.ID))
	return nil
}

func (c *Cache) Exists(ctx context.Context, id vesting.ScheduleID) (bool, error) {
	return c.inner.Exists(ctx, id)
}

func (c *Cache) NextSeq(ctx context.Context, beneficiary uuid.UUID) (uint64, error) {
	return c.inner.NextSeq(ctx, beneficiary)
}

func (c *Cache) AppendModification(ctx context.Context, m vesting.Modification) error {
	return c.inner.AppendModification(ctx, m)
}

func (c *Cache) Modifications(ctx context.Context, id vesting.ScheduleID) ([]vesting.Modification, error) {
	return c.inner.Modifications(ctx, id)
}
