package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/resource-reservation/internal/capacity"
)

// TimelineCache stores computed timelines in Redis.  Every resource has a
// generation counter that is part of the cache key; Invalidate bumps it so
// entries computed before a write are never read again and simply expire.
// A nil cache or a nil client disables caching.
type TimelineCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewTimelineCache(rdb *redis.Client, ttl time.Duration) *TimelineCache {
	return &TimelineCache{rdb: rdb, ttl: ttl, prefix: "capacity:"}
}

func (c *TimelineCache) enabled() bool {
	return c != nil && c.rdb != nil && c.ttl > 0
}

func (c *TimelineCache) genKey(resourceID string) string {
	return c.prefix + "gen:" + resourceID
}

func (c *TimelineCache) key(resourceID string, gen int64, from, to time.Time) string {
	return fmt.Sprintf("%stl:%s:%d:%d:%d", c.prefix, resourceID, gen, capacity.Millis(from), capacity.Millis(to))
}

// Generation returns the current generation of a resource.  Read it
// before loading allocations and pass it to Set.
func (c *TimelineCache) Generation(ctx context.Context, resourceID string) (int64, bool) {
	if !c.enabled() {
		return 0, false
	}
	gen, err := c.rdb.Get(ctx, c.genKey(resourceID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("capacity cache: generation read failed")
		return 0, false
	}
	return gen, true
}

// Get returns the cached timeline for the window at generation gen.
func (c *TimelineCache) Get(ctx context.Context, resourceID string, gen int64, from, to time.Time) (*capacity.Timeline, bool) {
	if !c.enabled() {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, c.key(resourceID, gen, from, to)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Ctx(ctx).Debug().Err(err).Msg("capacity cache: read failed")
		}
		return nil, false
	}
	var tl capacity.Timeline
	if err := json.Unmarshal(raw, &tl); err != nil {
		return nil, false
	}
	return &tl, true
}

// Set stores tl under generation gen.  Failures are logged only.
func (c *TimelineCache) Set(ctx context.Context, resourceID string, gen int64, from, to time.Time, tl *capacity.Timeline) {
	if !c.enabled() || tl == nil {
		return
	}
	raw, err := json.Marshal(tl)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(resourceID, gen, from, to), raw, c.ttl).Err(); err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("capacity cache: write failed")
	}
}

// Invalidate bumps the generation of every given resource.
func (c *TimelineCache) Invalidate(ctx context.Context, resourceIDs ...string) {
	if !c.enabled() || len(resourceIDs) == 0 {
		return
	}
	pipe := c.rdb.Pipeline()
	for _, id := range resourceIDs {
		pipe.Incr(ctx, c.genKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Strs("resource_ids", resourceIDs).Msg("capacity cache: invalidation failed")
	}
}
