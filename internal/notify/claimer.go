package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer grants one dispatcher replica exclusive delivery of a notification
type Claimer interface {
	// Claim reports true if the caller now owns key for ttl
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives key back so another attempt can claim it
	Release(ctx context.Context, key string) error
}

// redisClient is the subset of *redis.Client used by RedisClaimer
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisClaimer claims keys with SET NX and an expiry so a crashed replica
// cannot block delivery forever
type RedisClaimer struct {
	rdb    redisClient
	prefix string
}

// NewRedisClaimer creates a RedisClaimer over rdb
func NewRedisClaimer(rdb redisClient) *RedisClaimer {
	return &RedisClaimer{rdb: rdb, prefix: "artx:notify:"}
}

// Claim sets the key only if it does not exist
func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.prefix+key, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the key
func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", key, err)
	}
	return nil
}

// MemoryClaimer is a single-process Claimer
type MemoryClaimer struct {
	mu        sync.Mutex
	claims    map[string]time.Time // key -> expiry
	nextPrune time.Time
	now       func() time.Time
}

// NewMemoryClaimer creates an empty MemoryClaimer
func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{claims: make(map[string]time.Time), now: time.Now}
}

// Claim records key unless an unexpired claim exists. Expired claims are
// pruned at most once per ttl.
func (c *MemoryClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !now.Before(c.nextPrune) {
		for k, expiry := range c.claims {
			if !now.Before(expiry) {
				delete(c.claims, k)
			}
		}
		c.nextPrune = now.Add(ttl)
	}
	if expiry, ok := c.claims[key]; ok && now.Before(expiry) {
		return false, nil
	}
	c.claims[key] = now.Add(ttl)
	return true, nil
}

// Release forgets key
func (c *MemoryClaimer) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.claims, key)
	return nil
}
