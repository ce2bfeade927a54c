package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/botfleet/internal/domain"
	"github.com/prohmpiriya/botfleet/pkg/redis"
)

// DefaultTTL is how long a cached snapshot stays valid
const DefaultTTL = 5 * time.Minute

// Cache holds recent session snapshots. Implementations return copies.
type Cache interface {
	Get(ctx context.Context, tenantID int64, userID string) (*domain.Session, bool, error)
	Set(ctx context.Context, tenantID int64, userID string, sess *domain.Session) error
}

type cacheKey struct {
	tenantID int64
	userID   string
}

type cacheEntry struct {
	session   *domain.Session
	fetchedAt time.Time
}

// MemoryCache is a process-local Cache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[cacheKey]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of a fresh entry
func (c *MemoryCache) Get(ctx context.Context, tenantID int64, userID string) (*domain.Session, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey{tenantID, userID}]
	c.mu.RUnlock()

	if !ok || c.now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false, nil
	}
	return entry.session.Clone(), true, nil
}

// Set stores a copy of sess stamped with the current time
func (c *MemoryCache) Set(ctx context.Context, tenantID int64, userID string, sess *domain.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey{tenantID, userID}] = cacheEntry{session: sess.Clone(), fetchedAt: c.now()}
	return nil
}

// Prune drops expired entries and returns how many were removed
func (c *MemoryCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, fresh or not
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RunJanitor prunes on every tick until ctx is done
func (c *MemoryCache) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}

// RedisCache shares snapshots across processes; expiry is delegated to Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "botfleet:session"}
}

func (c *RedisCache) key(tenantID int64, userID string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, tenantID, userID)
}

// Get decodes a cached snapshot; a missing key is a miss
func (c *RedisCache) Get(ctx context.Context, tenantID int64, userID string) (*domain.Session, bool, error) {
	raw, err := c.client.Get(ctx, c.key(tenantID, userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached session: %w", err)
	}
	Heal(&sess)
	return &sess, true, nil
}

// Set writes the snapshot with the cache TTL
func (c *RedisCache) Set(ctx context.Context, tenantID int64, userID string, sess *domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return c.client.Set(ctx, c.key(tenantID, userID), raw, c.ttl)
}
