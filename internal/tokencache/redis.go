package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// Ensure the Redis caches implement the interfaces.
var (
	_ driven.TokenStore     = (*RedisCache)(nil)
	_ driven.UserTokenStore = (*RedisUserCache)(nil)
)

// DefaultRedisPrefix namespaces every key written by the Redis caches.
const DefaultRedisPrefix = "dingsync:"

// redisEntry is the JSON value stored per key.
type redisEntry struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expires_in"`
	CreatedAt time.Time `json:"create_time"`
	UpdatedAt time.Time `json:"update_time"`
}

func (e redisEntry) expired(now time.Time) bool {
	return now.Sub(e.UpdatedAt) > time.Duration(e.ExpiresIn)*time.Second
}

// redisKV is the slice of the Redis API the caches use.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// redisBackend holds the shared read/write helpers.
type redisBackend struct {
	client redisKV
	prefix string
	now    func() time.Time
}

func (b *redisBackend) load(ctx context.Context, key string) (*redisEntry, error) {
	raw, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		// Unreadable entries are treated as absent and dropped.
		_ = b.client.Del(ctx, key).Err()
		return nil, nil
	}
	if e.expired(b.now()) {
		if err := b.client.Del(ctx, key).Err(); err != nil {
			return nil, fmt.Errorf("redis del %s: %w", key, err)
		}
		return nil, nil
	}
	return &e, nil
}

func (b *redisBackend) store(
	ctx context.Context, key, token string, expiresIn time.Duration, createdAt time.Time,
) error {
	now := b.now()
	if createdAt.IsZero() {
		createdAt = now
	}
	data, err := json.Marshal(redisEntry{
		Token:     token,
		ExpiresIn: int64(expiresIn / time.Second),
		CreatedAt: createdAt,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := b.client.Set(ctx, key, data, expiresIn).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (b *redisBackend) deleteMatching(ctx context.Context, pattern string) error {
	iter := b.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

// RedisCache is a TokenStore shared between processes through Redis.
type RedisCache struct {
	redisBackend
}

// NewRedisCache creates a Redis-backed token cache. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{redisBackend{client: client, prefix: prefix, now: time.Now}}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + "token:" + k
}

// Save stores or overwrites the token for key.
func (c *RedisCache) Save(ctx context.Context, key, token string, expiresIn time.Duration, createdAt time.Time) error {
	return c.store(ctx, c.key(key), token, expiresIn, createdAt)
}

// Get returns the live token for key.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	e, err := c.load(ctx, c.key(key))
	if err != nil || e == nil {
		return "", false, err
	}
	return e.Token, true, nil
}

// Refresh extends an existing token, keeping its creation time.
func (c *RedisCache) Refresh(ctx context.Context, key string, expiresIn time.Duration) error {
	e, err := c.load(ctx, c.key(key))
	if err != nil || e == nil {
		return err
	}
	return c.store(ctx, c.key(key), e.Token, expiresIn, e.CreatedAt)
}

// Clean removes key.
func (c *RedisCache) Clean(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// CleanAll removes every app token under the prefix.
func (c *RedisCache) CleanAll(ctx context.Context) error {
	return c.deleteMatching(ctx, globEscape(c.prefix)+"token:*")
}

// RedisUserCache is a UserTokenStore shared between processes through Redis.
type RedisUserCache struct {
	redisBackend
}

// NewRedisUserCache creates a Redis-backed user token cache.
func NewRedisUserCache(client redis.UniversalClient, prefix string) *RedisUserCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisUserCache{redisBackend{client: client, prefix: prefix, now: time.Now}}
}

func (c *RedisUserCache) appPrefix(appKey string) string {
	return c.prefix + "user_token:" + appKey + ":"
}

// Save stores or overwrites the token of userKey within appKey.
func (c *RedisUserCache) Save(
	ctx context.Context, appKey, userKey, token string, expiresIn time.Duration, createdAt time.Time,
) error {
	return c.store(ctx, c.appPrefix(appKey)+userKey, token, expiresIn, createdAt)
}

// Get returns the live token of userKey.
func (c *RedisUserCache) Get(ctx context.Context, appKey, userKey string) (string, bool, error) {
	e, err := c.load(ctx, c.appPrefix(appKey)+userKey)
	if err != nil || e == nil {
		return "", false, err
	}
	return e.Token, true, nil
}

// Refresh extends an existing user token, keeping its creation time.
func (c *RedisUserCache) Refresh(ctx context.Context, appKey, userKey string, expiresIn time.Duration) error {
	key := c.appPrefix(appKey) + userKey
	e, err := c.load(ctx, key)
	if err != nil || e == nil {
		return err
	}
	return c.store(ctx, key, e.Token, expiresIn, e.CreatedAt)
}

// Clean drops every token of appKey.
func (c *RedisUserCache) Clean(ctx context.Context, appKey string) error {
	return c.deleteMatching(ctx, globEscape(c.appPrefix(appKey))+"*")
}

// CleanAll drops every user token under the prefix.
func (c *RedisUserCache) CleanAll(ctx context.Context) error {
	return c.deleteMatching(ctx, globEscape(c.prefix)+"user_token:*")
}

// globEscape quotes the SCAN MATCH metacharacters in s.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
