// Package tokencache holds bearer tokens issued by the directory service.
//
// Cache and UserCache keep tokens in process memory. RedisCache and
// RedisUserCache share them between processes. All implementations purge an
// entry the first time it is read after expiry.
package tokencache

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.TokenStore = (*Cache)(nil)

// entry is one cached token.
type entry struct {
	token     string
	expiresIn time.Duration
	createdAt time.Time
	updatedAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.updatedAt) > e.expiresIn
}

// Cache is an in-memory token store keyed by credential identity.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Save stores or overwrites the token for key. A zero createdAt means now.
func (c *Cache) Save(_ context.Context, key, token string, expiresIn time.Duration, createdAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveLocked(key, token, expiresIn, createdAt)
	return nil
}

func (c *Cache) saveLocked(key, token string, expiresIn time.Duration, createdAt time.Time) {
	now := c.now()
	if createdAt.IsZero() {
		createdAt = now
	}
	c.entries[key] = entry{
		token:     token,
		expiresIn: expiresIn,
		createdAt: createdAt,
		updatedAt: now,
	}
}

// Get returns the live token for key. An expired entry is removed.
func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.token, true, nil
}

// Refresh re-saves an existing token with a new lifetime starting now,
// keeping its original creation time.
func (c *Cache) Refresh(_ context.Context, key string, expiresIn time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	c.saveLocked(key, e.token, expiresIn, e.createdAt)
	return nil
}

// Clean removes key.
func (c *Cache) Clean(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// CleanAll removes every entry.
func (c *Cache) CleanAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	return nil
}

// Len returns the number of entries, including ones not yet purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
