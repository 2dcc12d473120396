package tokencache

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// Ensure UserCache implements the interface.
var _ driven.UserTokenStore = (*UserCache)(nil)

// UserCache is an in-memory store of end-user tokens, one map per app.
type UserCache struct {
	mu   sync.Mutex
	apps map[string]map[string]entry
	now  func() time.Time
}

// NewUserCache creates an empty user token cache.
func NewUserCache() *UserCache {
	return &UserCache{
		apps: make(map[string]map[string]entry),
		now:  time.Now,
	}
}

// Save stores or overwrites the token of userKey within appKey.
func (c *UserCache) Save(
	_ context.Context, appKey, userKey, token string, expiresIn time.Duration, createdAt time.Time,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveLocked(appKey, userKey, token, expiresIn, createdAt)
	return nil
}

func (c *UserCache) saveLocked(appKey, userKey, token string, expiresIn time.Duration, createdAt time.Time) {
	now := c.now()
	if createdAt.IsZero() {
		createdAt = now
	}
	users, ok := c.apps[appKey]
	if !ok {
		users = make(map[string]entry)
		c.apps[appKey] = users
	}
	users[userKey] = entry{
		token:     token,
		expiresIn: expiresIn,
		createdAt: createdAt,
		updatedAt: now,
	}
}

// Get returns the live token of userKey. An expired entry is removed.
func (c *UserCache) Get(_ context.Context, appKey, userKey string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	users, ok := c.apps[appKey]
	if !ok {
		return "", false, nil
	}
	e, ok := users[userKey]
	if !ok {
		return "", false, nil
	}
	if e.expired(c.now()) {
		delete(users, userKey)
		return "", false, nil
	}
	return e.token, true, nil
}

// Refresh extends the lifetime of an existing user token.
func (c *UserCache) Refresh(_ context.Context, appKey, userKey string, expiresIn time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.apps[appKey][userKey]
	if !ok {
		return nil
	}
	c.saveLocked(appKey, userKey, e.token, expiresIn, e.createdAt)
	return nil
}

// Clean drops every token of appKey.
func (c *UserCache) Clean(_ context.Context, appKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.apps, appKey)
	return nil
}

// CleanAll drops every token.
func (c *UserCache) CleanAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apps = make(map[string]map[string]entry)
	return nil
}
