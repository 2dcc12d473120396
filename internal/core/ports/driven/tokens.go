package driven

import (
	"context"
	"time"
)

// TokenStore caches bearer tokens keyed by credential identity.
//
// A token is valid while now - updatedAt <= expiresIn. Reading an expired
// entry removes it and reports a miss. Concurrent callers may race to fetch a
// replacement; the last Save wins.
type TokenStore interface {
	// Save stores or overwrites key. A zero createdAt means now.
	Save(ctx context.Context, key, token string, expiresIn time.Duration, createdAt time.Time) error
	Get(ctx context.Context, key string) (string, bool, error)
	// Refresh re-saves an existing token with a new lifetime, keeping its
	// creation time. Missing keys are ignored.
	Refresh(ctx context.Context, key string, expiresIn time.Duration) error
	Clean(ctx context.Context, key string) error
	CleanAll(ctx context.Context) error
}

// UserTokenStore caches per-end-user tokens keyed by (appKey, userKey).
type UserTokenStore interface {
	Save(ctx context.Context, appKey, userKey, token string, expiresIn time.Duration, createdAt time.Time) error
	Get(ctx context.Context, appKey, userKey string) (string, bool, error)
	Refresh(ctx context.Context, appKey, userKey string, expiresIn time.Duration) error
	// Clean drops every user token of an app.
	Clean(ctx context.Context, appKey string) error
	CleanAll(ctx context.Context) error
}
