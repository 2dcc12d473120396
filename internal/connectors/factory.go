// Package connectors builds remote clients for registered apps.
package connectors

import (
	"fmt"
	"sync"

	"github.com/custodia-labs/dingsync/internal/connectors/dingtalk"
	"github.com/custodia-labs/dingsync/internal/connectors/dingtalk/callback"
	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// Ensure Factory implements the interfaces.
var (
	_ driven.DirectoryFactory = (*Factory)(nil)
	_ driven.CipherFactory    = (*Factory)(nil)
)

// Factory creates clients for apps. Clients of the same credentials share
// one token cache entry and one rate limiter.
type Factory struct {
	mu       sync.RWMutex
	cfg      dingtalk.Config
	tokens   driven.TokenStore
	clients  map[string]*dingtalk.Client
	limiters map[string]*dingtalk.RateLimiter
}

// NewFactory creates a factory over a shared token store.
func NewFactory(cfg dingtalk.Config, tokens driven.TokenStore) *Factory {
	return &Factory{
		cfg:      cfg,
		tokens:   tokens,
		clients:  make(map[string]*dingtalk.Client),
		limiters: make(map[string]*dingtalk.RateLimiter),
	}
}

// client returns the cached client for the app's credentials.
func (f *Factory) client(app *domain.App) (*dingtalk.Client, error) {
	if app == nil {
		return nil, fmt.Errorf("%w: nil app", domain.ErrInvalidInput)
	}
	if app.AppKey == "" || app.AppSecret == "" {
		return nil, domain.Configurationf("app %s has no credentials", app.ID)
	}

	id := app.AppKey + "\x00" + app.AppSecret
	f.mu.RLock()
	c, ok := f.clients[id]
	f.mu.RUnlock()
	if ok {
		return c, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[id]; ok {
		return c, nil
	}
	limiter, ok := f.limiters[app.AppKey]
	if !ok {
		limiter = dingtalk.NewRateLimiter(f.cfg.RateLimit)
		f.limiters[app.AppKey] = limiter
	}
	c = dingtalk.NewClient(app.AppKey, app.AppSecret, f.tokens, limiter, f.cfg)
	f.clients[id] = c
	return c, nil
}

// Directory returns the organisation directory client for app.
func (f *Factory) Directory(app *domain.App) (driven.Directory, error) {
	c, err := f.client(app)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Messenger returns the work notification client for app.
func (f *Factory) Messenger(app *domain.App) (driven.Messenger, error) {
	c, err := f.client(app)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OAuth returns the end-user login handler for app.
func (f *Factory) OAuth(app *domain.App) (driven.OAuthProvider, error) {
	c, err := f.client(app)
	if err != nil {
		return nil, err
	}
	return dingtalk.NewOAuthHandler(c), nil
}

// Cipher returns the callback cipher for app.
func (f *Factory) Cipher(app *domain.App) (driven.CallbackCipher, error) {
	if app == nil {
		return nil, fmt.Errorf("%w: nil app", domain.ErrInvalidInput)
	}
	if !app.CallbackEnabled() {
		return nil, domain.Configurationf("app %s has no callback credentials", app.ID)
	}
	c, err := callback.New(app.CallbackToken, app.EncodingAESKey, app.AppKey)
	if err != nil {
		return nil, err
	}
	return c, nil
}
