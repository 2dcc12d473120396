package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/core/ports/driving"
	"github.com/custodia-labs/dingsync/internal/logger"
)

// Ensure AppRegistry implements the interface.
var _ driving.AppService = (*AppRegistry)(nil)

// AppRegistry manages registered integration apps and drops their cached
// tokens when credentials change.
type AppRegistry struct {
	apps       driven.AppStore
	tokens     driven.TokenStore
	userTokens driven.UserTokenStore
	now        func() time.Time
}

// NewAppRegistry creates an AppRegistry. The token stores may be nil.
func NewAppRegistry(apps driven.AppStore, tokens driven.TokenStore, userTokens driven.UserTokenStore) *AppRegistry {
	return &AppRegistry{
		apps:       apps,
		tokens:     tokens,
		userTokens: userTokens,
		now:        time.Now,
	}
}

// Add validates and stores a new app.
func (r *AppRegistry) Add(ctx context.Context, app *domain.App) error {
	if app == nil {
		return fmt.Errorf("%w: nil app", domain.ErrInvalidInput)
	}
	if err := app.Validate(); err != nil {
		return err
	}
	if err := r.checkUniqueName(ctx, app); err != nil {
		return err
	}

	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := r.now()
	app.CreatedAt = now
	app.UpdatedAt = now
	if err := r.apps.Save(ctx, app); err != nil {
		return fmt.Errorf("save app: %w", err)
	}
	logger.Info("apps: added %s (%s)", app.Name, app.ID)
	return nil
}

// Update overwrites an existing app and drops the tokens of its old and new
// app keys.
func (r *AppRegistry) Update(ctx context.Context, app *domain.App) error {
	if app == nil {
		return fmt.Errorf("%w: nil app", domain.ErrInvalidInput)
	}
	current, err := r.apps.Get(ctx, app.ID)
	if err != nil {
		return err
	}
	if err := app.Validate(); err != nil {
		return err
	}
	if err := r.checkUniqueName(ctx, app); err != nil {
		return err
	}

	app.CreatedAt = current.CreatedAt
	app.UpdatedAt = r.now()
	if err := r.apps.Save(ctx, app); err != nil {
		return fmt.Errorf("save app: %w", err)
	}

	r.cleanTokens(ctx, current.AppKey)
	if app.AppKey != current.AppKey {
		r.cleanTokens(ctx, app.AppKey)
	}
	logger.Info("apps: updated %s", app.ID)
	return nil
}

// Get returns the app with id.
func (r *AppRegistry) Get(ctx context.Context, id string) (*domain.App, error) {
	return r.apps.Get(ctx, id)
}

// List returns every registered app.
func (r *AppRegistry) List(ctx context.Context) ([]domain.App, error) {
	return r.apps.List(ctx)
}

// Remove deletes the app and its cached tokens.
func (r *AppRegistry) Remove(ctx context.Context, id string) error {
	app, err := r.apps.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.apps.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete app: %w", err)
	}
	r.cleanTokens(ctx, app.AppKey)
	logger.Info("apps: removed %s", id)
	return nil
}

func (r *AppRegistry) checkUniqueName(ctx context.Context, app *domain.App) error {
	apps, err := r.apps.List(ctx)
	if err != nil {
		return fmt.Errorf("list apps: %w", err)
	}
	for _, other := range apps {
		if other.ID != app.ID && strings.EqualFold(other.Name, app.Name) {
			return fmt.Errorf("%w: app name %q already in use", domain.ErrInvalidInput, app.Name)
		}
	}
	return nil
}

// cleanTokens only logs failures; a stale token is rejected remotely and
// refetched on the next call.
func (r *AppRegistry) cleanTokens(ctx context.Context, appKey string) {
	if r.tokens != nil {
		if err := r.tokens.Clean(ctx, appKey); err != nil {
			logger.Warn("apps: failed to drop token for app key %s: %v", appKey, err)
		}
	}
	if r.userTokens != nil {
		if err := r.userTokens.Clean(ctx, appKey); err != nil {
			logger.Warn("apps: failed to drop user tokens for app key %s: %v", appKey, err)
		}
	}
}
