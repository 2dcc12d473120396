// Package driving defines the operations the core offers to the CLI and
// the callback server.
package driving

import (
	"context"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// AppService manages registered integration apps.
type AppService interface {
	// Add validates and stores a new app, assigning its ID.
	Add(ctx context.Context, app *domain.App) error

	// Update validates and overwrites an existing app. Cached tokens of the
	// app are dropped.
	Update(ctx context.Context, app *domain.App) error

	// Get returns domain.ErrAppNotFound when no app has the id.
	Get(ctx context.Context, id string) (*domain.App, error)

	List(ctx context.Context) ([]domain.App, error)

	// Remove deletes the app and drops its cached tokens.
	Remove(ctx context.Context, id string) error
}
