package driven

import (
	"context"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// Notifier tells operators a sync run started or finished.
type Notifier interface {
	SyncStarted(ctx context.Context, app *domain.App)
	SyncFinished(ctx context.Context, app *domain.App, log *domain.SyncLog)
}
