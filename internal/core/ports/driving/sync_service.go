package driving

import (
	"context"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// SyncService mirrors the remote organisation into the local store.
type SyncService interface {
	// Sync runs a full sync of every department the app is authorised for
	// and blocks until it ends. Failures inside the run are recorded in the
	// returned log rather than returned as an error.
	Sync(ctx context.Context, appID string) (*domain.SyncLog, error)

	// SyncDepartments re-syncs the subtrees rooted at the given remote
	// department ids under their existing local parents.
	SyncDepartments(ctx context.Context, appID string, remoteDeptIDs []int64) (*domain.SyncLog, error)

	// Start runs Sync in the background and returns the run id at once.
	Start(ctx context.Context, appID string) (string, error)

	// Logs lists recorded runs, newest first. An empty appID lists all apps.
	Logs(ctx context.Context, appID string, limit int) ([]domain.SyncLog, error)
}
