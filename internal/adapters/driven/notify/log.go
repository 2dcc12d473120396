// Package notify delivers sync run notifications to operators.
package notify

import (
	"context"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/logger"
)

// Ensure LogNotifier implements the interface.
var _ driven.Notifier = (*LogNotifier)(nil)

// LogNotifier writes sync notifications to the process log.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// SyncStarted logs that a run began.
func (n *LogNotifier) SyncStarted(_ context.Context, app *domain.App) {
	logger.Info("notify: organisation sync started for %s (%s)", app.Name, app.ID)
}

// SyncFinished logs the outcome of a run.
func (n *LogNotifier) SyncFinished(_ context.Context, app *domain.App, log *domain.SyncLog) {
	if log.Success {
		logger.Info("notify: organisation sync finished for %s (%s), run %s took %s",
			app.Name, app.ID, log.ID, log.Duration())
		return
	}
	logger.Warn("notify: organisation sync failed for %s (%s), run %s took %s",
		app.Name, app.ID, log.ID, log.Duration())
}
