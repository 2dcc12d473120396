package notify

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/logger"
)

func TestLogNotifier(t *testing.T) {
	buf := new(bytes.Buffer)
	logger.SetOutput(buf)
	defer logger.SetOutput(os.Stderr)

	n := NewLogNotifier()
	app := &domain.App{ID: "app-1", Name: "main"}
	start := time.Now()

	n.SyncStarted(context.Background(), app)
	assert.Contains(t, buf.String(), `msg="notify: organisation sync started for main (app-1)"`)

	buf.Reset()
	n.SyncFinished(context.Background(), app, &domain.SyncLog{ID: "run-1", Success: true, StartedAt: start, FinishedAt: start.Add(time.Second)})
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "run run-1 took 1s")

	buf.Reset()
	n.SyncFinished(context.Background(), app, &domain.SyncLog{ID: "run-2"})
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "notify: organisation sync failed for main (app-1), run run-2")
}
