package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// mockAppService implements driving.AppService for testing.
type mockAppService struct {
	apps    []domain.App
	added   *domain.App
	updated *domain.App
	removed string
	err     error
}

func (m *mockAppService) Add(_ context.Context, app *domain.App) error {
	if m.err != nil {
		return m.err
	}
	app.ID = "app-new"
	m.added = app
	return nil
}

func (m *mockAppService) Update(_ context.Context, app *domain.App) error {
	if m.err != nil {
		return m.err
	}
	m.updated = app
	return nil
}

func (m *mockAppService) Get(_ context.Context, id string) (*domain.App, error) {
	for i := range m.apps {
		if m.apps[i].ID == id {
			app := m.apps[i]
			return &app, nil
		}
	}
	return nil, domain.ErrAppNotFound
}

func (m *mockAppService) List(_ context.Context) ([]domain.App, error) {
	return m.apps, m.err
}

func (m *mockAppService) Remove(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.removed = id
	return nil
}

// mockSyncService implements driving.SyncService for testing.
type mockSyncService struct {
	log      *domain.SyncLog
	logs     []domain.SyncLog
	err      error
	gotApp   string
	gotDepts []int64
	gotLimit int
}

func (m *mockSyncService) Sync(_ context.Context, appID string) (*domain.SyncLog, error) {
	m.gotApp = appID
	return m.log, m.err
}

func (m *mockSyncService) SyncDepartments(_ context.Context, appID string, ids []int64) (*domain.SyncLog, error) {
	m.gotApp = appID
	m.gotDepts = ids
	return m.log, m.err
}

func (m *mockSyncService) Start(_ context.Context, appID string) (string, error) {
	m.gotApp = appID
	return "run-1", m.err
}

func (m *mockSyncService) Logs(_ context.Context, appID string, limit int) ([]domain.SyncLog, error) {
	m.gotApp = appID
	m.gotLimit = limit
	return m.logs, m.err
}

// mockMessageService implements driving.MessageService for testing.
type mockMessageService struct {
	gotApp       string
	gotMsg       *domain.Message
	gotEmployees []int64
	gotBody      domain.MessageBody
	err          error
}

func (m *mockMessageService) Send(_ context.Context, appID string, msg domain.Message) (string, error) {
	m.gotApp = appID
	m.gotMsg = &msg
	return "task-1", m.err
}

func (m *mockMessageService) SendToEmployees(
	_ context.Context, appID string, ids []int64, body domain.MessageBody,
) (string, error) {
	m.gotApp = appID
	m.gotEmployees = ids
	m.gotBody = body
	return "task-2", m.err
}

// mockServer implements Server for testing.
type mockServer struct {
	gotAddr string
}

func (m *mockServer) ListenAndServe(_ context.Context, addr string) error {
	m.gotAddr = addr
	return nil
}

func successLog() *domain.SyncLog {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.SyncLog{
		ID:         "0123456789abcdef",
		AppID:      "app-1",
		Success:    true,
		Detail:     "start sync\nsync success!",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
}

// resetFlags restores every flag to its default so commands can run
// repeatedly in one process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCLI executes the root command with svcs injected and returns the
// combined output.
func runCLI(t *testing.T, svcs *Services, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	if svcs == nil {
		svcs = &Services{}
	}
	SetServices(svcs)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		SetServices(&Services{})
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}
