package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// Ensure the stores implement the interfaces.
var (
	_ driven.AppStore     = (*AppStore)(nil)
	_ driven.SyncLogStore = (*SyncLogStore)(nil)
)

const appColumns = `id, name, description, agent_id, app_key, app_secret, company_id,
	sync_with_account, callback_token, encoding_aes_key, created_at, updated_at`

// AppStore persists integration apps.
type AppStore struct {
	db *sql.DB
}

// Save inserts or overwrites the app.
func (s *AppStore) Save(ctx context.Context, app *domain.App) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apps (`+appColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			agent_id = excluded.agent_id,
			app_key = excluded.app_key,
			app_secret = excluded.app_secret,
			company_id = excluded.company_id,
			sync_with_account = excluded.sync_with_account,
			callback_token = excluded.callback_token,
			encoding_aes_key = excluded.encoding_aes_key,
			updated_at = excluded.updated_at`,
		app.ID, app.Name, app.Description, app.AgentID, app.AppKey, app.AppSecret, app.CompanyID,
		app.SyncWithAccount, app.CallbackToken, app.EncodingAESKey,
		formatTime(app.CreatedAt), formatTime(app.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save app %s: %w", app.ID, err)
	}
	return nil
}

// Get returns the app with id.
func (s *AppStore) Get(ctx context.Context, id string) (*domain.App, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+appColumns+` FROM apps WHERE id = ?`, id)
	app, err := scanApp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAppNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get app %s: %w", id, err)
	}
	return app, nil
}

// List returns every app ordered by name.
func (s *AppStore) List(ctx context.Context) ([]domain.App, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+appColumns+` FROM apps ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	var apps []domain.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan app: %w", err)
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// Delete removes the app.
func (s *AppStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM apps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete app %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAppNotFound, id)
	}
	return nil
}

func scanApp(row scanner) (*domain.App, error) {
	var (
		app              domain.App
		created, updated string
	)
	err := row.Scan(&app.ID, &app.Name, &app.Description, &app.AgentID, &app.AppKey, &app.AppSecret,
		&app.CompanyID, &app.SyncWithAccount, &app.CallbackToken, &app.EncodingAESKey, &created, &updated)
	if err != nil {
		return nil, err
	}
	if app.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if app.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &app, nil
}

// SyncLogStore persists sync run records.
type SyncLogStore struct {
	db *sql.DB
}

// Save inserts or overwrites the log.
func (s *SyncLogStore) Save(ctx context.Context, log *domain.SyncLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_logs (id, app_id, company_id, success, detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			success = excluded.success,
			detail = excluded.detail,
			finished_at = excluded.finished_at`,
		log.ID, log.AppID, log.CompanyID, log.Success, log.Detail,
		formatTime(log.StartedAt), formatTime(log.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save sync log %s: %w", log.ID, err)
	}
	return nil
}

// List returns up to limit logs, newest first. An empty appID lists all apps.
func (s *SyncLogStore) List(ctx context.Context, appID string, limit int) ([]domain.SyncLog, error) {
	query := `SELECT id, app_id, company_id, success, detail, started_at, finished_at FROM sync_logs`
	var args []any
	if appID != "" {
		query += ` WHERE app_id = ?`
		args = append(args, appID)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.SyncLog
	for rows.Next() {
		var (
			l                 domain.SyncLog
			started, finished string
		)
		if err := rows.Scan(&l.ID, &l.AppID, &l.CompanyID, &l.Success, &l.Detail, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		if l.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if l.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
