package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	redis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/dingsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/dingsync/internal/adapters/driven/notify"
	"github.com/custodia-labs/dingsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/dingsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/dingsync/internal/adapters/driving/webhook"
	"github.com/custodia-labs/dingsync/internal/connectors"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/core/services"
	"github.com/custodia-labs/dingsync/internal/logger"
	"github.com/custodia-labs/dingsync/internal/metrics"
	"github.com/custodia-labs/dingsync/internal/tokencache"
)

// tokenCaches are the access token caches shared by every app.
type tokenCaches struct {
	tokens driven.TokenStore
	users  driven.UserTokenStore
	close  func() error
}

func newTokenCaches(ctx context.Context, s file.TokenSettings) (*tokenCaches, error) {
	if s.Backend != file.BackendRedis {
		return &tokenCaches{
			tokens: tokencache.New(),
			users:  tokencache.NewUserCache(),
			close:  func() error { return nil },
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", s.RedisAddr, err)
	}
	return &tokenCaches{
		tokens: tokencache.NewRedisCache(client, s.Prefix),
		users:  tokencache.NewRedisUserCache(client, s.Prefix),
		close:  client.Close,
	}, nil
}

// settingsPath resolves an empty path to ~/.dingsync/config.toml.
func settingsPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	dir, err := file.DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, file.FileName), nil
}

// bootstrap builds every service from the settings file at path.
//
//nolint:funlen // sequential wiring of all dependencies
func bootstrap(ctx context.Context, path string) (*cli.Services, func(), error) {
	path, err := settingsPath(path)
	if err != nil {
		return nil, nil, err
	}
	store, err := file.Load(path, file.Default(filepath.Dir(path)))
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	settings := store.Settings()
	logger.Debug("dingsync: loaded settings from %s, database %s", path, settings.Database.Path)
	if !settings.Remote.VerifyTLS {
		logger.Warn("dingsync: TLS certificate verification is disabled for remote calls; set remote.verify_tls to enable it")
	}

	metrics.Init()

	db, err := sqlite.Open(ctx, settings.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	caches, err := newTokenCaches(ctx, settings.Tokens)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	clients := connectors.NewFactory(settings.DingTalk(), caches.tokens)
	stores := services.OrgStores{
		Departments: db.Departments(),
		Employees:   db.Employees(),
		Jobs:        db.Jobs(),
		Accounts:    db.Accounts(),
	}

	orgSync := services.NewOrgSync(services.OrgSyncDeps{
		Apps:     db.Apps(),
		Clients:  clients,
		Stores:   stores,
		Logs:     db.SyncLogs(),
		Notifier: notify.NewLogNotifier(),
	}, settings.SyncOptions())

	callbacks := services.NewCallbackDispatcher(db.Apps(), clients)
	services.NewOrgEventHandlers(orgSync, clients, stores, settings.SyncOptions()).Register(callbacks)

	login := services.NewLogin(db.Apps(), clients, caches.users, db.Employees(), db.Accounts())

	server := webhook.NewServer(webhook.Services{
		Callbacks: callbacks,
		Login:     login,
		Sync:      orgSync,
	}, settings.Server.PublicURL)

	watch := func(ctx context.Context) error {
		return store.Watch(ctx, func(s file.Settings) {
			orgSync.SetSettings(s.SyncOptions())
			logger.Info("dingsync: sync settings applied, concurrency %d, page size %d",
				s.Sync.Concurrency, s.Sync.PageSize)
		})
	}

	release := func() {
		// Background runs must record their logs before the store closes.
		orgSync.Wait()
		if err := errors.Join(caches.close(), db.Close()); err != nil {
			logger.Warn("dingsync: release resources: %v", err)
		}
	}

	return &cli.Services{
		Apps:          services.NewAppRegistry(db.Apps(), caches.tokens, caches.users),
		Sync:          orgSync,
		Messages:      services.NewNotifications(db.Apps(), clients, db.Employees()),
		Server:        server,
		WatchSettings: watch,
		Addr:          settings.Server.Addr,
	}, release, nil
}
