// Package file loads dingsync settings from a TOML file and watches it for
// edits.
package file

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/custodia-labs/dingsync/internal/connectors/dingtalk"
	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/services"
	"github.com/custodia-labs/dingsync/internal/tokencache"
)

// Token cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Settings is the content of the settings file.
type Settings struct {
	Database DatabaseSettings `toml:"database"`
	Remote   RemoteSettings   `toml:"remote"`
	Sync     SyncSettings     `toml:"sync"`
	Tokens   TokenSettings    `toml:"tokens"`
	Server   ServerSettings   `toml:"server"`
}

// DatabaseSettings locates the local record store.
type DatabaseSettings struct {
	Path string `toml:"path"`
}

// RemoteSettings configures calls to the directory service.
type RemoteSettings struct {
	BaseURL           string   `toml:"base_url"`
	APIBaseURL        string   `toml:"api_base_url"`
	LoginBaseURL      string   `toml:"login_base_url"`
	VerifyTLS         bool     `toml:"verify_tls"`
	Timeout           Duration `toml:"timeout"`
	SuccessCode       int64    `toml:"success_code"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

// SyncSettings tunes sync runs.
type SyncSettings struct {
	Concurrency       int    `toml:"concurrency"`
	PageSize          int    `toml:"page_size"`
	CreateBatch       int    `toml:"create_batch"`
	Language          string `toml:"language"`
	IncludeRestricted bool   `toml:"include_restricted"`
}

// TokenSettings selects where access tokens are cached.
type TokenSettings struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

// ServerSettings configures the callback server.
type ServerSettings struct {
	Addr string `toml:"addr"`
	// PublicURL is the externally reachable base used for OAuth redirects.
	PublicURL string `toml:"public_url"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the settings used for keys missing from the file.
func Default(dataDir string) Settings {
	remote := dingtalk.DefaultConfig()
	sync := services.DefaultSyncSettings()
	return Settings{
		Database: DatabaseSettings{Path: filepath.Join(dataDir, "dingsync.db")},
		Remote: RemoteSettings{
			BaseURL:           remote.BaseURL,
			APIBaseURL:        remote.APIBaseURL,
			LoginBaseURL:      remote.LoginBaseURL,
			VerifyTLS:         remote.VerifyTLS,
			Timeout:           Duration(remote.Timeout),
			SuccessCode:       remote.SuccessCode,
			RequestsPerSecond: remote.RateLimit.RequestsPerSecond,
			Burst:             remote.RateLimit.BurstSize,
		},
		Sync: SyncSettings{
			Concurrency: 8,
			PageSize:    sync.PageSize,
			CreateBatch: sync.CreateBatch,
			Language:    sync.Language,
		},
		Tokens: TokenSettings{
			Backend:   BackendMemory,
			RedisAddr: "localhost:6379",
			Prefix:    tokencache.DefaultRedisPrefix,
		},
		Server: ServerSettings{Addr: ":8080"},
	}
}

// Validate rejects settings no component can run with.
func (s Settings) Validate() error {
	switch s.Tokens.Backend {
	case BackendMemory:
	case BackendRedis:
		if s.Tokens.RedisAddr == "" {
			return domain.Configurationf("tokens.redis_addr is required for the redis backend")
		}
	default:
		return domain.Configurationf("unknown token backend %q", s.Tokens.Backend)
	}
	if s.Database.Path == "" {
		return domain.Configurationf("database.path is required")
	}
	if s.Sync.Concurrency < 0 {
		return domain.Configurationf("sync.concurrency must not be negative")
	}
	if s.Sync.PageSize > domain.DefaultUserPageSize {
		return domain.Configurationf("sync.page_size must be at most %d", domain.DefaultUserPageSize)
	}
	if s.Remote.Timeout < 0 {
		return domain.Configurationf("remote.timeout must not be negative")
	}
	return nil
}

// DingTalk returns the client configuration.
func (s Settings) DingTalk() dingtalk.Config {
	return dingtalk.Config{
		BaseURL:      s.Remote.BaseURL,
		APIBaseURL:   s.Remote.APIBaseURL,
		LoginBaseURL: s.Remote.LoginBaseURL,
		VerifyTLS:    s.Remote.VerifyTLS,
		Timeout:      time.Duration(s.Remote.Timeout),
		SuccessCode:  s.Remote.SuccessCode,
		RateLimit: dingtalk.RateLimitConfig{
			RequestsPerSecond: s.Remote.RequestsPerSecond,
			BurstSize:         s.Remote.Burst,
		},
	}
}

// SyncOptions returns the sync engine settings.
func (s Settings) SyncOptions() services.SyncSettings {
	return services.SyncSettings{
		Concurrency:       s.Sync.Concurrency,
		Language:          s.Sync.Language,
		PageSize:          s.Sync.PageSize,
		CreateBatch:       s.Sync.CreateBatch,
		IncludeRestricted: s.Sync.IncludeRestricted,
	}
}
