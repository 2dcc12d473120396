package dingtalk

import "time"

// Default endpoints.
const (
	DefaultBaseURL      = "https://oapi.dingtalk.com"
	DefaultAPIBaseURL   = "https://api.dingtalk.com"
	DefaultLoginBaseURL = "https://login.dingtalk.com"
)

// Config holds client configuration shared by every app.
type Config struct {
	// BaseURL is the legacy API host.
	BaseURL string
	// APIBaseURL is the v1.0 API host used by the OAuth flows.
	APIBaseURL string
	// LoginBaseURL hosts the browser consent page.
	LoginBaseURL string
	// VerifyTLS enables certificate verification.
	VerifyTLS bool
	// Timeout bounds a single HTTP call.
	Timeout time.Duration
	// SuccessCode is the errcode value meaning success.
	SuccessCode int64
	// RateLimit throttles calls per app.
	RateLimit RateLimitConfig
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		APIBaseURL:   DefaultAPIBaseURL,
		LoginBaseURL: DefaultLoginBaseURL,
		Timeout:      30 * time.Second,
		RateLimit:    DefaultRateLimit,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = d.APIBaseURL
	}
	if c.LoginBaseURL == "" {
		c.LoginBaseURL = d.LoginBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.BurstSize <= 0 {
		c.RateLimit = d.RateLimit
	}
	return c
}
