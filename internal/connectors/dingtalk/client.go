package dingtalk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/logger"
	"github.com/custodia-labs/dingsync/internal/metrics"
)

// Ensure Client implements the interfaces.
var (
	_ driven.Directory = (*Client)(nil)
	_ driven.Messenger = (*Client)(nil)
)

// Legacy errcodes meaning the cached access token is no longer accepted.
const (
	errCodeInvalidToken = 40014
	errCodeExpiredToken = 42001
)

// Client is an authenticated client for one app. The access token is cached
// in the shared TokenStore under the app key.
type Client struct {
	appKey    string
	appSecret string
	cfg       Config
	tokens    driven.TokenStore
	limiter   *RateLimiter
}

// NewClient creates a client for the given credentials. A nil limiter gets
// one built from cfg.RateLimit.
func NewClient(appKey, appSecret string, tokens driven.TokenStore, limiter *RateLimiter, cfg Config) *Client {
	cfg = cfg.withDefaults()
	if limiter == nil {
		limiter = NewRateLimiter(cfg.RateLimit)
	}
	return &Client{
		appKey:    appKey,
		appSecret: appSecret,
		cfg:       cfg,
		tokens:    tokens,
		limiter:   limiter,
	}
}

// tokenResponse is the gettoken payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// LatestToken returns the cached access token, fetching and caching a new
// one when none is live.
func (c *Client) LatestToken(ctx context.Context) (string, error) {
	token, ok, err := c.tokens.Get(ctx, c.appKey)
	if err != nil {
		return "", fmt.Errorf("read token cache: %w", err)
	}
	if ok {
		return token, nil
	}

	logger.Debug("dingtalk: fetching access token for app key %s", c.appKey)
	query := url.Values{
		"appkey":    {c.appKey},
		"appsecret": {c.appSecret},
	}
	var resp tokenResponse
	if err := c.call(ctx, "gettoken", http.MethodGet, "/gettoken", query, nil, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("gettoken: empty access token")
	}

	expiresIn := time.Duration(resp.ExpiresIn) * time.Second
	if err := c.tokens.Save(ctx, c.appKey, resp.AccessToken, expiresIn, time.Time{}); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return resp.AccessToken, nil
}

// httpClient returns a client on a fresh transport so no connection is reused.
func (c *Client) httpClient() *http.Client {
	return &http.Client{
		Timeout: c.cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			//nolint:gosec // G402: verification is an operator setting, warned at start-up
			TLSClientConfig:   &tls.Config{InsecureSkipVerify: !c.cfg.VerifyTLS},
			DisableKeepAlives: true,
		},
	}
}

// authedCall runs a legacy API call with the access token attached.
func (c *Client) authedCall(
	ctx context.Context, endpoint, method, path string, query url.Values, body, out any,
) error {
	token, err := c.LatestToken(ctx)
	if err != nil {
		return err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", token)

	err = c.call(ctx, endpoint, method, path, query, body, out)
	if isTokenRejected(err) {
		// Drop the token so the next call fetches a fresh one.
		if cerr := c.tokens.Clean(ctx, c.appKey); cerr != nil {
			logger.Warn("dingtalk: failed to drop rejected token for app key %s: %v", c.appKey, cerr)
		}
	}
	return err
}

func isTokenRejected(err error) bool {
	var rpe *domain.RemoteProtocolError
	return errors.As(err, &rpe) && (rpe.Code == errCodeInvalidToken || rpe.Code == errCodeExpiredToken)
}

// call runs one legacy API request: throttle, send, check the envelope, and
// decode the whole body into out.
func (c *Client) call(
	ctx context.Context, endpoint, method, path string, query url.Values, body, out any,
) (err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	started := time.Now()
	defer func() { metrics.ObserveRemoteCall(endpoint, started, err) }()

	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	raw, status, err := c.send(ctx, method, target, nil, body)
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s failed with status %d: %w", endpoint, status, statusError(status))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if err := env.check(c.cfg.SuccessCode); err != nil {
		if env.ErrCode == errCodeThrottled {
			c.limiter.RecordRateLimitError(0)
		}
		logger.Debug("dingtalk: %s rejected with errcode %d: %s", endpoint, env.ErrCode, env.ErrMsg)
		return err
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}

// callAPI runs one v1.0 API request. Failures are mapped from the HTTP status.
func (c *Client) callAPI(
	ctx context.Context, endpoint, method, path string, header http.Header, body, out any,
) (err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	started := time.Now()
	defer func() { metrics.ObserveRemoteCall(endpoint, started, err) }()

	raw, status, err := c.send(ctx, method, c.cfg.APIBaseURL+path, header, body)
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	if status < 200 || status >= 300 {
		if status == http.StatusTooManyRequests {
			c.limiter.RecordRateLimitError(0)
		}
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s failed with status %d: %s: %w", endpoint, status, apiErr.Message, statusError(status))
		}
		return fmt.Errorf("%s failed with status %d: %w", endpoint, status, statusError(status))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}

// send performs the HTTP exchange and returns the body and status code.
func (c *Client) send(
	ctx context.Context, method, target string, header http.Header, body any,
) ([]byte, int, error) {
	reqBody := io.Reader(http.NoBody)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func statusError(status int) error {
	if err := WrapError(status); err != nil {
		return err
	}
	return ErrServerError
}
