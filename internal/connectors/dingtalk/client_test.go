package dingtalk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/tokencache"
)

// fakeServer records requests and serves canned handlers per path.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
	bodies   map[string][]map[string]any
	tokens   atomic.Int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		t:        t,
		handlers: map[string]http.HandlerFunc{},
		hits:     map[string]int{},
		bodies:   map[string][]map[string]any{},
	}
	f.handle("/gettoken", func(w http.ResponseWriter, r *http.Request) {
		f.tokens.Add(1)
		if r.URL.Query().Get("appkey") != "key" || r.URL.Query().Get("appsecret") != "secret" {
			writeJSON(w, map[string]any{"errcode": 40089, "errmsg": "invalid appkey"})
			return
		}
		writeJSON(w, map[string]any{"errcode": 0, "errmsg": "ok", "access_token": "tok-1", "expires_in": 7200})
	})
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.hits[r.URL.Path]++
	if len(raw) > 0 {
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err == nil {
			f.bodies[r.URL.Path] = append(f.bodies[r.URL.Path], body)
		}
	}
	h, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeServer) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeServer) lastBody(path string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bodies[path]
	if len(b) == 0 {
		return nil
	}
	return b[len(b)-1]
}

func (f *fakeServer) config() Config {
	return Config{
		BaseURL:      f.srv.URL,
		APIBaseURL:   f.srv.URL,
		LoginBaseURL: f.srv.URL,
		RateLimit:    RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000},
	}
}

func (f *fakeServer) client() *Client {
	return NewClient("key", "secret", tokencache.New(), nil, f.config())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestLatestToken_FetchesOnceAndCaches(t *testing.T) {
	f := newFakeServer(t)
	c := f.client()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		token, err := c.LatestToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	}
	assert.Equal(t, int32(1), f.tokens.Load())

	cached, ok, err := c.tokens.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", cached)
}

func TestLatestToken_SharedCacheAcrossClients(t *testing.T) {
	f := newFakeServer(t)
	cache := tokencache.New()
	ctx := context.Background()

	_, err := NewClient("key", "secret", cache, nil, f.config()).LatestToken(ctx)
	require.NoError(t, err)
	_, err = NewClient("key", "secret", cache, nil, f.config()).LatestToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.tokens.Load())
}

func TestLatestToken_BadCredentials(t *testing.T) {
	f := newFakeServer(t)
	c := NewClient("key", "wrong", tokencache.New(), nil, f.config())

	_, err := c.LatestToken(context.Background())
	require.Error(t, err)

	var rpe *domain.RemoteProtocolError
	require.ErrorAs(t, err, &rpe)
	assert.Equal(t, int64(40089), rpe.Code)
	assert.Equal(t, "invalid appkey", rpe.Error())
}

func TestCall_ErrorEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantErr string
	}{
		{
			name:    "non-zero errcode",
			payload: map[string]any{"errcode": 1, "errmsg": "x"},
			wantErr: "x",
		},
		{
			name: "zero errcode passes through",
			payload: map[string]any{
				"errcode": 0, "errmsg": "ok",
				"auth_user_field": []string{"name"},
				"auth_org_scopes": map[string]any{"authed_dept": []int64{1, 2}, "authed_user": []string{}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeServer(t)
			f.handle("/auth/scopes", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.payload)
			})

			scopes, err := f.client().GetAuthScopes(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrRemoteProtocol)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"name"}, scopes.AuthUserField)
			assert.Equal(t, []int64{1, 2}, scopes.AuthOrgScopes.AuthedDept)
		})
	}
}

func TestCall_CustomSuccessCode(t *testing.T) {
	f := newFakeServer(t)
	f.handle("/gettoken", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"errcode": 7, "access_token": "tok-7", "expires_in": 60})
	})
	cfg := f.config()
	cfg.SuccessCode = 7

	token, err := NewClient("key", "secret", tokencache.New(), nil, cfg).LatestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-7", token)
}

func TestCall_HTTPStatus(t *testing.T) {
	f := newFakeServer(t)
	f.handle("/auth/scopes", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := f.client().GetAuthScopes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
}

func TestCall_RejectedTokenIsDropped(t *testing.T) {
	f := newFakeServer(t)
	f.handle("/auth/scopes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"errcode": errCodeExpiredToken, "errmsg": "token expired"})
	})
	c := f.client()
	ctx := context.Background()

	_, err := c.GetAuthScopes(ctx)
	require.Error(t, err)

	_, ok, err := c.tokens.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCall_ThrottledSetsBackoff(t *testing.T) {
	f := newFakeServer(t)
	f.handle("/auth/scopes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"errcode": errCodeThrottled, "errmsg": "too many"})
	})
	c := f.client()

	_, err := c.GetAuthScopes(context.Background())
	require.Error(t, err)
	assert.True(t, IsThrottled(err))
	assert.False(t, c.limiter.Allow())
}

func TestCall_ContextCancelled(t *testing.T) {
	f := newFakeServer(t)
	f.handle("/auth/scopes", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, map[string]any{"errcode": 0})
	})
	c := f.client()
	_, err := c.LatestToken(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.GetAuthScopes(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPClient_FreshTransport(t *testing.T) {
	c := NewClient("key", "secret", tokencache.New(), nil, Config{})

	a, b := c.httpClient(), c.httpClient()
	assert.NotSame(t, a.Transport, b.Transport)

	tr, ok := a.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, tr.DisableKeepAlives)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)

	secure := NewClient("key", "secret", tokencache.New(), nil, Config{VerifyTLS: true})
	tr = secure.httpClient().Transport.(*http.Transport)
	assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{BaseURL: "http://local"}.withDefaults()

	assert.Equal(t, "http://local", cfg.BaseURL)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, DefaultLoginBaseURL, cfg.LoginBaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimit)
}
