package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestInit_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestObservations_AreExported(t *testing.T) {
	Init()

	ObserveRemoteCall("gettoken", time.Now(), nil)
	ObserveRemoteCall("user_list", time.Now(), errors.New("boom"))
	ObserveSyncRun("app-1", 3*time.Second, true)
	AddSyncedEmployees("app-1", 2, 0)
	ObserveCallback("", nil)

	out := scrape(t)
	assert.Contains(t, out, `dingsync_remote_calls_total{endpoint="gettoken",outcome="success"}`)
	assert.Contains(t, out, `dingsync_remote_calls_total{endpoint="user_list",outcome="failure"}`)
	assert.Contains(t, out, `dingsync_sync_runs_total{app="app-1",outcome="success"}`)
	assert.Contains(t, out, `dingsync_synced_employees_total{action="created",app="app-1"}`)
	assert.NotContains(t, out, `action="updated",app="app-1"`)
	assert.Contains(t, out, `dingsync_callbacks_total{event="unknown",outcome="success"}`)
}

func TestInstrument_RecordsStatus(t *testing.T) {
	Init()

	h := Instrument("/teapot", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", http.NoBody))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, scrape(t), `route="/teapot",status="418"`)
}
