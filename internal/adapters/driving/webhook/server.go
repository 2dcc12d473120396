// Package webhook serves the HTTP endpoints the directory and end users call:
// encrypted event callbacks, OAuth login, sync triggers and metrics.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/core/ports/driving"
	"github.com/custodia-labs/dingsync/internal/logger"
	"github.com/custodia-labs/dingsync/internal/metrics"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Services are the core operations behind the routes.
type Services struct {
	Callbacks driving.CallbackService
	Login     driving.LoginService
	Sync      driving.SyncService
}

// Server routes requests to the core services.
type Server struct {
	services  Services
	publicURL string
	router    *mux.Router
}

// NewServer builds the router. publicURL is the externally reachable base
// used for OAuth redirects; when empty it is derived from each request.
func NewServer(services Services, publicURL string) *Server {
	s := &Server{
		services:  services,
		publicURL: strings.TrimRight(publicURL, "/"),
		router:    mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("/health", "health", s.health, http.MethodGet)
	s.handle("/callback/{app}", "callback", s.callback, http.MethodPost)
	s.handle("/oauth/{app}/authorize", "oauth_authorize", s.authorize, http.MethodGet)
	s.handle("/oauth/{app}/login", "oauth_login", s.login, http.MethodGet)
	s.handle("/apps/{app}/sync", "sync", s.startSync, http.MethodPost)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

func (s *Server) handle(path, route string, fn http.HandlerFunc, methods ...string) {
	s.router.Handle(path, metrics.Instrument(route, fn)).Methods(methods...)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("server: stopped")
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type callbackBody struct {
	Encrypt string `json:"encrypt"`
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	var body callbackBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: decode callback body: %v", domain.ErrInvalidInput, err))
		return
	}

	q := r.URL.Query()
	signature := q.Get("msg_signature")
	if signature == "" {
		signature = q.Get("signature")
	}
	req := driving.CallbackRequest{
		Signature: signature,
		Timestamp: q.Get("timestamp"),
		Nonce:     q.Get("nonce"),
		Encrypt:   body.Encrypt,
	}

	reply, err := s.services.Callbacks.Handle(r.Context(), mux.Vars(r)["app"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["app"]
	q := r.URL.Query()
	kind := driven.OAuthKind(q.Get("kind"))
	redirect := s.baseURL(r) + "/oauth/" + appID + "/login"

	target, err := s.services.Login.AuthURL(r.Context(), appID, kind, redirect, q.Get("state"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type loginResponse struct {
	UnionID    string `json:"union_id"`
	Nick       string `json:"nick"`
	EmployeeID int64  `json:"employee_id,omitempty"`
	Name       string `json:"name,omitempty"`
	AccountID  int64  `json:"account_id,omitempty"`
	Login      string `json:"login,omitempty"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// Web login answers with authCode, scan login with code.
	code := q.Get("authCode")
	if code == "" {
		code = q.Get("code")
	}

	result, err := s.services.Login.Login(r.Context(), mux.Vars(r)["app"], code)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := loginResponse{UnionID: result.Profile.UnionID, Nick: result.Profile.Nick}
	if result.Employee != nil {
		resp.EmployeeID = result.Employee.ID
		resp.Name = result.Employee.Name
	}
	if result.Account != nil {
		resp.AccountID = result.Account.ID
		resp.Login = result.Account.Login
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) startSync(w http.ResponseWriter, r *http.Request) {
	runID, err := s.services.Sync.Start(r.Context(), mux.Vars(r)["app"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAppNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVerification):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrPrecondition),
		errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSyncRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRemoteProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("server: request failed: %v", err)
	} else {
		logger.Debug("server: request rejected with %d: %v", status, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("server: write response: %v", err)
	}
}
