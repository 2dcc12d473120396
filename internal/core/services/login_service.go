package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/core/ports/driving"
	"github.com/custodia-labs/dingsync/internal/logger"
)

// Ensure Login implements the interface.
var _ driving.LoginService = (*Login)(nil)

// DefaultUserTokenTTL applies when the directory omits a token lifetime.
const DefaultUserTokenTTL = 2 * time.Hour

// Login resolves directory logins to local employees and accounts.
type Login struct {
	apps       driven.AppStore
	clients    driven.DirectoryFactory
	userTokens driven.UserTokenStore
	employees  driven.EmployeeStore
	accounts   driven.AccountStore
	now        func() time.Time
}

// NewLogin creates the login service.
func NewLogin(
	apps driven.AppStore,
	clients driven.DirectoryFactory,
	userTokens driven.UserTokenStore,
	employees driven.EmployeeStore,
	accounts driven.AccountStore,
) *Login {
	return &Login{
		apps:       apps,
		clients:    clients,
		userTokens: userTokens,
		employees:  employees,
		accounts:   accounts,
		now:        time.Now,
	}
}

// AuthURL returns the URL a user visits to log in through app.
func (l *Login) AuthURL(
	ctx context.Context, appID string, kind driven.OAuthKind, redirectURI, state string,
) (string, error) {
	provider, _, err := l.provider(ctx, appID)
	if err != nil {
		return "", err
	}
	return provider.AuthURL(kind, redirectURI, state)
}

// Login exchanges code and maps the user onto an active local employee.
func (l *Login) Login(ctx context.Context, appID, code string) (*driving.LoginResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domain.Preconditionf("authorization code is required")
	}
	provider, app, err := l.provider(ctx, appID)
	if err != nil {
		return nil, err
	}

	token, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	profile, err := provider.UserProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	if profile.UnionID == "" {
		return nil, fmt.Errorf("%w: profile has no union id", domain.ErrRemoteProtocol)
	}

	ttl := DefaultUserTokenTTL
	if !token.Expiry.IsZero() {
		ttl = token.Expiry.Sub(l.now())
	}
	if err := l.userTokens.Save(ctx, app.AppKey, profile.UnionID, token.AccessToken, ttl, time.Time{}); err != nil {
		logger.Warn("login: failed to cache user token for app %s: %v", app.ID, err)
	}

	emp, err := l.employees.FindByUnionID(ctx, profile.UnionID)
	if err != nil {
		return nil, fmt.Errorf("find employee: %w", err)
	}
	if emp == nil || !emp.Active {
		return nil, fmt.Errorf("%w: no active employee for %s", domain.ErrNotFound, profile.Nick)
	}

	acc, err := l.account(ctx, emp)
	if err != nil {
		return nil, err
	}
	logger.Info("login: employee %d logged in through app %s", emp.ID, app.ID)
	return &driving.LoginResult{Profile: *profile, Employee: emp, Account: acc}, nil
}

func (l *Login) provider(ctx context.Context, appID string) (driven.OAuthProvider, *domain.App, error) {
	app, err := l.apps.Get(ctx, appID)
	if err != nil {
		return nil, nil, err
	}
	provider, err := l.clients.OAuth(app)
	if err != nil {
		return nil, nil, err
	}
	return provider, app, nil
}

// account returns the linked account, falling back to the one named after
// the union id. Nil when the employee has none.
func (l *Login) account(ctx context.Context, emp *domain.Employee) (*domain.Account, error) {
	if emp.AccountID != nil {
		acc, err := l.accounts.Get(ctx, *emp.AccountID)
		if err == nil {
			return acc, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("get account: %w", err)
		}
	}
	acc, err := l.accounts.FindByLogin(ctx, emp.RemoteUnionID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return acc, nil
}
