package driving

import (
	"context"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// LoginResult is the outcome of an end-user login.
type LoginResult struct {
	Profile  domain.RemoteProfile
	Employee *domain.Employee
	Account  *domain.Account
}

// LoginService runs end-user logins through the directory.
type LoginService interface {
	AuthURL(ctx context.Context, appID string, kind driven.OAuthKind, redirectURI, state string) (string, error)

	// Login exchanges an authorization code, caches the user token and
	// resolves the local employee and account by union id.
	Login(ctx context.Context, appID, code string) (*LoginResult, error)
}
