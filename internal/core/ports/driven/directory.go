package driven

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// Directory is the remote organisation directory as seen by the sync engine.
type Directory interface {
	GetAuthScopes(ctx context.Context) (*domain.AuthScopes, error)
	// DepartmentSubIDs lists child department ids; deptID 0 means the root.
	DepartmentSubIDs(ctx context.Context, deptID int64) ([]int64, error)
	DepartmentDetail(ctx context.Context, deptID int64, language string) (*domain.RemoteDepartment, error)
	DepartmentUsers(ctx context.Context, deptID int64, opts domain.UserListOptions) (*domain.RemoteUserPage, error)
	UserDetail(ctx context.Context, userID, language string) (*domain.RemoteUser, error)
}

// Messenger sends work notifications.
type Messenger interface {
	// SendMessage returns the remote task id.
	SendMessage(ctx context.Context, agentID string, msg domain.Message) (string, error)
}

// OAuthKind selects the login flow an authorisation URL is built for.
type OAuthKind string

const (
	// OAuthWeb redirects the browser to the directory's consent page.
	OAuthWeb OAuthKind = "web"
	// OAuthScan renders a QR code the mobile app scans.
	OAuthScan OAuthKind = "scan"
)

// OAuthProvider runs the end-user login flows of one app.
type OAuthProvider interface {
	AuthURL(kind OAuthKind, redirectURI, state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	UserProfile(ctx context.Context, accessToken string) (*domain.RemoteProfile, error)
	// ExchangeCodeSigned resolves a code through the legacy signed endpoint.
	ExchangeCodeSigned(ctx context.Context, code string) (*domain.RemoteProfile, error)
}

// DirectoryFactory builds remote clients for an app. Implementations share
// token caches between clients of the same app key.
type DirectoryFactory interface {
	Directory(app *domain.App) (Directory, error)
	Messenger(app *domain.App) (Messenger, error)
	OAuth(app *domain.App) (OAuthProvider, error)
}
