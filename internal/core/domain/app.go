package domain

import (
	"fmt"
	"strings"
	"time"
)

// App is a registered integration with the directory service. One App maps
// one remote application onto one local company.
type App struct {
	ID          string
	Name        string
	Description string
	// AgentID identifies the app when sending work notifications.
	AgentID   string
	AppKey    string
	AppSecret string
	// CompanyID is the local company every synced record belongs to.
	CompanyID int64
	// SyncWithAccount mirrors employees onto login accounts during sync.
	SyncWithAccount bool
	// CallbackToken and EncodingAESKey verify and decrypt inbound callbacks.
	CallbackToken  string
	EncodingAESKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the fields required to talk to the directory service.
func (a *App) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(a.AgentID) == "" {
		missing = append(missing, "agent_id")
	}
	if strings.TrimSpace(a.AppKey) == "" {
		missing = append(missing, "app_key")
	}
	if strings.TrimSpace(a.AppSecret) == "" {
		missing = append(missing, "app_secret")
	}
	if a.CompanyID <= 0 {
		missing = append(missing, "company_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// CallbackEnabled reports whether inbound callbacks can be verified for this app.
func (a *App) CallbackEnabled() bool {
	return a.CallbackToken != "" && a.EncodingAESKey != ""
}
