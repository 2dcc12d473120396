// Package driven defines the ports the core uses to reach storage, the
// remote directory and other outbound collaborators.
package driven

import (
	"context"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// AppStore persists integration apps.
type AppStore interface {
	Save(ctx context.Context, app *domain.App) error
	// Get returns domain.ErrAppNotFound when no app has the id.
	Get(ctx context.Context, id string) (*domain.App, error)
	List(ctx context.Context) ([]domain.App, error)
	Delete(ctx context.Context, id string) error
}

// DepartmentStore persists local departments.
type DepartmentStore interface {
	// FindByRemoteID returns nil without error when no department matches.
	FindByRemoteID(ctx context.Context, remoteID int64) (*domain.Department, error)
	// Create inserts the department and sets its ID.
	Create(ctx context.Context, dept *domain.Department) error
	// Update overwrites every field except ManagerID.
	Update(ctx context.Context, dept *domain.Department) error
	SetManager(ctx context.Context, deptID, employeeID int64) error
}

// EmployeeStore persists local employees and their department membership.
type EmployeeStore interface {
	// FindByUnionID matches active and inactive employees. Returns nil
	// without error when none matches.
	FindByUnionID(ctx context.Context, unionID string) (*domain.Employee, error)
	FindByIDs(ctx context.Context, ids []int64) ([]domain.Employee, error)
	// CreateMany inserts the employees, their memberships, and sets IDs.
	CreateMany(ctx context.Context, emps []*domain.Employee) error
	// Update overwrites scalar fields and adds any missing membership links.
	Update(ctx context.Context, emp *domain.Employee) error
	// DeactivateInDepartments marks inactive every employee linked to a
	// department whose remote id is in remoteDeptIDs.
	DeactivateInDepartments(ctx context.Context, remoteDeptIDs []int64) (int64, error)
	DeactivateByRemoteUserIDs(ctx context.Context, userIDs []string) (int64, error)
}

// JobStore persists job titles.
type JobStore interface {
	FindOrCreate(ctx context.Context, name string, companyID int64) (*domain.Job, error)
}

// AccountStore persists login accounts.
type AccountStore interface {
	Get(ctx context.Context, id int64) (*domain.Account, error)
	// FindByLogin matches active and inactive accounts; nil when none.
	FindByLogin(ctx context.Context, login string) (*domain.Account, error)
	Create(ctx context.Context, acc *domain.Account) error
	Update(ctx context.Context, acc *domain.Account) error
}

// SyncLogStore persists sync run records.
type SyncLogStore interface {
	Save(ctx context.Context, log *domain.SyncLog) error
	// List returns the newest logs first; appID "" lists every app.
	List(ctx context.Context, appID string, limit int) ([]domain.SyncLog, error)
}
