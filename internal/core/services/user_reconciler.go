package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/logger"
)

// DefaultCreateBatch is the largest number of employees created per store call.
const DefaultCreateBatch = 500

// OrgStores groups the local record stores a sync writes to.
type OrgStores struct {
	Departments driven.DepartmentStore
	Employees   driven.EmployeeStore
	Jobs        driven.JobStore
	Accounts    driven.AccountStore
}

// ReconcileResult counts what one department reconciliation touched.
type ReconcileResult struct {
	Fetched int
	Created int
	Updated int
	// ManagerID is the local employee set as manager, nil when no user was
	// flagged as leader.
	ManagerID *int64
}

// UserReconciler turns remote department user listings into local
// employee upserts.
type UserReconciler struct {
	app      *domain.App
	dir      driven.Directory
	stores   OrgStores
	settings SyncSettings
	// mu serialises store writes between concurrently reconciled departments.
	mu *sync.Mutex
}

// NewUserReconciler creates a reconciler for app. A nil mu gets a private lock.
func NewUserReconciler(
	app *domain.App, dir driven.Directory, stores OrgStores, settings SyncSettings, mu *sync.Mutex,
) *UserReconciler {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &UserReconciler{
		app:      app,
		dir:      dir,
		stores:   stores,
		settings: settings.withDefaults(),
		mu:       mu,
	}
}

// Reconcile fetches every user of remoteDeptID and reconciles them into dept.
func (r *UserReconciler) Reconcile(
	ctx context.Context, dept *domain.Department, remoteDeptID int64,
) (*ReconcileResult, error) {
	users, err := r.FetchUsers(ctx, remoteDeptID)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, dept, users)
}

// FetchUsers follows the cursor until the last page and returns the users
// of all pages in order.
func (r *UserReconciler) FetchUsers(ctx context.Context, remoteDeptID int64) ([]domain.RemoteUser, error) {
	opts := domain.UserListOptions{
		Size:              r.settings.PageSize,
		Language:          r.settings.Language,
		IncludeRestricted: r.settings.IncludeRestricted,
	}

	var users []domain.RemoteUser
	for {
		page, err := r.dir.DepartmentUsers(ctx, remoteDeptID, opts)
		if err != nil {
			return nil, fmt.Errorf("list users of department %d: %w", remoteDeptID, err)
		}
		users = append(users, page.List...)
		if page.NextCursor == nil {
			return users, nil
		}
		opts.Cursor = *page.NextCursor
	}
}

// Apply reconciles users into dept. Existing employees, active or not, are
// matched by union id and updated in place; the rest are created in batches.
// The first user flagged as leader becomes the department manager.
func (r *UserReconciler) Apply(
	ctx context.Context, dept *domain.Department, users []domain.RemoteUser,
) (*ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &ReconcileResult{Fetched: len(users)}
	var (
		toCreate      []*domain.Employee
		staged        = make(map[string]*domain.Employee)
		managerUnion  string
		primaryByDept = map[int64]*int64{dept.RemoteID: &dept.ID}
	)

	for i := range users {
		u := &users[i]
		if u.UnionID == "" {
			logger.Warn("sync: skipping user %s of department %d without union id", u.UserID, dept.RemoteID)
			continue
		}

		jobID, err := r.resolveJob(ctx, u.Title)
		if err != nil {
			return nil, err
		}
		primaryID, err := r.resolvePrimary(ctx, u, primaryByDept)
		if err != nil {
			return nil, err
		}

		if emp, ok := staged[u.UnionID]; ok {
			r.fill(emp, u, dept, jobID, primaryID)
		} else {
			emp, err := r.stores.Employees.FindByUnionID(ctx, u.UnionID)
			if err != nil {
				return nil, fmt.Errorf("find employee %s: %w", u.UnionID, err)
			}
			if emp == nil {
				emp = &domain.Employee{RemoteUnionID: u.UnionID}
				r.fill(emp, u, dept, jobID, primaryID)
				staged[u.UnionID] = emp
				toCreate = append(toCreate, emp)
			} else {
				r.fill(emp, u, dept, jobID, primaryID)
				if err := r.update(ctx, emp); err != nil {
					return nil, err
				}
				res.Updated++
			}
		}

		if bool(u.Leader) && managerUnion == "" {
			managerUnion = u.UnionID
		}
	}

	if err := r.create(ctx, toCreate); err != nil {
		return nil, err
	}
	res.Created = len(toCreate)

	if managerUnion != "" {
		manager, err := r.stores.Employees.FindByUnionID(ctx, managerUnion)
		if err != nil {
			return nil, fmt.Errorf("find manager %s: %w", managerUnion, err)
		}
		if manager != nil {
			if err := r.stores.Departments.SetManager(ctx, dept.ID, manager.ID); err != nil {
				return nil, fmt.Errorf("set manager of department %d: %w", dept.RemoteID, err)
			}
			dept.ManagerID = domain.Int64Ptr(manager.ID)
			res.ManagerID = dept.ManagerID
		}
	}

	logger.Debug("sync: department %d reconciled - %d fetched, %d created, %d updated",
		dept.RemoteID, res.Fetched, res.Created, res.Updated)
	return res, nil
}

func (r *UserReconciler) resolveJob(ctx context.Context, title string) (*int64, error) {
	if title == "" {
		return nil, nil
	}
	job, err := r.stores.Jobs.FindOrCreate(ctx, title, r.app.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("resolve job %q: %w", title, err)
	}
	return domain.Int64Ptr(job.ID), nil
}

// resolvePrimary maps the first listed remote department to a local id. A
// department not yet materialised resolves to nil.
func (r *UserReconciler) resolvePrimary(
	ctx context.Context, u *domain.RemoteUser, cache map[int64]*int64,
) (*int64, error) {
	remoteID, ok := u.PrimaryDeptID()
	if !ok {
		return nil, nil
	}
	if id, ok := cache[remoteID]; ok {
		return id, nil
	}
	dept, err := r.stores.Departments.FindByRemoteID(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("find department %d: %w", remoteID, err)
	}
	var id *int64
	if dept != nil {
		id = domain.Int64Ptr(dept.ID)
	}
	cache[remoteID] = id
	return id, nil
}

func (r *UserReconciler) fill(
	emp *domain.Employee, u *domain.RemoteUser, dept *domain.Department, jobID, primaryID *int64,
) {
	emp.RemoteUserID = u.UserID
	emp.CompanyID = r.app.CompanyID
	emp.Name = u.Name
	emp.DepartmentID = primaryID
	if !emp.HasDepartment(dept.ID) {
		emp.DepartmentIDs = append(emp.DepartmentIDs, dept.ID)
	}
	emp.JobID = jobID
	emp.Email = u.Email
	emp.Mobile = u.Mobile
	emp.Extension = u.ExtensionJSON()
	// Presence in the listing is what reactivates a deactivated employee.
	emp.Active = true
}

func (r *UserReconciler) update(ctx context.Context, emp *domain.Employee) error {
	if r.app.SyncWithAccount {
		if err := r.mirrorAccount(ctx, emp); err != nil {
			return err
		}
	}
	if err := r.stores.Employees.Update(ctx, emp); err != nil {
		return fmt.Errorf("update employee %s: %w", emp.RemoteUnionID, err)
	}
	return nil
}

func (r *UserReconciler) create(ctx context.Context, emps []*domain.Employee) error {
	batch := r.settings.CreateBatch
	for start := 0; start < len(emps); start += batch {
		end := min(start+batch, len(emps))
		chunk := emps[start:end]
		if r.app.SyncWithAccount {
			for _, emp := range chunk {
				if err := r.mirrorAccount(ctx, emp); err != nil {
					return err
				}
			}
		}
		if err := r.stores.Employees.CreateMany(ctx, chunk); err != nil {
			return fmt.Errorf("create employees: %w", err)
		}
	}
	return nil
}

// mirrorAccount links emp to a login account named after its union id,
// creating or reviving the account and copying name and active state.
func (r *UserReconciler) mirrorAccount(ctx context.Context, emp *domain.Employee) error {
	var (
		acc *domain.Account
		err error
	)
	if emp.AccountID != nil {
		acc, err = r.stores.Accounts.Get(ctx, *emp.AccountID)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("get account %d: %w", *emp.AccountID, err)
		}
	}
	if acc == nil {
		acc, err = r.stores.Accounts.FindByLogin(ctx, emp.RemoteUnionID)
		if err != nil {
			return fmt.Errorf("find account %s: %w", emp.RemoteUnionID, err)
		}
	}

	if acc == nil {
		acc = &domain.Account{
			Login:     emp.RemoteUnionID,
			Name:      emp.Name,
			CompanyID: r.app.CompanyID,
			Active:    emp.Active,
		}
		if err := r.stores.Accounts.Create(ctx, acc); err != nil {
			return fmt.Errorf("create account %s: %w", acc.Login, err)
		}
	} else if acc.Name != emp.Name || acc.Active != emp.Active {
		acc.Name = emp.Name
		acc.Active = emp.Active
		if err := r.stores.Accounts.Update(ctx, acc); err != nil {
			return fmt.Errorf("update account %s: %w", acc.Login, err)
		}
	}
	emp.AccountID = domain.Int64Ptr(acc.ID)
	return nil
}
