package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/logger"
)

// OrgEventHandlers apply directory change events to the local store.
type OrgEventHandlers struct {
	sync     *OrgSync
	clients  driven.DirectoryFactory
	stores   OrgStores
	settings SyncSettings
}

// NewOrgEventHandlers creates the organisation event handlers.
func NewOrgEventHandlers(
	syncs *OrgSync, clients driven.DirectoryFactory, stores OrgStores, settings SyncSettings,
) *OrgEventHandlers {
	return &OrgEventHandlers{
		sync:     syncs,
		clients:  clients,
		stores:   stores,
		settings: settings.withDefaults(),
	}
}

// Register adds every organisation handler to d.
func (h *OrgEventHandlers) Register(d *CallbackDispatcher) {
	d.Register(domain.EventDeptCreate, h.DepartmentsChanged)
	d.Register(domain.EventDeptModify, h.DepartmentsChanged)
	d.Register(domain.EventDeptRemove, h.DepartmentsRemoved)
	d.Register(domain.EventUserAddOrg, h.UsersChanged)
	d.Register(domain.EventUserModifyOrg, h.UsersChanged)
	d.Register(domain.EventUserLeaveOrg, h.UsersLeft)
}

// DepartmentsChanged starts a background re-sync of the named departments
// and returns without waiting for it. A running full sync already covers
// them.
func (h *OrgEventHandlers) DepartmentsChanged(ctx context.Context, app *domain.App, event *domain.CallbackEvent) error {
	if len(event.DeptIDs) == 0 {
		return nil
	}
	runID, err := h.sync.StartDepartments(ctx, app.ID, event.DeptIDs)
	if errors.Is(err, domain.ErrSyncRunning) {
		logger.Info("callback: sync in progress for app %s, skipping departments %v", app.ID, event.DeptIDs)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("callback: started run %s for app %s departments %v", runID, app.ID, event.DeptIDs)
	return nil
}

// DepartmentsRemoved deactivates the employees of removed departments.
func (h *OrgEventHandlers) DepartmentsRemoved(ctx context.Context, app *domain.App, event *domain.CallbackEvent) error {
	if len(event.DeptIDs) == 0 {
		return nil
	}
	mu := h.sync.writeLock(app.ID)
	mu.Lock()
	n, err := h.stores.Employees.DeactivateInDepartments(ctx, event.DeptIDs)
	mu.Unlock()
	if err != nil {
		return fmt.Errorf("deactivate employees: %w", err)
	}
	logger.Info("callback: departments %v removed for app %s, %d employees deactivated", event.DeptIDs, app.ID, n)
	return nil
}

// UsersChanged fetches each user and reconciles it into every department
// already mirrored locally.
func (h *OrgEventHandlers) UsersChanged(ctx context.Context, app *domain.App, event *domain.CallbackEvent) error {
	if len(event.UserIDs) == 0 {
		return nil
	}
	dir, err := h.clients.Directory(app)
	if err != nil {
		return err
	}
	r := NewUserReconciler(app, dir, h.stores, h.settings, h.sync.writeLock(app.ID))

	for _, userID := range event.UserIDs {
		u, err := dir.UserDetail(ctx, userID, h.settings.Language)
		if err != nil {
			return fmt.Errorf("get user %s: %w", userID, err)
		}
		if err := h.applyUser(ctx, r, u); err != nil {
			return err
		}
	}
	return nil
}

func (h *OrgEventHandlers) applyUser(ctx context.Context, r *UserReconciler, u *domain.RemoteUser) error {
	primary, _ := u.PrimaryDeptID()
	applied := 0
	for _, remoteID := range u.DeptIDList {
		dept, err := h.stores.Departments.FindByRemoteID(ctx, remoteID)
		if err != nil {
			return fmt.Errorf("find department %d: %w", remoteID, err)
		}
		if dept == nil {
			continue
		}
		// The detail endpoint only reports leadership of the primary department.
		entry := *u
		entry.Leader = u.Leader && remoteID == primary
		if _, err := r.Apply(ctx, dept, []domain.RemoteUser{entry}); err != nil {
			return err
		}
		applied++
	}
	if applied == 0 {
		logger.Warn("callback: user %s has no synced department among %v", u.UserID, u.DeptIDList)
	}
	return nil
}

// UsersLeft deactivates employees who left the organisation.
func (h *OrgEventHandlers) UsersLeft(ctx context.Context, app *domain.App, event *domain.CallbackEvent) error {
	if len(event.UserIDs) == 0 {
		return nil
	}
	mu := h.sync.writeLock(app.ID)
	mu.Lock()
	n, err := h.stores.Employees.DeactivateByRemoteUserIDs(ctx, event.UserIDs)
	mu.Unlock()
	if err != nil {
		return fmt.Errorf("deactivate employees: %w", err)
	}
	logger.Info("callback: %d users left app %s, %d employees deactivated", len(event.UserIDs), app.ID, n)
	return nil
}
