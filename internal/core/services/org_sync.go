package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/core/ports/driving"
	"github.com/custodia-labs/dingsync/internal/logger"
	"github.com/custodia-labs/dingsync/internal/metrics"
)

// Ensure OrgSync implements the interface.
var _ driving.SyncService = (*OrgSync)(nil)

// logTimeLayout formats timestamps in sync log details.
const logTimeLayout = "2006-01-02 15:04:05"

// SyncSettings tunes sync runs.
type SyncSettings struct {
	// Concurrency bounds sibling tasks per tree level. Zero means unbounded.
	Concurrency int
	// Language of department and user details.
	Language string
	// PageSize of user listings.
	PageSize int
	// CreateBatch bounds employees created per store call.
	CreateBatch int
	// IncludeRestricted also lists users with restricted visibility.
	IncludeRestricted bool
}

// DefaultSyncSettings returns the default settings.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		Language:    domain.DefaultLanguage,
		PageSize:    domain.DefaultUserPageSize,
		CreateBatch: DefaultCreateBatch,
	}
}

func (s SyncSettings) withDefaults() SyncSettings {
	d := DefaultSyncSettings()
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.PageSize <= 0 {
		s.PageSize = d.PageSize
	}
	if s.CreateBatch <= 0 {
		s.CreateBatch = d.CreateBatch
	}
	if s.Concurrency < 0 {
		s.Concurrency = 0
	}
	return s
}

// OrgSyncDeps are the collaborators of OrgSync.
type OrgSyncDeps struct {
	Apps     driven.AppStore
	Clients  driven.DirectoryFactory
	Stores   OrgStores
	Logs     driven.SyncLogStore
	Notifier driven.Notifier
}

// OrgSync mirrors the remote department tree and its users into the local
// store.
type OrgSync struct {
	deps OrgSyncDeps
	now  func() time.Time

	mu         sync.Mutex
	settings   SyncSettings
	running    map[string]bool
	writeLocks map[string]*sync.Mutex
	wg         sync.WaitGroup
}

// NewOrgSync creates the sync service.
func NewOrgSync(deps OrgSyncDeps, settings SyncSettings) *OrgSync {
	return &OrgSync{
		deps:     deps,
		settings: settings.withDefaults(),
		now:        time.Now,
		running:    make(map[string]bool),
		writeLocks: make(map[string]*sync.Mutex),
	}
}

// Settings returns the settings new runs use.
func (s *OrgSync) Settings() SyncSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the settings of runs started afterwards. Runs in
// progress keep theirs.
func (s *OrgSync) SetSettings(settings SyncSettings) {
	s.mu.Lock()
	s.settings = settings.withDefaults()
	s.mu.Unlock()
}

// Sync runs a full sync of app and blocks until it ends.
func (s *OrgSync) Sync(ctx context.Context, appID string) (*domain.SyncLog, error) {
	app, dir, err := s.prepare(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(app.ID); err != nil {
		return nil, err
	}
	defer s.release(app.ID)
	return s.run(ctx, uuid.NewString(), app, dir, nil), nil
}

// SyncDepartments re-syncs the subtrees rooted at remoteDeptIDs.
func (s *OrgSync) SyncDepartments(ctx context.Context, appID string, remoteDeptIDs []int64) (*domain.SyncLog, error) {
	if len(remoteDeptIDs) == 0 {
		return nil, fmt.Errorf("%w: no departments to sync", domain.ErrInvalidInput)
	}
	app, dir, err := s.prepare(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(app.ID); err != nil {
		return nil, err
	}
	defer s.release(app.ID)
	return s.run(ctx, uuid.NewString(), app, dir, remoteDeptIDs), nil
}

// Start runs a full sync in the background and returns its run id.
func (s *OrgSync) Start(ctx context.Context, appID string) (string, error) {
	return s.start(ctx, appID, nil)
}

// StartDepartments runs SyncDepartments in the background and returns its
// run id. The run outlives ctx.
func (s *OrgSync) StartDepartments(ctx context.Context, appID string, remoteDeptIDs []int64) (string, error) {
	if len(remoteDeptIDs) == 0 {
		return "", fmt.Errorf("%w: no departments to sync", domain.ErrInvalidInput)
	}
	return s.start(ctx, appID, remoteDeptIDs)
}

func (s *OrgSync) start(ctx context.Context, appID string, roots []int64) (string, error) {
	app, dir, err := s.prepare(ctx, appID)
	if err != nil {
		return "", err
	}
	if err := s.acquire(app.ID); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(app.ID)
		s.run(runCtx, runID, app, dir, roots)
	}()
	return runID, nil
}

// Wait blocks until every background run has finished.
func (s *OrgSync) Wait() {
	s.wg.Wait()
}

// Logs lists recorded runs, newest first.
func (s *OrgSync) Logs(ctx context.Context, appID string, limit int) ([]domain.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.deps.Logs.List(ctx, appID, limit)
}

func (s *OrgSync) prepare(ctx context.Context, appID string) (*domain.App, driven.Directory, error) {
	app, err := s.deps.Apps.Get(ctx, appID)
	if err != nil {
		return nil, nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, nil, err
	}
	dir, err := s.deps.Clients.Directory(app)
	if err != nil {
		return nil, nil, err
	}
	return app, dir, nil
}

func (s *OrgSync) acquire(appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[appID] {
		return fmt.Errorf("%w: %s", domain.ErrSyncRunning, appID)
	}
	s.running[appID] = true
	return nil
}

func (s *OrgSync) release(appID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, appID)
}

// writeLock returns the lock serialising local employee writes of appID,
// shared by sync runs and event handlers.
func (s *OrgSync) writeLock(appID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.writeLocks[appID]
	if !ok {
		mu = &sync.Mutex{}
		s.writeLocks[appID] = mu
	}
	return mu
}

// run is the failure boundary of a sync: any error or panic becomes a
// failed log entry, and the finish notification is always sent.
func (s *OrgSync) run(
	ctx context.Context, runID string, app *domain.App, dir driven.Directory, roots []int64,
) *domain.SyncLog {
	started := s.now()
	entry := &domain.SyncLog{
		ID:        runID,
		AppID:     app.ID,
		CompanyID: app.CompanyID,
		StartedAt: started,
	}

	var detail strings.Builder
	fmt.Fprintf(&detail, "start sync at %s......", started.Format(logTimeLayout))
	logger.Info("sync: run %s started for app %s", runID, app.ID)
	s.deps.Notifier.SyncStarted(ctx, app)

	job := newSyncJob(app, dir, s.deps.Stores, s.Settings(), s.writeLock(app.ID))
	err := guard(func() error { return job.execute(ctx, roots) })

	finished := s.now()
	entry.FinishedAt = finished
	entry.Success = err == nil
	if err != nil {
		fmt.Fprintf(&detail, "\nsync failed, error: \n%v", err)
		logger.Error("sync: run %s failed for app %s: %v", runID, app.ID, err)
	} else {
		st := job.stats
		fmt.Fprintf(&detail, "\nsync success!\ndepartments: %d, created: %d, updated: %d, deactivated: %d",
			st.Departments, st.Created, st.Updated, st.Deactivated)
		logger.Info("sync: run %s succeeded for app %s - %d departments, %d created, %d updated, %d deactivated",
			runID, app.ID, st.Departments, st.Created, st.Updated, st.Deactivated)
	}
	fmt.Fprintf(&detail, "\nsync end at %s, cost %.2fs", finished.Format(logTimeLayout), finished.Sub(started).Seconds())
	entry.Detail = detail.String()

	// Recording must survive a cancelled run.
	recordCtx := context.WithoutCancel(ctx)
	if err := s.deps.Logs.Save(recordCtx, entry); err != nil {
		logger.Error("sync: failed to save log of run %s: %v", runID, err)
	}
	metrics.ObserveSyncRun(app.ID, entry.Duration(), entry.Success)
	metrics.AddSyncedEmployees(app.ID, job.stats.Created, job.stats.Updated)
	s.deps.Notifier.SyncFinished(recordCtx, app, entry)
	return entry
}

// guard runs fn and turns a panic into an error carrying the stack.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// syncJob is the state of one sync run.
type syncJob struct {
	app         *domain.App
	dir         driven.Directory
	stores      OrgStores
	settings    SyncSettings
	reconciler  *UserReconciler
	resolveRoot bool

	// writeMu serialises local store writes across concurrent departments.
	writeMu *sync.Mutex
	stats   domain.SyncStats
}

func newSyncJob(
	app *domain.App, dir driven.Directory, stores OrgStores, settings SyncSettings, writeMu *sync.Mutex,
) *syncJob {
	j := &syncJob{
		app:      app,
		dir:      dir,
		stores:   stores,
		settings: settings,
		writeMu:  writeMu,
	}
	j.reconciler = NewUserReconciler(app, dir, stores, settings, writeMu)
	return j
}

// execute syncs the subtrees under roots, or every authorised department
// when roots is nil.
func (j *syncJob) execute(ctx context.Context, roots []int64) error {
	if roots == nil {
		scopes, err := j.dir.GetAuthScopes(ctx)
		if err != nil {
			return fmt.Errorf("get auth scopes: %w", err)
		}
		roots = scopes.AuthOrgScopes.AuthedDept
	} else {
		// Partial syncs attach subtrees under their existing local parents.
		j.resolveRoot = true
	}

	var (
		visitedMu sync.Mutex
		visited   []int64
	)
	tree, err := DiscoverTree(ctx, j.dir, roots, j.settings.Concurrency, func(id int64) {
		visitedMu.Lock()
		visited = append(visited, id)
		visitedMu.Unlock()
	})
	if err != nil {
		return err
	}

	n, err := j.stores.Employees.DeactivateInDepartments(ctx, visited)
	if err != nil {
		return fmt.Errorf("deactivate employees: %w", err)
	}
	j.stats.Deactivated = n
	logger.Debug("sync: discovered %d departments for app %s, %d employees deactivated", len(visited), j.app.ID, n)

	return j.materialize(ctx, tree, nil)
}

// DiscoverTree fetches the department id tree under ids. onVisit is called
// with each id before its children are fetched; it may be called from
// several goroutines. Siblings are fetched concurrently, at most limit at a
// time when limit is positive, and returned in input order.
func DiscoverTree(
	ctx context.Context, dir driven.Directory, ids []int64, limit int, onVisit func(int64),
) ([]domain.DepartmentNode, error) {
	nodes := make([]domain.DepartmentNode, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, id := range ids {
		if onVisit != nil {
			onVisit(id)
		}
		g.Go(func() error {
			return guard(func() error {
				sub, err := dir.DepartmentSubIDs(gctx, id)
				if err != nil {
					return fmt.Errorf("list sub departments of %d: %w", id, err)
				}
				children, err := DiscoverTree(gctx, dir, sub, limit, onVisit)
				if err != nil {
					return err
				}
				nodes[i] = domain.DepartmentNode{RemoteID: id, Children: children}
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// materialize upserts nodes concurrently under parentID. Each node's
// children start only after the node and its users are committed.
func (j *syncJob) materialize(ctx context.Context, nodes []domain.DepartmentNode, parentID *int64) error {
	g, gctx := errgroup.WithContext(ctx)
	if j.settings.Concurrency > 0 {
		g.SetLimit(j.settings.Concurrency)
	}
	for _, node := range nodes {
		g.Go(func() error {
			return guard(func() error { return j.materializeNode(gctx, node, parentID) })
		})
	}
	return g.Wait()
}

func (j *syncJob) materializeNode(ctx context.Context, node domain.DepartmentNode, parentID *int64) error {
	detail, err := j.dir.DepartmentDetail(ctx, node.RemoteID, j.settings.Language)
	if err != nil {
		return fmt.Errorf("get department %d: %w", node.RemoteID, err)
	}

	dept, err := j.upsertDepartment(ctx, detail, parentID)
	if err != nil {
		return err
	}

	res, err := j.reconciler.Reconcile(ctx, dept, detail.DeptID)
	if err != nil {
		return err
	}
	j.writeMu.Lock()
	j.stats.Created += res.Created
	j.stats.Updated += res.Updated
	j.writeMu.Unlock()

	if len(node.Children) == 0 {
		return nil
	}
	return j.materialize(ctx, node.Children, domain.Int64Ptr(dept.ID))
}

// upsertDepartment creates or overwrites the department matching the remote
// id. The manager is left as is.
func (j *syncJob) upsertDepartment(
	ctx context.Context, detail *domain.RemoteDepartment, parentID *int64,
) (*domain.Department, error) {
	j.writeMu.Lock()
	defer j.writeMu.Unlock()

	if parentID == nil && j.resolveRoot && detail.ParentID != nil {
		parent, err := j.stores.Departments.FindByRemoteID(ctx, *detail.ParentID)
		if err != nil {
			return nil, fmt.Errorf("find parent department %d: %w", *detail.ParentID, err)
		}
		if parent != nil {
			parentID = domain.Int64Ptr(parent.ID)
		}
	}

	dept, err := j.stores.Departments.FindByRemoteID(ctx, detail.DeptID)
	if err != nil {
		return nil, fmt.Errorf("find department %d: %w", detail.DeptID, err)
	}
	created := dept == nil
	if created {
		dept = &domain.Department{RemoteID: detail.DeptID}
	}
	dept.Name = detail.Name
	dept.RemoteParentID = detail.ParentID
	dept.RemoteOrder = detail.Order
	dept.ParentID = parentID
	dept.CompanyID = j.app.CompanyID

	if created {
		err = j.stores.Departments.Create(ctx, dept)
	} else {
		err = j.stores.Departments.Update(ctx, dept)
	}
	if err != nil {
		return nil, fmt.Errorf("save department %d: %w", detail.DeptID, err)
	}
	j.stats.Departments++
	return dept, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
