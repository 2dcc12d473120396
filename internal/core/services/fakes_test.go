package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// fakeDirectory serves a fixed department tree. Department details default
// to a name derived from the id and the parent found in children.
type fakeDirectory struct {
	mu sync.Mutex

	scopes   []int64
	children map[int64][]int64
	users    map[int64][][]domain.RemoteUser
	details  map[string]*domain.RemoteUser
	delays   map[int64]time.Duration

	failSub    map[int64]error
	failDetail map[int64]error
	panicOn    int64

	userCalls []domain.UserListOptions
	subCalls  []int64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		children:   make(map[int64][]int64),
		users:      make(map[int64][][]domain.RemoteUser),
		details:    make(map[string]*domain.RemoteUser),
		delays:     make(map[int64]time.Duration),
		failSub:    make(map[int64]error),
		failDetail: make(map[int64]error),
	}
}

func (f *fakeDirectory) GetAuthScopes(_ context.Context) (*domain.AuthScopes, error) {
	return &domain.AuthScopes{AuthOrgScopes: domain.AuthOrgScopes{AuthedDept: f.scopes}}, nil
}

func (f *fakeDirectory) DepartmentSubIDs(ctx context.Context, deptID int64) ([]int64, error) {
	f.mu.Lock()
	f.subCalls = append(f.subCalls, deptID)
	delay := f.delays[deptID]
	err := f.failSub[deptID]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return slices.Clone(f.children[deptID]), nil
}

func (f *fakeDirectory) DepartmentDetail(_ context.Context, deptID int64, _ string) (*domain.RemoteDepartment, error) {
	if deptID == f.panicOn && deptID != 0 {
		panic(fmt.Sprintf("boom %d", deptID))
	}
	if err := f.failDetail[deptID]; err != nil {
		return nil, err
	}
	d := &domain.RemoteDepartment{DeptID: deptID, Name: fmt.Sprintf("dept-%d", deptID), Order: deptID}
	for parent, kids := range f.children {
		if slices.Contains(kids, deptID) {
			d.ParentID = domain.Int64Ptr(parent)
		}
	}
	return d, nil
}

func (f *fakeDirectory) DepartmentUsers(
	_ context.Context, deptID int64, opts domain.UserListOptions,
) (*domain.RemoteUserPage, error) {
	f.mu.Lock()
	f.userCalls = append(f.userCalls, opts)
	f.mu.Unlock()

	pages := f.users[deptID]
	idx := int(opts.Cursor)
	if idx >= len(pages) {
		return &domain.RemoteUserPage{}, nil
	}
	page := &domain.RemoteUserPage{List: slices.Clone(pages[idx])}
	if idx+1 < len(pages) {
		page.HasMore = true
		page.NextCursor = domain.Int64Ptr(int64(idx + 1))
	}
	return page, nil
}

func (f *fakeDirectory) UserDetail(_ context.Context, userID, _ string) (*domain.RemoteUser, error) {
	u, ok := f.details[userID]
	if !ok {
		return nil, &domain.RemoteProtocolError{Code: 60121, Message: "user not found"}
	}
	cp := *u
	return &cp, nil
}

func (f *fakeDirectory) subCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subCalls)
}

// memDB is an in-memory record store. Every write is appended to events.
type memDB struct {
	mu     sync.Mutex
	nextID int64

	depts    map[int64]*domain.Department
	emps     map[int64]*domain.Employee
	jobs     map[int64]*domain.Job
	accounts map[int64]*domain.Account
	apps     map[string]*domain.App
	logs     []domain.SyncLog

	events      []string
	createSizes []int
}

func newMemDB() *memDB {
	return &memDB{
		depts:    make(map[int64]*domain.Department),
		emps:     make(map[int64]*domain.Employee),
		jobs:     make(map[int64]*domain.Job),
		accounts: make(map[int64]*domain.Account),
		apps:     make(map[string]*domain.App),
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memDB) record(format string, args ...any) {
	db.events = append(db.events, fmt.Sprintf(format, args...))
}

func (db *memDB) stores() OrgStores {
	return OrgStores{
		Departments: memDepartments{db},
		Employees:   memEmployees{db},
		Jobs:        memJobs{db},
		Accounts:    memAccounts{db},
	}
}

func (db *memDB) eventIndex(event string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Index(db.events, event)
}

func (db *memDB) deptByRemote(remoteID int64) *domain.Department {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, d := range db.depts {
		if d.RemoteID == remoteID {
			cp := *d
			return &cp
		}
	}
	return nil
}

func (db *memDB) empByUnion(unionID string) *domain.Employee {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, e := range db.emps {
		if e.RemoteUnionID == unionID {
			return cloneEmployee(e)
		}
	}
	return nil
}

func (db *memDB) countEmployees() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.emps)
}

// seedDepartment inserts a department without recording an event.
func (db *memDB) seedDepartment(remoteID int64, parentID *int64) *domain.Department {
	db.mu.Lock()
	defer db.mu.Unlock()
	d := &domain.Department{ID: db.id(), RemoteID: remoteID, ParentID: parentID, Name: "seed"}
	db.depts[d.ID] = d
	cp := *d
	return &cp
}

// seedEmployee inserts an employee without recording an event.
func (db *memDB) seedEmployee(e domain.Employee) *domain.Employee {
	db.mu.Lock()
	defer db.mu.Unlock()
	e.ID = db.id()
	db.emps[e.ID] = cloneEmployee(&e)
	return cloneEmployee(&e)
}

func (db *memDB) seedAccount(a domain.Account) *domain.Account {
	db.mu.Lock()
	defer db.mu.Unlock()
	a.ID = db.id()
	cp := a
	db.accounts[a.ID] = &cp
	return &a
}

func cloneEmployee(e *domain.Employee) *domain.Employee {
	cp := *e
	cp.DepartmentIDs = slices.Clone(e.DepartmentIDs)
	return &cp
}

type memDepartments struct{ db *memDB }

func (s memDepartments) FindByRemoteID(_ context.Context, remoteID int64) (*domain.Department, error) {
	return s.db.deptByRemote(remoteID), nil
}

func (s memDepartments) Create(_ context.Context, dept *domain.Department) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	dept.ID = s.db.id()
	cp := *dept
	s.db.depts[dept.ID] = &cp
	s.db.record("dept:%d", dept.RemoteID)
	return nil
}

func (s memDepartments) Update(_ context.Context, dept *domain.Department) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.depts[dept.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cp := *dept
	cp.ManagerID = cur.ManagerID
	s.db.depts[dept.ID] = &cp
	s.db.record("dept:%d", dept.RemoteID)
	return nil
}

func (s memDepartments) SetManager(_ context.Context, deptID, employeeID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.depts[deptID]
	if !ok {
		return domain.ErrNotFound
	}
	d.ManagerID = domain.Int64Ptr(employeeID)
	s.db.record("manager:%d:%d", d.RemoteID, employeeID)
	return nil
}

type memEmployees struct{ db *memDB }

func (s memEmployees) FindByUnionID(_ context.Context, unionID string) (*domain.Employee, error) {
	return s.db.empByUnion(unionID), nil
}

func (s memEmployees) FindByIDs(_ context.Context, ids []int64) ([]domain.Employee, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.Employee
	for _, id := range ids {
		if e, ok := s.db.emps[id]; ok {
			out = append(out, *cloneEmployee(e))
		}
	}
	return out, nil
}

func (s memEmployees) CreateMany(_ context.Context, emps []*domain.Employee) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.createSizes = append(s.db.createSizes, len(emps))
	for _, e := range emps {
		e.ID = s.db.id()
		s.db.emps[e.ID] = cloneEmployee(e)
		s.db.record("emp:%s", e.RemoteUnionID)
	}
	return nil
}

func (s memEmployees) Update(_ context.Context, emp *domain.Employee) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.emps[emp.ID]
	if !ok {
		return domain.ErrNotFound
	}
	next := cloneEmployee(emp)
	for _, d := range cur.DepartmentIDs {
		if !next.HasDepartment(d) {
			next.DepartmentIDs = append(next.DepartmentIDs, d)
		}
	}
	s.db.emps[emp.ID] = next
	s.db.record("emp:%s", emp.RemoteUnionID)
	return nil
}

func (s memEmployees) DeactivateInDepartments(_ context.Context, remoteDeptIDs []int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	local := make(map[int64]bool)
	for _, d := range s.db.depts {
		if slices.Contains(remoteDeptIDs, d.RemoteID) {
			local[d.ID] = true
		}
	}
	var n int64
	for _, e := range s.db.emps {
		for _, d := range e.DepartmentIDs {
			if local[d] {
				if e.Active {
					n++
				}
				e.Active = false
				break
			}
		}
	}
	return n, nil
}

func (s memEmployees) DeactivateByRemoteUserIDs(_ context.Context, userIDs []string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, e := range s.db.emps {
		if slices.Contains(userIDs, e.RemoteUserID) && e.Active {
			e.Active = false
			n++
		}
	}
	return n, nil
}

type memJobs struct{ db *memDB }

func (s memJobs) FindOrCreate(_ context.Context, name string, companyID int64) (*domain.Job, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, j := range s.db.jobs {
		if j.Name == name && j.CompanyID == companyID {
			cp := *j
			return &cp, nil
		}
	}
	j := &domain.Job{ID: s.db.id(), Name: name, CompanyID: companyID}
	s.db.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

type memAccounts struct{ db *memDB }

func (s memAccounts) Get(_ context.Context, id int64) (*domain.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s memAccounts) FindByLogin(_ context.Context, login string) (*domain.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, a := range s.db.accounts {
		if a.Login == login {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s memAccounts) Create(_ context.Context, acc *domain.Account) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	acc.ID = s.db.id()
	cp := *acc
	s.db.accounts[acc.ID] = &cp
	return nil
}

func (s memAccounts) Update(_ context.Context, acc *domain.Account) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.accounts[acc.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *acc
	s.db.accounts[acc.ID] = &cp
	return nil
}

type memApps struct{ db *memDB }

func (s memApps) Save(_ context.Context, app *domain.App) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *app
	s.db.apps[app.ID] = &cp
	return nil
}

func (s memApps) Get(_ context.Context, id string) (*domain.App, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.apps[id]
	if !ok {
		return nil, domain.ErrAppNotFound
	}
	cp := *a
	return &cp, nil
}

func (s memApps) List(_ context.Context) ([]domain.App, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]domain.App, 0, len(s.db.apps))
	for _, a := range s.db.apps {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s memApps) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.apps[id]; !ok {
		return domain.ErrAppNotFound
	}
	delete(s.db.apps, id)
	return nil
}

type memLogs struct{ db *memDB }

func (s memLogs) Save(_ context.Context, log *domain.SyncLog) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.logs = append(s.db.logs, *log)
	return nil
}

func (s memLogs) List(_ context.Context, appID string, limit int) ([]domain.SyncLog, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.SyncLog
	for i := len(s.db.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if appID == "" || s.db.logs[i].AppID == appID {
			out = append(out, s.db.logs[i])
		}
	}
	return out, nil
}

// spyNotifier records sync notifications.
type spyNotifier struct {
	mu       sync.Mutex
	started  []string
	finished []domain.SyncLog
}

func (n *spyNotifier) SyncStarted(_ context.Context, app *domain.App) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, app.ID)
}

func (n *spyNotifier) SyncFinished(_ context.Context, _ *domain.App, log *domain.SyncLog) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, *log)
}

// fakeMessenger records sent messages.
type fakeMessenger struct {
	sent    []domain.Message
	agentID string
	err     error
}

func (m *fakeMessenger) SendMessage(_ context.Context, agentID string, msg domain.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.agentID = agentID
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("task-%d", len(m.sent)), nil
}

// fakeOAuth returns a fixed token and profile.
type fakeOAuth struct {
	token   *oauth2.Token
	profile *domain.RemoteProfile
	err     error
	codes   []string
}

func (o *fakeOAuth) AuthURL(kind driven.OAuthKind, redirectURI, state string) (string, error) {
	return fmt.Sprintf("https://login.example/%s?redirect=%s&state=%s", kind, redirectURI, state), nil
}

func (o *fakeOAuth) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	o.codes = append(o.codes, code)
	if o.err != nil {
		return nil, o.err
	}
	return o.token, nil
}

func (o *fakeOAuth) UserProfile(_ context.Context, _ string) (*domain.RemoteProfile, error) {
	return o.profile, nil
}

func (o *fakeOAuth) ExchangeCodeSigned(_ context.Context, _ string) (*domain.RemoteProfile, error) {
	return o.profile, nil
}

// fakeFactory hands out the same fakes for every app.
type fakeFactory struct {
	dir       *fakeDirectory
	messenger *fakeMessenger
	oauth     *fakeOAuth
	cipher    driven.CallbackCipher
}

func (f *fakeFactory) Directory(_ *domain.App) (driven.Directory, error) {
	return f.dir, nil
}

func (f *fakeFactory) Messenger(_ *domain.App) (driven.Messenger, error) {
	return f.messenger, nil
}

func (f *fakeFactory) OAuth(_ *domain.App) (driven.OAuthProvider, error) {
	return f.oauth, nil
}

func (f *fakeFactory) Cipher(app *domain.App) (driven.CallbackCipher, error) {
	if f.cipher == nil {
		return nil, domain.Configurationf("app %s has no callback credentials", app.ID)
	}
	return f.cipher, nil
}

func testApp() *domain.App {
	return &domain.App{
		ID:        "app-1",
		Name:      "main",
		AgentID:   "1001",
		AppKey:    "key",
		AppSecret: "secret",
		CompanyID: 7,
	}
}

func user(union string, depts ...int64) domain.RemoteUser {
	return domain.RemoteUser{
		UserID:     "uid-" + union,
		UnionID:    union,
		Name:       "name-" + union,
		DeptIDList: depts,
	}
}
