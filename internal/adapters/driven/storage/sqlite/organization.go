package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// Ensure the stores implement the interfaces.
var (
	_ driven.DepartmentStore = (*DepartmentStore)(nil)
	_ driven.EmployeeStore   = (*EmployeeStore)(nil)
	_ driven.JobStore        = (*JobStore)(nil)
	_ driven.AccountStore    = (*AccountStore)(nil)
)

// DepartmentStore persists local departments.
type DepartmentStore struct {
	db *sql.DB
}

// FindByRemoteID returns nil when no department matches.
func (s *DepartmentStore) FindByRemoteID(ctx context.Context, remoteID int64) (*domain.Department, error) {
	var (
		d                             domain.Department
		remoteParent, parent, manager sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, remote_id, remote_parent_id, remote_order, parent_id, manager_id, company_id, name
		FROM departments WHERE remote_id = ?`, remoteID,
	).Scan(&d.ID, &d.RemoteID, &remoteParent, &d.RemoteOrder, &parent, &manager, &d.CompanyID, &d.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find department %d: %w", remoteID, err)
	}
	d.RemoteParentID = intPtr(remoteParent)
	d.ParentID = intPtr(parent)
	d.ManagerID = intPtr(manager)
	return &d, nil
}

// Create inserts the department and sets its ID.
func (s *DepartmentStore) Create(ctx context.Context, dept *domain.Department) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (remote_id, remote_parent_id, remote_order, parent_id, manager_id, company_id, name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dept.RemoteID, nullInt(dept.RemoteParentID), dept.RemoteOrder, nullInt(dept.ParentID),
		nullInt(dept.ManagerID), dept.CompanyID, dept.Name,
	)
	if err != nil {
		return fmt.Errorf("create department %d: %w", dept.RemoteID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create department %d: %w", dept.RemoteID, err)
	}
	dept.ID = id
	return nil
}

// Update overwrites every field except the manager.
func (s *DepartmentStore) Update(ctx context.Context, dept *domain.Department) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE departments
		SET remote_id = ?, remote_parent_id = ?, remote_order = ?, parent_id = ?, company_id = ?, name = ?
		WHERE id = ?`,
		dept.RemoteID, nullInt(dept.RemoteParentID), dept.RemoteOrder, nullInt(dept.ParentID),
		dept.CompanyID, dept.Name, dept.ID,
	)
	if err != nil {
		return fmt.Errorf("update department %d: %w", dept.RemoteID, err)
	}
	return requireRow(res, "department", dept.ID)
}

// SetManager sets the manager of a department.
func (s *DepartmentStore) SetManager(ctx context.Context, deptID, employeeID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE departments SET manager_id = ? WHERE id = ?`, employeeID, deptID)
	if err != nil {
		return fmt.Errorf("set manager of department %d: %w", deptID, err)
	}
	return requireRow(res, "department", deptID)
}

// EmployeeStore persists employees and their memberships.
type EmployeeStore struct {
	db *sql.DB
}

const employeeColumns = `id, remote_union_id, remote_user_id, company_id, name, department_id,
	job_id, email, mobile, extension, active, account_id`

// FindByUnionID returns the employee, active or not, or nil when none matches.
func (s *EmployeeStore) FindByUnionID(ctx context.Context, unionID string) (*domain.Employee, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE remote_union_id = ?`, unionID)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find employee %s: %w", unionID, err)
	}
	if emp.DepartmentIDs, err = s.memberships(ctx, emp.ID); err != nil {
		return nil, err
	}
	return emp, nil
}

// FindByIDs returns the employees with the given ids ordered by id.
// Unknown ids are skipped.
func (s *EmployeeStore) FindByIDs(ctx context.Context, ids []int64) ([]domain.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	marks, args := inList(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id IN (`+marks+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("find employees: %w", err)
	}
	var emps []domain.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		emps = append(emps, *emp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Memberships are read once the row cursor is released.
	for i := range emps {
		if emps[i].DepartmentIDs, err = s.memberships(ctx, emps[i].ID); err != nil {
			return nil, err
		}
	}
	return emps, nil
}

// CreateMany inserts the employees and their memberships in one transaction.
func (s *EmployeeStore) CreateMany(ctx context.Context, emps []*domain.Employee) error {
	if len(emps) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, len(emps))
	for i, e := range emps {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO employees (remote_union_id, remote_user_id, company_id, name, department_id,
				job_id, email, mobile, extension, active, account_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.RemoteUnionID, e.RemoteUserID, e.CompanyID, e.Name, nullInt(e.DepartmentID),
			nullInt(e.JobID), e.Email, e.Mobile, extensionValue(e), e.Active, nullInt(e.AccountID),
		)
		if err != nil {
			return fmt.Errorf("create employee %s: %w", e.RemoteUnionID, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("create employee %s: %w", e.RemoteUnionID, err)
		}
		if err := addMemberships(ctx, tx, ids[i], e.DepartmentIDs); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i, e := range emps {
		e.ID = ids[i]
	}
	return nil
}

// Update overwrites scalar fields and adds missing memberships.
func (s *EmployeeStore) Update(ctx context.Context, emp *domain.Employee) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE employees
		SET remote_union_id = ?, remote_user_id = ?, company_id = ?, name = ?, department_id = ?,
			job_id = ?, email = ?, mobile = ?, extension = ?, active = ?, account_id = ?
		WHERE id = ?`,
		emp.RemoteUnionID, emp.RemoteUserID, emp.CompanyID, emp.Name, nullInt(emp.DepartmentID),
		nullInt(emp.JobID), emp.Email, emp.Mobile, extensionValue(emp), emp.Active, nullInt(emp.AccountID),
		emp.ID,
	)
	if err != nil {
		return fmt.Errorf("update employee %s: %w", emp.RemoteUnionID, err)
	}
	if err := requireRow(res, "employee", emp.ID); err != nil {
		return err
	}
	if err := addMemberships(ctx, tx, emp.ID, emp.DepartmentIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// DeactivateInDepartments marks inactive the active employees linked to any
// of the departments and returns how many changed.
func (s *EmployeeStore) DeactivateInDepartments(ctx context.Context, remoteDeptIDs []int64) (int64, error) {
	if len(remoteDeptIDs) == 0 {
		return 0, nil
	}
	marks, args := inList(remoteDeptIDs)
	res, err := s.db.ExecContext(ctx, `
		UPDATE employees SET active = 0
		WHERE active = 1 AND id IN (
			SELECT ed.employee_id FROM employee_departments ed
			JOIN departments d ON d.id = ed.department_id
			WHERE d.remote_id IN (`+marks+`)
		)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate employees: %w", err)
	}
	return res.RowsAffected()
}

// DeactivateByRemoteUserIDs marks inactive the employees with the given
// remote user ids.
func (s *EmployeeStore) DeactivateByRemoteUserIDs(ctx context.Context, userIDs []string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	marks, args := inList(userIDs)
	res, err := s.db.ExecContext(ctx,
		`UPDATE employees SET active = 0 WHERE active = 1 AND remote_user_id IN (`+marks+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate employees: %w", err)
	}
	return res.RowsAffected()
}

func (s *EmployeeStore) memberships(ctx context.Context, employeeID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT department_id FROM employee_departments WHERE employee_id = ? ORDER BY rowid`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func addMemberships(ctx context.Context, tx *sql.Tx, employeeID int64, deptIDs []int64) error {
	for _, d := range deptIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO employee_departments (employee_id, department_id) VALUES (?, ?)`,
			employeeID, d,
		); err != nil {
			return fmt.Errorf("link employee %d to department %d: %w", employeeID, d, err)
		}
	}
	return nil
}

func extensionValue(e *domain.Employee) sql.NullString {
	if len(e.Extension) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(e.Extension), Valid: true}
}

func scanEmployee(row scanner) (*domain.Employee, error) {
	var (
		e                  domain.Employee
		dept, job, account sql.NullInt64
		extension          sql.NullString
	)
	err := row.Scan(&e.ID, &e.RemoteUnionID, &e.RemoteUserID, &e.CompanyID, &e.Name, &dept,
		&job, &e.Email, &e.Mobile, &extension, &e.Active, &account)
	if err != nil {
		return nil, err
	}
	e.DepartmentID = intPtr(dept)
	e.JobID = intPtr(job)
	e.AccountID = intPtr(account)
	if extension.Valid {
		e.Extension = []byte(extension.String)
	}
	return &e, nil
}

// JobStore persists job titles.
type JobStore struct {
	db *sql.DB
}

// FindOrCreate returns the job named name in the company, creating it on
// first sight.
func (s *JobStore) FindOrCreate(ctx context.Context, name string, companyID int64) (*domain.Job, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO jobs (name, company_id) VALUES (?, ?)`, name, companyID,
	); err != nil {
		return nil, fmt.Errorf("create job %q: %w", name, err)
	}
	job := domain.Job{Name: name, CompanyID: companyID}
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE name = ? AND company_id = ?`, name, companyID,
	).Scan(&job.ID); err != nil {
		return nil, fmt.Errorf("find job %q: %w", name, err)
	}
	return &job, nil
}

// AccountStore persists login accounts.
type AccountStore struct {
	db *sql.DB
}

// Get returns domain.ErrNotFound when no account has the id.
func (s *AccountStore) Get(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := s.scanOne(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: account %d", domain.ErrNotFound, id)
	}
	return acc, nil
}

// FindByLogin returns the account, active or not, or nil when none matches.
func (s *AccountStore) FindByLogin(ctx context.Context, login string) (*domain.Account, error) {
	return s.scanOne(ctx, `WHERE login = ?`, login)
}

// Create inserts the account and sets its ID.
func (s *AccountStore) Create(ctx context.Context, acc *domain.Account) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (login, name, company_id, active) VALUES (?, ?, ?, ?)`,
		acc.Login, acc.Name, acc.CompanyID, acc.Active,
	)
	if err != nil {
		return fmt.Errorf("create account %s: %w", acc.Login, err)
	}
	if acc.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create account %s: %w", acc.Login, err)
	}
	return nil
}

// Update overwrites the account.
func (s *AccountStore) Update(ctx context.Context, acc *domain.Account) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET login = ?, name = ?, company_id = ?, active = ? WHERE id = ?`,
		acc.Login, acc.Name, acc.CompanyID, acc.Active, acc.ID,
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", acc.Login, err)
	}
	return requireRow(res, "account", acc.ID)
}

func (s *AccountStore) scanOne(ctx context.Context, where string, arg any) (*domain.Account, error) {
	var acc domain.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, login, name, company_id, active FROM accounts `+where, arg,
	).Scan(&acc.ID, &acc.Login, &acc.Name, &acc.CompanyID, &acc.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acc, nil
}

func requireRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", domain.ErrNotFound, kind, id)
	}
	return nil
}
