package domain

import "encoding/json"

// Department is the local mirror of a remote org unit.
type Department struct {
	ID int64
	// RemoteID is the directory's department id; unique among local departments.
	RemoteID int64
	// RemoteParentID is nil for the directory root.
	RemoteParentID *int64
	RemoteOrder    int64
	// ParentID is the local id of the parent department, nil at the top of the synced tree.
	ParentID  *int64
	ManagerID *int64
	CompanyID int64
	Name      string
}

// Employee is the local mirror of a directory user.
type Employee struct {
	ID int64
	// RemoteUnionID is stable across apps of the same organisation; the reconcile key.
	RemoteUnionID string
	// RemoteUserID is the per-app user id, used as a message target.
	RemoteUserID string
	CompanyID    int64
	Name         string
	// DepartmentID is the primary department.
	DepartmentID *int64
	// DepartmentIDs is the department membership set. Stores treat writes
	// as additive: links are never dropped by an update.
	DepartmentIDs []int64
	JobID         *int64
	Email         string
	Mobile        string
	Extension     json.RawMessage
	Active        bool
	AccountID     *int64
}

// HasDepartment reports whether id is in the membership set.
func (e *Employee) HasDepartment(id int64) bool {
	for _, d := range e.DepartmentIDs {
		if d == id {
			return true
		}
	}
	return false
}

// Job is a job title scoped to a company.
type Job struct {
	ID        int64
	Name      string
	CompanyID int64
}

// Account is a login account linked to an employee.
type Account struct {
	ID        int64
	Login     string
	Name      string
	CompanyID int64
	Active    bool
}

// DepartmentNode is a transient node of the remote department id tree.
type DepartmentNode struct {
	RemoteID int64
	Children []DepartmentNode
}

// Count returns the number of nodes in the subtree rooted at n.
func (n DepartmentNode) Count() int {
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
