package dingtalk

import (
	"context"
	"net/http"
	"strings"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// GetAuthScopes returns the departments and users the app may read.
func (c *Client) GetAuthScopes(ctx context.Context) (*domain.AuthScopes, error) {
	var scopes domain.AuthScopes
	if err := c.authedCall(ctx, "auth_scopes", http.MethodGet, "/auth/scopes", nil, nil, &scopes); err != nil {
		return nil, err
	}
	return &scopes, nil
}

type subIDsRequest struct {
	DeptID int64 `json:"dept_id,omitempty"`
}

type subIDsResponse struct {
	Result struct {
		DeptIDList []int64 `json:"dept_id_list"`
	} `json:"result"`
}

// DepartmentSubIDs lists the direct children of deptID in remote order.
// deptID 0 lists the children of the root department.
func (c *Client) DepartmentSubIDs(ctx context.Context, deptID int64) ([]int64, error) {
	var resp subIDsResponse
	err := c.authedCall(ctx, "department_listsubid", http.MethodPost,
		"/topapi/v2/department/listsubid", nil, subIDsRequest{DeptID: deptID}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Result.DeptIDList, nil
}

type detailRequest struct {
	DeptID   int64  `json:"dept_id"`
	Language string `json:"language,omitempty"`
}

type detailResponse struct {
	Result domain.RemoteDepartment `json:"result"`
}

// DepartmentDetail fetches one department. An empty language uses
// domain.DefaultLanguage.
func (c *Client) DepartmentDetail(ctx context.Context, deptID int64, language string) (*domain.RemoteDepartment, error) {
	if deptID == 0 {
		return nil, domain.Preconditionf("department id is required")
	}
	if language == "" {
		language = domain.DefaultLanguage
	}

	var resp detailResponse
	err := c.authedCall(ctx, "department_get", http.MethodPost,
		"/topapi/v2/department/get", nil, detailRequest{DeptID: deptID, Language: language}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

type userListRequest struct {
	DeptID             int64  `json:"dept_id"`
	Cursor             int64  `json:"cursor"`
	Size               int    `json:"size"`
	Language           string `json:"language,omitempty"`
	ContainAccessLimit bool   `json:"contain_access_limit"`
}

type userListResponse struct {
	Result domain.RemoteUserPage `json:"result"`
}

// DepartmentUsers fetches one page of a department's users. The returned
// page has a nil NextCursor on the last page.
func (c *Client) DepartmentUsers(
	ctx context.Context, deptID int64, opts domain.UserListOptions,
) (*domain.RemoteUserPage, error) {
	if deptID == 0 {
		return nil, domain.Preconditionf("department id is required")
	}
	if opts.Size <= 0 || opts.Size > domain.DefaultUserPageSize {
		opts.Size = domain.DefaultUserPageSize
	}
	if opts.Language == "" {
		opts.Language = domain.DefaultLanguage
	}

	req := userListRequest{
		DeptID:             deptID,
		Cursor:             opts.Cursor,
		Size:               opts.Size,
		Language:           opts.Language,
		ContainAccessLimit: opts.IncludeRestricted,
	}
	var resp userListResponse
	err := c.authedCall(ctx, "user_list", http.MethodPost, "/topapi/v2/user/list", nil, req, &resp)
	if err != nil {
		return nil, err
	}

	page := resp.Result
	if !page.HasMore {
		page.NextCursor = nil
	}
	return &page, nil
}

type userGetRequest struct {
	UserID   string `json:"userid"`
	Language string `json:"language,omitempty"`
}

type userGetResponse struct {
	Result struct {
		domain.RemoteUser
		// The detail endpoint reports leadership per department.
		LeaderInDept []struct {
			DeptID int64           `json:"dept_id"`
			Leader domain.FlexBool `json:"leader"`
		} `json:"leader_in_dept"`
	} `json:"result"`
}

// UserDetail fetches one user by remote user id.
func (c *Client) UserDetail(ctx context.Context, userID, language string) (*domain.RemoteUser, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.Preconditionf("user id is required")
	}
	if language == "" {
		language = domain.DefaultLanguage
	}

	var resp userGetResponse
	err := c.authedCall(ctx, "user_get", http.MethodPost,
		"/topapi/v2/user/get", nil, userGetRequest{UserID: userID, Language: language}, &resp)
	if err != nil {
		return nil, err
	}

	user := resp.Result.RemoteUser
	if primary, ok := user.PrimaryDeptID(); ok {
		for _, l := range resp.Result.LeaderInDept {
			if l.DeptID == primary && bool(l.Leader) {
				user.Leader = true
			}
		}
	}
	return &user, nil
}
