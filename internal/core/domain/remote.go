package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultLanguage is the language requested for department and user details.
const DefaultLanguage = "zh_CN"

// DefaultUserPageSize is the largest page the user listing accepts.
const DefaultUserPageSize = 100

// AuthScopes describes what the app may read from the directory.
type AuthScopes struct {
	AuthUserField []string      `json:"auth_user_field"`
	AuthOrgScopes AuthOrgScopes `json:"auth_org_scopes"`
}

// AuthOrgScopes lists the department and user ids the app is authorised for.
type AuthOrgScopes struct {
	AuthedDept []int64  `json:"authed_dept"`
	AuthedUser []string `json:"authed_user"`
}

// RemoteDepartment is a department detail record from the directory.
type RemoteDepartment struct {
	DeptID   int64  `json:"dept_id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Order    int64  `json:"order"`
}

// RemoteUser is a user record from the directory.
type RemoteUser struct {
	UserID     string   `json:"userid"`
	UnionID    string   `json:"unionid"`
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Email      string   `json:"email"`
	Mobile     string   `json:"mobile"`
	DeptIDList []int64  `json:"dept_id_list"`
	Leader     FlexBool `json:"leader"`
	Active     FlexBool `json:"active"`
	Extension  string   `json:"extension"`
}

// PrimaryDeptID returns the first listed department, which is authoritative
// for the primary department. ok is false when the list is empty.
func (u *RemoteUser) PrimaryDeptID() (id int64, ok bool) {
	if len(u.DeptIDList) == 0 {
		return 0, false
	}
	return u.DeptIDList[0], true
}

// ExtensionJSON returns the extension attributes as a JSON document. The
// directory ships them as a JSON-encoded string; anything else is kept as a
// JSON string value.
func (u *RemoteUser) ExtensionJSON() json.RawMessage {
	ext := strings.TrimSpace(u.Extension)
	if ext == "" {
		return nil
	}
	if json.Valid([]byte(ext)) {
		return json.RawMessage(ext)
	}
	b, err := json.Marshal(ext)
	if err != nil {
		return nil
	}
	return b
}

// RemoteUserPage is one page of a department user listing.
type RemoteUserPage struct {
	HasMore    bool         `json:"has_more"`
	NextCursor *int64       `json:"next_cursor,omitempty"`
	List       []RemoteUser `json:"list"`
}

// UserListOptions controls a single user listing request.
type UserListOptions struct {
	Cursor   int64
	Size     int
	Language string
	// IncludeRestricted also returns users whose visibility is restricted.
	IncludeRestricted bool
}

// RemoteProfile is the identity returned by the OAuth profile endpoints.
type RemoteProfile struct {
	Nick    string
	UnionID string
	OpenID  string
	Mobile  string
	Email   string
	Avatar  string
}

// FlexBool decodes booleans the directory sends as true/false, 0/1 or "0"/"1".
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	switch string(data) {
	case "true", "1":
		*b = true
	case "false", "0", "", "null":
		*b = false
	default:
		return fmt.Errorf("%w: cannot decode %q as bool", ErrInvalidInput, data)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}
