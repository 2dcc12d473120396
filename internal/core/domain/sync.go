package domain

import "time"

// SyncLog records the outcome of one organisation sync run.
type SyncLog struct {
	ID         string
	AppID      string
	CompanyID  int64
	Success    bool
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (l *SyncLog) Duration() time.Duration {
	if l.FinishedAt.IsZero() {
		return 0
	}
	return l.FinishedAt.Sub(l.StartedAt)
}

// SyncStats counts what a sync run touched.
type SyncStats struct {
	Departments int
	Created     int
	Updated     int
	Deactivated int64
}

// CallbackEvent is a decrypted inbound callback payload.
type CallbackEvent struct {
	EventType string   `json:"EventType"`
	TimeStamp string   `json:"TimeStamp,omitempty"`
	CorpID    string   `json:"CorpId,omitempty"`
	UserIDs   []string `json:"UserId,omitempty"`
	DeptIDs   []int64  `json:"DeptId,omitempty"`
	// Raw keeps the whole decrypted document for handlers needing other keys.
	Raw []byte `json:"-"`
}

// Callback event types handled by the server.
const (
	EventCheckURL      = "check_url"
	EventUserAddOrg    = "user_add_org"
	EventUserModifyOrg = "user_modify_org"
	EventUserLeaveOrg  = "user_leave_org"
	EventDeptCreate    = "org_dept_create"
	EventDeptModify    = "org_dept_modify"
	EventDeptRemove    = "org_dept_remove"
)

// CallbackReply is the encrypted envelope returned to the directory.
type CallbackReply struct {
	MsgSignature string `json:"msg_signature"`
	TimeStamp    string `json:"timeStamp"`
	Nonce        string `json:"nonce"`
	Encrypt      string `json:"encrypt"`
}
