package domain

// MessageBody is a free-form message document tagged by its "msgtype" key,
// for example {"msgtype": "text", "text": {"content": "hello"}}.
type MessageBody map[string]any

// TextMessage builds a plain text message body.
func TextMessage(content string) MessageBody {
	return MessageBody{
		"msgtype": "text",
		"text":    map[string]any{"content": content},
	}
}

// Type returns the msgtype tag, or "" when absent.
func (m MessageBody) Type() string {
	t, _ := m["msgtype"].(string)
	return t
}

// MessageTarget selects recipients of a work notification. Exactly one
// selector is used: user ids, department ids or ToAllUsers.
type MessageTarget struct {
	UserIDs       []string
	DepartmentIDs []int64
	ToAllUsers    bool
}

// Validate rejects an empty selection or one combining selectors.
func (t MessageTarget) Validate() error {
	selectors := 0
	for _, set := range []bool{len(t.UserIDs) > 0, len(t.DepartmentIDs) > 0, t.ToAllUsers} {
		if set {
			selectors++
		}
	}
	switch selectors {
	case 0:
		return Configurationf("select users, departments or all users to notify")
	case 1:
		return nil
	default:
		return Configurationf("users, departments and all users cannot be combined")
	}
}

// Message is an outbound work notification.
type Message struct {
	Target MessageTarget
	Body   MessageBody
}
