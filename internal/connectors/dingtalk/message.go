package dingtalk

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

type sendRequest struct {
	AgentID    int64              `json:"agent_id"`
	UserIDList string             `json:"userid_list,omitempty"`
	DeptIDList string             `json:"dept_id_list,omitempty"`
	ToAllUser  bool               `json:"to_all_user,omitempty"`
	Msg        domain.MessageBody `json:"msg"`
}

type sendResponse struct {
	TaskID int64 `json:"task_id"`
}

// SendMessage sends a work notification and returns the remote task id.
// The target and body are validated before any network call.
func (c *Client) SendMessage(ctx context.Context, agentID string, msg domain.Message) (string, error) {
	if err := msg.Target.Validate(); err != nil {
		return "", err
	}
	if len(msg.Body) == 0 || msg.Body.Type() == "" {
		return "", domain.Configurationf("message body needs a msgtype")
	}
	agent, err := strconv.ParseInt(strings.TrimSpace(agentID), 10, 64)
	if err != nil {
		return "", domain.Configurationf("agent id %q is not numeric", agentID)
	}

	req := sendRequest{
		AgentID:   agent,
		ToAllUser: msg.Target.ToAllUsers,
		Msg:       msg.Body,
	}
	if len(msg.Target.UserIDs) > 0 {
		req.UserIDList = strings.Join(msg.Target.UserIDs, ",")
	}
	if len(msg.Target.DepartmentIDs) > 0 {
		ids := make([]string, len(msg.Target.DepartmentIDs))
		for i, id := range msg.Target.DepartmentIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		req.DeptIDList = strings.Join(ids, ",")
	}

	var resp sendResponse
	err = c.authedCall(ctx, "message_send", http.MethodPost,
		"/topapi/message/corpconversation/asyncsend_v2", nil, req, &resp)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.TaskID, 10), nil
}
