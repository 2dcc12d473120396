package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

func newTestNotifications(t *testing.T) (*Notifications, *memDB, *fakeMessenger) {
	t.Helper()
	db := newMemDB()
	require.NoError(t, memApps{db}.Save(context.Background(), testApp()))
	messenger := &fakeMessenger{}
	return NewNotifications(memApps{db}, &fakeFactory{messenger: messenger}, memEmployees{db}), db, messenger
}

func TestNotifications_Send(t *testing.T) {
	n, _, messenger := newTestNotifications(t)

	msg := domain.Message{
		Target: domain.MessageTarget{DepartmentIDs: []int64{1, 2}},
		Body:   domain.TextMessage("hello"),
	}
	taskID, err := n.Send(context.Background(), "app-1", msg)
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)
	assert.Equal(t, "1001", messenger.agentID)
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, msg, messenger.sent[0])
}

func TestNotifications_Send_ValidatesBeforeSending(t *testing.T) {
	tests := []struct {
		name string
		msg  domain.Message
	}{
		{name: "empty target", msg: domain.Message{Body: domain.TextMessage("x")}},
		{
			name: "all users mixed with lists",
			msg: domain.Message{
				Target: domain.MessageTarget{ToAllUsers: true, UserIDs: []string{"u"}},
				Body:   domain.TextMessage("x"),
			},
		},
		{
			name: "missing msgtype",
			msg: domain.Message{
				Target: domain.MessageTarget{ToAllUsers: true},
				Body:   domain.MessageBody{"text": "x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _, messenger := newTestNotifications(t)

			_, err := n.Send(context.Background(), "app-1", tt.msg)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Empty(t, messenger.sent)
		})
	}
}

func TestNotifications_Send_Errors(t *testing.T) {
	n, _, messenger := newTestNotifications(t)
	msg := domain.Message{Target: domain.MessageTarget{ToAllUsers: true}, Body: domain.TextMessage("x")}

	_, err := n.Send(context.Background(), "missing", msg)
	assert.ErrorIs(t, err, domain.ErrAppNotFound)

	messenger.err = &domain.RemoteProtocolError{Code: 40035, Message: "invalid agent"}
	_, err = n.Send(context.Background(), "app-1", msg)
	assert.ErrorIs(t, err, domain.ErrRemoteProtocol)
	assert.Contains(t, err.Error(), "invalid agent")
}

func TestNotifications_SendToEmployees(t *testing.T) {
	n, db, messenger := newTestNotifications(t)
	a := db.seedEmployee(domain.Employee{RemoteUnionID: "a", RemoteUserID: "user-a"})
	local := db.seedEmployee(domain.Employee{RemoteUnionID: "b"})
	c := db.seedEmployee(domain.Employee{RemoteUnionID: "c", RemoteUserID: "user-c"})

	_, err := n.SendToEmployees(context.Background(), "app-1", []int64{a.ID, local.ID, c.ID}, domain.TextMessage("hi"))
	require.NoError(t, err)
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, []string{"user-a", "user-c"}, messenger.sent[0].Target.UserIDs)
	assert.False(t, messenger.sent[0].Target.ToAllUsers)
}

func TestNotifications_SendToEmployees_NoRecipients(t *testing.T) {
	n, db, messenger := newTestNotifications(t)
	local := db.seedEmployee(domain.Employee{RemoteUnionID: "b"})

	_, err := n.SendToEmployees(context.Background(), "app-1", nil, domain.TextMessage("hi"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = n.SendToEmployees(context.Background(), "app-1", []int64{local.ID, 404}, domain.TextMessage("hi"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.False(t, errors.Is(err, domain.ErrAppNotFound))
	assert.Empty(t, messenger.sent)
}
