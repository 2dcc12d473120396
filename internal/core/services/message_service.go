package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/core/ports/driving"
	"github.com/custodia-labs/dingsync/internal/logger"
)

// Ensure Notifications implements the interface.
var _ driving.MessageService = (*Notifications)(nil)

// Notifications sends work notifications through an app.
type Notifications struct {
	apps      driven.AppStore
	clients   driven.DirectoryFactory
	employees driven.EmployeeStore
}

// NewNotifications creates the message service.
func NewNotifications(apps driven.AppStore, clients driven.DirectoryFactory, employees driven.EmployeeStore) *Notifications {
	return &Notifications{apps: apps, clients: clients, employees: employees}
}

// Send delivers msg and returns the remote task id.
func (n *Notifications) Send(ctx context.Context, appID string, msg domain.Message) (string, error) {
	if err := msg.Target.Validate(); err != nil {
		return "", err
	}
	if msg.Body.Type() == "" {
		return "", domain.Configurationf("message body has no msgtype")
	}

	app, err := n.apps.Get(ctx, appID)
	if err != nil {
		return "", err
	}
	messenger, err := n.clients.Messenger(app)
	if err != nil {
		return "", err
	}
	taskID, err := messenger.SendMessage(ctx, app.AgentID, msg)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	logger.Info("message: sent task %s for app %s (%d users, %d departments, all=%t)",
		taskID, app.ID, len(msg.Target.UserIDs), len(msg.Target.DepartmentIDs), msg.Target.ToAllUsers)
	return taskID, nil
}

// SendToEmployees sends body to the remote users of the given local
// employees. Employees never synced from the directory are skipped.
func (n *Notifications) SendToEmployees(
	ctx context.Context, appID string, employeeIDs []int64, body domain.MessageBody,
) (string, error) {
	if len(employeeIDs) == 0 {
		return "", domain.Configurationf("select at least one employee to notify")
	}
	emps, err := n.employees.FindByIDs(ctx, employeeIDs)
	if err != nil {
		return "", fmt.Errorf("find employees: %w", err)
	}

	var userIDs []string
	for _, e := range emps {
		if e.RemoteUserID == "" {
			logger.Debug("message: skipping employee %d without remote user id", e.ID)
			continue
		}
		userIDs = append(userIDs, e.RemoteUserID)
	}
	if len(userIDs) == 0 {
		return "", domain.Configurationf("none of the selected employees is linked to the directory")
	}

	return n.Send(ctx, appID, domain.Message{
		Target: domain.MessageTarget{UserIDs: userIDs},
		Body:   body,
	})
}
