package driving

import (
	"context"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// MessageService sends work notifications.
type MessageService interface {
	// Send delivers msg through the app and returns the remote task id.
	// An empty target fails with domain.ErrConfiguration before any network call.
	Send(ctx context.Context, appID string, msg domain.Message) (string, error)

	// SendToEmployees resolves local employees to remote user ids and sends body.
	SendToEmployees(ctx context.Context, appID string, employeeIDs []int64, body domain.MessageBody) (string, error)
}
