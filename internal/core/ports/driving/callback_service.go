package driving

import (
	"context"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

// CallbackRequest is an inbound encrypted callback.
type CallbackRequest struct {
	Signature string
	Timestamp string
	Nonce     string
	Encrypt   string
}

// CallbackService verifies and dispatches inbound callbacks.
type CallbackService interface {
	// Handle verifies and decrypts req, dispatches the event and returns the
	// encrypted acknowledgement. Verification failures wrap
	// domain.ErrVerification.
	Handle(ctx context.Context, appID string, req CallbackRequest) (*domain.CallbackReply, error)
}
