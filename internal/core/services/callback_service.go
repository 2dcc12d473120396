package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
	"github.com/custodia-labs/dingsync/internal/core/ports/driving"
	"github.com/custodia-labs/dingsync/internal/logger"
	"github.com/custodia-labs/dingsync/internal/metrics"
)

// Ensure CallbackDispatcher implements the interface.
var _ driving.CallbackService = (*CallbackDispatcher)(nil)

// callbackAck is the plaintext every handled callback is answered with.
const callbackAck = "success"

// EventHandler reacts to one callback event type.
type EventHandler func(ctx context.Context, app *domain.App, event *domain.CallbackEvent) error

// CallbackDispatcher verifies inbound callbacks and routes them to the
// handler registered for their event type.
type CallbackDispatcher struct {
	apps    driven.AppStore
	ciphers driven.CipherFactory

	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// NewCallbackDispatcher creates a dispatcher with no handlers.
func NewCallbackDispatcher(apps driven.AppStore, ciphers driven.CipherFactory) *CallbackDispatcher {
	return &CallbackDispatcher{
		apps:     apps,
		ciphers:  ciphers,
		handlers: make(map[string]EventHandler),
	}
}

// Register sets the handler of eventType, replacing any previous one.
func (d *CallbackDispatcher) Register(eventType string, h EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = h
}

// EventTypes returns the registered event types, sorted.
func (d *CallbackDispatcher) EventTypes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Handle verifies req, dispatches its event and returns the encrypted
// acknowledgement. Unknown event types are acknowledged without action.
func (d *CallbackDispatcher) Handle(
	ctx context.Context, appID string, req driving.CallbackRequest,
) (reply *domain.CallbackReply, err error) {
	var eventType string
	defer func() { metrics.ObserveCallback(eventType, err) }()

	app, err := d.apps.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	cipher, err := d.ciphers.Cipher(app)
	if err != nil {
		return nil, err
	}

	plain, err := cipher.Decrypt(req.Signature, req.Timestamp, req.Nonce, req.Encrypt)
	if err != nil {
		logger.Warn("callback: rejected for app %s: %v", app.ID, err)
		return nil, err
	}
	event := &domain.CallbackEvent{}
	if err := json.Unmarshal(plain, event); err != nil {
		return nil, fmt.Errorf("%w: decode callback event: %v", domain.ErrInvalidInput, err)
	}
	event.Raw = plain
	eventType = event.EventType

	if eventType != domain.EventCheckURL {
		d.mu.RLock()
		h, ok := d.handlers[eventType]
		d.mu.RUnlock()
		if !ok {
			logger.Info("callback: ignoring event %s for app %s", eventType, app.ID)
		} else if err := h(ctx, app, event); err != nil {
			logger.Error("callback: handler for %s failed for app %s: %v", eventType, app.ID, err)
			return nil, fmt.Errorf("handle %s: %w", eventType, err)
		} else {
			logger.Debug("callback: handled %s for app %s", eventType, app.ID)
		}
	}

	return cipher.Reply(callbackAck)
}
