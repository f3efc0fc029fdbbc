package application

import (
	"context"
	"fmt"
	"sync"

	"archie-core-shopify-app/internal/domain"

	"github.com/rs/zerolog"
)

// WebhookHandler processes webhook events for the topics it accepts
type WebhookHandler interface {
	CanHandle(topic string) bool
	Handle(ctx context.Context, event *domain.WebhookEvent) error
}

// WebhookDispatcher routes webhook events to registered handlers
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers []WebhookHandler
	logger   zerolog.Logger
}

// NewWebhookDispatcher creates a new webhook dispatcher
func NewWebhookDispatcher(logger zerolog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{logger: logger}
}

// RegisterHandler adds a handler
func (d *WebhookDispatcher) RegisterHandler(handler WebhookHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, handler)
}

// Dispatch runs every handler accepting the event's topic. Topics nobody handles are logged and dropped.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event *domain.WebhookEvent) error {
	if event == nil {
		return fmt.Errorf("webhook event is required")
	}

	d.mu.RLock()
	handlers := make([]WebhookHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	handled := 0
	for _, handler := range handlers {
		if !handler.CanHandle(event.Topic) {
			continue
		}
		handled++
		if err := handler.Handle(ctx, event); err != nil {
			return fmt.Errorf("failed to handle %s webhook: %w", event.Topic, err)
		}
	}

	if handled == 0 {
		d.logger.Debug().
			Str("topic", event.Topic).
			Str("shop", event.Shop.String()).
			Msg("No handler registered for webhook topic")
	}
	return nil
}
