package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"archie-core-shopify-app/internal/domain"

	"github.com/rs/zerolog"
)

const (
	TopicCustomersDataRequest = "customers/data_request"
	TopicCustomersRedact      = "customers/redact"
	TopicShopRedact           = "shop/redact"
)

type gdprPayload struct {
	ShopID     int64  `json:"shop_id"`
	ShopDomain string `json:"shop_domain"`
	Customer   *struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	} `json:"customer,omitempty"`
	OrdersRequested []int64 `json:"orders_requested,omitempty"`
	OrdersToRedact  []int64 `json:"orders_to_redact,omitempty"`
}

// GDPRHandler acknowledges the mandatory privacy webhooks. The app keeps no customer data,
// so data requests and customer redactions are recorded only.
type GDPRHandler struct {
	logger zerolog.Logger
}

// NewGDPRHandler creates a new privacy webhook handler
func NewGDPRHandler(logger zerolog.Logger) *GDPRHandler {
	return &GDPRHandler{logger: logger}
}

// CanHandle returns true if this handler can process the given topic
func (h *GDPRHandler) CanHandle(topic string) bool {
	return topic == TopicCustomersDataRequest ||
		topic == TopicCustomersRedact ||
		topic == TopicShopRedact
}

// Handle processes a privacy webhook event
func (h *GDPRHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var payload gdprPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse %s webhook payload: %w", event.Topic, err)
	}

	logEvent := h.logger.Info().
		Str("topic", event.Topic).
		Str("shop", event.Shop.String()).
		Int64("shopId", payload.ShopID)
	if payload.Customer != nil {
		logEvent = logEvent.Int64("customerId", payload.Customer.ID)
	}

	switch event.Topic {
	case TopicCustomersDataRequest:
		logEvent.Int("orders", len(payload.OrdersRequested)).Msg("Customer data requested, no customer data stored")
	case TopicCustomersRedact:
		logEvent.Int("orders", len(payload.OrdersToRedact)).Msg("Customer redaction requested, no customer data stored")
	case TopicShopRedact:
		logEvent.Msg("Shop redaction requested")
	}
	return nil
}
