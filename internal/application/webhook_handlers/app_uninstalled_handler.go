package webhook_handlers

import (
	"context"
	"fmt"

	"archie-core-shopify-app/internal/application/billing"
	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"

	"github.com/rs/zerolog"
)

// AppUninstalledHandler handles app uninstalled webhook events
type AppUninstalledHandler struct {
	logger  zerolog.Logger
	shops   ports.ShopRepository
	billing *billing.Service
}

// NewAppUninstalledHandler creates a new app uninstalled webhook handler
func NewAppUninstalledHandler(logger zerolog.Logger, shops ports.ShopRepository, billingService *billing.Service) *AppUninstalledHandler {
	return &AppUninstalledHandler{
		logger:  logger,
		shops:   shops,
		billing: billingService,
	}
}

// CanHandle returns true if this handler can process the given topic
func (h *AppUninstalledHandler) CanHandle(topic string) bool {
	return topic == "app/uninstalled"
}

// Handle cancels the current plan, drops the offline token and soft-deletes the shop.
// A shop that is already gone is not an error; the platform retries failed deliveries.
func (h *AppUninstalledHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	shop, err := h.shops.GetByDomain(ctx, event.Shop, false)
	if err != nil {
		return fmt.Errorf("failed to get shop: %w", err)
	}
	if shop == nil {
		h.logger.Info().Str("shop", event.Shop.String()).Msg("Uninstall for unknown or already removed shop")
		return nil
	}

	cancelled, err := h.billing.CancelCurrentPlan(ctx, shop)
	if err != nil {
		return fmt.Errorf("failed to cancel current plan: %w", err)
	}
	if err := h.shops.SetAccessToken(ctx, shop.ID, ""); err != nil {
		return fmt.Errorf("failed to clear access token: %w", err)
	}
	if err := h.shops.SoftDelete(ctx, shop.ID); err != nil {
		return fmt.Errorf("failed to soft delete shop: %w", err)
	}

	h.logger.Info().
		Str("shop", shop.Domain.String()).
		Bool("plan_cancelled", cancelled).
		Msg("App uninstalled - cleanup completed")
	return nil
}
