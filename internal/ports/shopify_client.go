package ports

import (
	"context"
	"time"

	"archie-core-shopify-app/internal/domain"
)

// ChargeConfirmation is returned when a charge was created and awaits merchant approval
type ChargeConfirmation struct {
	Reference       domain.ChargeReference
	ConfirmationURL string
}

// ChargeState is the platform's view of a charge
type ChargeState struct {
	Reference   domain.ChargeReference
	Status      domain.ChargeStatus
	TrialDays   int
	ActivatedOn *time.Time
	BillingOn   *time.Time
	TrialEndsOn *time.Time
}

// UsageChargeResult is a usage charge accepted by the platform
type UsageChargeResult struct {
	Reference domain.ChargeReference
}

// CommerceAPI defines the platform operations the app relies on.
// REST and GraphQL wire formatting stays behind this interface.
type CommerceAPI interface {
	// Authentication
	BuildAuthURL(shop domain.ShopDomain, scopes []string, redirectURI string, state string, perUser bool) (string, error)
	RequestAccessToken(ctx context.Context, shop domain.ShopDomain, code string) (*domain.AccessResponse, error)

	// Billing
	CreateCharge(ctx context.Context, shop domain.ShopDomain, accessToken string, chargeType domain.ChargeType, details domain.PlanDetails) (*ChargeConfirmation, error)
	CreateChargeGraphQL(ctx context.Context, shop domain.ShopDomain, accessToken string, details domain.PlanDetails) (*ChargeConfirmation, error)
	GetCharge(ctx context.Context, shop domain.ShopDomain, accessToken string, chargeType domain.ChargeType, ref domain.ChargeReference) (*ChargeState, error)
	ActivateCharge(ctx context.Context, shop domain.ShopDomain, accessToken string, chargeType domain.ChargeType, ref domain.ChargeReference) (*ChargeState, error)
	// CreateUsageCharge returns ok=false when the platform declines the charge
	CreateUsageCharge(ctx context.Context, shop domain.ShopDomain, accessToken string, recurring domain.ChargeReference, details domain.UsageChargeDetails) (*UsageChargeResult, bool, error)
}
