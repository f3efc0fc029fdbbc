package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"

	"github.com/rs/zerolog"
)

// Config holds billing settings
type Config struct {
	// AppURL is the public base URL the platform redirects back to
	AppURL string
	// ProcessRoute receives the merchant after approving a charge
	ProcessRoute string
}

// Service runs the charge lifecycle for shops
type Service struct {
	shops   ports.ShopRepository
	plans   ports.PlanRepository
	charges ports.ChargeRepository
	tx      ports.Transactor
	api     ports.CommerceAPI
	helper  *ChargeHelper
	clock   ports.Clock
	config  Config
	logger  zerolog.Logger
}

// NewService creates a new billing service
func NewService(
	shops ports.ShopRepository,
	plans ports.PlanRepository,
	charges ports.ChargeRepository,
	tx ports.Transactor,
	api ports.CommerceAPI,
	clock ports.Clock,
	config Config,
	logger zerolog.Logger,
) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if config.ProcessRoute == "" {
		config.ProcessRoute = "/billing/process"
	}
	return &Service{
		shops:   shops,
		plans:   plans,
		charges: charges,
		tx:      tx,
		api:     api,
		helper:  NewChargeHelper(charges, clock),
		clock:   clock,
		config:  config,
		logger:  logger,
	}
}

// Helper returns the charge arithmetic helper
func (s *Service) Helper() *ChargeHelper {
	return s.helper
}

func (s *Service) today() time.Time {
	return domain.StartOfDay(s.clock.Now())
}

// ResolvePlan returns the plan with the given id, or the default plan when id is nil
func (s *Service) ResolvePlan(ctx context.Context, planID *int64) (*domain.Plan, error) {
	var (
		plan *domain.Plan
		err  error
	)
	if planID == nil {
		plan, err = s.plans.GetDefault(ctx)
	} else {
		plan, err = s.plans.GetByID(ctx, *planID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

// ReturnURL is where the platform sends the merchant after the charge decision
func (s *Service) ReturnURL(plan *domain.Plan, shop *domain.Shop) string {
	base := strings.TrimSuffix(s.config.AppURL, "/") + s.config.ProcessRoute + "/" + strconv.FormatInt(plan.ID, 10)
	return base + "?" + url.Values{"shop": {shop.Domain.String()}}.Encode()
}

// PlanDetails builds the charge request for plan, resuming any unused trial
func (s *Service) PlanDetails(ctx context.Context, plan *domain.Plan, shop *domain.Shop) (domain.PlanDetails, error) {
	trialDays, err := s.helper.DetermineTrialDaysRemaining(ctx, plan, shop)
	if err != nil {
		return domain.PlanDetails{}, err
	}
	return domain.PlanDetails{
		Name:         plan.Name,
		Price:        plan.Price,
		Interval:     plan.Interval,
		Test:         plan.Test,
		TrialDays:    trialDays,
		CappedAmount: plan.CappedAmount,
		Terms:        plan.Terms,
		ReturnURL:    s.ReturnURL(plan, shop),
	}, nil
}

// CreatePlanURL creates a charge for plan on the platform and returns the URL where the
// merchant approves it. Annual plans go through the GraphQL subscription API.
func (s *Service) CreatePlanURL(ctx context.Context, shop *domain.Shop, planID *int64) (string, error) {
	plan, err := s.ResolvePlan(ctx, planID)
	if err != nil {
		return "", err
	}

	details, err := s.PlanDetails(ctx, plan, shop)
	if err != nil {
		return "", err
	}

	var confirmation *ports.ChargeConfirmation
	if plan.IsAnnual() {
		confirmation, err = s.api.CreateChargeGraphQL(ctx, shop.Domain, shop.AccessToken, details)
	} else {
		confirmation, err = s.api.CreateCharge(ctx, shop.Domain, shop.AccessToken, plan.ChargeType(), details)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create charge: %w", err)
	}
	if confirmation == nil || confirmation.ConfirmationURL == "" {
		return "", fmt.Errorf("%w: no confirmation url returned", domain.ErrChargeActivation)
	}

	s.logger.Info().
		Str("shop", shop.Domain.String()).
		Int64("plan_id", plan.ID).
		Int("trial_days", details.TrialDays).
		Int64("charge_reference", int64(confirmation.Reference)).
		Msg("Created charge awaiting merchant approval")

	return confirmation.ConfirmationURL, nil
}

// activateOnPlatform makes sure the charge is active on the platform
func (s *Service) activateOnPlatform(ctx context.Context, shop *domain.Shop, chargeType domain.ChargeType, ref domain.ChargeReference) (*ports.ChargeState, error) {
	state, err := s.api.GetCharge(ctx, shop.Domain, shop.AccessToken, chargeType, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChargeActivation, err)
	}
	if state == nil || state.Reference == 0 {
		return nil, fmt.Errorf("%w: empty charge response", domain.ErrChargeActivation)
	}

	switch state.Status {
	case domain.ChargeStatusActive:
		return state, nil
	case domain.ChargeStatusDeclined:
		return nil, domain.ErrChargeDeclined
	case domain.ChargeStatusAccepted:
	default:
		return nil, fmt.Errorf("%w: charge %d is %s", domain.ErrChargeActivation, ref, state.Status)
	}

	activated, err := s.api.ActivateCharge(ctx, shop.Domain, shop.AccessToken, chargeType, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChargeActivation, err)
	}
	if activated == nil || activated.Reference != ref || activated.Status == "" {
		return nil, fmt.Errorf("%w: garbled activation response", domain.ErrChargeActivation)
	}
	return activated, nil
}

// ActivatePlan activates an approved charge and makes it the shop's plan. The platform
// call happens first; the local cancel, replace and plan switch run in one transaction.
func (s *Service) ActivatePlan(ctx context.Context, shop *domain.Shop, planID int64, ref domain.ChargeReference) (*domain.Charge, error) {
	plan, err := s.ResolvePlan(ctx, &planID)
	if err != nil {
		return nil, err
	}
	chargeType := plan.ChargeType()

	state, err := s.activateOnPlatform(ctx, shop, chargeType, ref)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("shop", shop.Domain.String()).
			Int64("charge_reference", int64(ref)).
			Msg("Charge activation failed")
		return nil, err
	}

	now := s.clock.Now()
	charge := &domain.Charge{
		ShopID:       shop.ID,
		PlanID:       &plan.ID,
		Type:         chargeType,
		Reference:    ref,
		Status:       state.Status,
		Name:         plan.Name,
		Price:        plan.Price,
		CappedAmount: plan.CappedAmount,
		Terms:        plan.Terms,
		Test:         plan.Test,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if chargeType == domain.ChargeTypeRecurring {
		charge.TrialDays = state.TrialDays
		charge.ActivatedOn = state.ActivatedOn
		charge.BillingOn = state.BillingOn
		charge.TrialEndsOn = state.TrialEndsOn
	} else {
		charge.ActivatedOn = domain.DatePtr(now)
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.CancelCurrentPlan(ctx, shop); err != nil {
			return err
		}
		if err := s.charges.DeleteByReference(ctx, ref, shop.ID); err != nil {
			return fmt.Errorf("failed to delete duplicate charge: %w", err)
		}
		if err := s.charges.Create(ctx, charge); err != nil {
			return fmt.Errorf("failed to create charge: %w", err)
		}
		if err := s.shops.SetPlan(ctx, shop.ID, &plan.ID); err != nil {
			return fmt.Errorf("failed to set shop plan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	shop.PlanID = &plan.ID
	s.logger.Info().
		Str("shop", shop.Domain.String()).
		Int64("plan_id", plan.ID).
		Int64("charge_reference", int64(ref)).
		Str("status", string(charge.Status)).
		Msg("Activated plan")

	return charge, nil
}

// CancelCurrentPlan cancels the charge of the shop's current plan.
// Returns false when there is nothing left to cancel.
func (s *Service) CancelCurrentPlan(ctx context.Context, shop *domain.Shop) (bool, error) {
	if !shop.HasPlan() {
		return false, nil
	}
	charge, err := s.charges.LatestForPlan(ctx, *shop.PlanID, shop.ID)
	if err != nil {
		return false, fmt.Errorf("failed to get current charge: %w", err)
	}
	if charge == nil || charge.IsDeclined() || charge.IsCancelled() {
		return false, nil
	}

	now := s.clock.Now()
	charge.Status = domain.ChargeStatusCancelled
	charge.CancelledOn = &now
	charge.UpdatedAt = now
	if err := s.charges.Update(ctx, charge); err != nil {
		return false, fmt.Errorf("failed to cancel charge: %w", err)
	}
	return true, nil
}

// CancelCharge cancels a recurring or one-time charge, keeping access through the days
// already paid for
func (s *Service) CancelCharge(ctx context.Context, ref domain.ChargeReference) (*domain.Charge, error) {
	charge, err := s.charges.GetByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to get charge: %w", err)
	}
	if charge == nil {
		return nil, domain.ErrChargeNotFound
	}
	if !charge.IsType(domain.ChargeTypeCharge) && !charge.IsType(domain.ChargeTypeRecurring) {
		return nil, &domain.ChargeTypeError{
			Operation: "cancel charge",
			Got:       charge.Type,
			Allowed:   []domain.ChargeType{domain.ChargeTypeCharge, domain.ChargeTypeRecurring},
		}
	}
	if charge.IsCancelled() {
		return charge, nil
	}

	today := s.today()
	remaining := s.helper.RemainingDaysForPeriod(charge)
	remainingTrial := s.helper.RemainingTrialDays(charge)

	now := s.clock.Now()
	charge.Status = domain.ChargeStatusCancelled
	charge.CancelledOn = &now
	charge.ExpiresOn = domain.DatePtr(domain.AddDays(today, remaining))
	charge.TrialEndsOn = domain.DatePtr(domain.AddDays(today, remainingTrial))
	charge.UpdatedAt = now

	if err := s.charges.Update(ctx, charge); err != nil {
		return nil, fmt.Errorf("failed to cancel charge: %w", err)
	}
	return charge, nil
}

// ActivateUsageCharge bills a usage charge against the shop's recurring charge.
// A platform decline is reported as ok=false with no error.
func (s *Service) ActivateUsageCharge(ctx context.Context, shop *domain.Shop, details domain.UsageChargeDetails) (*domain.Charge, bool, error) {
	if !shop.HasPlan() {
		return nil, false, domain.ErrChargeNotFound
	}
	current, err := s.charges.LatestForPlan(ctx, *shop.PlanID, shop.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get current charge: %w", err)
	}
	if current == nil {
		return nil, false, domain.ErrChargeNotFound
	}
	if !current.IsType(domain.ChargeTypeRecurring) {
		return nil, false, &domain.ChargeTypeError{
			Operation: "usage charge",
			Got:       current.Type,
			Allowed:   []domain.ChargeType{domain.ChargeTypeRecurring},
		}
	}

	result, ok, err := s.api.CreateUsageCharge(ctx, shop.Domain, shop.AccessToken, current.Reference, details)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create usage charge: %w", err)
	}
	if !ok {
		s.logger.Info().
			Str("shop", shop.Domain.String()).
			Int64("charge_reference", int64(current.Reference)).
			Msg("Usage charge declined")
		return nil, false, nil
	}
	if result == nil {
		return nil, false, errors.New("failed to create usage charge: empty response")
	}

	now := s.clock.Now()
	parent := current.Reference
	charge := &domain.Charge{
		ShopID:          shop.ID,
		PlanID:          current.PlanID,
		Type:            domain.ChargeTypeUsage,
		Reference:       result.Reference,
		ReferenceCharge: &parent,
		Status:          domain.ChargeStatusActive,
		Price:           details.Price,
		Description:     details.Description,
		Test:            current.Test,
		ActivatedOn:     domain.DatePtr(now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.charges.Create(ctx, charge); err != nil {
		return nil, false, fmt.Errorf("failed to store usage charge: %w", err)
	}
	return charge, true, nil
}

// HasEffectiveCharge reports whether the shop may use the app under the billing rules
func (s *Service) HasEffectiveCharge(ctx context.Context, shop *domain.Shop) (bool, error) {
	if shop.BypassesBilling() {
		return true, nil
	}
	if !shop.HasPlan() {
		return false, nil
	}
	charge, err := s.charges.LatestForPlan(ctx, *shop.PlanID, shop.ID)
	if err != nil {
		return false, fmt.Errorf("failed to get current charge: %w", err)
	}
	return charge.IsEffective(s.today()), nil
}

// ExpireCancelledCharges marks cancelled charges whose paid period has lapsed as expired
func (s *Service) ExpireCancelledCharges(ctx context.Context) (int, error) {
	today := s.today()
	charges, err := s.charges.ListCancelledExpiringBefore(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring charges: %w", err)
	}

	expired := 0
	for _, charge := range charges {
		charge.Status = domain.ChargeStatusExpired
		charge.UpdatedAt = s.clock.Now()
		if err := s.charges.Update(ctx, charge); err != nil {
			return expired, fmt.Errorf("failed to expire charge %d: %w", charge.Reference, err)
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info().Int("count", expired).Msg("Expired cancelled charges")
	}
	return expired, nil
}
