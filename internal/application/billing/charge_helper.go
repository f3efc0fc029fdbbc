package billing

import (
	"context"
	"fmt"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"
)

// PeriodDays is the fixed length of a billing period, regardless of calendar month length
const PeriodDays = 30

// ChargeHelper computes period and trial arithmetic for charges.
// All dates are calendar days in UTC.
type ChargeHelper struct {
	charges ports.ChargeRepository
	clock   ports.Clock
}

// NewChargeHelper creates a new charge helper
func NewChargeHelper(charges ports.ChargeRepository, clock ports.Clock) *ChargeHelper {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &ChargeHelper{charges: charges, clock: clock}
}

func (h *ChargeHelper) today() time.Time {
	return domain.StartOfDay(h.clock.Now())
}

func (h *ChargeHelper) activatedOn(charge *domain.Charge) time.Time {
	if charge.ActivatedOn == nil {
		return h.today()
	}
	return domain.StartOfDay(*charge.ActivatedOn)
}

// PeriodBeginDate returns the first day of the charge's current 30-day period
func (h *ChargeHelper) PeriodBeginDate(charge *domain.Charge) time.Time {
	activated := h.activatedOn(charge)
	pastPeriods := domain.DiffInDays(activated, h.today()) / PeriodDays
	return domain.AddDays(activated, PeriodDays*pastPeriods)
}

// PeriodEndDate returns the day the current period ends
func (h *ChargeHelper) PeriodEndDate(charge *domain.Charge) time.Time {
	return domain.AddDays(h.PeriodBeginDate(charge), PeriodDays)
}

// PastDaysForPeriod returns the days elapsed in the current period, or nil when the
// charge was cancelled more than a period ago
func (h *ChargeHelper) PastDaysForPeriod(charge *domain.Charge) *int {
	today := h.today()
	if charge.CancelledOn != nil && domain.DiffInDays(today, *charge.CancelledOn) > PeriodDays {
		return nil
	}
	past := domain.DiffInDays(h.PeriodBeginDate(charge), today)
	return &past
}

// RemainingDaysForPeriod returns the paid days left in the current period
func (h *ChargeHelper) RemainingDaysForPeriod(charge *domain.Charge) int {
	past := h.PastDaysForPeriod(charge)
	if past == nil {
		return 0
	}
	if *past == 0 {
		today := h.today()
		if charge.CancelledOn != nil && domain.StartOfDay(*charge.CancelledOn).Before(today) {
			return 0
		}
		// A period boundary landing today starts a period nothing has been paid for yet
		if h.activatedOn(charge).Before(today) {
			return 0
		}
	}
	return PeriodDays - *past
}

// RemainingTrialDays returns the trial days left as of today
func (h *ChargeHelper) RemainingTrialDays(charge *domain.Charge) int {
	if !charge.IsTrial() {
		return 0
	}
	if !charge.IsActiveTrial(h.today()) {
		return 0
	}
	return domain.DiffInDays(h.today(), *charge.TrialEndsOn)
}

// RemainingTrialDaysFromCancel returns the trial days that were unused when the charge
// was cancelled, so a reinstall resumes the trial instead of restarting it
func (h *ChargeHelper) RemainingTrialDaysFromCancel(charge *domain.Charge) int {
	if !charge.IsTrial() || charge.TrialEndsOn == nil {
		return 0
	}
	cancelled := h.today()
	if charge.CancelledOn != nil {
		cancelled = domain.StartOfDay(*charge.CancelledOn)
	}
	trialEnds := domain.StartOfDay(*charge.TrialEndsOn)
	if cancelled.After(trialEnds) {
		return 0
	}
	return domain.DiffInDays(cancelled, trialEnds)
}

// DetermineTrialDaysRemaining returns the trial length to offer a shop subscribing to plan
func (h *ChargeHelper) DetermineTrialDaysRemaining(ctx context.Context, plan *domain.Plan, shop *domain.Shop) (int, error) {
	if !plan.HasTrial() {
		return 0, nil
	}
	last, err := h.charges.LatestForPlan(ctx, plan.ID, shop.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest charge for plan: %w", err)
	}
	if last == nil {
		return plan.TrialDays, nil
	}
	return h.RemainingTrialDaysFromCancel(last), nil
}
