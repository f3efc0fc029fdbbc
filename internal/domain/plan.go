package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanType is the billing type of a plan
type PlanType string

const (
	PlanTypeRecurring PlanType = "RECURRING"
	PlanTypeOneTime   PlanType = "ONETIME"
)

// PlanInterval is the billing interval of a recurring plan
type PlanInterval string

const (
	PlanIntervalEvery30Days PlanInterval = "EVERY_30_DAYS"
	PlanIntervalAnnual      PlanInterval = "ANNUAL"
)

// Plan is a billing plan offered to merchants.
// A plan is immutable once a charge references it; changed terms need a new plan.
type Plan struct {
	ID           int64            `json:"id"`
	Type         PlanType         `json:"type"`
	Interval     PlanInterval     `json:"interval"`
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	TrialDays    int              `json:"trial_days"`
	CappedAmount *decimal.Decimal `json:"capped_amount,omitempty"`
	Terms        string           `json:"terms,omitempty"`
	Test         bool             `json:"test"`
	OnInstall    bool             `json:"on_install"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// IsType reports whether the plan is of the given type
func (p *Plan) IsType(t PlanType) bool {
	return p != nil && p.Type == t
}

// HasTrial reports whether the plan grants trial days
func (p *Plan) HasTrial() bool {
	return p != nil && p.TrialDays > 0
}

// IsCapped reports whether the plan allows usage charges up to a capped amount
func (p *Plan) IsCapped() bool {
	return p != nil && p.CappedAmount != nil && p.CappedAmount.IsPositive()
}

// IsAnnual reports whether the plan bills yearly
func (p *Plan) IsAnnual() bool {
	return p != nil && p.Interval == PlanIntervalAnnual
}

// ChargeType maps the plan type to the charge type created on activation
func (p *Plan) ChargeType() ChargeType {
	if p.IsType(PlanTypeRecurring) {
		return ChargeTypeRecurring
	}
	return ChargeTypeCharge
}

// PlanDetails is what the platform needs to create a charge for a plan
type PlanDetails struct {
	Name         string
	Price        decimal.Decimal
	Interval     PlanInterval
	Test         bool
	TrialDays    int
	CappedAmount *decimal.Decimal
	Terms        string
	ReturnURL    string
}
