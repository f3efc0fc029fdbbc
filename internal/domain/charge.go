package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeType is the type of a platform charge
type ChargeType string

const (
	ChargeTypeRecurring ChargeType = "RECURRING"
	ChargeTypeCharge    ChargeType = "CHARGE" // one-time
	ChargeTypeUsage     ChargeType = "USAGE"
)

// ChargeStatus is the lifecycle state of a charge
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "PENDING"
	ChargeStatusAccepted  ChargeStatus = "ACCEPTED"
	ChargeStatusActive    ChargeStatus = "ACTIVE"
	ChargeStatusDeclined  ChargeStatus = "DECLINED"
	ChargeStatusCancelled ChargeStatus = "CANCELLED"
	ChargeStatusExpired   ChargeStatus = "EXPIRED"
)

// ParseChargeStatus maps a platform status string ("active", "accepted", ...) to a ChargeStatus
func ParseChargeStatus(raw string) (ChargeStatus, bool) {
	status := ChargeStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case ChargeStatusPending, ChargeStatusAccepted, ChargeStatusActive,
		ChargeStatusDeclined, ChargeStatusCancelled, ChargeStatusExpired:
		return status, true
	}
	return "", false
}

// ChargeReference is the platform-assigned charge id
type ChargeReference int64

// Charge is a persisted platform charge for a shop
type Charge struct {
	ID              int64            `json:"id"`
	ShopID          int64            `json:"shop_id"`
	PlanID          *int64           `json:"plan_id,omitempty"`
	Type            ChargeType       `json:"type"`
	Reference       ChargeReference  `json:"reference"`
	ReferenceCharge *ChargeReference `json:"reference_charge,omitempty"` // usage charges point at their recurring charge
	Status          ChargeStatus     `json:"status"`
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	CappedAmount    *decimal.Decimal `json:"capped_amount,omitempty"`
	Terms           string           `json:"terms,omitempty"`
	Description     string           `json:"description,omitempty"`
	Test            bool             `json:"test"`
	TrialDays       int              `json:"trial_days"`
	ActivatedOn     *time.Time       `json:"activated_on,omitempty"`
	BillingOn       *time.Time       `json:"billing_on,omitempty"`
	TrialEndsOn     *time.Time       `json:"trial_ends_on,omitempty"`
	CancelledOn     *time.Time       `json:"cancelled_on,omitempty"`
	ExpiresOn       *time.Time       `json:"expires_on,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// IsType reports whether the charge is of the given type
func (c *Charge) IsType(t ChargeType) bool {
	return c != nil && c.Type == t
}

// IsStatus reports whether the charge is in the given status
func (c *Charge) IsStatus(s ChargeStatus) bool {
	return c != nil && c.Status == s
}

// IsActive reports whether the platform considers the charge active
func (c *Charge) IsActive() bool {
	return c.IsStatus(ChargeStatusActive)
}

// IsDeclined reports whether the merchant declined the charge
func (c *Charge) IsDeclined() bool {
	return c.IsStatus(ChargeStatusDeclined)
}

// IsCancelled reports whether the charge was cancelled
func (c *Charge) IsCancelled() bool {
	return c != nil && (c.Status == ChargeStatusCancelled || c.CancelledOn != nil)
}

// IsTrial reports whether the charge carried trial days
func (c *Charge) IsTrial() bool {
	return c != nil && c.TrialDays > 0
}

// IsActiveTrial reports whether today still falls within the trial
func (c *Charge) IsActiveTrial(today time.Time) bool {
	if !c.IsTrial() || c.TrialEndsOn == nil {
		return false
	}
	return !StartOfDay(today).After(StartOfDay(*c.TrialEndsOn))
}

// IsEffective reports whether the charge still grants access on the given day:
// an active or accepted charge, or a cancelled one whose paid period has not lapsed.
func (c *Charge) IsEffective(today time.Time) bool {
	if c == nil {
		return false
	}
	switch c.Status {
	case ChargeStatusActive, ChargeStatusAccepted:
		return c.CancelledOn == nil
	case ChargeStatusCancelled:
		return c.ExpiresOn != nil && !StartOfDay(today).After(StartOfDay(*c.ExpiresOn))
	}
	return false
}

// UsageChargeDetails describes a usage charge to issue against a recurring charge
type UsageChargeDetails struct {
	Price       decimal.Decimal
	Description string
}
