package domain

import (
	"errors"
	"fmt"
)

var (
	// Authenticity
	ErrSignatureVerification = errors.New("unable to verify signature")
	ErrMalformedToken        = errors.New("session token is malformed")
	ErrExpiredToken          = errors.New("session token has expired")
	ErrInvalidIssuer         = errors.New("session token issuer is invalid")
	ErrInvalidAudience       = errors.New("session token audience is invalid")
	ErrMissingShopDomain     = errors.New("missing shop domain")
	ErrMissingSecret         = errors.New("signing secret is not configured")
	ErrSessionBleed          = errors.New("session belongs to another shop")
	ErrInvalidOAuthState     = errors.New("oauth state does not match the session")
	ErrShopMismatch          = errors.New("signed shop does not match the requested shop")
	// ErrInvalidShopDomain is also an ErrMissingShopDomain
	ErrInvalidShopDomain = fmt.Errorf("%w: host is outside the platform domain", ErrMissingShopDomain)

	// Records
	ErrShopNotFound   = errors.New("shop not found")
	ErrPlanNotFound   = errors.New("plan not found")
	ErrChargeNotFound = errors.New("charge not found")
	ErrPlanInUse      = errors.New("plan is referenced by a charge; create a new plan instead")

	// Billing
	ErrChargeTypeMismatch = errors.New("charge type mismatch")
	ErrChargeActivation   = errors.New("charge activation failed")
	ErrChargeDeclined     = errors.New("charge was declined by the merchant")

	// Jobs
	ErrUnknownJobKind = errors.New("no handler registered for job kind")
	ErrQueueFull      = errors.New("job queue is full")
	ErrQueueClosed    = errors.New("job queue is closed")
)

// ChargeTypeError reports an operation attempted against the wrong kind of charge
type ChargeTypeError struct {
	Operation string
	Got       ChargeType
	Allowed   []ChargeType
}

func (e *ChargeTypeError) Error() string {
	return fmt.Sprintf("%s: %s requires one of %v, got %s", ErrChargeTypeMismatch, e.Operation, e.Allowed, e.Got)
}

// Is lets errors.Is(err, ErrChargeTypeMismatch) match
func (e *ChargeTypeError) Is(target error) bool {
	return target == ErrChargeTypeMismatch
}
