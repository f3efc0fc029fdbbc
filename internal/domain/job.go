package domain

import "time"

// JobKind names a registered background job handler
type JobKind string

const (
	JobKindAfterAuthenticate JobKind = "after_authenticate"
	JobKindWebhook           JobKind = "webhook"
	JobKindChargeExpiry      JobKind = "charge_expiry_sweep"
)

// Job is a unit of background work. Exactly one payload field is set, matching Kind.
type Job struct {
	ID         string        `json:"id"`
	Kind       JobKind       `json:"kind"`
	Shop       ShopDomain    `json:"shop,omitempty"`
	Webhook    *WebhookEvent `json:"webhook,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}
