package domain

import "time"

// WebhookEvent is a verified webhook delivery from the platform
type WebhookEvent struct {
	Topic      string     `json:"topic"`
	Shop       ShopDomain `json:"shop"`
	Payload    []byte     `json:"payload"`
	Verified   bool       `json:"verified"`
	ReceivedAt time.Time  `json:"received_at"`
}
