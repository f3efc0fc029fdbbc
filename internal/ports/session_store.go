package ports

import (
	"context"

	"archie-core-shopify-app/internal/domain"
)

// SessionStore keeps browser session values keyed by session id.
// Load returns an empty SessionData when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*domain.SessionData, error)
	Save(ctx context.Context, sessionID string, data *domain.SessionData) error
	Destroy(ctx context.Context, sessionID string) error
}

// AuthGuard records which shop is logged in for a browser session
type AuthGuard interface {
	Login(ctx context.Context, sessionID string, shop *domain.Shop) error
	Logout(ctx context.Context, sessionID string) error
	// Current returns the logged-in shop domain, or "" when nobody is logged in
	Current(ctx context.Context, sessionID string) (domain.ShopDomain, error)
}
