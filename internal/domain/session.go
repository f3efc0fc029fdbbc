package domain

import "time"

// GrantMode is the OAuth access mode an app is configured for
type GrantMode string

const (
	GrantModeOffline GrantMode = "OFFLINE"
	GrantModePerUser GrantMode = "PER_USER"
)

// SessionToken holds the verified claims of an App Bridge session token
type SessionToken struct {
	Raw         string     `json:"-"`
	Issuer      string     `json:"iss"`
	Destination string     `json:"dest"`
	Audience    string     `json:"aud"`
	Subject     string     `json:"sub"`
	ExpiresAt   time.Time  `json:"exp"`
	NotBefore   time.Time  `json:"nbf"`
	IssuedAt    time.Time  `json:"iat"`
	TokenID     string     `json:"jti"`
	SessionID   string     `json:"sid"`
	ShopDomain  ShopDomain `json:"-"`
}

// AssociatedUser is the platform admin user bound to a per-user grant
type AssociatedUser struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	AccountOwner  bool   `json:"account_owner"`
	EmailVerified bool   `json:"email_verified"`
}

// AccessResponse is the platform's answer to an authorization code exchange
type AccessResponse struct {
	AccessToken    string          `json:"access_token"`
	Scope          string          `json:"scope"`
	ExpiresIn      int64           `json:"expires_in,omitempty"`
	AssociatedUser *AssociatedUser `json:"associated_user,omitempty"`
}

// IsPerUser reports whether the response carries a per-user grant
func (a *AccessResponse) IsPerUser() bool {
	return a != nil && a.AssociatedUser != nil
}

// SessionData is everything the browser session remembers between requests.
// Per-user tokens only ever live here, never on the shop record.
type SessionData struct {
	ShopDomain     ShopDomain      `json:"shop_domain,omitempty"`
	User           *AssociatedUser `json:"user,omitempty"`
	UserToken      string          `json:"user_token,omitempty"`
	UserExpires    *time.Time      `json:"user_expires,omitempty"`
	SessionToken   string          `json:"session_token,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	OAuthState     string          `json:"oauth_state,omitempty"`
	OAuthStateShop ShopDomain      `json:"oauth_state_shop,omitempty"`
}
