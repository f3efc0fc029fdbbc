package domain

import (
	"net/url"
	"strings"
	"time"
)

// DefaultMyshopifyDomain is the platform suffix appended to bare shop handles
const DefaultMyshopifyDomain = "myshopify.com"

// ShopDomain is a normalized platform shop domain ({handle}.myshopify.com)
type ShopDomain string

// NewShopDomain normalizes a raw shop value (handle, domain or URL) against the myshopify suffix.
// Returns ErrMissingShopDomain when nothing usable remains.
func NewShopDomain(raw string) (ShopDomain, error) {
	return NewShopDomainWithSuffix(raw, DefaultMyshopifyDomain)
}

// NewShopDomainWithSuffix is NewShopDomain with a configurable myshopify suffix.
// Hosts outside the suffix are rejected with ErrInvalidShopDomain.
func NewShopDomainWithSuffix(raw string, suffix string) (ShopDomain, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimPrefix(value, "https://")
	value = strings.TrimPrefix(value, "http://")
	if value == "" {
		return "", ErrMissingShopDomain
	}

	// A bare handle gets the platform suffix
	if !strings.Contains(value, suffix) && !strings.Contains(value, ".") {
		value = value + "." + suffix
	}

	u, err := url.Parse("https://" + value)
	if err != nil || u.Hostname() == "" {
		return "", ErrMissingShopDomain
	}

	host := u.Hostname()
	handle := strings.TrimSuffix(host, "."+suffix)
	if handle == host || handle == "" || strings.Contains(handle, ".") {
		return "", ErrInvalidShopDomain
	}
	return ShopDomain(host), nil
}

// String returns the domain as a plain string
func (d ShopDomain) String() string {
	return string(d)
}

// IsNull reports whether the domain is empty
func (d ShopDomain) IsNull() bool {
	return d == ""
}

// IsSame compares two domains after normalization of the other value
func (d ShopDomain) IsSame(other ShopDomain) bool {
	if d.IsNull() || other.IsNull() {
		return false
	}
	normalized, err := NewShopDomain(string(other))
	if err != nil {
		return false
	}
	return d == normalized
}

// Shop represents an installed shop
type Shop struct {
	ID            int64      `json:"id"`
	Domain        ShopDomain `json:"domain"`
	AccessToken   string     `json:"-"` // offline token, empty until OAuth completes
	PlanID        *int64     `json:"plan_id,omitempty"`
	Freemium      bool       `json:"freemium"`
	Grandfathered bool       `json:"grandfathered"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasOfflineAccess reports whether OAuth has completed for the offline grant
func (s *Shop) HasOfflineAccess() bool {
	return s != nil && s.AccessToken != ""
}

// IsTrashed reports whether the shop was soft-deleted (app uninstalled)
func (s *Shop) IsTrashed() bool {
	return s != nil && s.DeletedAt != nil
}

// HasPlan reports whether the shop points at a plan
func (s *Shop) HasPlan() bool {
	return s != nil && s.PlanID != nil
}

// BypassesBilling reports whether billing should never be enforced for the shop
func (s *Shop) BypassesBilling() bool {
	return s != nil && (s.Freemium || s.Grandfathered)
}
