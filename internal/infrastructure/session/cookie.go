package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const DefaultCookieName = "shopify_app_session"

// CookieConfig controls the browser session cookie. Embedded apps live in an iframe and need
// SameSite=None with Secure.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// ReadID returns the session id carried by the request cookie, or ""
func (c CookieConfig) ReadID(r *http.Request) string {
	cookie, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}

// Ensure returns the request's session id, issuing a new cookie when missing
func (c CookieConfig) Ensure(w http.ResponseWriter, r *http.Request) string {
	if id := c.ReadID(r); id != "" {
		return id
	}

	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     c.name(),
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.Secure {
		cookie.SameSite = http.SameSiteNoneMode
	}
	if c.MaxAge > 0 {
		cookie.MaxAge = int(c.MaxAge.Seconds())
	}
	http.SetCookie(w, cookie)
	return id
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}
