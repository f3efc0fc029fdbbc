package middleware

import (
	"net/http"

	"archie-core-shopify-app/internal/domain"
)

const adminOrigin = "https://admin.shopify.com"

// SecurityHeadersMiddleware sets response hardening headers. Embedded apps may only be
// framed by the shop admin.
func SecurityHeadersMiddleware(embedded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if !embedded {
				h.Set("X-Frame-Options", "DENY")
				h.Set("Content-Security-Policy", "frame-ancestors 'none';")
				next.ServeHTTP(w, r)
				return
			}

			ancestors := adminOrigin
			if shop, err := domain.NewShopDomain(r.URL.Query().Get("shop")); err == nil {
				ancestors = "https://" + shop.String() + " " + adminOrigin
			}
			h.Set("Content-Security-Policy", "frame-ancestors "+ancestors+";")
			next.ServeHTTP(w, r)
		})
	}
}
