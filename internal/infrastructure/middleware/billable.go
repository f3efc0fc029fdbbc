package middleware

import (
	"net/http"
	"net/url"

	"archie-core-shopify-app/internal/application/auth"
	"archie-core-shopify-app/internal/application/billing"

	"github.com/rs/zerolog"
)

// Billable sends shops without an effective charge to the billing route.
// Freemium and grandfathered shops always pass. Must run after VerifyShop.
func Billable(billingService *billing.Service, enabled bool, billingRoute string, logger zerolog.Logger) func(http.Handler) http.Handler {
	if billingRoute == "" {
		billingRoute = "/billing"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			shopSession, ok := auth.FromContext(r.Context())
			if !ok || shopSession.Shop() == nil {
				WriteError(w, http.StatusUnauthorized, nil)
				return
			}
			shop := shopSession.Shop()
			if shop.BypassesBilling() {
				next.ServeHTTP(w, r)
				return
			}

			paid, err := billingService.HasEffectiveCharge(r.Context(), shop)
			if err != nil {
				logger.Error().Err(err).Str("shop", shop.Domain.String()).Msg("Failed to check billing status")
				WriteError(w, http.StatusInternalServerError, nil)
				return
			}
			if paid {
				next.ServeHTTP(w, r)
				return
			}

			target := billingRoute + "?" + url.Values{"shop": {shop.Domain.String()}}.Encode()
			if auth.IsAPICaller(r) {
				WriteJSON(w, http.StatusPaymentRequired, ErrorResponse{
					Error:            "billing required",
					ForceRedirectURL: target,
				})
				return
			}
			http.Redirect(w, r, target, http.StatusFound)
		})
	}
}
