package middleware

import (
	"context"
	"net/http"

	"archie-core-shopify-app/internal/application/auth"
	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/metrics"
	"archie-core-shopify-app/internal/infrastructure/session"

	"github.com/rs/zerolog"
)

type webhookContextKey struct{}

// WebhookFromContext returns the verified webhook event of the request
func WebhookFromContext(ctx context.Context) (*domain.WebhookEvent, bool) {
	event, ok := ctx.Value(webhookContextKey{}).(*domain.WebhookEvent)
	return event, ok
}

// VerifyShop authenticates requests for the given delivery mode and stores the outcome
// (shop session, proxy shop or webhook event) in the request context
func VerifyShop(verifier *auth.Verifier, mode auth.DeliveryMode, cookie session.CookieConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionKey string
			switch mode {
			case auth.Standalone:
				sessionKey = cookie.Ensure(w, r)
			case auth.Embedded:
				// install and billing pages are top-level navigations that need a browser session
				if verifier.IsUnguarded(r.URL.Path) {
					sessionKey = cookie.Ensure(w, r)
				} else {
					sessionKey = cookie.ReadID(r)
				}
			}

			decision := verifier.Verify(r, mode, sessionKey)
			metrics.RecordVerification(mode.String(), decision.Outcome.String())

			switch decision.Outcome {
			case auth.OutcomePass:
				ctx := r.Context()
				if decision.Session != nil {
					ctx = auth.WithShopSession(ctx, decision.Session)
				}
				if decision.Shop != nil {
					ctx = domain.WithShop(ctx, decision.Shop)
				}
				if decision.Webhook != nil {
					ctx = context.WithValue(ctx, webhookContextKey{}, decision.Webhook)
				}
				next.ServeHTTP(w, r.WithContext(ctx))

			case auth.OutcomeRedirect:
				logger.Debug().
					Err(decision.Err).
					Str("mode", mode.String()).
					Str("path", r.URL.Path).
					Str("redirect", decision.RedirectTo).
					Msg("Redirecting unauthenticated request")
				http.Redirect(w, r, decision.RedirectTo, http.StatusFound)

			default:
				logger.Warn().
					Err(decision.Err).
					Str("mode", mode.String()).
					Str("path", r.URL.Path).
					Int("status", decision.Status).
					Msg("Request verification failed")
				WriteError(w, decision.Status, decision.Err)
			}
		})
	}
}
