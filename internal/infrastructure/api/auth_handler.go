package api

import (
	"errors"
	"net/http"
	"net/url"

	"archie-core-shopify-app/internal/application"
	"archie-core-shopify-app/internal/application/auth"
	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/middleware"

	"github.com/rs/zerolog"
)

// authenticateHandler starts OAuth for a shop, or completes it when the platform calls back with a code
func authenticateHandler(install *application.InstallService, resolver *auth.RequestSourceResolver, cfg Config, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		shopSession, ok := auth.FromContext(ctx)
		if !ok {
			middleware.WriteError(w, http.StatusInternalServerError, nil)
			return
		}

		shopDomain, _, err := resolver.ShopDomain(r)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err)
			return
		}

		if r.URL.Query().Get("code") == "" {
			authURL, err := install.BeginAuth(ctx, shopSession, shopDomain)
			if err != nil {
				logger.Error().Err(err).Str("shop", shopDomain.String()).Msg("Failed to start OAuth")
				middleware.WriteError(w, http.StatusInternalServerError, nil)
				return
			}
			redirectTo(w, r, cfg.Embedded, cfg.APIKey, authURL)
			return
		}

		shop, err := install.CompleteAuth(ctx, shopSession, r.URL.Query())
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrSignatureVerification):
			middleware.WriteError(w, http.StatusUnauthorized, err)
			return
		case errors.Is(err, domain.ErrInvalidOAuthState), errors.Is(err, domain.ErrMissingShopDomain):
			middleware.WriteError(w, http.StatusBadRequest, err)
			return
		default:
			logger.Error().Err(err).Str("shop", shopDomain.String()).Msg("Failed to complete OAuth")
			middleware.WriteError(w, http.StatusInternalServerError, errors.New("failed to complete installation"))
			return
		}

		target := homeURL(cfg.Embedded, cfg.APIKey, shop.Domain)
		if cfg.BillingEnabled && !shop.BypassesBilling() && !shop.HasPlan() {
			target = "/billing?" + url.Values{"shop": {shop.Domain.String()}}.Encode()
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// tokenHandler serves the page that asks App Bridge for a fresh session token and reloads target
func tokenHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := safeTarget(r.URL.Query().Get("target"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tokenPage.Execute(w, struct {
			APIKey string
			Target string
		}{APIKey: cfg.APIKey, Target: target}); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
