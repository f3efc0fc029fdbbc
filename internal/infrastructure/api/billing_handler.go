package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"archie-core-shopify-app/internal/application/auth"
	"archie-core-shopify-app/internal/application/billing"
	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/metrics"
	"archie-core-shopify-app/internal/infrastructure/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// billingShop returns the installed shop of the request. When there is none the browser is
// sent through OAuth and nil is returned.
func billingShop(w http.ResponseWriter, r *http.Request, cfg Config) *domain.Shop {
	if shopSession, ok := auth.FromContext(r.Context()); ok {
		if shop := shopSession.Shop(); shop.HasOfflineAccess() {
			return shop
		}
	}

	shopDomain, err := domain.NewShopDomain(r.URL.Query().Get("shop"))
	if err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrShopNotFound)
		return nil
	}
	http.Redirect(w, r, cfg.AuthenticateRoute+"?"+url.Values{"shop": {shopDomain.String()}}.Encode(), http.StatusFound)
	return nil
}

func planParam(r *http.Request) (*int64, error) {
	raw := chi.URLParam(r, "plan")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.ErrPlanNotFound
	}
	return &id, nil
}

// billingHandler creates a charge for the requested (or default) plan and sends the
// merchant to approve it
func billingHandler(billingService *billing.Service, cfg Config, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := billingShop(w, r, cfg)
		if shop == nil {
			return
		}

		planID, err := planParam(r)
		if err != nil {
			middleware.WriteError(w, http.StatusNotFound, err)
			return
		}

		confirmationURL, err := billingService.CreatePlanURL(r.Context(), shop, planID)
		if err != nil {
			metrics.RecordBillingOperation("create", "error")
			if errors.Is(err, domain.ErrPlanNotFound) {
				middleware.WriteError(w, http.StatusNotFound, err)
				return
			}
			logger.Error().Err(err).Str("shop", shop.Domain.String()).Msg("Failed to create charge")
			middleware.WriteError(w, http.StatusBadGateway, errors.New("failed to create charge"))
			return
		}
		metrics.RecordBillingOperation("create", "ok")

		// the confirmation page refuses to be framed
		if cfg.Embedded {
			if err := fullPageRedirect(w, cfg.APIKey, confirmationURL); err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}
		http.Redirect(w, r, confirmationURL, http.StatusFound)
	}
}

// billingProcessHandler activates the charge the merchant just approved
func billingProcessHandler(billingService *billing.Service, cfg Config, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := billingShop(w, r, cfg)
		if shop == nil {
			return
		}

		planID, err := planParam(r)
		if err != nil || planID == nil {
			middleware.WriteError(w, http.StatusNotFound, domain.ErrPlanNotFound)
			return
		}
		ref, err := strconv.ParseInt(r.URL.Query().Get("charge_id"), 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, errors.New("missing or invalid charge_id"))
			return
		}

		_, err = billingService.ActivatePlan(r.Context(), shop, *planID, domain.ChargeReference(ref))
		switch {
		case err == nil:
			metrics.RecordBillingOperation("activate", "ok")
		case errors.Is(err, domain.ErrChargeDeclined):
			metrics.RecordBillingOperation("activate", "declined")
			middleware.WriteError(w, http.StatusPaymentRequired, err)
			return
		case errors.Is(err, domain.ErrPlanNotFound):
			metrics.RecordBillingOperation("activate", "error")
			middleware.WriteError(w, http.StatusNotFound, err)
			return
		default:
			metrics.RecordBillingOperation("activate", "error")
			logger.Error().Err(err).Str("shop", shop.Domain.String()).Int64("charge_reference", ref).Msg("Failed to activate plan")
			middleware.WriteError(w, http.StatusBadGateway, domain.ErrChargeActivation)
			return
		}

		http.Redirect(w, r, homeURL(cfg.Embedded, cfg.APIKey, shop.Domain), http.StatusFound)
	}
}

// UsageChargeResponse is returned for an accepted usage charge
type UsageChargeResponse struct {
	Reference   int64  `json:"reference"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

// usageChargeHandler bills a signed usage charge against the shop's recurring plan
func usageChargeHandler(billingService *billing.Service, cfg Config, logger zerolog.Logger) http.HandlerFunc {
	verifier := auth.NewHmacVerifier(auth.QueryString)
	return func(w http.ResponseWriter, r *http.Request) {
		shopSession, ok := auth.FromContext(r.Context())
		if !ok || shopSession.Shop() == nil {
			middleware.WriteError(w, http.StatusUnauthorized, domain.ErrShopNotFound)
			return
		}
		shop := shopSession.Shop()

		if err := r.ParseForm(); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err)
			return
		}
		params := url.Values{
			"price":       {r.PostForm.Get("price")},
			"description": {r.PostForm.Get("description")},
		}
		if redirect := r.PostForm.Get("redirect"); redirect != "" {
			params.Set("redirect", redirect)
		}
		valid, err := verifier.Verify(cfg.APISecret, params, r.PostForm.Get("signature"))
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, err)
			return
		}
		if !valid {
			middleware.WriteError(w, http.StatusUnauthorized, domain.ErrSignatureVerification)
			return
		}

		price, err := decimal.NewFromString(params.Get("price"))
		if err != nil || !price.IsPositive() {
			middleware.WriteError(w, http.StatusBadRequest, errors.New("invalid price"))
			return
		}

		charge, ok, err := billingService.ActivateUsageCharge(r.Context(), shop, domain.UsageChargeDetails{
			Price:       price,
			Description: params.Get("description"),
		})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrChargeTypeMismatch):
			metrics.RecordBillingOperation("usage", "error")
			middleware.WriteError(w, http.StatusBadRequest, err)
			return
		case errors.Is(err, domain.ErrChargeNotFound):
			metrics.RecordBillingOperation("usage", "error")
			middleware.WriteError(w, http.StatusNotFound, err)
			return
		default:
			metrics.RecordBillingOperation("usage", "error")
			logger.Error().Err(err).Str("shop", shop.Domain.String()).Msg("Failed to create usage charge")
			middleware.WriteError(w, http.StatusBadGateway, errors.New("failed to create usage charge"))
			return
		}
		if !ok {
			metrics.RecordBillingOperation("usage", "declined")
			middleware.WriteError(w, http.StatusPaymentRequired, errors.New("usage charge declined"))
			return
		}
		metrics.RecordBillingOperation("usage", "ok")

		if redirect := params.Get("redirect"); redirect != "" {
			http.Redirect(w, r, safeTarget(redirect), http.StatusFound)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, UsageChargeResponse{
			Reference:   int64(charge.Reference),
			Price:       charge.Price.StringFixed(2),
			Description: charge.Description,
		})
	}
}

// plansHandler lists the plan catalogue
func plansHandler(billingService *billing.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := billingService.ListPlans(r.Context())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list plans")
			middleware.WriteError(w, http.StatusInternalServerError, nil)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, plans)
	}
}
