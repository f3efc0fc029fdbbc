package api

import (
	"net/http"
	"strings"

	"archie-core-shopify-app/internal/application/auth"
	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/middleware"
)

// ShopResponse describes the authenticated shop
type ShopResponse struct {
	Domain        string `json:"domain"`
	PlanID        *int64 `json:"plan_id,omitempty"`
	Freemium      bool   `json:"freemium"`
	Grandfathered bool   `json:"grandfathered"`
	PerUser       bool   `json:"per_user"`
}

// homeHandler answers with the shop the request was authenticated for
func homeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopSession, ok := auth.FromContext(r.Context())
		if !ok || shopSession.Shop() == nil {
			middleware.WriteError(w, http.StatusUnauthorized, domain.ErrShopNotFound)
			return
		}
		shop := shopSession.Shop()
		middleware.WriteJSON(w, http.StatusOK, ShopResponse{
			Domain:        shop.Domain.String(),
			PlanID:        shop.PlanID,
			Freemium:      shop.Freemium,
			Grandfathered: shop.Grandfathered,
			PerUser:       shopSession.Data().UserToken != "",
		})
	}
}

// ProxyResponse is returned to storefront app proxy requests
type ProxyResponse struct {
	Shop string `json:"shop"`
	Path string `json:"path"`
}

// proxyHandler answers storefront app proxy requests for a verified shop
func proxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := domain.GetShopFromContext(r.Context())
		if shop == nil {
			middleware.WriteError(w, http.StatusUnauthorized, domain.ErrShopNotFound)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, ProxyResponse{
			Shop: shop.Domain.String(),
			Path: "/" + strings.TrimPrefix(r.URL.Path, "/proxy/"),
		})
	}
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
