package api

import (
	"net/http"

	"archie-core-shopify-app/internal/application"
	"archie-core-shopify-app/internal/application/auth"
	"archie-core-shopify-app/internal/application/billing"
	"archie-core-shopify-app/internal/infrastructure/metrics"
	"archie-core-shopify-app/internal/infrastructure/middleware"
	"archie-core-shopify-app/internal/infrastructure/session"
	"archie-core-shopify-app/internal/ports"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Config holds the HTTP surface settings
type Config struct {
	APIKey         string
	APISecret      string
	Embedded       bool
	BillingEnabled bool
	Cookie         session.CookieConfig
	AllowedOrigins []string
	// AuthenticateRoute must match the verifier's install route
	AuthenticateRoute string
	// SwaggerFile is served at /swagger/doc.json when set
	SwaggerFile string
}

// Dependencies are the services the routes call into
type Dependencies struct {
	Verifier *auth.Verifier
	Install  *application.InstallService
	Billing  *billing.Service
	Jobs     ports.JobDispatcher
	Clock    ports.Clock
}

// NewRouter builds the app's HTTP routes
func NewRouter(cfg Config, deps Dependencies, logger zerolog.Logger) http.Handler {
	if cfg.AuthenticateRoute == "" {
		cfg.AuthenticateRoute = "/authenticate"
	}
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"https://admin.shopify.com", "https://*.myshopify.com"}
	}

	mode := auth.Standalone
	if cfg.Embedded {
		mode = auth.Embedded
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.SecurityHeadersMiddleware(cfg.Embedded))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Shop-Domain", "X-Shop-Signature"},
		AllowCredentials: true,
	}))

	// Public routes
	r.Get("/health", healthHandler())
	r.Handle("/metrics", metrics.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	if cfg.SwaggerFile != "" {
		r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			http.ServeFile(w, r, cfg.SwaggerFile)
		})
	}

	// Platform callbacks
	r.With(middleware.VerifyShop(deps.Verifier, auth.Webhook, cfg.Cookie, logger)).
		Post("/webhook/{type}", webhookHandler(deps.Jobs, deps.Clock, logger))
	r.With(middleware.VerifyShop(deps.Verifier, auth.Proxy, cfg.Cookie, logger)).
		HandleFunc("/proxy/*", proxyHandler())

	// Install and billing pages run top-level with a cookie session
	r.Group(func(r chi.Router) {
		r.Use(middleware.VerifyShop(deps.Verifier, mode, cfg.Cookie, logger))

		r.Get(cfg.AuthenticateRoute, authenticateHandler(deps.Install, deps.Verifier.Resolver(), cfg, logger))
		r.Get(cfg.AuthenticateRoute+"/token", tokenHandler(cfg))
		r.Get("/billing", billingHandler(deps.Billing, cfg, logger))
		r.Get("/billing/{plan}", billingHandler(deps.Billing, cfg, logger))
		r.Get("/billing/process/{plan}", billingProcessHandler(deps.Billing, cfg, logger))
	})

	// App routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.VerifyShop(deps.Verifier, mode, cfg.Cookie, logger))

		r.Get("/api/plans", plansHandler(deps.Billing, logger))
		r.Post("/api/usage-charge", usageChargeHandler(deps.Billing, cfg, logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Billable(deps.Billing, cfg.BillingEnabled, "/billing", logger))
			r.Get("/", homeHandler())
			r.Get("/api/shop", homeHandler())
		})
	})

	return r
}
