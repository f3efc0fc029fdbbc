package application

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"archie-core-shopify-app/internal/application/auth"
	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InstallConfig holds the OAuth install settings
type InstallConfig struct {
	APISecret string
	// AppURL is the public base URL of the app
	AppURL string
	Scopes []string
	// CallbackRoute receives the authorization code
	CallbackRoute string
	GrantMode     domain.GrantMode
}

// InstallService runs the OAuth install and re-authorization flow
type InstallService struct {
	shops  ports.ShopRepository
	api    ports.CommerceAPI
	jobs   ports.JobDispatcher
	hmac   *auth.HmacVerifier
	clock  ports.Clock
	config InstallConfig
	logger zerolog.Logger
}

// NewInstallService creates a new install service
func NewInstallService(
	shops ports.ShopRepository,
	api ports.CommerceAPI,
	jobs ports.JobDispatcher,
	clock ports.Clock,
	config InstallConfig,
	logger zerolog.Logger,
) *InstallService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if config.CallbackRoute == "" {
		config.CallbackRoute = "/authenticate"
	}
	if config.GrantMode == "" {
		config.GrantMode = domain.GrantModeOffline
	}
	return &InstallService{
		shops:  shops,
		api:    api,
		jobs:   jobs,
		hmac:   auth.NewHmacVerifier(auth.ParamConcatenation),
		clock:  clock,
		config: config,
		logger: logger,
	}
}

// RedirectURI is the OAuth callback URL registered with the platform
func (s *InstallService) RedirectURI() string {
	return strings.TrimSuffix(s.config.AppURL, "/") + s.config.CallbackRoute
}

// BeginAuth stores a state nonce in the session and returns the authorization URL.
// Per-user grants are only requested once the shop holds an offline token.
func (s *InstallService) BeginAuth(ctx context.Context, session *auth.ShopSession, shopDomain domain.ShopDomain) (string, error) {
	if shopDomain.IsNull() {
		return "", domain.ErrMissingShopDomain
	}

	perUser := false
	if s.config.GrantMode == domain.GrantModePerUser {
		shop, err := s.shops.GetByDomain(ctx, shopDomain, false)
		if err != nil {
			return "", fmt.Errorf("failed to get shop: %w", err)
		}
		perUser = shop.HasOfflineAccess()
	}

	state := uuid.NewString()
	data := session.Data()
	data.OAuthState = state
	data.OAuthStateShop = shopDomain
	if err := session.Save(ctx); err != nil {
		return "", err
	}

	authURL, err := s.api.BuildAuthURL(shopDomain, s.config.Scopes, s.RedirectURI(), state, perUser)
	if err != nil {
		return "", fmt.Errorf("failed to build auth url: %w", err)
	}

	s.logger.Info().
		Str("shop", shopDomain.String()).
		Bool("per_user", perUser).
		Msg("Starting OAuth")
	return authURL, nil
}

// CompleteAuth verifies the callback, exchanges the code and logs the shop in.
// A previously uninstalled shop is restored.
func (s *InstallService) CompleteAuth(ctx context.Context, session *auth.ShopSession, params url.Values) (*domain.Shop, error) {
	valid, err := s.hmac.Verify(s.config.APISecret, params, params.Get(s.hmac.Mode().SignatureField()))
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, domain.ErrSignatureVerification
	}

	shopDomain, err := domain.NewShopDomain(params.Get("shop"))
	if err != nil {
		return nil, err
	}

	data := session.Data()
	if data.OAuthState == "" || params.Get("state") != data.OAuthState || !data.OAuthStateShop.IsSame(shopDomain) {
		return nil, domain.ErrInvalidOAuthState
	}

	access, err := s.api.RequestAccessToken(ctx, shopDomain, params.Get("code"))
	if err != nil {
		return nil, fmt.Errorf("failed to request access token: %w", err)
	}

	if _, err := s.upsertShop(ctx, shopDomain); err != nil {
		return nil, err
	}

	ok, err := session.Make(ctx, shopDomain)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrShopNotFound
	}
	if err := session.SetAccess(ctx, access); err != nil {
		return nil, err
	}

	data.OAuthState = ""
	data.OAuthStateShop = ""
	if err := session.Save(ctx); err != nil {
		return nil, err
	}

	job := domain.Job{
		ID:         uuid.NewString(),
		Kind:       domain.JobKindAfterAuthenticate,
		Shop:       shopDomain,
		EnqueuedAt: s.clock.Now(),
	}
	if err := s.jobs.Dispatch(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("shop", shopDomain.String()).Msg("Failed to dispatch after-authenticate job")
	}

	s.logger.Info().
		Str("shop", shopDomain.String()).
		Bool("per_user", access.IsPerUser()).
		Msg("OAuth completed")
	return session.Shop(), nil
}

func (s *InstallService) upsertShop(ctx context.Context, shopDomain domain.ShopDomain) (*domain.Shop, error) {
	shop, err := s.shops.GetByDomain(ctx, shopDomain, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	if shop == nil {
		shop = &domain.Shop{Domain: shopDomain}
		if err := s.shops.Save(ctx, shop); err != nil {
			return nil, fmt.Errorf("failed to create shop: %w", err)
		}
		s.logger.Info().Str("shop", shopDomain.String()).Int64("id", shop.ID).Msg("Shop installed")
		return shop, nil
	}

	if shop.IsTrashed() {
		if err := s.shops.Restore(ctx, shop.ID); err != nil {
			return nil, fmt.Errorf("failed to restore shop: %w", err)
		}
		shop.DeletedAt = nil
		s.logger.Info().Str("shop", shopDomain.String()).Msg("Shop reinstalled")
	}
	return shop, nil
}

// AfterAuthenticate is the default after_authenticate job
func (s *InstallService) AfterAuthenticate(ctx context.Context, job domain.Job) error {
	shop, err := s.shops.GetByDomain(ctx, job.Shop, false)
	if err != nil {
		return fmt.Errorf("failed to get shop: %w", err)
	}
	if shop == nil {
		return fmt.Errorf("%w: %s", domain.ErrShopNotFound, job.Shop)
	}

	s.logger.Info().
		Str("shop", shop.Domain.String()).
		Bool("offline_access", shop.HasOfflineAccess()).
		Bool("has_plan", shop.HasPlan()).
		Msg("Shop authenticated")
	return nil
}
