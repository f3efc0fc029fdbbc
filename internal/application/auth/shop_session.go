package auth

import (
	"context"
	"fmt"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"

	"github.com/rs/zerolog"
)

// SessionConfig holds the grant settings every ShopSession shares
type SessionConfig struct {
	GrantMode domain.GrantMode
	// StrictTokens makes Token return only the token of the configured grant mode
	StrictTokens bool
	// Embedded requires a session token for a session to be valid
	Embedded bool
}

// SessionManager opens per-request shop sessions
type SessionManager struct {
	shops  ports.ShopRepository
	store  ports.SessionStore
	guard  ports.AuthGuard
	clock  ports.Clock
	config SessionConfig
	logger zerolog.Logger
}

// NewSessionManager creates a new session manager
func NewSessionManager(
	shops ports.ShopRepository,
	store ports.SessionStore,
	guard ports.AuthGuard,
	clock ports.Clock,
	config SessionConfig,
	logger zerolog.Logger,
) *SessionManager {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if config.GrantMode == "" {
		config.GrantMode = domain.GrantModeOffline
	}
	return &SessionManager{
		shops:  shops,
		store:  store,
		guard:  guard,
		clock:  clock,
		config: config,
		logger: logger,
	}
}

// Config returns the shared session settings
func (m *SessionManager) Config() SessionConfig {
	return m.config
}

// Open loads the session stored under key. An unknown key yields an empty session.
func (m *SessionManager) Open(ctx context.Context, key string) (*ShopSession, error) {
	data := &domain.SessionData{}
	if key != "" {
		loaded, err := m.store.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if loaded != nil {
			data = loaded
		}
	}

	session := &ShopSession{
		manager:  m,
		key:      key,
		data:     data,
		previous: data.ShopDomain,
	}

	if !data.ShopDomain.IsNull() {
		shop, err := m.shops.GetByDomain(ctx, data.ShopDomain, false)
		if err != nil {
			return nil, fmt.Errorf("failed to load session shop: %w", err)
		}
		session.shop = shop
	}

	return session, nil
}

// ShopSession is the authenticated state of one request: the shop, its tokens and the
// browser session values. It lives in the request context, never in package state.
type ShopSession struct {
	manager  *SessionManager
	key      string
	data     *domain.SessionData
	shop     *domain.Shop
	previous domain.ShopDomain
}

// Key returns the session store key
func (s *ShopSession) Key() string {
	return s.key
}

// Shop returns the logged-in shop, or nil
func (s *ShopSession) Shop() *domain.Shop {
	return s.shop
}

// PreviousDomain returns the shop the browser session belonged to when it was opened
func (s *ShopSession) PreviousDomain() domain.ShopDomain {
	return s.previous
}

// Data returns the raw session values
func (s *ShopSession) Data() *domain.SessionData {
	return s.data
}

// Make logs the shop into the session. Returns false when no shop record exists.
func (s *ShopSession) Make(ctx context.Context, shopDomain domain.ShopDomain) (bool, error) {
	shop, err := s.manager.shops.GetByDomain(ctx, shopDomain, false)
	if err != nil {
		return false, fmt.Errorf("failed to get shop: %w", err)
	}
	if shop == nil {
		return false, nil
	}

	if err := s.manager.guard.Login(ctx, s.key, shop); err != nil {
		return false, fmt.Errorf("failed to login shop: %w", err)
	}

	s.shop = shop
	s.data.ShopDomain = shop.Domain
	if err := s.Save(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// SetSessionToken records the raw session token the request was authenticated with
func (s *ShopSession) SetSessionToken(token string) {
	s.data.SessionToken = token
}

// SessionToken returns the recorded session token
func (s *ShopSession) SessionToken() string {
	return s.data.SessionToken
}

// SetSessionID records the platform session id
func (s *ShopSession) SetSessionID(id string) {
	s.data.SessionID = id
}

// SessionID returns the recorded platform session id
func (s *ShopSession) SessionID() string {
	return s.data.SessionID
}

// IsPerUser reports whether the app is configured for per-user grants
func (s *ShopSession) IsPerUser() bool {
	return s.manager.config.GrantMode == domain.GrantModePerUser
}

// SetAccess stores the result of a code exchange. Per-user grants stay in the browser
// session; offline tokens are written to the shop record.
func (s *ShopSession) SetAccess(ctx context.Context, access *domain.AccessResponse) error {
	if s.shop == nil {
		return domain.ErrShopNotFound
	}

	if access.IsPerUser() {
		expires := s.manager.clock.Now().Add(time.Duration(access.ExpiresIn) * time.Second)
		s.data.User = access.AssociatedUser
		s.data.UserToken = access.AccessToken
		s.data.UserExpires = &expires
		return s.Save(ctx)
	}

	if err := s.manager.shops.SetAccessToken(ctx, s.shop.ID, access.AccessToken); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	s.shop.AccessToken = access.AccessToken
	return nil
}

// Token returns the API access token. strict returns only the configured grant mode's
// token; otherwise a per-user token is preferred and the offline token is the fallback.
func (s *ShopSession) Token(strict bool) string {
	offline := ""
	if s.shop != nil {
		offline = s.shop.AccessToken
	}
	perUser := s.data.UserToken

	if strict {
		if s.IsPerUser() {
			return perUser
		}
		return offline
	}
	if perUser != "" {
		return perUser
	}
	return offline
}

// IsValid reports whether the session carries a usable access token
func (s *ShopSession) IsValid() bool {
	if s.shop == nil || s.Token(true) == "" {
		return false
	}
	if s.IsPerUser() {
		if s.data.UserExpires == nil || !s.manager.clock.Now().Before(*s.data.UserExpires) {
			return false
		}
	}
	if s.manager.config.Embedded && s.data.SessionToken == "" {
		return false
	}
	return true
}

// IsValidCompare is IsValid plus a check that the session belongs to shopDomain
func (s *ShopSession) IsValidCompare(shopDomain domain.ShopDomain) bool {
	return s.IsValid() && s.shop.Domain.IsSame(shopDomain)
}

// Forget clears every session value and logs the shop out
func (s *ShopSession) Forget(ctx context.Context) error {
	s.data.ShopDomain = ""
	s.data.User = nil
	s.data.UserToken = ""
	s.data.UserExpires = nil
	s.data.SessionToken = ""
	s.data.SessionID = ""
	s.shop = nil

	if err := s.Save(ctx); err != nil {
		return err
	}
	if s.key == "" {
		return nil
	}
	if err := s.manager.guard.Logout(ctx, s.key); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// Save persists the session values
func (s *ShopSession) Save(ctx context.Context) error {
	if s.key == "" {
		return nil
	}
	if err := s.manager.store.Save(ctx, s.key, s.data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

type sessionContextKey struct{}

// WithShopSession stores the request's shop session in the context
func WithShopSession(ctx context.Context, session *ShopSession) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey{}, session)
	if session != nil && session.shop != nil {
		ctx = domain.WithShop(ctx, session.shop)
	}
	return ctx
}

// FromContext returns the request's shop session
func FromContext(ctx context.Context) (*ShopSession, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*ShopSession)
	return session, ok && session != nil
}
