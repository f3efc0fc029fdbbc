package auth

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

// DeliveryMode selects how a request proves it came from the platform
type DeliveryMode int

const (
	// Embedded requests carry an App Bridge session token
	Embedded DeliveryMode = iota
	// Standalone requests carry a legacy hmac query signature and a cookie session
	Standalone
	// Proxy requests come through the storefront app proxy with a signature parameter
	Proxy
	// Webhook requests carry a base64 body HMAC header
	Webhook
)

func (m DeliveryMode) String() string {
	switch m {
	case Embedded:
		return "embedded"
	case Standalone:
		return "standalone"
	case Proxy:
		return "proxy"
	case Webhook:
		return "webhook"
	}
	return "unknown"
}

// Webhook headers
const (
	HeaderWebhookHmac  = "X-Shopify-Hmac-Sha256"
	HeaderWebhookShop  = "X-Shopify-Shop-Domain"
	HeaderWebhookTopic = "X-Shopify-Topic"
)

// Outcome is what the HTTP layer must do with a request
type Outcome int

const (
	OutcomePass Outcome = iota
	OutcomeRedirect
	OutcomeReject
)

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeRedirect:
		return "redirect"
	}
	return "reject"
}

// Decision is the result of verifying one request
type Decision struct {
	Outcome    Outcome
	Session    *ShopSession
	Shop       *domain.Shop
	Webhook    *domain.WebhookEvent
	RedirectTo string
	Status     int
	Err        error
}

func pass(session *ShopSession) *Decision {
	d := &Decision{Outcome: OutcomePass, Session: session, Status: http.StatusOK}
	if session != nil {
		d.Shop = session.Shop()
	}
	return d
}

func reject(status int, err error) *Decision {
	return &Decision{Outcome: OutcomeReject, Status: status, Err: err}
}

func redirect(to string, err error) *Decision {
	return &Decision{Outcome: OutcomeRedirect, Status: http.StatusFound, RedirectTo: to, Err: err}
}

// VerifierConfig holds app credentials and the re-authentication routes
type VerifierConfig struct {
	APIKey    string
	APISecret string
	// AuthenticateRoute starts OAuth for a shop
	AuthenticateRoute string
	// TokenRoute serves the page that fetches a fresh session token
	TokenRoute string
	// UnguardedPrefixes skip session token checks
	UnguardedPrefixes []string
}

// Verifier is the single request authenticity state machine for every delivery mode
type Verifier struct {
	config    VerifierConfig
	shops     ports.ShopRepository
	sessions  *SessionManager
	tokens    *SessionTokenValidator
	resolver  *RequestSourceResolver
	adminHmac *HmacVerifier
	proxyHmac *HmacVerifier
	clock     ports.Clock
	logger    zerolog.Logger
}

// NewVerifier creates a new request verifier
func NewVerifier(
	config VerifierConfig,
	shops ports.ShopRepository,
	sessions *SessionManager,
	tokens *SessionTokenValidator,
	clock ports.Clock,
	logger zerolog.Logger,
) *Verifier {
	if config.AuthenticateRoute == "" {
		config.AuthenticateRoute = "/authenticate"
	}
	if config.TokenRoute == "" {
		config.TokenRoute = "/authenticate/token"
	}
	if config.UnguardedPrefixes == nil {
		config.UnguardedPrefixes = []string{"/authenticate", "/billing"}
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Verifier{
		config:    config,
		shops:     shops,
		sessions:  sessions,
		tokens:    tokens,
		resolver:  NewRequestSourceResolver(),
		adminHmac: NewHmacVerifier(ParamConcatenation),
		proxyHmac: NewHmacVerifier(QueryString),
		clock:     clock,
		logger:    logger,
	}
}

// Resolver returns the request source resolver the verifier uses
func (v *Verifier) Resolver() *RequestSourceResolver {
	return v.resolver
}

// Verify runs the state machine for mode. sessionKey is the browser session cookie, if any.
func (v *Verifier) Verify(req *http.Request, mode DeliveryMode, sessionKey string) *Decision {
	switch mode {
	case Embedded:
		return v.verifyEmbedded(req, sessionKey)
	case Standalone:
		return v.verifyStandalone(req, sessionKey)
	case Proxy:
		return v.verifyProxy(req)
	case Webhook:
		return v.verifyWebhook(req)
	}
	return reject(http.StatusInternalServerError, fmt.Errorf("unknown delivery mode %d", mode))
}

// verifySignedData checks the hmac of the first signed source and returns the shop the
// signature covers. signed is false when the request is unsigned.
func (v *Verifier) verifySignedData(req *http.Request, verifier *HmacVerifier) (shop domain.ShopDomain, signed bool, err error) {
	data := v.resolver.SignedData(req, verifier.Mode())
	if data.Source == SourceNone {
		return "", false, nil
	}
	valid, err := verifier.Verify(v.config.APISecret, data.Params, data.Signature)
	if err != nil {
		return "", true, err
	}
	if !valid {
		return "", true, domain.ErrSignatureVerification
	}
	shop, err = domain.NewShopDomain(data.Params.Get("shop"))
	if err != nil {
		return "", true, fmt.Errorf("%w: signed data carries no shop", domain.ErrSignatureVerification)
	}
	return shop, true, nil
}

// boundShop resolves the shop the request names and requires it to be the signed shop
func (v *Verifier) boundShop(req *http.Request, signedShop domain.ShopDomain) (domain.ShopDomain, *Decision) {
	claimed, _, err := v.resolver.ShopDomain(req)
	if err != nil {
		return "", reject(http.StatusUnauthorized, err)
	}
	if !signedShop.IsSame(claimed) {
		v.logger.Warn().
			Str("shop", claimed.String()).
			Str("signed_shop", signedShop.String()).
			Msg("Signature was issued for another shop")
		return "", reject(http.StatusUnauthorized, domain.ErrShopMismatch)
	}
	return claimed, nil
}

func (v *Verifier) verifyEmbedded(req *http.Request, sessionKey string) *Decision {
	ctx := req.Context()

	signedShop, signed, err := v.verifySignedData(req, v.adminHmac)
	if err != nil {
		return v.signatureFailure(err)
	}

	if v.IsUnguarded(req.URL.Path) {
		return v.loginFromSignature(req, sessionKey, signedShop, signed)
	}

	rawToken := v.resolver.SessionToken(req)
	if rawToken == "" {
		return v.handleMissingToken(req)
	}

	token, err := v.tokens.Validate(rawToken)
	if err != nil {
		return v.handleInvalidToken(req, err)
	}
	if signed && !signedShop.IsSame(token.ShopDomain) {
		return reject(http.StatusUnauthorized, domain.ErrShopMismatch)
	}

	sessionID := v.resolver.SessionID(req)
	if sessionID == "" {
		sessionID = token.SessionID
	}
	if sessionKey == "" {
		sessionKey = sessionID
	}

	session, err := v.sessions.Open(ctx, sessionKey)
	if err != nil {
		return reject(http.StatusInternalServerError, err)
	}

	if prev := session.PreviousDomain(); !prev.IsNull() && !prev.IsSame(token.ShopDomain) {
		v.logger.Warn().
			Str("shop", token.ShopDomain.String()).
			Str("previous_shop", prev.String()).
			Msg("Session bleed detected, forgetting previous shop")
		if err := session.Forget(ctx); err != nil {
			return reject(http.StatusInternalServerError, err)
		}
	}

	shop, err := v.shops.GetByDomain(ctx, token.ShopDomain, false)
	if err != nil {
		return reject(http.StatusInternalServerError, fmt.Errorf("failed to get shop: %w", err))
	}
	if shop == nil {
		return v.handleInvalidShop(req, session, token.ShopDomain)
	}

	session.SetSessionToken(token.Raw)
	session.SetSessionID(sessionID)
	ok, err := session.Make(ctx, shop.Domain)
	if err != nil {
		return reject(http.StatusInternalServerError, err)
	}
	if !ok || !session.IsValid() {
		return v.handleInvalidShop(req, session, token.ShopDomain)
	}

	return pass(session)
}

func (v *Verifier) verifyStandalone(req *http.Request, sessionKey string) *Decision {
	ctx := req.Context()

	signedShop, signed, err := v.verifySignedData(req, v.adminHmac)
	if err != nil {
		return v.signatureFailure(err)
	}

	var claimed domain.ShopDomain
	if signed {
		var rejected *Decision
		if claimed, rejected = v.boundShop(req, signedShop); rejected != nil {
			return rejected
		}
	}

	session, err := v.sessions.Open(ctx, sessionKey)
	if err != nil {
		return reject(http.StatusInternalServerError, err)
	}

	if !signed {
		claimed, _, err = v.resolver.ShopDomain(req)
	}
	if err != nil {
		if session.IsValid() {
			return pass(session)
		}
		if v.IsUnguarded(req.URL.Path) {
			return pass(session)
		}
		return reject(http.StatusBadRequest, domain.ErrMissingShopDomain)
	}

	if session.IsValidCompare(claimed) {
		return pass(session)
	}

	var bleed error
	if prev := session.PreviousDomain(); !prev.IsNull() && !prev.IsSame(claimed) {
		bleed = domain.ErrSessionBleed
		v.logger.Warn().
			Str("shop", claimed.String()).
			Str("previous_shop", prev.String()).
			Msg("Session bleed detected, forgetting previous shop")
	}
	if err := session.Forget(ctx); err != nil {
		return reject(http.StatusInternalServerError, err)
	}

	if v.IsUnguarded(req.URL.Path) && !signed {
		return pass(session)
	}
	if !signed {
		return redirect(v.installURL(claimed), bleed)
	}

	ok, err := session.Make(ctx, claimed)
	if err != nil {
		return reject(http.StatusInternalServerError, err)
	}
	if !ok || !session.IsValid() {
		if v.IsUnguarded(req.URL.Path) {
			return pass(session)
		}
		return redirect(v.installURL(claimed), domain.ErrShopNotFound)
	}
	return pass(session)
}

func (v *Verifier) verifyProxy(req *http.Request) *Decision {
	signedShop, signed, err := v.verifySignedData(req, v.proxyHmac)
	if err != nil {
		return v.signatureFailure(err)
	}
	if !signed {
		return reject(http.StatusUnauthorized, domain.ErrSignatureVerification)
	}

	claimed, rejected := v.boundShop(req, signedShop)
	if rejected != nil {
		return rejected
	}
	shop, err := v.shops.GetByDomain(req.Context(), claimed, false)
	if err != nil {
		return reject(http.StatusInternalServerError, fmt.Errorf("failed to get shop: %w", err))
	}
	if shop == nil {
		return reject(http.StatusUnauthorized, domain.ErrShopNotFound)
	}
	return &Decision{Outcome: OutcomePass, Status: http.StatusOK, Shop: shop}
}

func (v *Verifier) verifyWebhook(req *http.Request) *Decision {
	if v.config.APISecret == "" {
		return reject(http.StatusInternalServerError, domain.ErrMissingSecret)
	}
	rawShop := req.Header.Get(HeaderWebhookShop)
	if rawShop == "" || req.Header.Get(HeaderWebhookHmac) == "" {
		return reject(http.StatusUnauthorized, domain.ErrSignatureVerification)
	}

	app := goshopify.App{ApiKey: v.config.APIKey, ApiSecret: v.config.APISecret}
	if !app.VerifyWebhookRequest(req) {
		return reject(http.StatusUnauthorized, domain.ErrSignatureVerification)
	}

	shop, err := domain.NewShopDomain(rawShop)
	if err != nil {
		return reject(http.StatusUnauthorized, err)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return reject(http.StatusBadRequest, fmt.Errorf("failed to read webhook body: %w", err))
	}

	return &Decision{
		Outcome: OutcomePass,
		Status:  http.StatusOK,
		Webhook: &domain.WebhookEvent{
			Topic:      req.Header.Get(HeaderWebhookTopic),
			Shop:       shop,
			Payload:    body,
			Verified:   true,
			ReceivedAt: v.clock.Now(),
		},
	}
}

// loginFromSignature opens the session on unguarded routes, logging in via a verified hmac
func (v *Verifier) loginFromSignature(req *http.Request, sessionKey string, signedShop domain.ShopDomain, signed bool) *Decision {
	ctx := req.Context()
	if sessionKey == "" {
		sessionKey = v.resolver.SessionID(req)
	}
	session, err := v.sessions.Open(ctx, sessionKey)
	if err != nil {
		return reject(http.StatusInternalServerError, err)
	}
	if !signed {
		return pass(session)
	}
	claimed, rejected := v.boundShop(req, signedShop)
	if rejected != nil {
		return rejected
	}
	if _, err := session.Make(ctx, claimed); err != nil {
		return reject(http.StatusInternalServerError, err)
	}
	return pass(session)
}

func (v *Verifier) handleMissingToken(req *http.Request) *Decision {
	if IsAPICaller(req) {
		return reject(http.StatusUnauthorized, &TokenError{Status: TokenMalformed, Err: errors.New("missing session token")})
	}

	claimed, _, err := v.resolver.ShopDomain(req)
	if err != nil {
		return reject(http.StatusBadRequest, err)
	}

	shop, err := v.shops.GetByDomain(req.Context(), claimed, false)
	if err != nil {
		return reject(http.StatusInternalServerError, fmt.Errorf("failed to get shop: %w", err))
	}
	if shop == nil || !shop.HasOfflineAccess() {
		return redirect(v.installURL(claimed), nil)
	}
	return redirect(v.tokenURL(req, claimed), nil)
}

func (v *Verifier) handleInvalidToken(req *http.Request, err error) *Decision {
	status := http.StatusBadRequest
	if tokenErr, ok := AsTokenError(err); ok {
		status = tokenErr.HTTPStatus()
	}
	if IsAPICaller(req) {
		return reject(status, err)
	}
	claimed, _, shopErr := v.resolver.ShopDomain(req)
	if shopErr != nil {
		return reject(status, err)
	}
	return redirect(v.tokenURL(req, claimed), err)
}

func (v *Verifier) handleInvalidShop(req *http.Request, session *ShopSession, shopDomain domain.ShopDomain) *Decision {
	if err := session.Forget(req.Context()); err != nil {
		return reject(http.StatusInternalServerError, err)
	}
	if IsAPICaller(req) {
		return reject(http.StatusForbidden, domain.ErrShopNotFound)
	}
	return redirect(v.installURL(shopDomain), domain.ErrShopNotFound)
}

func (v *Verifier) signatureFailure(err error) *Decision {
	if errors.Is(err, domain.ErrMissingSecret) {
		return reject(http.StatusInternalServerError, err)
	}
	return reject(http.StatusUnauthorized, err)
}

// IsUnguarded reports whether path skips session token checks
func (v *Verifier) IsUnguarded(path string) bool {
	for _, prefix := range v.config.UnguardedPrefixes {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func (v *Verifier) installURL(shop domain.ShopDomain) string {
	return v.config.AuthenticateRoute + "?" + url.Values{"shop": {shop.String()}}.Encode()
}

// tokenURL points at the bounce page, which reloads target with a fresh token
func (v *Verifier) tokenURL(req *http.Request, shop domain.ShopDomain) string {
	query := req.URL.Query()
	query.Del("token")
	target := req.URL.Path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return v.config.TokenRoute + "?" + url.Values{
		"shop":   {shop.String()},
		"target": {target},
	}.Encode()
}
