package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenHeader is the only JOSE header the platform issues session tokens with
const SessionTokenHeader = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"

var sessionTokenShape = regexp.MustCompile(`^` + SessionTokenHeader + `\.[A-Za-z0-9_\-]+={0,2}\.[A-Za-z0-9_\-]+={0,2}$`)

var requiredClaims = []string{"iss", "dest", "aud", "sub", "exp", "nbf", "iat", "jti", "sid"}

// TokenStatus is the terminal state of session token validation
type TokenStatus string

const (
	TokenValid            TokenStatus = "VALID"
	TokenMalformed        TokenStatus = "MALFORMED"
	TokenExpired          TokenStatus = "EXPIRED"
	TokenInvalidSignature TokenStatus = "INVALID_SIGNATURE"
	TokenInvalidIssuer    TokenStatus = "INVALID_ISSUER"
	TokenInvalidAudience  TokenStatus = "INVALID_AUDIENCE"
)

// TokenError is a rejected session token
type TokenError struct {
	Status TokenStatus
	Err    error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("session token %s: %v", strings.ToLower(string(e.Status)), e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the rejection to the status returned to API callers
func (e *TokenError) HTTPStatus() int {
	if e.Status == TokenExpired {
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

func tokenError(status TokenStatus, err error) *TokenError {
	return &TokenError{Status: status, Err: err}
}

// SessionTokenValidator validates App Bridge session tokens
type SessionTokenValidator struct {
	apiKey    string
	apiSecret string
	leeway    time.Duration
	clock     ports.Clock
	parser    *jwt.Parser
}

// NewSessionTokenValidator creates a validator bound to the app credentials.
// leeway widens the nbf/exp/iat window in both directions.
func NewSessionTokenValidator(apiKey, apiSecret string, leeway time.Duration, clock ports.Clock) *SessionTokenValidator {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &SessionTokenValidator{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		leeway:    leeway,
		clock:     clock,
		parser:    jwt.NewParser(),
	}
}

// Validate runs the checks in order and returns the first failure.
// Returned errors are always *TokenError.
func (v *SessionTokenValidator) Validate(raw string) (*domain.SessionToken, error) {
	raw = strings.TrimSpace(raw)
	if !sessionTokenShape.MatchString(raw) {
		return nil, tokenError(TokenMalformed, domain.ErrMalformedToken)
	}
	segments := strings.Split(raw, ".")

	signature, err := v.parser.DecodeSegment(segments[2])
	if err != nil {
		return nil, tokenError(TokenInvalidSignature, domain.ErrSignatureVerification)
	}
	signingString := segments[0] + "." + segments[1]
	if err := jwt.SigningMethodHS256.Verify(signingString, signature, []byte(v.apiSecret)); err != nil {
		return nil, tokenError(TokenInvalidSignature, domain.ErrSignatureVerification)
	}

	payload, err := v.parser.DecodeSegment(segments[1])
	if err != nil {
		return nil, tokenError(TokenMalformed, domain.ErrMalformedToken)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, tokenError(TokenMalformed, domain.ErrMalformedToken)
	}
	token, err := v.readClaims(claims)
	if err != nil {
		return nil, tokenError(TokenMalformed, err)
	}
	token.Raw = raw

	now := v.clock.Now()
	if now.Add(v.leeway).Before(token.NotBefore) ||
		now.Add(-v.leeway).After(token.ExpiresAt) ||
		now.Add(v.leeway).Before(token.IssuedAt) {
		return nil, tokenError(TokenExpired, domain.ErrExpiredToken)
	}

	if !strings.Contains(token.Issuer, token.Destination) {
		return nil, tokenError(TokenInvalidIssuer, domain.ErrInvalidIssuer)
	}

	if token.Audience != v.apiKey {
		return nil, tokenError(TokenInvalidAudience, domain.ErrInvalidAudience)
	}

	return token, nil
}

func (v *SessionTokenValidator) readClaims(claims jwt.MapClaims) (*domain.SessionToken, error) {
	for _, name := range requiredClaims {
		value, ok := claims[name]
		if !ok || value == nil || value == "" {
			return nil, fmt.Errorf("%w: missing %s claim", domain.ErrMalformedToken, name)
		}
	}

	token := &domain.SessionToken{}
	var err error
	if token.Issuer, err = claims.GetIssuer(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
	if token.Subject, err = claims.GetSubject(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
	audience, err := claims.GetAudience()
	if err != nil || len(audience) == 0 {
		return nil, fmt.Errorf("%w: invalid aud claim", domain.ErrMalformedToken)
	}
	token.Audience = audience[0]

	if token.ExpiresAt, err = numericClaim(claims.GetExpirationTime, "exp"); err != nil {
		return nil, err
	}
	if token.NotBefore, err = numericClaim(claims.GetNotBefore, "nbf"); err != nil {
		return nil, err
	}
	if token.IssuedAt, err = numericClaim(claims.GetIssuedAt, "iat"); err != nil {
		return nil, err
	}

	var ok bool
	if token.Destination, ok = claims["dest"].(string); !ok {
		return nil, fmt.Errorf("%w: invalid dest claim", domain.ErrMalformedToken)
	}
	if token.TokenID, ok = claims["jti"].(string); !ok {
		return nil, fmt.Errorf("%w: invalid jti claim", domain.ErrMalformedToken)
	}
	if token.SessionID, ok = claims["sid"].(string); !ok {
		return nil, fmt.Errorf("%w: invalid sid claim", domain.ErrMalformedToken)
	}

	dest, err := url.Parse(token.Destination)
	if err != nil || dest.Hostname() == "" {
		return nil, fmt.Errorf("%w: invalid dest claim", domain.ErrMalformedToken)
	}
	if token.ShopDomain, err = domain.NewShopDomain(dest.Hostname()); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}

	return token, nil
}

func numericClaim(get func() (*jwt.NumericDate, error), name string) (time.Time, error) {
	date, err := get()
	if err != nil || date == nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s claim", domain.ErrMalformedToken, name)
	}
	return date.Time, nil
}

// AsTokenError extracts a *TokenError from err
func AsTokenError(err error) (*TokenError, bool) {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		return tokenErr, true
	}
	return nil, false
}
