package auth

import (
	"net/http"
	"net/url"
	"strings"

	"archie-core-shopify-app/internal/domain"
)

// RequestSource names where a piece of authenticity data was found
type RequestSource int

const (
	SourceNone RequestSource = iota
	SourceInput
	SourceHeader
	SourceReferer
)

func (s RequestSource) String() string {
	switch s {
	case SourceInput:
		return "input"
	case SourceHeader:
		return "header"
	case SourceReferer:
		return "referer"
	}
	return "none"
}

// Headers set by App Bridge fetches when the query string is not available
const (
	HeaderShopDomain    = "X-Shop-Domain"
	HeaderShopSignature = "X-Shop-Signature"
	HeaderShopTime      = "X-Shop-Time"
	HeaderShopCode      = "X-Shop-Code"
	HeaderShopLocale    = "X-Shop-Locale"
	HeaderShopState     = "X-Shop-State"
	HeaderShopID        = "X-Shop-ID"
	HeaderShopIDs       = "X-Shop-IDs"
)

var headerParams = []struct {
	param  string
	header string
}{
	{"shop", HeaderShopDomain},
	{"timestamp", HeaderShopTime},
	{"code", HeaderShopCode},
	{"locale", HeaderShopLocale},
	{"state", HeaderShopState},
	{"id", HeaderShopID},
}

// SignedData is the parameter bag and signature taken from one source
type SignedData struct {
	Source    RequestSource
	Params    url.Values
	Signature string
}

// RequestSourceResolver finds authenticity data on a request in a fixed order:
// query/body input, then X-Shop-* headers, then the Referer query string.
// The first source holding a value wins even when that value later fails verification.
type RequestSourceResolver struct{}

// NewRequestSourceResolver creates a resolver
func NewRequestSourceResolver() *RequestSourceResolver {
	return &RequestSourceResolver{}
}

func (r *RequestSourceResolver) input(req *http.Request) url.Values {
	if req.Form == nil {
		_ = req.ParseForm()
	}
	if req.Form == nil {
		return req.URL.Query()
	}
	return req.Form
}

func (r *RequestSourceResolver) referer(req *http.Request) url.Values {
	raw := req.Header.Get("Referer")
	if raw == "" {
		return url.Values{}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

// ShopDomain resolves and normalizes the shop the request claims to come from
func (r *RequestSourceResolver) ShopDomain(req *http.Request) (domain.ShopDomain, RequestSource, error) {
	raw, source := r.lookup(req, "shop", HeaderShopDomain)
	if source == SourceNone {
		return "", SourceNone, domain.ErrMissingShopDomain
	}
	shop, err := domain.NewShopDomain(raw)
	return shop, source, err
}

func (r *RequestSourceResolver) lookup(req *http.Request, param string, header string) (string, RequestSource) {
	if v := r.input(req).Get(param); v != "" {
		return v, SourceInput
	}
	if v := req.Header.Get(header); v != "" {
		return v, SourceHeader
	}
	if v := r.referer(req).Get(param); v != "" {
		return v, SourceReferer
	}
	return "", SourceNone
}

// SignedData returns the canonical data for the first source carrying a signature for mode.
// Source is SourceNone when the request is unsigned.
func (r *RequestSourceResolver) SignedData(req *http.Request, mode Mode) SignedData {
	field := mode.SignatureField()

	if input := r.input(req); input.Get(field) != "" {
		return SignedData{Source: SourceInput, Params: cloneValues(input), Signature: input.Get(field)}
	}

	if sig := req.Header.Get(HeaderShopSignature); sig != "" {
		params := url.Values{}
		for _, hp := range headerParams {
			if v := req.Header.Get(hp.header); v != "" {
				params.Set(hp.param, v)
			}
		}
		if ids := req.Header.Get(HeaderShopIDs); ids != "" {
			for _, id := range strings.Split(ids, ",") {
				params.Add("ids[]", strings.TrimSpace(id))
			}
		}
		return SignedData{Source: SourceHeader, Params: params, Signature: sig}
	}

	if ref := r.referer(req); ref.Get(field) != "" {
		return SignedData{Source: SourceReferer, Params: ref, Signature: ref.Get(field)}
	}

	return SignedData{Source: SourceNone}
}

// SessionToken returns the bearer session token: the Authorization header for API callers,
// the token query parameter for browser navigations
func (r *RequestSourceResolver) SessionToken(req *http.Request) string {
	if IsAPICaller(req) {
		return BearerToken(req)
	}
	return req.URL.Query().Get("token")
}

// SessionID returns the session id passed explicitly on the request
func (r *RequestSourceResolver) SessionID(req *http.Request) string {
	return r.input(req).Get("session")
}

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// IsAPICaller reports whether the request comes from a script rather than a browser navigation
func IsAPICaller(req *http.Request) bool {
	if strings.EqualFold(req.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	if BearerToken(req) != "" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
