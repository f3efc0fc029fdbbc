package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"archie-core-shopify-app/internal/domain"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// Mode selects one of the two canonical forms the platform signs
type Mode int

const (
	// ParamConcatenation is used for OAuth callbacks and admin links: hmac field dropped,
	// sorted k=v pairs concatenated without a separator.
	ParamConcatenation Mode = iota
	// QueryString is used for app proxy requests: signature field dropped,
	// sorted k=v pairs joined with "&", values unescaped.
	QueryString
)

// SignatureField returns the parameter carrying the signature for the mode
func (m Mode) SignatureField() string {
	if m == QueryString {
		return "signature"
	}
	return "hmac"
}

func (m Mode) String() string {
	if m == QueryString {
		return "query_string"
	}
	return "param_concatenation"
}

type paramValue struct {
	values []string
	array  bool
}

// Canonicalize renders params into the string the platform signs for the mode
func Canonicalize(params url.Values, mode Mode) string {
	skip := mode.SignatureField()
	merged := make(map[string]*paramValue, len(params))
	for key, values := range params {
		name := key
		array := len(values) > 1
		if strings.HasSuffix(name, "[]") {
			name = strings.TrimSuffix(name, "[]")
			array = true
		}
		if name == skip {
			continue
		}
		entry, ok := merged[name]
		if !ok {
			entry = &paramValue{}
			merged[name] = entry
		}
		entry.values = append(entry.values, values...)
		entry.array = entry.array || array
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		entry := merged[key]
		switch {
		case !entry.array:
			value := ""
			if len(entry.values) > 0 {
				value = entry.values[0]
			}
			parts = append(parts, key+"="+value)
		case mode == QueryString:
			fragments := make([]string, len(entry.values))
			for i, v := range entry.values {
				fragments[i] = fmt.Sprintf("%s[%d]=%s", key, i, v)
			}
			parts = append(parts, strings.Join(fragments, "&"))
		default:
			parts = append(parts, key+`=["`+strings.Join(entry.values, `", "`)+`"]`)
		}
	}

	if mode == QueryString {
		return strings.Join(parts, "&")
	}
	return strings.Join(parts, "")
}

// HmacVerifier checks keyed HMAC-SHA256 signatures over canonicalized parameters
type HmacVerifier struct {
	mode Mode
}

// NewHmacVerifier creates a verifier for one canonical form
func NewHmacVerifier(mode Mode) *HmacVerifier {
	return &HmacVerifier{mode: mode}
}

// Mode returns the canonical form the verifier uses
func (v *HmacVerifier) Mode() Mode {
	return v.mode
}

// Verify compares signature against the HMAC of the canonical params in constant time.
// A mismatch is false; an unset secret is ErrMissingSecret.
func (v *HmacVerifier) Verify(secret string, params url.Values, signature string) (bool, error) {
	if secret == "" {
		return false, domain.ErrMissingSecret
	}
	if !isSignatureHex(signature) {
		return false, nil
	}
	app := goshopify.App{ApiSecret: secret}
	return app.VerifyMessage(Canonicalize(params, v.mode), signature), nil
}

// isSignatureHex reports whether s is a lowercase hex SHA-256 digest
func isSignatureHex(s string) bool {
	if len(s) != hex.EncodedLen(sha256.Size) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Sign returns the hex HMAC of the canonical params
func (v *HmacVerifier) Sign(secret string, params url.Values) (string, error) {
	if secret == "" {
		return "", domain.ErrMissingSecret
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Canonicalize(params, v.mode)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
