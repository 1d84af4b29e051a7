// Package jwt decodes and cryptographically verifies tokens issued by the
// platform, including the back-channel logout and account-deletion event
// token variants.
package jwt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// Back-channel event URIs carried in the "events" claim.
const (
	LogoutEventURI        = "http://schemas.openid.net/event/backchannel-logout"
	DeleteAccountEventURI = "http://schemas.openid.net/event/x-backchannel-delete-account"
)

// defaultAlgorithms is the signature algorithm allow-list. "none" and HMAC
// algorithms are never accepted.
var defaultAlgorithms = []jose.SignatureAlgorithm{jose.RS256, jose.ES256}

// ValidationError reports which validation check a token failed. Distinct
// checks produce distinct messages so signature failures are never conflated
// with claim-shape failures.
type ValidationError struct {
	Check  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("token validation failed (%s)", e.Check)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// KeyResolver resolves a key id to candidate signing keys. *jwks.Cache
// satisfies it.
type KeyResolver interface {
	GetKey(ctx context.Context, kid string) ([]jose.JSONWebKey, error)
}

// Validator verifies platform-issued tokens against the published key set.
type Validator struct {
	keys       KeyResolver
	algorithms []jose.SignatureAlgorithm
	now        func() time.Time
}

// Option customizes a Validator.
type Option func(*Validator)

// WithAlgorithms narrows the signature algorithm allow-list. The payment path
// uses this to accept ES256 only.
func WithAlgorithms(algs ...jose.SignatureAlgorithm) Option {
	return func(v *Validator) { v.algorithms = algs }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a validator resolving keys through keys.
func NewValidator(keys KeyResolver, opts ...Option) *Validator {
	v := &Validator{
		keys:       keys,
		algorithms: defaultAlgorithms,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// tokenHeader is the subset of the JOSE header validation needs.
type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// DecodeSegment decodes one base64url token segment, padding to a multiple of
// four first. Platform tokens arrive unpadded and Go's padded decoder rejects
// them otherwise.
func DecodeSegment(segment string) ([]byte, error) {
	if n := len(segment) % 4; n != 0 {
		segment += strings.Repeat("=", 4-n)
	}
	return base64.URLEncoding.DecodeString(segment)
}

// Validate verifies token and returns the decoded payload claims. audience,
// when non-empty, must match the aud claim. Every failure is a
// *ValidationError naming the failed check.
func (v *Validator) Validate(ctx context.Context, token, audience string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, &ValidationError{Check: "structure", Detail: "token is not a three-part compact JWS"}
	}

	headerBytes, err := DecodeSegment(parts[0])
	if err != nil {
		return nil, &ValidationError{Check: "structure", Detail: "undecodable header segment", Err: err}
	}
	var header tokenHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, &ValidationError{Check: "structure", Detail: "malformed header", Err: err}
	}

	if !v.algorithmAllowed(header.Alg) {
		return nil, &ValidationError{Check: "algorithm", Detail: fmt.Sprintf("algorithm not supported %s", header.Alg)}
	}

	keys, err := v.keys.GetKey(ctx, header.Kid)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signing key: %w", err)
	}
	if len(keys) == 0 {
		return nil, &ValidationError{Check: "unknown key", Detail: fmt.Sprintf("signing key not found %s", header.Kid)}
	}

	jws, err := jose.ParseSigned(token, v.algorithms)
	if err != nil {
		return nil, &ValidationError{Check: "structure", Detail: "unparsable JWS", Err: err}
	}
	payload, err := jws.Verify(keys[0])
	if err != nil {
		return nil, &ValidationError{Check: "signature", Err: err}
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, &ValidationError{Check: "structure", Detail: "malformed payload", Err: err}
	}

	if exp, ok := claims["exp"].(float64); ok {
		if v.now().Unix() > int64(exp) {
			return nil, &ValidationError{Check: "expiry", Detail: fmt.Sprintf("token expired at %d", int64(exp))}
		}
	}

	if audience != "" {
		if !audienceMatches(claims["aud"], audience) {
			return nil, &ValidationError{Check: "audience", Detail: fmt.Sprintf("aud claim does not contain %q", audience)}
		}
	}

	return claims, nil
}

// ValidateBackChannelLogout verifies token as an OIDC back-channel logout
// token: on top of Validate, sub or sid must be present, the logout event URI
// must appear in events, and nonce must be absent.
func (v *Validator) ValidateBackChannelLogout(ctx context.Context, token, audience string) (map[string]any, error) {
	claims, err := v.Validate(ctx, token, audience)
	if err != nil {
		return nil, err
	}

	_, hasSub := claims["sub"]
	_, hasSid := claims["sid"]
	if !hasSub && !hasSid {
		return nil, &ValidationError{Check: "back-channel logout", Detail: "neither sub nor sid present"}
	}
	if !hasEvent(claims, LogoutEventURI) {
		return nil, &ValidationError{Check: "back-channel logout", Detail: "logout event missing from events claim"}
	}
	if _, hasNonce := claims["nonce"]; hasNonce {
		return nil, &ValidationError{Check: "back-channel logout", Detail: "nonce must be absent"}
	}
	return claims, nil
}

// ValidateBackChannelAccountDelete verifies token as an account-deletion event
// token: a back-channel logout token that additionally carries the
// delete-account event URI.
func (v *Validator) ValidateBackChannelAccountDelete(ctx context.Context, token, audience string) (map[string]any, error) {
	claims, err := v.ValidateBackChannelLogout(ctx, token, audience)
	if err != nil {
		return nil, err
	}
	if !hasEvent(claims, DeleteAccountEventURI) {
		return nil, &ValidationError{Check: "back-channel account delete", Detail: "delete-account event missing from events claim"}
	}
	return claims, nil
}

func (v *Validator) algorithmAllowed(alg string) bool {
	for _, allowed := range v.algorithms {
		if string(allowed) == alg {
			return true
		}
	}
	return false
}

// audienceMatches handles aud being either a string or a list of strings.
func audienceMatches(aud any, expected string) bool {
	switch val := aud.(type) {
	case string:
		return val == expected
	case []any:
		for _, entry := range val {
			if s, ok := entry.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

func hasEvent(claims map[string]any, uri string) bool {
	events, ok := claims["events"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = events[uri]
	return ok
}
