package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticResolver serves keys from memory and counts lookups.
type staticResolver struct {
	keys    map[string][]jose.JSONWebKey
	lookups int
}

func (r *staticResolver) GetKey(_ context.Context, kid string) ([]jose.JSONWebKey, error) {
	r.lookups++
	return r.keys[kid], nil
}

type signingIdentity struct {
	kid      string
	private  *ecdsa.PrivateKey
	resolver *staticResolver
}

func newSigningIdentity(t *testing.T) *signingIdentity {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	kid := "test-kid"
	public := jose.JSONWebKey{Key: &priv.PublicKey, KeyID: kid, Algorithm: "ES256", Use: "sig"}
	return &signingIdentity{
		kid:      kid,
		private:  priv,
		resolver: &staticResolver{keys: map[string][]jose.JSONWebKey{kid: {public}}},
	}
}

func (id *signingIdentity) sign(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	opts := (&jose.SignerOptions{}).WithHeader(jose.HeaderKey("kid"), id.kid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: id.private}, opts)
	require.NoError(t, err)

	obj, err := signer.Sign(payload)
	require.NoError(t, err)
	token, err := obj.CompactSerialize()
	require.NoError(t, err)
	return token
}

func baseClaims() map[string]any {
	return map[string]any{
		"iss": "http://localhost:3000",
		"aud": "random_audience_id",
		"sub": "random_user_id",
		"exp": float64(time.Now().Add(time.Hour).Unix()),
	}
}

func TestValidateRoundTrip(t *testing.T) {
	id := newSigningIdentity(t)
	claims := baseClaims()
	token := id.sign(t, claims)

	decoded, err := NewValidator(id.resolver).Validate(context.Background(), token, "")
	require.NoError(t, err)
	assert.Equal(t, claims, decoded)
}

func TestValidateIsIdempotent(t *testing.T) {
	id := newSigningIdentity(t)
	token := id.sign(t, baseClaims())
	v := NewValidator(id.resolver)

	first, err := v.Validate(context.Background(), token, "")
	require.NoError(t, err)
	second, err := v.Validate(context.Background(), token, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	signer := newSigningIdentity(t)
	// A second identity publishes a different key under the same kid.
	verifier := newSigningIdentity(t)

	token := signer.sign(t, baseClaims())

	_, err := NewValidator(verifier.resolver).Validate(context.Background(), token, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "signature", verr.Check)
}

func TestValidateRejectsUnknownKid(t *testing.T) {
	id := newSigningIdentity(t)
	token := id.sign(t, baseClaims())
	delete(id.resolver.keys, id.kid)

	_, err := NewValidator(id.resolver).Validate(context.Background(), token, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unknown key", verr.Check)
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	id := newSigningIdentity(t)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","kid":"test-kid"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"anyone"}`))
	token := header + "." + payload + "."

	_, err := NewValidator(id.resolver).Validate(context.Background(), token, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "algorithm", verr.Check)
}

func TestValidateRejectsHS256(t *testing.T) {
	id := newSigningIdentity(t)

	opts := (&jose.SignerOptions{}).WithHeader(jose.HeaderKey("kid"), id.kid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte("shared-secret-shared-secret-1234")}, opts)
	require.NoError(t, err)
	obj, err := signer.Sign([]byte(`{"sub":"anyone"}`))
	require.NoError(t, err)
	token, err := obj.CompactSerialize()
	require.NoError(t, err)

	_, err = NewValidator(id.resolver).Validate(context.Background(), token, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "algorithm", verr.Check)
}

func TestValidateRejectsExpired(t *testing.T) {
	id := newSigningIdentity(t)
	claims := baseClaims()
	claims["exp"] = float64(time.Now().Add(-time.Hour).Unix())
	token := id.sign(t, claims)

	_, err := NewValidator(id.resolver).Validate(context.Background(), token, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "expiry", verr.Check)
}

func TestValidateAudience(t *testing.T) {
	id := newSigningIdentity(t)
	token := id.sign(t, baseClaims())
	v := NewValidator(id.resolver)

	_, err := v.Validate(context.Background(), token, "random_audience_id")
	assert.NoError(t, err)

	_, err = v.Validate(context.Background(), token, "some_other_audience")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "audience", verr.Check)

	// No expected audience supplied means no audience check at all.
	_, err = v.Validate(context.Background(), token, "")
	assert.NoError(t, err)
}

func TestValidateAudienceList(t *testing.T) {
	id := newSigningIdentity(t)
	claims := baseClaims()
	claims["aud"] = []any{"first", "second"}
	token := id.sign(t, claims)

	_, err := NewValidator(id.resolver).Validate(context.Background(), token, "second")
	assert.NoError(t, err)
}

func TestValidateMalformedToken(t *testing.T) {
	id := newSigningIdentity(t)

	_, err := NewValidator(id.resolver).Validate(context.Background(), "not-a-token", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "structure", verr.Check)
}

func TestBackChannelLogout(t *testing.T) {
	id := newSigningIdentity(t)
	claims := baseClaims()
	claims["events"] = map[string]any{LogoutEventURI: map[string]any{}}
	token := id.sign(t, claims)

	_, err := NewValidator(id.resolver).ValidateBackChannelLogout(context.Background(), token, "")
	assert.NoError(t, err)
}

func TestBackChannelLogoutMissingEvent(t *testing.T) {
	id := newSigningIdentity(t)
	token := id.sign(t, baseClaims())
	v := NewValidator(id.resolver)

	// Plain validation accepts the token.
	_, err := v.Validate(context.Background(), token, "")
	require.NoError(t, err)

	// The back-channel variant does not.
	_, err = v.ValidateBackChannelLogout(context.Background(), token, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "back-channel logout", verr.Check)
}

func TestBackChannelLogoutRejectsNonce(t *testing.T) {
	id := newSigningIdentity(t)
	claims := baseClaims()
	claims["events"] = map[string]any{LogoutEventURI: map[string]any{}}
	claims["nonce"] = "abc"
	token := id.sign(t, claims)

	_, err := NewValidator(id.resolver).ValidateBackChannelLogout(context.Background(), token, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "back-channel logout", verr.Check)
}

func TestBackChannelLogoutRequiresSubOrSid(t *testing.T) {
	id := newSigningIdentity(t)
	claims := map[string]any{
		"iss":    "http://localhost:3000",
		"exp":    float64(time.Now().Add(time.Hour).Unix()),
		"events": map[string]any{LogoutEventURI: map[string]any{}},
	}
	v := NewValidator(id.resolver)

	_, err := v.ValidateBackChannelLogout(context.Background(), id.sign(t, claims), "")
	require.Error(t, err)

	// sid alone is sufficient.
	claims["sid"] = "session-1"
	_, err = v.ValidateBackChannelLogout(context.Background(), id.sign(t, claims), "")
	assert.NoError(t, err)
}

func TestBackChannelAccountDelete(t *testing.T) {
	id := newSigningIdentity(t)
	v := NewValidator(id.resolver)

	claims := baseClaims()
	claims["events"] = map[string]any{LogoutEventURI: map[string]any{}}
	_, err := v.ValidateBackChannelAccountDelete(context.Background(), id.sign(t, claims), "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "back-channel account delete", verr.Check)

	claims["events"] = map[string]any{
		LogoutEventURI:        map[string]any{},
		DeleteAccountEventURI: map[string]any{},
	}
	_, err = v.ValidateBackChannelAccountDelete(context.Background(), id.sign(t, claims), "")
	assert.NoError(t, err)
}

func TestNarrowedAlgorithmAllowList(t *testing.T) {
	id := newSigningIdentity(t)
	token := id.sign(t, baseClaims())

	// RS256-only validator must refuse an ES256 token.
	v := NewValidator(id.resolver, WithAlgorithms(jose.RS256))
	_, err := v.Validate(context.Background(), token, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "algorithm", verr.Check)
}

func TestDecodeSegmentHandlesMissingPadding(t *testing.T) {
	// "{\"a\":1}" encodes to an unpadded length-9 segment.
	segment := base64.RawURLEncoding.EncodeToString([]byte(`{"a":1}`))
	require.NotEqual(t, 0, len(segment)%4)

	decoded, err := DecodeSegment(segment)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(decoded))
}
