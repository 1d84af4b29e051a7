// Package payment implements the machine-to-machine billing client:
// user impersonation, authorized-JWT issuance and verification, usage
// reporting, and subscription queries.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/jina-ai/hubble-go/pkg/api"
	"github.com/jina-ai/hubble-go/pkg/jwks"
	"github.com/jina-ai/hubble-go/pkg/jwt"
	"github.com/jina-ai/hubble-go/pkg/keystore"
	"github.com/jina-ai/hubble-go/pkg/logger"
)

// SessionIDHeader correlates requests for support investigations.
const SessionIDHeader = "jinameta-session-id"

// DefaultAuthorizedJWTTTL is the authorized-JWT lifetime requested when the
// caller does not pick one, in seconds.
const DefaultAuthorizedJWTTTL = 15 * 60

// Client is an application client authenticated by an M2M token. Unlike user
// credentials, the token is sent as a Basic authorization value. Authorized
// JWTs are verified locally against the platform key set; the signing path
// only ever uses ES256.
type Client struct {
	m2mToken  string
	client    *http.Client
	baseURL   string
	validator *jwt.Validator
	log       *logger.Logger
}

// Option customizes a payment Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithBaseURL overrides the RPC base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(baseURL, "/") + "/" }
}

// WithValidator overrides the authorized-JWT validator.
func WithValidator(v *jwt.Validator) Option {
	return func(c *Client) { c.validator = v }
}

// New creates a payment client. The store backs the key-set cache used to
// verify authorized JWTs.
func New(m2mToken string, store *keystore.Store, opts ...Option) *Client {
	c := &Client{
		m2mToken: m2mToken,
		client:   http.DefaultClient,
		baseURL:  api.BaseURL(),
		log:      logger.New(logger.ComponentPayment),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		c.validator = jwt.NewValidator(
			jwks.NewCache(store, jwks.WithHTTPClient(c.client)),
			jwt.WithAlgorithms(jose.ES256))
	}
	return c
}

// ImpersonateUser trades the M2M token for a short-lived user token.
func (c *Client) ImpersonateUser(ctx context.Context, userID string) (string, error) {
	var token string
	err := c.rpc(ctx, api.EndpointImpersonateUser, map[string]any{"userId": userID}, &token)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", &api.PlatformError{
			Endpoint: api.EndpointImpersonateUser,
			Status:   http.StatusOK,
			Message:  "response carried no user token",
		}
	}
	return token, nil
}

// GetAuthorizedJWT issues a payment-authorized JWT for the user behind
// userToken. ttlSeconds zero requests the default lifetime.
func (c *Client) GetAuthorizedJWT(ctx context.Context, userToken string, ttlSeconds int) (string, error) {
	if ttlSeconds == 0 {
		ttlSeconds = DefaultAuthorizedJWTTTL
	}
	var result struct {
		Token string `json:"token"`
	}
	err := c.rpc(ctx, api.EndpointAuthorizedJWT, map[string]any{
		"token": userToken,
		"ttl":   ttlSeconds,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", &api.PlatformError{
			Endpoint: api.EndpointAuthorizedJWT,
			Status:   http.StatusOK,
			Message:  "response carried no authorized jwt",
		}
	}
	return result.Token, nil
}

// VerifyAuthorizedJWT reports whether token is a currently valid
// payment-authorized JWT. Any validation failure means not authorized;
// verification never raises.
func (c *Client) VerifyAuthorizedJWT(ctx context.Context, token string) bool {
	claims, err := c.validator.Validate(ctx, token, "")
	if err != nil {
		c.log.Warn("authorized jwt rejected", "error", err)
		return false
	}
	authorized, _ := claims["paymentAuthorized"].(bool)
	return authorized
}

// ReportUsage records quantity consumed units of a product against the user
// behind userToken.
func (c *Client) ReportUsage(ctx context.Context, userToken, appID, productID string, quantity float64) error {
	return c.rpc(ctx, api.EndpointReportUsage, map[string]any{
		"token":     userToken,
		"appId":     appID,
		"productId": productID,
		"quantity":  quantity,
	}, nil)
}

// GetSummary returns the usage summary for the user behind userToken. The
// shape varies per app, so the data payload is returned raw.
func (c *Client) GetSummary(ctx context.Context, userToken, appID string) (json.RawMessage, error) {
	var summary json.RawMessage
	err := c.rpc(ctx, api.EndpointUsageSummary, map[string]any{
		"token": userToken,
		"appId": appID,
	}, &summary)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Subscription is one active plan of a user.
type Subscription struct {
	AppID     string `json:"appId"`
	ProductID string `json:"productId"`
	Status    string `json:"status"`
	ExpireAt  string `json:"expireAt"`
}

// GetSubscriptions lists the subscriptions of the user behind userToken.
func (c *Client) GetSubscriptions(ctx context.Context, userToken string) ([]Subscription, error) {
	var subscriptions []Subscription
	err := c.rpc(ctx, api.EndpointGetSubscriptions, map[string]any{"token": userToken}, &subscriptions)
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// rpc performs one POST with the Basic M2M authorization and decodes the
// envelope's data field into out when out is non-nil.
func (c *Client) rpc(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Basic "+c.m2mToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Charset", "utf-8")
	sessionID := uuid.NewString()
	req.Header.Set(SessionIDHeader, sessionID)

	resp, err := c.client.Do(req)
	if err != nil {
		return &api.TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if resp.StatusCode >= 400 {
		var envelope api.Response
		_ = json.Unmarshal(raw, &envelope)
		c.log.Warn("request failed, report this session id to support",
			"endpoint", endpoint, "session_id", sessionID, "status", resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized {
			return &api.AuthenticationFailedError{
				Endpoint: endpoint,
				Status:   resp.StatusCode,
				Message:  envelope.Message,
			}
		}
		return &api.PlatformError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  envelope.Message,
		}
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", endpoint, err)
	}
	return nil
}
