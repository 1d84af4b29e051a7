package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jina-ai/hubble-go/pkg/api"
)

// Session builds the authenticated header set for platform requests and
// offers a fail-fast liveness check against the whoami endpoint.
type Session struct {
	credential string
	client     *http.Client
	baseURL    string
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithSessionHTTPClient overrides the HTTP client.
func WithSessionHTTPClient(client *http.Client) SessionOption {
	return func(s *Session) { s.client = client }
}

// WithSessionBaseURL overrides the RPC base URL.
func WithSessionBaseURL(baseURL string) SessionOption {
	return func(s *Session) { s.baseURL = strings.TrimSuffix(baseURL, "/") + "/" }
}

// NewSession creates a session for the given credential.
func NewSession(credential string, opts ...SessionOption) *Session {
	s := &Session{
		credential: credential,
		client:     http.DefaultClient,
		baseURL:    api.BaseURL(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Headers returns the header set for authenticated platform calls.
func (s *Session) Headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "token "+s.credential)
	h.Set("Content-Type", "application/json")
	h.Set("Accept-Charset", "utf-8")
	return h
}

// Validate performs one synchronous whoami call with the session headers. A
// non-2xx answer means the credential is invalid and yields an
// *api.AuthenticationFailedError.
func (s *Session) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+api.EndpointWhoami, nil)
	if err != nil {
		return err
	}
	req.Header = s.Headers()

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &api.AuthenticationFailedError{
		Endpoint: api.EndpointWhoami,
		Status:   resp.StatusCode,
		Message:  envelopeMessage(resp.Body),
	}
}

// envelopeMessage extracts the message field from a response envelope, best
// effort.
func envelopeMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 1<<16))
	if err != nil {
		return ""
	}
	var envelope api.Response
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}
	return envelope.Message
}
