// Package client implements the authenticated RPC client for personal access
// tokens, artifacts, and account information.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jina-ai/hubble-go/pkg/api"
	"github.com/jina-ai/hubble-go/pkg/auth"
	"github.com/jina-ai/hubble-go/pkg/logger"
)

// SessionIDHeader correlates requests for support investigations. Every RPC
// call carries a fresh UUID under it.
const SessionIDHeader = "jinameta-session-id"

// Client is an authenticated platform client. Construction fails fast: the
// credential is validated against the whoami endpoint before the client is
// handed out.
type Client struct {
	session *auth.Session
	client  *http.Client
	baseURL string
	log     *logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithBaseURL overrides the RPC base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(baseURL, "/") + "/" }
}

// New creates a client for the given credential and verifies it against the
// whoami endpoint. A rejected credential surfaces as
// *api.AuthenticationFailedError.
func New(ctx context.Context, credential string, opts ...Option) (*Client, error) {
	c := &Client{
		client:  http.DefaultClient,
		baseURL: api.BaseURL(),
		log:     logger.New(logger.ComponentClient),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = auth.NewSession(credential,
		auth.WithSessionHTTPClient(c.client),
		auth.WithSessionBaseURL(c.baseURL))

	if err := c.session.Validate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// PAT is a personal access token. Value is only populated on creation; the
// platform never returns it again.
type PAT struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Value     string `json:"token,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	ExpireAt  string `json:"expireAt"`
}

// Artifact describes a stored artifact.
type Artifact struct {
	ID        string         `json:"_id"`
	Name      string         `json:"name"`
	Public    bool           `json:"public"`
	MetaData  map[string]any `json:"metaData"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}

// UserProfile is the identity the platform associates with the credential.
type UserProfile struct {
	ID       string `json:"_id"`
	Nickname string `json:"nickname"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// CreatePAT creates a named personal access token valid for expirationDays.
func (c *Client) CreatePAT(ctx context.Context, name string, expirationDays int) (*PAT, error) {
	var result struct {
		Token string `json:"token"`
	}
	err := c.rpc(ctx, api.EndpointCreatePAT, map[string]any{
		"name":           name,
		"expirationDays": expirationDays,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &PAT{Name: name, Value: result.Token}, nil
}

// ListPATs lists the personal access tokens of the account.
func (c *Client) ListPATs(ctx context.Context) ([]PAT, error) {
	var result struct {
		PATs []PAT `json:"personal_access_tokens"`
	}
	if err := c.rpc(ctx, api.EndpointListPATs, nil, &result); err != nil {
		return nil, err
	}
	return result.PATs, nil
}

// DeletePAT deletes a personal access token by id.
func (c *Client) DeletePAT(ctx context.Context, id string) error {
	return c.rpc(ctx, api.EndpointDeletePAT, map[string]any{"id": id}, nil)
}

// UserInfo returns the account profile behind the credential.
func (c *Client) UserInfo(ctx context.Context) (*UserProfile, error) {
	var profile UserProfile
	if err := c.rpc(ctx, api.EndpointWhoami, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UploadOptions controls an artifact upload.
type UploadOptions struct {
	// ID replaces an existing artifact instead of creating one.
	ID string
	// MetaData is attached to the artifact verbatim.
	MetaData map[string]any
	// Public makes the artifact world-readable.
	Public bool
}

// UploadArtifact uploads the file at filePath as a multipart request and
// returns the stored artifact.
func (c *Client) UploadArtifact(ctx context.Context, filePath string, opts UploadOptions) (*Artifact, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if opts.ID != "" {
		if err := writer.WriteField("id", opts.ID); err != nil {
			return nil, err
		}
	}
	if opts.MetaData != nil {
		meta, err := json.Marshal(opts.MetaData)
		if err != nil {
			return nil, fmt.Errorf("failed to encode artifact metadata: %w", err)
		}
		if err := writer.WriteField("metaData", string(meta)); err != nil {
			return nil, err
		}
	}
	if err := writer.WriteField("public", fmt.Sprintf("%t", opts.Public)); err != nil {
		return nil, err
	}

	part, err := writer.CreateFormFile("upload_file", filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read artifact file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+api.EndpointUploadArtifact, &body)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var artifact Artifact
	if err := c.do(req, api.EndpointUploadArtifact, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ArtifactDownloadURL resolves the transient download URL for an artifact.
func (c *Client) ArtifactDownloadURL(ctx context.Context, id string) (string, error) {
	var result struct {
		Download string `json:"download"`
	}
	if err := c.rpc(ctx, api.EndpointArtifactDownloadURL, map[string]any{"id": id}, &result); err != nil {
		return "", err
	}
	if result.Download == "" {
		return "", &api.PlatformError{
			Endpoint: api.EndpointArtifactDownloadURL,
			Status:   http.StatusOK,
			Message:  "response carried no download url",
		}
	}
	return result.Download, nil
}

// DownloadArtifact streams an artifact into destDir and returns the local
// path. The file name comes from the download URL.
func (c *Client) DownloadArtifact(ctx context.Context, id, destDir string) (string, error) {
	downloadURL, err := c.ArtifactDownloadURL(ctx, id)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(downloadURL)
	if err != nil {
		return "", fmt.Errorf("invalid download url: %w", err)
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		name = id
	}
	dest := filepath.Join(destDir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", &api.TransportError{Endpoint: api.EndpointArtifactDownloadURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &api.PlatformError{
			Endpoint: api.EndpointArtifactDownloadURL,
			Status:   resp.StatusCode,
			Message:  "artifact download failed",
		}
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return dest, nil
}

// DeleteArtifact deletes an artifact by id.
func (c *Client) DeleteArtifact(ctx context.Context, id string) error {
	return c.rpc(ctx, api.EndpointDeleteArtifact, map[string]any{"id": id}, nil)
}

// ArtifactInfo returns the detail record of an artifact.
func (c *Client) ArtifactInfo(ctx context.Context, id string) (*Artifact, error) {
	var artifact Artifact
	if err := c.rpc(ctx, api.EndpointArtifactDetail, map[string]any{"id": id}, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ListArtifacts lists the account's artifacts. Filter entries are forwarded to
// the endpoint verbatim; nil lists everything.
func (c *Client) ListArtifacts(ctx context.Context, filter map[string]any) ([]Artifact, error) {
	var result struct {
		Artifacts []Artifact `json:"artifacts"`
	}
	if err := c.rpc(ctx, api.EndpointListArtifacts, filter, &result); err != nil {
		return nil, err
	}
	return result.Artifacts, nil
}

// rpc performs one POST with a JSON body and decodes the envelope's data field
// into out when out is non-nil.
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
	c.applyHeaders(req)

	return c.do(req, endpoint, out)
}

// applyHeaders sets the session header set and a fresh request correlation id.
func (c *Client) applyHeaders(req *http.Request) {
	contentType := req.Header.Get("Content-Type")
	req.Header = c.session.Headers()
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(SessionIDHeader, uuid.NewString())
}

// do sends the request and decodes the envelope. Status >= 400 becomes a typed
// error: 401 an authentication failure, anything else a PlatformError carrying
// the kind derived from the status.
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	sessionID := req.Header.Get(SessionIDHeader)

	resp, err := c.client.Do(req)
	if err != nil {
		return &api.TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if resp.StatusCode >= 400 {
		var envelope api.Response
		_ = json.Unmarshal(body, &envelope)
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
	if err := json.Unmarshal(body, &envelope); err != nil {
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
