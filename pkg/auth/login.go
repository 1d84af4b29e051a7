package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jina-ai/hubble-go/pkg/api"
	"github.com/jina-ai/hubble-go/pkg/keystore"
	"github.com/jina-ai/hubble-go/pkg/logger"
)

// DefaultProvider is the identity provider used when the caller does not name
// one.
const DefaultProvider = "jina-login"

// Authenticator drives the end-to-end login and logout flows: existing-session
// short circuit, authorize event stream, grant exchange, credential
// persistence, and the symmetric session dismissal.
type Authenticator struct {
	store        *keystore.Store
	resolver     *Resolver
	client       *http.Client
	baseURL      string
	log          *logger.Logger
	openBrowser  func(string) error
	postLogin    func(ctx context.Context, token string)
	callbackPort int
}

// AuthOption customizes an Authenticator.
type AuthOption func(*Authenticator)

// WithHTTPClient overrides the HTTP client used for all flow requests.
func WithHTTPClient(client *http.Client) AuthOption {
	return func(a *Authenticator) { a.client = client }
}

// WithBaseURL overrides the RPC base URL.
func WithBaseURL(baseURL string) AuthOption {
	return func(a *Authenticator) { a.baseURL = strings.TrimSuffix(baseURL, "/") + "/" }
}

// WithBrowserOpener overrides how redirect URLs are opened. Tests use this to
// avoid spawning a real browser.
func WithBrowserOpener(open func(string) error) AuthOption {
	return func(a *Authenticator) { a.openBrowser = open }
}

// WithPostLoginHook registers a callback invoked after a credential has been
// persisted, e.g. the docker credential-helper deployment.
func WithPostLoginHook(hook func(ctx context.Context, token string)) AuthOption {
	return func(a *Authenticator) { a.postLogin = hook }
}

// WithCallbackPort overrides the local port for the callback login transport.
func WithCallbackPort(port int) AuthOption {
	return func(a *Authenticator) { a.callbackPort = port }
}

// NewAuthenticator creates an authenticator persisting credentials in store.
func NewAuthenticator(store *keystore.Store, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		store:        store,
		resolver:     NewResolver(store),
		client:       http.DefaultClient,
		baseURL:      api.BaseURL(),
		log:          logger.New(logger.ComponentAuth),
		openBrowser:  OpenBrowser,
		callbackPort: DefaultCallbackPort,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolver returns the credential resolver the authenticator uses.
func (a *Authenticator) Resolver() *Resolver {
	return a.resolver
}

// LoginOptions controls a login attempt.
type LoginOptions struct {
	// Force skips the existing-session short circuit.
	Force bool
	// Provider names the identity provider; empty means DefaultProvider.
	Provider string
	// Params are extra query parameters forwarded to the authorize endpoint.
	Params url.Values
}

// LoginResult reports the outcome of a login attempt. Performed is false when
// the flow terminated without contacting the grant endpoint: either a valid
// session already existed (Token is set) or the authorize stream ended without
// producing a handshake (Token is empty).
type LoginResult struct {
	Token     string
	Nickname  string
	Performed bool
}

// handshake is the single-use authorization code/state pair exchanged for a
// credential.
type handshake struct {
	Code  string
	State string
}

// streamEvent is one line of the authorize event stream.
type streamEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// eventData is the union of payload fields across event types.
type eventData struct {
	RedirectTo       string `json:"redirectTo"`
	Code             string `json:"code"`
	State            string `json:"state"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Login runs the interactive login flow over the streamed authorize transport.
//
// With an existing valid session and Force unset the flow is a no-op that
// never contacts the authorize or grant endpoints. When the stream ends
// without a usable handshake, Login returns a zero-token result and no error;
// callers inspect Performed to tell the cases apart.
func (a *Authenticator) Login(ctx context.Context, opts LoginOptions) (*LoginResult, error) {
	if result, done, err := a.checkExisting(ctx, opts.Force); done || err != nil {
		return result, err
	}

	hs, err := a.authorize(ctx, opts)
	if err != nil {
		return nil, err
	}
	if hs == nil {
		a.log.Warn("authorize stream ended without an authorization grant")
		return &LoginResult{}, nil
	}

	form := url.Values{}
	form.Set("code", hs.Code)
	form.Set("state", hs.State)
	return a.exchange(ctx, form)
}

// LoginWithLocalCallback runs the login flow over the local-listener
// transport: the platform redirects the browser to a short-lived local HTTP
// server which receives the authorization data as a form POST.
func (a *Authenticator) LoginWithLocalCallback(ctx context.Context, opts LoginOptions) (*LoginResult, error) {
	if result, done, err := a.checkExisting(ctx, opts.Force); done || err != nil {
		return result, err
	}

	listener := NewCallbackListener(a.callbackPort)
	redirectURL, err := listener.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer listener.Stop()

	authorizeURL, err := a.resolveRedirect(ctx, opts, redirectURL)
	if err != nil {
		return nil, err
	}
	if err := a.openBrowser(authorizeURL); err != nil {
		a.log.Warn("failed to open browser, open the URL manually", "url", authorizeURL)
	}

	form, err := listener.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return a.exchange(ctx, form)
}

// Logout dismisses the server-side session held by the cached credential and
// clears it locally. A 401 answer means the session is already gone and is
// treated as success; other failures are surfaced as warnings, never raised,
// so logout cannot crash calling programs. Only network errors propagate.
func (a *Authenticator) Logout(ctx context.Context) error {
	cached, hasCached := a.resolver.Cached()
	if effective, ok := a.resolver.Current(); ok && hasCached && effective != cached {
		a.log.Problem("an environment-sourced credential is active and will not be affected by logout")
	}
	if !hasCached {
		if _, ok := a.resolver.Current(); ok {
			a.log.Problem("the active credential comes from the environment; nothing to log out locally")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+api.EndpointSessionDismiss, nil)
	if err != nil {
		return err
	}
	req.Header = NewSession(cached).Headers()

	resp, err := a.client.Do(req)
	if err != nil {
		return &api.TransportError{Endpoint: api.EndpointSessionDismiss, Err: err}
	}
	defer resp.Body.Close()

	var envelope api.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", api.EndpointSessionDismiss, err)
	}

	switch envelope.Code {
	case http.StatusUnauthorized:
		a.log.Notice("You are not logged in. No need to logout.")
		return nil
	case http.StatusOK:
		if err := a.store.Delete(keystore.KeyAuthToken); err != nil {
			return err
		}
		a.log.Notice("You have successfully logged out.")
		return nil
	default:
		a.log.Problem("Failed to logout.", "message", envelope.Message, "code", envelope.Code)
		return nil
	}
}

// checkExisting implements the force=false short circuit: a valid existing
// session terminates the flow before any authorize traffic.
func (a *Authenticator) checkExisting(ctx context.Context, force bool) (*LoginResult, bool, error) {
	if force {
		return nil, false, nil
	}
	credential, ok := a.resolver.Current()
	if !ok {
		return nil, false, nil
	}

	session := NewSession(credential,
		WithSessionHTTPClient(a.client),
		WithSessionBaseURL(a.baseURL))
	err := session.Validate(ctx)
	if err == nil {
		a.log.Success("You are already logged in.")
		return &LoginResult{Token: credential}, true, nil
	}
	if api.IsAuthenticationFailed(err) {
		return nil, false, nil
	}
	return nil, false, err
}

// authorize consumes the proxied authorize event stream in arrival order and
// returns the handshake captured from an authorize event, or nil when the
// stream closes without one.
func (a *Authenticator) authorize(ctx context.Context, opts LoginOptions) (*handshake, error) {
	query := url.Values{}
	for key, values := range opts.Params {
		query[key] = values
	}
	provider := opts.Provider
	if provider == "" {
		provider = DefaultProvider
	}
	query.Set("provider", provider)

	streamURL := a.baseURL + api.EndpointProxiedAuthorize + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &api.TransportError{Endpoint: api.EndpointProxiedAuthorize, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &api.PlatformError{
			Endpoint: api.EndpointProxiedAuthorize,
			Status:   resp.StatusCode,
			Message:  envelopeMessage(resp.Body),
		}
	}

	var hs *handshake
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			a.log.Warn("skipping undecodable stream line", "error", err)
			continue
		}
		var data eventData
		if len(event.Data) > 0 {
			if err := json.Unmarshal(event.Data, &data); err != nil {
				a.log.Warn("skipping undecodable event payload", "event", event.Event, "error", err)
				continue
			}
		}

		switch event.Event {
		case "redirect":
			if err := a.openBrowser(data.RedirectTo); err != nil {
				a.log.Warn("failed to open browser, open the URL manually", "url", data.RedirectTo)
			}
		case "authorize":
			if data.Code != "" && data.State != "" {
				hs = &handshake{Code: data.Code, State: data.State}
			} else {
				a.log.Problem("authorization failed", "message", data.ErrorDescription)
			}
		case "error":
			a.log.Problem("authorization error", "message", string(event.Data))
		default:
			a.log.Warn("unknown authorize event", "event", event.Event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &api.TransportError{Endpoint: api.EndpointProxiedAuthorize, Err: err}
	}
	return hs, nil
}

// resolveRedirect asks the authorize endpoint for the browser URL used by the
// local-callback transport.
func (a *Authenticator) resolveRedirect(ctx context.Context, opts LoginOptions, redirectURL string) (string, error) {
	provider := opts.Provider
	if provider == "" {
		provider = DefaultProvider
	}
	query := url.Values{}
	for key, values := range opts.Params {
		query[key] = values
	}
	query.Set("provider", provider)
	query.Set("redirectUri", redirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+api.EndpointAuthorize+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &api.TransportError{Endpoint: api.EndpointAuthorize, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &api.PlatformError{
			Endpoint: api.EndpointAuthorize,
			Status:   resp.StatusCode,
			Message:  envelopeMessage(resp.Body),
		}
	}

	var payload struct {
		Data struct {
			RedirectTo string `json:"redirectTo"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", api.EndpointAuthorize, err)
	}
	return payload.Data.RedirectTo, nil
}

// exchange trades the handshake form for a credential at the grant endpoint
// and persists it. The credential is only written after a successful grant,
// so a cancelled flow never leaves partial state behind.
func (a *Authenticator) exchange(ctx context.Context, form url.Values) (*LoginResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+api.EndpointGrant, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &api.TransportError{Endpoint: api.EndpointGrant, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", api.EndpointGrant, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope api.Response
		_ = json.Unmarshal(body, &envelope)
		return nil, &api.PlatformError{
			Endpoint: api.EndpointGrant,
			Status:   resp.StatusCode,
			Message:  envelope.Message,
		}
	}

	var payload struct {
		Data struct {
			Token string `json:"token"`
			User  struct {
				Nickname string `json:"nickname"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", api.EndpointGrant, err)
	}
	if payload.Data.Token == "" {
		return nil, &api.PlatformError{
			Endpoint: api.EndpointGrant,
			Status:   resp.StatusCode,
			Message:  "grant response carried no token",
		}
	}

	if err := a.store.Set(keystore.KeyAuthToken, payload.Data.Token); err != nil {
		return nil, err
	}
	if a.postLogin != nil {
		a.postLogin(ctx, payload.Data.Token)
	}

	a.log.Success("Successfully logged in.", "nickname", payload.Data.User.Nickname)
	return &LoginResult{
		Token:     payload.Data.Token,
		Nickname:  payload.Data.User.Nickname,
		Performed: true,
	}, nil
}
