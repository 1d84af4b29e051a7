// Package jwks resolves token signing keys from the platform's well-known key
// set, with a local keystore-backed cache in front of the live endpoint.
package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/jina-ai/hubble-go/pkg/api"
	"github.com/jina-ai/hubble-go/pkg/keystore"
	"github.com/jina-ai/hubble-go/pkg/logger"
)

// Cache answers kid lookups from the locally cached key list first and falls
// back to a live fetch. The cache is an accelerator, never authoritative: a
// miss always triggers a fetch before the key is declared unknown, and a fetch
// replaces the whole cached list since the platform owns the full set.
type Cache struct {
	store  *keystore.Store
	client *http.Client
	url    string
	log    *logger.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithHTTPClient overrides the HTTP client used for live fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) { c.client = client }
}

// WithURL overrides the JWKS endpoint URL.
func WithURL(url string) Option {
	return func(c *Cache) { c.url = url }
}

// NewCache creates a key cache backed by the given keystore.
func NewCache(store *keystore.Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		client: http.DefaultClient,
		url:    api.JWKSURL(),
		log:    logger.New(logger.ComponentJWKS),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetKey returns the signing keys matching kid: at most one element. An empty
// result after a live fetch means the platform does not publish the key; there
// is no negative caching, so the next call fetches again.
func (c *Cache) GetKey(ctx context.Context, kid string) ([]jose.JSONWebKey, error) {
	if matches := filterByKid(c.cachedKeys(), kid); len(matches) > 0 {
		return matches, nil
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return filterByKid(keys, kid), nil
}

// cachedKeys returns the locally cached key list, empty on any decode issue.
func (c *Cache) cachedKeys() []jose.JSONWebKey {
	var keys []jose.JSONWebKey
	c.store.GetJSON(keystore.KeyJWKS, &keys)
	return keys
}

// fetch retrieves the full key set from the platform and replaces the local
// cache with it.
func (c *Cache) fetch(ctx context.Context) ([]jose.JSONWebKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &api.PlatformError{
			Endpoint: api.JWKSPath,
			Status:   resp.StatusCode,
			Message:  "JWKS endpoint returned non-200",
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	var keySet jose.JSONWebKeySet
	if err := json.Unmarshal(body, &keySet); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	if err := c.store.Set(keystore.KeyJWKS, keySet.Keys); err != nil {
		// Caching is best effort; the fetched keys are still usable.
		c.log.Warn("failed to cache JWKS", "error", err)
	}
	c.log.Debug("refreshed signing keys", "count", len(keySet.Keys))
	return keySet.Keys, nil
}

func filterByKid(keys []jose.JSONWebKey, kid string) []jose.JSONWebKey {
	var matches []jose.JSONWebKey
	for _, key := range keys {
		if key.KeyID == kid {
			matches = append(matches, key)
		}
	}
	return matches
}
