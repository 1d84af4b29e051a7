// Package auth implements credential resolution, the authenticated session
// header builder, and the interactive login/logout flows against the platform.
package auth

import (
	"os"

	"github.com/jina-ai/hubble-go/pkg/keystore"
)

// TokenEnv is the per-process credential override. It always wins over the
// cached credential for reads and is never touched by logout.
const TokenEnv = "JINA_AUTH_TOKEN"

// Resolver determines the effective bearer credential for a request.
type Resolver struct {
	store *keystore.Store
}

// NewResolver creates a resolver backed by the given keystore.
func NewResolver(store *keystore.Store) *Resolver {
	return &Resolver{store: store}
}

// Current returns the effective credential: the environment value when set and
// non-empty, otherwise the cached value. Pure read, no side effects.
func (r *Resolver) Current() (string, bool) {
	if token := os.Getenv(TokenEnv); token != "" {
		return token, true
	}
	return r.Cached()
}

// Cached returns only the keystore credential, ignoring the environment.
// Logout uses this to know what it can actually revoke and clear.
func (r *Resolver) Cached() (string, bool) {
	return r.store.GetString(keystore.KeyAuthToken)
}
