// Package dockerauth deploys and implements the docker credential helper that
// hands the platform credential to the docker CLI for internal registries.
package dockerauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jina-ai/hubble-go/pkg/auth"
	"github.com/jina-ai/hubble-go/pkg/keystore"
)

// HelperName is the suffix docker resolves to the docker-credential-jina-hubble
// binary.
const HelperName = "jina-hubble"

// DockerConfigEnv overrides the docker configuration directory.
const DockerConfigEnv = "DOCKER_CONFIG"

// Credential value overrides, used when a registry needs a username other than
// the token marker or a secret other than the platform credential.
const (
	UsernameOverrideEnv = "HUBBLE_DOCKER_AUTH_OVERRIDE_USERNAME"
	SecretOverrideEnv   = "HUBBLE_DOCKER_AUTH_OVERRIDE_SECRET"
)

const defaultUsername = "<token>"

// DefaultRegistries lists the internal registries the helper is deployed for
// when no explicit registry is given.
func DefaultRegistries() []string {
	return []string{"registry.jina.ai", "registry.hubble.jina.ai"}
}

// Credentials is the answer shape of the docker credential helper protocol.
type Credentials struct {
	Username string `json:"Username"`
	Secret   string `json:"Secret"`
}

// configPath resolves the docker config.json location.
func configPath() (string, error) {
	dir := os.Getenv(DockerConfigEnv)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".docker")
	}
	return filepath.Join(dir, "config.json"), nil
}

// Deploy registers the credential helper for the given registries in the
// docker config, creating the config when absent and preserving everything
// else in it.
func Deploy(registries ...string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	conf := map[string]json.RawMessage{}
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &conf); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	helpers := map[string]string{}
	if raw, ok := conf["credHelpers"]; ok {
		if err := json.Unmarshal(raw, &helpers); err != nil {
			return fmt.Errorf("failed to parse credHelpers in %s: %w", path, err)
		}
	}
	for _, registry := range registries {
		helpers[registry] = HelperName
	}
	encoded, err := json.Marshal(helpers)
	if err != nil {
		return err
	}
	conf["credHelpers"] = encoded

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create docker config directory: %w", err)
	}
	out, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0o600)
}

// GetCredentials answers the helper protocol's get action for a registry. The
// secret defaults to the effective platform credential; both fields honor the
// override environment variables. Without any credential the secret falls back
// to anonymous access.
func GetCredentials(store *keystore.Store, _ string) *Credentials {
	username := os.Getenv(UsernameOverrideEnv)
	if username == "" {
		username = defaultUsername
	}

	secret := os.Getenv(SecretOverrideEnv)
	if secret == "" {
		secret, _ = auth.NewResolver(store).Current()
	}
	if secret == "" {
		secret = "anonymous"
	}

	return &Credentials{Username: username, Secret: secret}
}
