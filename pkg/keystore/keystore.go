// Package keystore persists the small amount of local SDK state: the cached
// bearer credential and the JWKS accelerator cache. Backing store is a single
// JSON file under a configurable root directory.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ConfigRootEnv overrides the directory holding the store file. Tests point it
// at a throwaway directory for isolation.
const ConfigRootEnv = "JINA_CONFIG_ROOT"

const (
	defaultRootDir = ".jina"
	storeFileName  = "config.json"

	// KeyAuthToken holds the cached bearer credential.
	KeyAuthToken = "auth_token"
	// KeyJWKS holds the cached signing key list.
	KeyJWKS = "jwks"
)

// Store is a file-backed string-keyed JSON store. Reads treat a missing or
// corrupt file as empty; writes surface I/O errors to the caller.
//
// Writes are read-modify-write guarded by an in-process mutex only. Concurrent
// logins from separate processes are out of scope and may race.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a store rooted at dir. An empty dir resolves the default root:
// $JINA_CONFIG_ROOT if set, otherwise ~/.jina.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = os.Getenv(ConfigRootEnv)
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, defaultRootDir)
	}
	return &Store{path: filepath.Join(dir, storeFileName)}, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the raw JSON value for key, or ok=false if absent.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.load()
	raw, ok := values[key]
	return raw, ok
}

// GetString returns the string value for key, or ok=false if absent or not a
// JSON string.
func (s *Store) GetString(key string) (string, bool) {
	raw, ok := s.Get(key)
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

// GetJSON decodes the value for key into out, returning ok=false if absent or
// undecodable.
func (s *Store) GetJSON(key string, out any) bool {
	raw, ok := s.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Set stores value under key, creating the backing file on first use.
func (s *Store) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.load()
	values[key] = raw
	return s.save(values)
}

// Delete removes key from the store. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.load()
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

// Purge removes all persisted state, including the backing file.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to purge store %s: %w", s.path, err)
	}
	return nil
}

// load reads the backing file, treating missing or corrupt content as empty.
func (s *Store) load() map[string]json.RawMessage {
	values := make(map[string]json.RawMessage)

	data, err := os.ReadFile(s.path)
	if err != nil {
		return values
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return make(map[string]json.RawMessage)
	}
	return values
}

// save writes the full value map. The store file carries the credential, so
// the directory is owner-only and the file is owner read/write.
func (s *Store) save(values map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config root: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write store %s: %w", s.path, err)
	}
	return nil
}
