// Package keybackend provides SecretStore implementations for token signing keys.
package keybackend

import (
	"fmt"

	"github.com/sagarc03/filekeep"
)

// MapSecretStore retrieves keys from an in-memory map.
// Suitable for configuration file-based key storage.
type MapSecretStore struct {
	keys map[string]string
}

// NewMapSecretStore creates a new map-based secret store with the given key id to secret mapping.
func NewMapSecretStore(keys map[string]string) *MapSecretStore {
	return &MapSecretStore{keys: keys}
}

// Lookup retrieves the secret for the given key id.
// An unknown key id is an authentication failure.
func (s *MapSecretStore) Lookup(keyID string) (string, error) {
	secret, found := s.keys[keyID]
	if !found {
		return "", fmt.Errorf("%w: %q: %w", ErrKeyNotFound, keyID, filekeep.ErrUnauthenticated)
	}
	return secret, nil
}

// Len reports how many keys are loaded.
func (s *MapSecretStore) Len() int {
	return len(s.keys)
}
