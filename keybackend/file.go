package keybackend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SigningKey is a shared HMAC secret identified by the token "kid" header.
type SigningKey struct {
	KeyID  string `json:"kid" mapstructure:"kid" yaml:"kid"`
	Secret string `json:"secret" mapstructure:"secret" yaml:"secret"`
}

// LoadKeysFromFile reads a list of signing keys. Files ending in .yaml or
// .yml are parsed as YAML, anything else as JSON:
//
//	[
//	  {"kid": "2024-01", "secret": "c2VjcmV0..."},
//	  {"kid": "2024-07", "secret": "YW5vdGhlcg..."}
//	]
//
// Entries missing a kid or a secret are dropped. A later entry with the same
// kid replaces an earlier one.
func LoadKeysFromFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is from trusted config file
	if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}

	var keys []SigningKey
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &keys)
	default:
		err = json.Unmarshal(data, &keys)
	}
	if err != nil {
		return nil, fmt.Errorf("parse keys file %s: %w", filepath.Base(path), err)
	}

	return keyMap(keys), nil
}

func keyMap(keys []SigningKey) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if k.KeyID != "" && k.Secret != "" {
			out[k.KeyID] = k.Secret
		}
	}
	return out
}
