package keybackend

import "maps"

// KeysConfig holds configuration for loading signing keys.
type KeysConfig struct {
	Inline []SigningKey `mapstructure:"inline"` // Inline keys from config
	File   string       `mapstructure:"file"`   // JSON or YAML key file
}

// NewSecretStore merges inline keys and the key file into one store. File
// keys win over inline keys with the same kid, so a rotated secret can be
// dropped into the file without touching the main config.
func NewSecretStore(cfg KeysConfig) (*MapSecretStore, error) {
	keys := keyMap(cfg.Inline)

	if cfg.File != "" {
		fileKeys, err := LoadKeysFromFile(cfg.File)
		if err != nil {
			return nil, err
		}
		maps.Copy(keys, fileKeys)
	}

	return NewMapSecretStore(keys), nil
}
