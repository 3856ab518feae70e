package encryption

import (
	"fmt"

	"abus-go/internal/abus"
	"abus-go/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (abus.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("public_key_path and private_key_path required for age encryption")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	case "none":
		return PlainEncryptor{}, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

// NeedsPassphrase reports whether unlocking the configured encryptor
// requires the user's passphrase.
func NeedsPassphrase(cfg config.EncryptionConfig) bool {
	return cfg.Type == "age" || cfg.Type == ""
}
