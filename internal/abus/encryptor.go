package abus

import "io"

// Encryptor manages the archive key pair. Blobs and run indexes in an
// archive are encrypted to its public key.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `abus config init`.
	// Generates a key pair, stores the public key in plaintext, and encrypts
	// the private key with the provided passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext for the rest of the session.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if the keys exist at the configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the duration
// of a rebuild or restore session. Created by Encryptor.Unlock.
type DecryptionContext interface {
	// DecryptReader returns a reader yielding the plaintext of the
	// ciphertext read from r.
	DecryptReader(r io.Reader) (io.Reader, error)
}
