package encryption

import (
	"bytes"
	"fmt"
	"io"

	"abus-go/internal/abus"
)

// testHeader marks data written by TestEncryptor.
var testHeader = []byte("ABUSTST\x00")

// TestEncryptor is a deterministic encryptor for tests and fixtures. It
// prepends a fixed 8-byte header on encryption and checks and strips it on
// decryption, so reading an unencrypted blob as encrypted still fails.
type TestEncryptor struct{}

var _ abus.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (abus.DecryptionContext, error) {
	return TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

func (TestDecryptionContext) DecryptReader(r io.Reader) (io.Reader, error) {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return nil, fmt.Errorf("invalid test encryption header")
	}
	return r, nil
}

// PlainEncryptor is used for archives that are not encrypted.
type PlainEncryptor struct{}

var _ abus.Encryptor = PlainEncryptor{}

func (PlainEncryptor) Setup(string) error { return nil }

func (PlainEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

func (PlainEncryptor) Unlock(string) (abus.DecryptionContext, error) {
	return PlainDecryptionContext{}, nil
}

func (PlainEncryptor) IsConfigured() bool { return true }

// PlainDecryptionContext passes data through unchanged.
type PlainDecryptionContext struct{}

func (PlainDecryptionContext) DecryptReader(r io.Reader) (io.Reader, error) {
	return r, nil
}
