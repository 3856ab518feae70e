package app

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PassphraseEnv names the environment variable read before prompting.
const PassphraseEnv = "ABUS_PASSPHRASE"

// PassphraseFunc supplies the archive key passphrase.
type PassphraseFunc func() (string, error)

// StaticPassphrase returns a PassphraseFunc that always yields p.
func StaticPassphrase(p string) PassphraseFunc {
	return func() (string, error) { return p, nil }
}

// EnvOrPromptPassphrase reads the passphrase from ABUS_PASSPHRASE, or asks
// for it on the terminal without echo.
func EnvOrPromptPassphrase() PassphraseFunc {
	return func() (string, error) {
		if p, ok := os.LookupEnv(PassphraseEnv); ok {
			return p, nil
		}
		return PromptPassphrase("Passphrase: ")
	}
}

// PromptPassphrase shows prompt on stderr and reads a line from the terminal
// on stdin without echo.
func PromptPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal: set %s", PassphraseEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}
