package identity

import (
	"os"
	"strings"
)

// PasswordEnv overrides every other password source when set.
const PasswordEnv = "DESCHOOL_WALLET_PASSWORD"

// PasswordSource resolves the custody wallet password.
type PasswordSource func() string

// ResolvePassword returns a PasswordSource trying, in order: the
// DESCHOOL_WALLET_PASSWORD env var, passwordFile, the platform keyring and
// the Linux kernel keyring. It yields "" when none has a password.
func ResolvePassword(passwordFile string) PasswordSource {
	return func() string {
		if pw := os.Getenv(PasswordEnv); pw != "" {
			return pw
		}

		if passwordFile != "" {
			data, err := os.ReadFile(passwordFile)
			if err == nil && len(data) > 0 {
				return strings.TrimRight(string(data), "\r\n")
			}
		}

		if pw, err := RetrieveWalletPassword(); err == nil && pw != "" {
			return pw
		}

		if pw, err := RetrieveKernelKeyring(); err == nil && pw != "" {
			return pw
		}

		return ""
	}
}

// StaticPassword returns a PasswordSource that always yields pw.
func StaticPassword(pw string) PasswordSource {
	return func() string { return pw }
}
