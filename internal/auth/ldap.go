// Package auth provides optional SESSION_INIT credential validation
// hooks. The connection handler transports credential material but
// owns no authorization model; this package gives operators a place
// to verify that material when they want more than the storage
// engine's own check, here backed by an LDAP bind.
package auth

import (
	"crypto/sha256"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// Validator checks transported credential material during
// SESSION_INIT, before the session is constructed. An error fails the
// handshake with an auth/setup-kind WireError.
type Validator func(user string, passwordHash []byte) error

// LDAPConfig configures an LDAP-backed Validator.
type LDAPConfig struct {
	URL        string
	BindDNFmt  string // fmt template with one %s for the user, e.g. "uid=%s,ou=people,dc=example,dc=com"
	SkipVerify bool
}

// NewLDAPValidator returns a Validator that binds to an LDAP directory
// with a bind credential derived from the password hash transported at
// SESSION_INIT. This only authenticates the transported material against
// a directory; it does not implement an authorization policy.
func NewLDAPValidator(cfg LDAPConfig) Validator {
	return func(user string, passwordHash []byte) error {
		conn, err := ldap.DialURL(cfg.URL)
		if err != nil {
			return fmt.Errorf("auth: ldap dial %s: %w", cfg.URL, err)
		}
		defer conn.Close()

		bindDN := fmt.Sprintf(cfg.BindDNFmt, user)
		// The wire never carries a plaintext password, so the bind
		// credential is the hex-rendered SHA-256 of the transported hash
		// rather than a user-typed secret.
		secret := fmt.Sprintf("%x", sha256.Sum256(passwordHash))
		if err := conn.Bind(bindDN, secret); err != nil {
			return fmt.Errorf("auth: ldap bind failed for %q: %w", user, err)
		}
		return nil
	}
}
