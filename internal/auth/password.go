package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// PasswordChecker validates the admin login password.
type PasswordChecker struct {
	plain []byte
	hash  []byte
}

// NewPasswordChecker prefers a bcrypt hash and falls back to comparing
// against the plain shared secret when no hash is configured.
func NewPasswordChecker(secret, bcryptHash string) *PasswordChecker {
	if bcryptHash != "" {
		return &PasswordChecker{hash: []byte(bcryptHash)}
	}
	return &PasswordChecker{plain: []byte(secret)}
}

// Check reports whether password is correct.
func (p *PasswordChecker) Check(password string) bool {
	if p.hash != nil {
		return bcrypt.CompareHashAndPassword(p.hash, []byte(password)) == nil
	}
	if len(p.plain) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(p.plain, []byte(password)) == 1
}
