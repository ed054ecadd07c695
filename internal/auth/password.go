// Package auth provides authentication primitives and the login/session/lockout
// service for the PAK.sh web console. Three credential kinds are supported:
// opaque session tokens (browser logins, stateful), JWTs (REST API token pair,
// stateless verification), and per-user API keys (long-lived automation access).
// See internal/middleware/auth.go for the request-time logic that uses these.
package auth

import "golang.org/x/crypto/bcrypt"

// BcryptCost is the cost factor for bcrypt password hashing
const BcryptCost = 12

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext password matches the stored hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
