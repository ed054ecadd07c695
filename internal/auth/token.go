package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenEntropyBytes is the entropy of opaque tokens (session, reset, API key)
const TokenEntropyBytes = 32

// generateToken returns a URL-safe random token with TokenEntropyBytes of entropy
func generateToken() (string, error) {
	b := make([]byte, TokenEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateSessionToken creates an opaque session bearer token
func GenerateSessionToken() (string, error) {
	return generateToken()
}

// GenerateResetToken creates an opaque password reset token
func GenerateResetToken() (string, error) {
	return generateToken()
}

// GenerateAPIKey creates a user API key in the form <prefix>_<random>. The
// prefix makes leaked keys recognisable to log scrubbers and secret scanners.
func GenerateAPIKey(prefix string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s", prefix, token), nil
}

// GenerateWebhookSecret creates a signing secret for webhooks created without one
func GenerateWebhookSecret() (string, error) {
	return generateToken()
}
