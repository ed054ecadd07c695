package auth

import (
	"os"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	// The secret is resolved once per process, so it must be in place before
	// the first token is signed.
	os.Setenv("PAKWEB_JWT_SECRET", "test-secret-0123456789abcdef0123456789abcdef")
	os.Exit(m.Run())
}

func TestGenerateJWT(t *testing.T) {
	t.Run("round trip preserves claims", func(t *testing.T) {
		token, err := GenerateJWT("user-1", "alice@example.com", TokenTypeAccess, "pakweb", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}

		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		if claims.UserID != "user-1" {
			t.Errorf("UserID = %s, want user-1", claims.UserID)
		}
		if claims.Email != "alice@example.com" {
			t.Errorf("Email = %s, want alice@example.com", claims.Email)
		}
		if claims.TokenType != TokenTypeAccess {
			t.Errorf("TokenType = %s, want %s", claims.TokenType, TokenTypeAccess)
		}
		if claims.Issuer != "pakweb" {
			t.Errorf("Issuer = %s, want pakweb", claims.Issuer)
		}
	})

	t.Run("refresh token carries refresh type", func(t *testing.T) {
		token, err := GenerateJWT("user-1", "alice@example.com", TokenTypeRefresh, "pakweb", 720*time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		claims, err := ValidateJWT(token)
		if err != nil {
			t.Fatalf("ValidateJWT() error: %v", err)
		}
		if claims.TokenType != TokenTypeRefresh {
			t.Errorf("TokenType = %s, want %s", claims.TokenType, TokenTypeRefresh)
		}
	})
}

func TestValidateJWT(t *testing.T) {
	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := GenerateJWT("user-1", "alice@example.com", TokenTypeAccess, "pakweb", -time.Minute)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		if _, err := ValidateJWT(token); err == nil {
			t.Error("ValidateJWT() accepted an expired token")
		}
	})

	t.Run("tampered token is rejected", func(t *testing.T) {
		token, err := GenerateJWT("user-1", "alice@example.com", TokenTypeAccess, "pakweb", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT() error: %v", err)
		}
		tampered := token[:len(token)-2] + "xx"
		if _, err := ValidateJWT(tampered); err == nil {
			t.Error("ValidateJWT() accepted a tampered token")
		}
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		if _, err := ValidateJWT("not.a.jwt"); err == nil {
			t.Error("ValidateJWT() accepted garbage input")
		}
	})
}
