package auth

import "testing"

func TestHashPassword(t *testing.T) {
	t.Run("hash verifies against original password", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery staple")
		if err != nil {
			t.Fatalf("HashPassword() error: %v", err)
		}
		if hash == "" {
			t.Fatal("HashPassword() returned empty hash")
		}
		if !CheckPassword("correct horse battery staple", hash) {
			t.Error("CheckPassword() returned false for correct password")
		}
	})

	t.Run("wrong password does not verify", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery staple")
		if err != nil {
			t.Fatalf("HashPassword() error: %v", err)
		}
		if CheckPassword("Tr0ub4dor&3", hash) {
			t.Error("CheckPassword() returned true for wrong password")
		}
	})

	t.Run("two hashes of the same password differ", func(t *testing.T) {
		h1, _ := HashPassword("secret123")
		h2, _ := HashPassword("secret123")
		if h1 == h2 {
			t.Error("HashPassword() produced identical hashes, salt missing")
		}
	})

	t.Run("garbage hash does not verify", func(t *testing.T) {
		if CheckPassword("secret123", "not-a-bcrypt-hash") {
			t.Error("CheckPassword() returned true for malformed hash")
		}
	})
}
