package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestCanonicalJSON(t *testing.T) {
	t.Run("map keys are sorted", func(t *testing.T) {
		got, err := CanonicalJSON(map[string]any{"b": 2, "a": 1})
		if err != nil {
			t.Fatalf("CanonicalJSON() error: %v", err)
		}
		if string(got) != `{"a":1,"b":2}` {
			t.Errorf("CanonicalJSON() = %s, want {\"a\":1,\"b\":2}", got)
		}
	})

	t.Run("nested keys are sorted", func(t *testing.T) {
		got, err := CanonicalJSON(map[string]any{
			"z": map[string]any{"c": 3, "b": 2},
			"a": 1,
		})
		if err != nil {
			t.Fatalf("CanonicalJSON() error: %v", err)
		}
		if string(got) != `{"a":1,"z":{"b":2,"c":3}}` {
			t.Errorf("CanonicalJSON() = %s", got)
		}
	})

	t.Run("struct field order does not leak", func(t *testing.T) {
		type payload struct {
			B int `json:"b"`
			A int `json:"a"`
		}
		got, err := CanonicalJSON(payload{B: 2, A: 1})
		if err != nil {
			t.Fatalf("CanonicalJSON() error: %v", err)
		}
		if string(got) != `{"a":1,"b":2}` {
			t.Errorf("CanonicalJSON() = %s, want {\"a\":1,\"b\":2}", got)
		}
	})
}

func TestSign(t *testing.T) {
	t.Run("matches independent HMAC over canonical JSON", func(t *testing.T) {
		got, err := Sign("abc", map[string]any{"a": 1})
		if err != nil {
			t.Fatalf("Sign() error: %v", err)
		}

		mac := hmac.New(sha256.New, []byte("abc"))
		mac.Write([]byte(`{"a":1}`))
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

		if got != want {
			t.Errorf("Sign() = %s, want %s", got, want)
		}
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		s1, _ := Sign("abc", map[string]any{"a": 1})
		s2, _ := Sign("abc", map[string]any{"a": 1})
		if s1 != s2 {
			t.Errorf("Sign() not deterministic: %s != %s", s1, s2)
		}
	})

	t.Run("independent of key insertion order", func(t *testing.T) {
		s1, _ := Sign("abc", map[string]any{"a": 1, "b": 2})
		s2, _ := Sign("abc", map[string]any{"b": 2, "a": 1})
		if s1 != s2 {
			t.Errorf("Sign() depends on insertion order: %s != %s", s1, s2)
		}
	})

	t.Run("payload change changes signature", func(t *testing.T) {
		s1, _ := Sign("abc", map[string]any{"a": 1})
		s2, _ := Sign("abc", map[string]any{"a": 2})
		if s1 == s2 {
			t.Error("Sign() produced identical signatures for different payloads")
		}
	})

	t.Run("secret change changes signature", func(t *testing.T) {
		s1, _ := Sign("abc", map[string]any{"a": 1})
		s2, _ := Sign("abd", map[string]any{"a": 1})
		if s1 == s2 {
			t.Error("Sign() produced identical signatures for different secrets")
		}
	})
}
