// Package webhook implements the outbound event delivery engine: fan-out of
// events to subscribed endpoints, HMAC payload signing, per-attempt delivery
// records, retry of transport failures, and retention cleanup.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignatureHeader carries the payload HMAC on outbound requests.
const SignatureHeader = "X-Webhook-Signature"

// CanonicalJSON serializes v with deterministic key ordering at every nesting
// level, so two parties serializing the same value get byte-identical output.
// The value is normalized through a generic decode first; struct field order
// and insertion order never leak into the result.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("failed to normalize payload: %w", err)
	}

	// encoding/json writes map keys in sorted order.
	canonical, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal canonical payload: %w", err)
	}
	return canonical, nil
}

// Sign computes the signature header value for a payload: HMAC-SHA256 over the
// canonical JSON of the payload (not the delivery envelope), hex-encoded with a
// "sha256=" prefix. Receivers verify by recomputing over the "data" field of
// the envelope they received.
func Sign(secret string, payload any) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil)), nil
}
