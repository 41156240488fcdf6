// Package signature implements payload signing for outbound webhooks.
//
// Wire contract: the signature is hex(HMAC-SHA256(canonical(payload), secret)),
// where canonical(payload) is the JSON encoding with object keys sorted
// recursively. Producer and verifier must canonicalize the same way or
// signatures mismatch non-deterministically.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SecretBytes is the size of generated webhook secrets (hex-encoded on output).
const SecretBytes = 32

// GenerateSecret creates a cryptographically secure shared secret:
// 32 random bytes, hex-encoded.
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// Canonicalize returns the canonical byte representation of payload: its JSON
// encoding with object keys sorted at every nesting level. The sort comes from
// round-tripping through map values; encoding/json marshals map keys in sorted
// order.
func Canonicalize(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unmarshaling payload: %w", err)
	}

	canonical, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling canonical form: %w", err)
	}

	return canonical, nil
}

// Sign computes the hex-encoded HMAC-SHA256 of the canonical payload keyed by
// secret. It fails only when the payload cannot be serialized, which is a
// programming error upstream.
func Sign(payload any, secret string) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)

	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the expected signature and compares it against sig in
// constant time. It never returns an error: any malformed input simply
// verifies as false.
func Verify(payload any, sig, secret string) bool {
	expected, err := Sign(payload, secret)
	if err != nil {
		return false
	}

	expectedBytes, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	return hmac.Equal(expectedBytes, sigBytes)
}
