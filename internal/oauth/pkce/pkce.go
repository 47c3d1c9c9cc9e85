// Package pkce provides the verifier and challenge primitives for OAuth 2.0
// Authorization Code flows with PKCE (Proof Key for Code Exchange, RFC 7636).
// The same random-string generator backs both the PKCE code verifier and the
// anti-CSRF state parameter.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// StateLength is the length of generated state parameters.
	StateLength = 32
	// VerifierLength is the length of generated code verifiers. RFC 7636
	// permits 43-128 characters; the longest allowed form is used.
	VerifierLength = 128
)

// Codes holds the values produced for a single authorization handshake.
type Codes struct {
	// State is the anti-CSRF nonce round-tripped through the redirect.
	State string `json:"state"`
	// CodeVerifier is the PKCE secret kept client-side until token exchange.
	CodeVerifier string `json:"code_verifier"`
	// CodeChallenge is the S256 transformation of the verifier sent with the
	// authorization request.
	CodeChallenge string `json:"code_challenge"`
}

// Generate creates the state, verifier, and challenge for a new handshake.
func Generate() (*Codes, error) {
	state, err := GenerateVerifier(StateLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	verifier, err := GenerateVerifier(VerifierLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return &Codes{
		State:         state,
		CodeVerifier:  verifier,
		CodeChallenge: DeriveChallenge(verifier),
	}, nil
}

// GenerateVerifier returns a random string of exactly length characters drawn
// from the hex alphabet. It hex-encodes length cryptographically random bytes
// and truncates to length characters, so every character carries entropy from
// crypto/rand. An error here means the platform's secure random source is
// unavailable and no login can be started.
func GenerateVerifier(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("verifier length must be positive, got %d", length)
	}
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(bytes)[:length], nil
}

// DeriveChallenge computes the S256 code challenge for a verifier: the
// SHA-256 digest of the verifier's UTF-8 bytes, base64url-encoded without
// padding. Deterministic pure function of its input.
func DeriveChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
