// Package claims provides best-effort introspection of bearer tokens for
// display purposes. Tokens that look like JWTs have their payload segment
// decoded without any signature verification; this is a convenience view for
// humans and must never be used as a trust boundary.
package claims

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// tokenPrefixLength is how many characters of an undecodable token are kept
// in the degraded descriptor.
const tokenPrefixLength = 12

// Info is the decoded view of an access token. When Decoded is false only
// TokenPrefix is populated and the remaining fields are zero values.
type Info struct {
	// Decoded reports whether the token could be parsed as a three-segment JWT.
	Decoded bool `json:"decoded"`
	// TokenPrefix is a short prefix of the raw token, always populated.
	TokenPrefix string `json:"token_prefix"`

	Subject   string    `json:"sub,omitempty"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Parse produces a display descriptor for the given access token. It never
// fails: tokens that are not three dot-delimited segments, or whose payload
// cannot be decoded, yield a degraded descriptor carrying a token prefix only.
func Parse(token string) *Info {
	info := &Info{TokenPrefix: prefix(token)}

	payload, err := decodePayload(token)
	if err != nil {
		return info
	}

	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return info
	}

	info.Decoded = true
	info.Subject = root.Get("sub").String()
	info.Email = root.Get("email").String()
	info.Name = root.Get("name").String()
	info.Issuer = root.Get("iss").String()
	info.Scope = root.Get("scope").String()
	if exp := root.Get("exp"); exp.Exists() {
		info.ExpiresAt = time.Unix(exp.Int(), 0)
	}
	return info
}

// decodePayload extracts and base64url-decodes the middle segment of a JWT.
func decodePayload(token string) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 token segments, got %d", len(parts))
	}
	return base64URLDecode(parts[1])
}

// base64URLDecode decodes a base64url string, re-adding the padding JWTs omit.
func base64URLDecode(data string) ([]byte, error) {
	switch len(data) % 4 {
	case 2:
		data += "=="
	case 3:
		data += "="
	}
	return base64.URLEncoding.DecodeString(data)
}

func prefix(token string) string {
	if len(token) <= tokenPrefixLength {
		return token
	}
	return token[:tokenPrefixLength]
}
