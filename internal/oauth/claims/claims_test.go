package claims

import (
	"encoding/base64"
	"testing"
	"time"
)

func makeJWT(t *testing.T, payload string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return header + "." + body + ".signature"
}

func TestParseDecodesClaims(t *testing.T) {
	t.Parallel()

	token := makeJWT(t, `{"sub":"user-42","email":"dev@example.com","name":"Dev","iss":"https://issuer.example.com","scope":"openid profile","exp":1756500000}`)

	info := Parse(token)
	if !info.Decoded {
		t.Fatalf("expected token to decode, got degraded descriptor %+v", info)
	}
	if info.Subject != "user-42" {
		t.Errorf("Subject = %q, want %q", info.Subject, "user-42")
	}
	if info.Email != "dev@example.com" {
		t.Errorf("Email = %q, want %q", info.Email, "dev@example.com")
	}
	if info.Issuer != "https://issuer.example.com" {
		t.Errorf("Issuer = %q, want %q", info.Issuer, "https://issuer.example.com")
	}
	if info.Scope != "openid profile" {
		t.Errorf("Scope = %q, want %q", info.Scope, "openid profile")
	}
	if want := time.Unix(1756500000, 0); !info.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", info.ExpiresAt, want)
	}
}

func TestParseDegradesGracefully(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
	}{
		{"opaque token", "opaque-bearer-token-without-structure"},
		{"two segments", "aGVhZGVy.cGF5bG9hZA"},
		{"four segments", "a.b.c.d"},
		{"invalid base64 payload", "header.!!!not-base64!!!.signature"},
		{"payload is not an object", makeJWTPayload(t, `"just a string"`)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info := Parse(tt.token)
			if info == nil {
				t.Fatal("Parse returned nil")
			}
			if info.Decoded {
				t.Errorf("expected degraded descriptor for %q", tt.token)
			}
			if info.TokenPrefix == "" {
				t.Error("degraded descriptor is missing the token prefix")
			}
		})
	}
}

func makeJWTPayload(t *testing.T, payload string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	body := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return header + "." + body + "."
}

func TestParsePrefixTruncation(t *testing.T) {
	t.Parallel()

	short := Parse("abc")
	if short.TokenPrefix != "abc" {
		t.Errorf("short token prefix = %q, want %q", short.TokenPrefix, "abc")
	}

	long := Parse("0123456789abcdefghij")
	if long.TokenPrefix != "0123456789ab" {
		t.Errorf("long token prefix = %q, want %q", long.TokenPrefix, "0123456789ab")
	}
}
