package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/oauthkit/oauthkit/internal/oauth/pkce"
)

// memStore is an in-test Storage fake.
type memStore struct {
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (s *memStore) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *memStore) Set(key, value string) error {
	s.values[key] = value
	return nil
}

func (s *memStore) Remove(key string) error {
	delete(s.values, key)
	return nil
}

func testConfig(tokenEndpoint string) Config {
	return Config{
		ClientID:              "test-client",
		RedirectURI:           "http://localhost:8912/callback",
		AuthorizationEndpoint: "https://auth.example.com/authorize",
		TokenEndpoint:         tokenEndpoint,
		Scope:                 "openid profile",
	}
}

func newTestManager(t *testing.T, tokenEndpoint string, scratch, durable Storage, opts ...Option) *Manager {
	t.Helper()
	m, err := New(testConfig(tokenEndpoint), scratch, durable, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return m
}

func TestAuthorizeBuildsURLAndPersistsHandshake(t *testing.T) {
	t.Parallel()

	scratch := newMemStore()
	m := newTestManager(t, "https://auth.example.com/token", scratch, newMemStore())

	authURL, err := m.Authorize()
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("Authorize produced unparsable URL %q: %v", authURL, err)
	}
	query := parsed.Query()

	if got := query.Get("response_type"); got != "code" {
		t.Errorf("response_type = %q, want %q", got, "code")
	}
	if got := query.Get("client_id"); got != "test-client" {
		t.Errorf("client_id = %q, want %q", got, "test-client")
	}
	if got := query.Get("redirect_uri"); got != "http://localhost:8912/callback" {
		t.Errorf("redirect_uri = %q", got)
	}
	if got := query.Get("code_challenge_method"); got != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", got)
	}
	if got := query.Get("scope"); got != "openid profile" {
		t.Errorf("scope = %q, want %q", got, "openid profile")
	}

	state, ok := scratch.Get(ScratchKeyState)
	if !ok || state != query.Get("state") {
		t.Errorf("stored state %q does not match URL state %q", state, query.Get("state"))
	}
	verifier, ok := scratch.Get(ScratchKeyVerifier)
	if !ok || verifier == "" {
		t.Fatal("code verifier not persisted to scratch storage")
	}
	if got := query.Get("code_challenge"); got != pkce.DeriveChallenge(verifier) {
		t.Errorf("code_challenge %q does not match stored verifier", got)
	}
}

func TestAuthorizeDefaultsScope(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://auth.example.com/token")
	cfg.Scope = ""
	m, err := New(cfg, newMemStore(), newMemStore())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	authURL, err := m.Authorize()
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	if got := parsed.Query().Get("scope"); got != DefaultScope {
		t.Errorf("scope = %q, want default %q", got, DefaultScope)
	}
}

func TestAuthorizeOverwritesInFlightHandshake(t *testing.T) {
	t.Parallel()

	scratch := newMemStore()
	m := newTestManager(t, "https://auth.example.com/token", scratch, newMemStore())

	if _, err := m.Authorize(); err != nil {
		t.Fatalf("first Authorize returned error: %v", err)
	}
	firstState, _ := scratch.Get(ScratchKeyState)

	if _, err := m.Authorize(); err != nil {
		t.Fatalf("second Authorize returned error: %v", err)
	}
	secondState, _ := scratch.Get(ScratchKeyState)

	if firstState == secondState {
		t.Error("second Authorize did not overwrite the stored handshake state")
	}
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	t.Parallel()

	scratch := newMemStore()
	durable := newMemStore()
	m := newTestManager(t, "https://auth.example.com/token", scratch, durable)
	if _, err := m.Authorize(); err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}

	query := url.Values{}
	query.Set("code", "auth-code")
	query.Set("state", "attacker-supplied-state")

	err := m.HandleCallback(context.Background(), query)
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("HandleCallback error = %v, want ErrStateMismatch", err)
	}
	if m.IsAuthenticated() {
		t.Error("state mismatch must not install a token")
	}
	if _, ok := durable.Get(DurableKeyAccessToken); ok {
		t.Error("state mismatch must not persist a token")
	}
}

func TestHandleCallbackAuthorizationDenied(t *testing.T) {
	t.Parallel()

	exchangeAttempted := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchangeAttempted = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, newMemStore(), newMemStore())
	if _, err := m.Authorize(); err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}

	query := url.Values{}
	query.Set("error", "access_denied")
	query.Set("error_description", "The user declined")

	err := m.HandleCallback(context.Background(), query)
	var denied *AuthorizationDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("HandleCallback error = %v, want AuthorizationDeniedError", err)
	}
	if denied.Code != "access_denied" {
		t.Errorf("denied code = %q, want access_denied", denied.Code)
	}
	if exchangeAttempted {
		t.Error("denied callback must not reach the token endpoint")
	}
	if m.IsAuthenticated() {
		t.Error("denied callback must not install a token")
	}
}

func TestHandleCallbackMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query url.Values
	}{
		{"missing code", url.Values{"state": {"s"}}},
		{"missing state", url.Values{"code": {"c"}}},
		{"empty query", url.Values{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newTestManager(t, "https://auth.example.com/token", newMemStore(), newMemStore())
			err := m.HandleCallback(context.Background(), tt.query)
			if !errors.Is(err, ErrMalformedCallback) {
				t.Errorf("HandleCallback error = %v, want ErrMalformedCallback", err)
			}
		})
	}
}

func TestHandleCallbackMissingVerifier(t *testing.T) {
	t.Parallel()

	scratch := newMemStore()
	m := newTestManager(t, "https://auth.example.com/token", scratch, newMemStore())
	if err := scratch.Set(ScratchKeyState, "known-state"); err != nil {
		t.Fatal(err)
	}

	query := url.Values{}
	query.Set("code", "auth-code")
	query.Set("state", "known-state")

	err := m.HandleCallback(context.Background(), query)
	if !errors.Is(err, ErrMissingVerifier) {
		t.Fatalf("HandleCallback error = %v, want ErrMissingVerifier", err)
	}
}

func TestHandleCallbackSuccess(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("token endpoint received unparsable form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1"}`))
	}))
	defer server.Close()

	scratch := newMemStore()
	durable := newMemStore()
	m := newTestManager(t, server.URL, scratch, durable, WithClock(func() time.Time { return now }))

	authURL, err := m.Authorize()
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")
	verifier, _ := scratch.Get(ScratchKeyVerifier)

	query := url.Values{}
	query.Set("code", "auth-code-1")
	query.Set("state", state)

	if err = m.HandleCallback(context.Background(), query); err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}

	if gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "auth-code-1" {
		t.Errorf("code = %q", gotForm.Get("code"))
	}
	if gotForm.Get("code_verifier") != verifier {
		t.Errorf("code_verifier = %q, want stored verifier", gotForm.Get("code_verifier"))
	}
	if gotForm.Get("client_id") != "test-client" {
		t.Errorf("client_id = %q", gotForm.Get("client_id"))
	}
	if gotForm.Get("redirect_uri") != "http://localhost:8912/callback" {
		t.Errorf("redirect_uri = %q", gotForm.Get("redirect_uri"))
	}

	if !m.IsAuthenticated() {
		t.Error("expected authenticated session after successful exchange")
	}
	if got := m.AccessToken(); got != "abc" {
		t.Errorf("AccessToken = %q, want abc", got)
	}

	rawExpiry, ok := durable.Get(DurableKeyExpiresAt)
	if !ok {
		t.Fatal("expiry not persisted")
	}
	millis, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		t.Fatalf("persisted expiry %q is not an integer: %v", rawExpiry, err)
	}
	want := now.Add(time.Hour).UnixMilli()
	if millis != want {
		t.Errorf("persisted expiry = %d, want %d", millis, want)
	}

	if _, ok = scratch.Get(ScratchKeyState); ok {
		t.Error("state not erased after consumption")
	}
	if _, ok = scratch.Get(ScratchKeyVerifier); ok {
		t.Error("code verifier not erased after consumption")
	}

	if refresh, _ := durable.Get(DurableKeyRefreshToken); refresh != "refresh-1" {
		t.Errorf("persisted refresh token = %q, want refresh-1", refresh)
	}
}

func TestFailedExchangeLeavesExistingSessionIntact(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	durable := newMemStore()
	_ = durable.Set(DurableKeyAccessToken, "existing-token")

	scratch := newMemStore()
	m := newTestManager(t, server.URL, scratch, durable)
	if got := m.AccessToken(); got != "existing-token" {
		t.Fatalf("precondition failed: AccessToken = %q", got)
	}

	authURL, err := m.Authorize()
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	parsed, _ := url.Parse(authURL)

	query := url.Values{}
	query.Set("code", "bad-code")
	query.Set("state", parsed.Query().Get("state"))

	err = m.HandleCallback(context.Background(), query)
	var exchangeErr *TokenExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("HandleCallback error = %v, want TokenExchangeError", err)
	}
	if exchangeErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", exchangeErr.StatusCode)
	}

	if got := m.AccessToken(); got != "existing-token" {
		t.Errorf("existing token clobbered by failed exchange: AccessToken = %q", got)
	}
	if stored, _ := durable.Get(DurableKeyAccessToken); stored != "existing-token" {
		t.Errorf("persisted token clobbered by failed exchange: %q", stored)
	}
}

func TestExchangeTransportFailure(t *testing.T) {
	t.Parallel()

	// Closed server: connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	scratch := newMemStore()
	m := newTestManager(t, endpoint, scratch, newMemStore())
	authURL, err := m.Authorize()
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	parsed, _ := url.Parse(authURL)

	query := url.Values{}
	query.Set("code", "c")
	query.Set("state", parsed.Query().Get("state"))

	err = m.HandleCallback(context.Background(), query)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("HandleCallback error = %v, want ErrServiceUnavailable", err)
	}
}

func TestNewRestoresValidSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	durable := newMemStore()
	_ = durable.Set(DurableKeyAccessToken, "stored-token")
	_ = durable.Set(DurableKeyRefreshToken, "stored-refresh")
	_ = durable.Set(DurableKeyExpiresAt, strconv.FormatInt(now.Add(time.Hour).UnixMilli(), 10))

	m := newTestManager(t, "https://auth.example.com/token", newMemStore(), durable,
		WithClock(func() time.Time { return now }))

	if !m.IsAuthenticated() {
		t.Error("expected authenticated session from valid stored token")
	}
	if got := m.AccessToken(); got != "stored-token" {
		t.Errorf("AccessToken = %q, want stored-token", got)
	}
}

func TestNewRestoresSessionWithoutExpiry(t *testing.T) {
	t.Parallel()

	durable := newMemStore()
	_ = durable.Set(DurableKeyAccessToken, "stored-token")

	m := newTestManager(t, "https://auth.example.com/token", newMemStore(), durable)
	if !m.IsAuthenticated() {
		t.Error("token without recorded expiry should restore as authenticated")
	}
}

func TestNewClearsExpiredSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	durable := newMemStore()
	_ = durable.Set(DurableKeyAccessToken, "stale-token")
	_ = durable.Set(DurableKeyRefreshToken, "stale-refresh")
	_ = durable.Set(DurableKeyExpiresAt, strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10))

	m := newTestManager(t, "https://auth.example.com/token", newMemStore(), durable,
		WithClock(func() time.Time { return now }))

	if m.IsAuthenticated() {
		t.Error("expired stored token must not authenticate")
	}
	for _, key := range []string{DurableKeyAccessToken, DurableKeyRefreshToken, DurableKeyExpiresAt} {
		if _, ok := durable.Get(key); ok {
			t.Errorf("stale durable entry %q not cleared", key)
		}
	}
}

func TestNewClearsUnparsableExpiry(t *testing.T) {
	t.Parallel()

	durable := newMemStore()
	_ = durable.Set(DurableKeyAccessToken, "token")
	_ = durable.Set(DurableKeyExpiresAt, "not-a-number")

	m := newTestManager(t, "https://auth.example.com/token", newMemStore(), durable)
	if m.IsAuthenticated() {
		t.Error("unreadable expiry must be treated as stale")
	}
	if _, ok := durable.Get(DurableKeyAccessToken); ok {
		t.Error("stale token not cleared")
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	durable := newMemStore()
	_ = durable.Set(DurableKeyAccessToken, "token")
	_ = durable.Set(DurableKeyRefreshToken, "refresh")
	_ = durable.Set(DurableKeyExpiresAt, strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10))

	m := newTestManager(t, "https://auth.example.com/token", newMemStore(), durable)
	if !m.IsAuthenticated() {
		t.Fatal("precondition failed: expected authenticated session")
	}

	m.Logout()

	if m.IsAuthenticated() {
		t.Error("IsAuthenticated true after Logout")
	}
	if got := m.AccessToken(); got != "" {
		t.Errorf("AccessToken = %q after Logout, want empty", got)
	}
	for _, key := range []string{DurableKeyAccessToken, DurableKeyRefreshToken, DurableKeyExpiresAt} {
		if _, ok := durable.Get(key); ok {
			t.Errorf("durable entry %q not erased by Logout", key)
		}
	}

	// Idempotent on an already-empty session.
	m.Logout()
	if m.IsAuthenticated() {
		t.Error("second Logout changed state unexpectedly")
	}
}

func TestTokenInfo(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "https://auth.example.com/token", newMemStore(), newMemStore())
	if info := m.TokenInfo(); info != nil {
		t.Errorf("TokenInfo = %+v for unauthenticated session, want nil", info)
	}

	durable := newMemStore()
	_ = durable.Set(DurableKeyAccessToken, "opaque-token-value")
	m = newTestManager(t, "https://auth.example.com/token", newMemStore(), durable)

	info := m.TokenInfo()
	if info == nil {
		t.Fatal("TokenInfo returned nil for held token")
	}
	if info.Decoded {
		t.Error("opaque token reported as decoded")
	}
	if info.TokenPrefix == "" {
		t.Error("degraded descriptor missing token prefix")
	}
}

func TestParseCallbackInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantCode  string
		wantState string
		wantErr   bool
	}{
		{"full URL", "http://localhost:8912/callback?code=abc&state=xyz", "abc", "xyz", false},
		{"bare query", "?code=abc&state=xyz", "abc", "xyz", false},
		{"key-value only", "code=abc&state=xyz", "abc", "xyz", false},
		{"fragment params", "http://localhost/callback#code=abc&state=xyz", "abc", "xyz", false},
		{"state after hash in code", "http://localhost/callback?code=abc%23xyz", "abc", "xyz", false},
		{"error callback", "http://localhost/callback?error=access_denied", "", "", false},
		{"empty", "   ", "", "", true},
		{"no parameters", "http://localhost/callback", "", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			query, err := ParseCallbackInput(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCallbackInput(%q) expected error, got %v", tt.input, query)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCallbackInput(%q) returned error: %v", tt.input, err)
			}
			if got := query.Get("code"); got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
			if got := query.Get("state"); got != tt.wantState {
				t.Errorf("state = %q, want %q", got, tt.wantState)
			}
		})
	}
}
