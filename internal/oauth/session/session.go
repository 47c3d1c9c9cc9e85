// Package session implements the client side of the OAuth 2.0 Authorization
// Code flow with PKCE: starting the redirect handshake, validating the
// callback, exchanging the authorization code for tokens, and managing the
// issued token's lifecycle (persistence, expiry detection, invalidation).
//
// The package owns no transport or UI concerns beyond issuing the token
// exchange request. Navigation to the authorization endpoint and delivery of
// the redirect parameters are the caller's responsibility.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/oauthkit/oauthkit/internal/oauth/claims"
	"github.com/oauthkit/oauthkit/internal/oauth/pkce"
)

// Scratch storage keys hold in-flight handshake values. Exactly one handshake
// is tracked at a time; starting a second overwrites the first.
const (
	ScratchKeyState    = "oauth_state"
	ScratchKeyVerifier = "oauth_code_verifier"
)

// Durable storage keys hold the current session's token material. The expiry
// is epoch milliseconds rendered as a decimal string.
const (
	DurableKeyAccessToken  = "access_token"
	DurableKeyRefreshToken = "refresh_token"
	DurableKeyExpiresAt    = "token_expires_at"
)

// DefaultScope is requested when the configuration does not specify one.
const DefaultScope = "openid profile email"

// Config carries the immutable client registration for the flow. RedirectURI
// must match the authorization server's registration byte-for-byte or the
// exchange step will be rejected server-side.
type Config struct {
	ClientID              string
	RedirectURI           string
	AuthorizationEndpoint string
	TokenEndpoint         string
	// Scope is the space-delimited requested scope; empty falls back to
	// DefaultScope.
	Scope string
}

// Storage is the key-value persistence surface injected into the manager.
// Two instances are supplied with different lifetimes: a scratch scope for
// handshake-in-progress values and a durable scope for issued tokens.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// tokenResponse mirrors the JSON body of a successful token endpoint reply.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Manager drives the authorization lifecycle for a single logical session.
// Construction loads any persisted token; Logout tears it down. All exported
// methods are safe for concurrent use.
type Manager struct {
	cfg        Config
	scratch    Storage
	durable    Storage
	httpClient *http.Client
	now        func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	// expiresAt is zero when the server reported no expiry.
	expiresAt time.Time
}

// Option customizes manager construction.
type Option func(*Manager)

// WithHTTPClient replaces the HTTP client used for token exchange, e.g. to
// route through a proxy.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New builds a manager and determines the initial state from durable storage:
// a persisted access token that has not expired enters the session
// authenticated; anything stale is cleared exactly as Logout would.
func New(cfg Config, scratch, durable Storage, opts ...Option) (*Manager, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("session: client ID is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("session: redirect URI is required")
	}
	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("session: authorization and token endpoints are required")
	}
	if scratch == nil || durable == nil {
		return nil, fmt.Errorf("session: scratch and durable storage are required")
	}

	m := &Manager{
		cfg:        cfg,
		scratch:    scratch,
		durable:    durable,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.loadFromStorage()
	return m, nil
}

// loadFromStorage restores the persisted session, dropping stale material.
func (m *Manager) loadFromStorage() {
	token, ok := m.durable.Get(DurableKeyAccessToken)
	if !ok || token == "" {
		// No session; remove any orphaned refresh/expiry entries.
		if _, hasRefresh := m.durable.Get(DurableKeyRefreshToken); hasRefresh {
			m.clearDurable()
		} else if _, hasExpiry := m.durable.Get(DurableKeyExpiresAt); hasExpiry {
			m.clearDurable()
		}
		return
	}

	if raw, hasExpiry := m.durable.Get(DurableKeyExpiresAt); hasExpiry {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Warnf("session: unreadable expiry %q, clearing stored token", raw)
			m.clearDurable()
			return
		}
		expiresAt := time.UnixMilli(millis)
		if !expiresAt.After(m.now()) {
			log.Debug("session: stored token expired, clearing")
			m.clearDurable()
			return
		}
		m.expiresAt = expiresAt
	}

	m.accessToken = token
	if refresh, hasRefresh := m.durable.Get(DurableKeyRefreshToken); hasRefresh {
		m.refreshToken = refresh
	}
	log.Debug("session: restored authenticated session from storage")
}

// Authorize begins a new handshake, unconditionally overwriting any prior
// in-flight one, and returns the authorization URL the user agent must
// navigate to. Control returns to this process only through HandleCallback
// once the authorization server redirects back.
func (m *Manager) Authorize() (string, error) {
	codes, err := pkce.Generate()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}

	if err = m.scratch.Set(ScratchKeyState, codes.State); err != nil {
		return "", fmt.Errorf("session: persist state failed: %w", err)
	}
	if err = m.scratch.Set(ScratchKeyVerifier, codes.CodeVerifier); err != nil {
		return "", fmt.Errorf("session: persist code verifier failed: %w", err)
	}

	authURL, err := url.Parse(m.cfg.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("session: invalid authorization endpoint: %w", err)
	}

	scope := m.cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", m.cfg.ClientID)
	query.Set("redirect_uri", m.cfg.RedirectURI)
	query.Set("state", codes.State)
	query.Set("code_challenge", codes.CodeChallenge)
	query.Set("code_challenge_method", "S256")
	query.Set("scope", scope)
	authURL.RawQuery = query.Encode()

	log.Debugf("session: handshake started for client %s", m.cfg.ClientID)
	return authURL.String(), nil
}

// HandleCallback consumes the redirect parameters and completes the flow.
// Each validation is a hard gate: any failure aborts the whole operation and
// installs no token state. The stored handshake values are erased before the
// exchange so a stale verifier can never be replayed against a new code.
func (m *Manager) HandleCallback(ctx context.Context, query url.Values) error {
	if errCode := query.Get("error"); errCode != "" {
		return &AuthorizationDeniedError{
			Code:        errCode,
			Description: query.Get("error_description"),
		}
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		return ErrMalformedCallback
	}

	storedState, ok := m.scratch.Get(ScratchKeyState)
	if !ok || storedState != state {
		return ErrStateMismatch
	}

	verifier, ok := m.scratch.Get(ScratchKeyVerifier)
	if !ok || verifier == "" {
		return ErrMissingVerifier
	}

	// Single-use: erase the handshake before talking to the token endpoint.
	if err := m.scratch.Remove(ScratchKeyState); err != nil {
		return fmt.Errorf("session: clear state failed: %w", err)
	}
	if err := m.scratch.Remove(ScratchKeyVerifier); err != nil {
		return fmt.Errorf("session: clear code verifier failed: %w", err)
	}

	return m.exchangeCodeForToken(ctx, code, verifier)
}

// exchangeCodeForToken redeems the authorization code at the token endpoint
// and commits the resulting token set. A failed exchange leaves any prior
// session untouched.
func (m *Manager) exchangeCodeForToken(ctx context.Context, code, verifier string) error {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", m.cfg.RedirectURI)
	data.Set("client_id", m.cfg.ClientID)
	data.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("session: create token request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Warnf("session: close token response body failed: %v", errClose)
		}
	}()

	receivedAt := m.now()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("session: read token response failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TokenExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var token tokenResponse
	if err = json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("session: parse token response failed: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("session: token response contains no access token")
	}

	var expiresAt time.Time
	if token.ExpiresIn > 0 {
		expiresAt = receivedAt.Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	return m.commit(token.AccessToken, token.RefreshToken, expiresAt)
}

// commit atomically installs a token set in durable storage and memory.
func (m *Manager) commit(accessToken, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.durable.Set(DurableKeyAccessToken, accessToken); err != nil {
		return fmt.Errorf("session: persist access token failed: %w", err)
	}
	if refreshToken != "" {
		if err := m.durable.Set(DurableKeyRefreshToken, refreshToken); err != nil {
			return fmt.Errorf("session: persist refresh token failed: %w", err)
		}
	} else if err := m.durable.Remove(DurableKeyRefreshToken); err != nil {
		return fmt.Errorf("session: clear refresh token failed: %w", err)
	}
	if !expiresAt.IsZero() {
		if err := m.durable.Set(DurableKeyExpiresAt, strconv.FormatInt(expiresAt.UnixMilli(), 10)); err != nil {
			return fmt.Errorf("session: persist expiry failed: %w", err)
		}
	} else if err := m.durable.Remove(DurableKeyExpiresAt); err != nil {
		return fmt.Errorf("session: clear expiry failed: %w", err)
	}

	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.expiresAt = expiresAt

	log.Debug("session: token set committed")
	return nil
}

// IsAuthenticated reports whether an access token is currently held in memory.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken != ""
}

// AccessToken returns the held token, or the empty string when none is held.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// ExpiresAt returns the recorded expiry instant, zero when the server did not
// report one.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// TokenInfo returns a best-effort decode of the held token for display, nil
// when no token is held. Decode failure yields a degraded descriptor, never
// an error.
func (m *Manager) TokenInfo() *claims.Info {
	m.mu.Lock()
	token := m.accessToken
	m.mu.Unlock()

	if token == "" {
		return nil
	}
	return claims.Parse(token)
}

// Logout unconditionally tears the session down: in-memory token fields are
// cleared and all durable token entries erased. Only a fresh successful
// HandleCallback can authenticate again.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.accessToken = ""
	m.refreshToken = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()

	m.clearDurable()
	log.Debug("session: logged out")
}

// clearDurable erases the persisted token entries, logging failures without
// aborting; the in-memory state is already consistent.
func (m *Manager) clearDurable() {
	for _, key := range []string{DurableKeyAccessToken, DurableKeyRefreshToken, DurableKeyExpiresAt} {
		if err := m.durable.Remove(key); err != nil {
			log.Warnf("session: remove %s failed: %v", key, err)
		}
	}
}
