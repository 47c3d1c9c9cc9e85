package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for the authorization handshake. Every failure in the
// handshake surfaces to the caller; nothing is retried inside this package.
var (
	// ErrCryptoUnavailable indicates the secure random source failed. A login
	// cannot be started; this is fatal rather than recoverable.
	ErrCryptoUnavailable = errors.New("secure random source unavailable")

	// ErrMalformedCallback indicates the redirect arrived without the code or
	// state parameters the flow requires.
	ErrMalformedCallback = errors.New("callback is missing code or state parameter")

	// ErrStateMismatch indicates the state returned by the authorization
	// server does not exactly match the stored handshake state. This is the
	// CSRF defense; callers must surface it distinctly and never auto-retry.
	ErrStateMismatch = errors.New("callback state does not match stored handshake state")

	// ErrMissingVerifier indicates the stored code verifier disappeared
	// mid-flow, typically because scratch storage was cleared. The user
	// should restart the login.
	ErrMissingVerifier = errors.New("stored code verifier not found")

	// ErrServiceUnavailable indicates the token endpoint could not be reached
	// at the transport level. Safe to retry manually.
	ErrServiceUnavailable = errors.New("token endpoint unreachable")
)

// AuthorizationDeniedError is returned when the authorization server reports
// an error on the redirect, most commonly because the user declined consent.
type AuthorizationDeniedError struct {
	// Code is the OAuth error code from the callback, e.g. "access_denied".
	Code string
	// Description is the optional human-readable error_description.
	Description string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization denied: %s", e.Code)
}

// TokenExchangeError is returned when the token endpoint rejects the
// authorization code with a non-2xx response. The status and body are kept
// for diagnostics; no token state is installed.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
}
