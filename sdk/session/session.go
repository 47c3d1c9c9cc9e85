// Package session provides the public SDK surface for the OAuth session
// manager.
//
// It re-exports the session types and helpers so external projects can embed
// oauthkit without importing internal packages.
package session

import (
	"net/http"

	internalclaims "github.com/oauthkit/oauthkit/internal/oauth/claims"
	internalsession "github.com/oauthkit/oauthkit/internal/oauth/session"
	internalstore "github.com/oauthkit/oauthkit/internal/store"
)

type Config = internalsession.Config
type Storage = internalsession.Storage
type Manager = internalsession.Manager
type Option = internalsession.Option

type AuthorizationDeniedError = internalsession.AuthorizationDeniedError
type TokenExchangeError = internalsession.TokenExchangeError

type TokenInfo = internalclaims.Info

var (
	ErrCryptoUnavailable  = internalsession.ErrCryptoUnavailable
	ErrMalformedCallback  = internalsession.ErrMalformedCallback
	ErrStateMismatch      = internalsession.ErrStateMismatch
	ErrMissingVerifier    = internalsession.ErrMissingVerifier
	ErrServiceUnavailable = internalsession.ErrServiceUnavailable
)

const (
	DefaultScope = internalsession.DefaultScope

	DurableKeyAccessToken  = internalsession.DurableKeyAccessToken
	DurableKeyRefreshToken = internalsession.DurableKeyRefreshToken
	DurableKeyExpiresAt    = internalsession.DurableKeyExpiresAt
)

func New(cfg Config, scratch, durable Storage, opts ...Option) (*Manager, error) {
	return internalsession.New(cfg, scratch, durable, opts...)
}

func WithHTTPClient(client *http.Client) Option { return internalsession.WithHTTPClient(client) }

// NewMemoryStorage returns an in-process Storage suitable for the scratch
// scope.
func NewMemoryStorage() Storage { return internalstore.NewMemoryStore() }

// NewFileStorage returns a Storage backed by a JSON document at path,
// suitable for the durable scope.
func NewFileStorage(path string) (Storage, error) { return internalstore.NewFileStore(path) }

// ParseCallbackInput normalizes a pasted redirect URL or query string into
// callback parameters for Manager.HandleCallback.
var ParseCallbackInput = internalsession.ParseCallbackInput
