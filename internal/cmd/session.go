// Package cmd implements the oauthkit command modes: interactive login, session
// status inspection, logout, and the long-running credential agent.
package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/oauthkit/oauthkit/internal/config"
	"github.com/oauthkit/oauthkit/internal/oauth/session"
	"github.com/oauthkit/oauthkit/internal/store"
	"github.com/oauthkit/oauthkit/internal/util"

	log "github.com/sirupsen/logrus"
)

// LoginOptions controls the interactive login flow.
type LoginOptions struct {
	// NoBrowser suppresses automatic browser launch; the authorization URL is
	// printed and the redirect URL is read from stdin instead.
	NoBrowser bool
	// CallbackPort overrides the configured local callback port.
	CallbackPort int
}

// openDurableStore builds the durable session store selected by the
// configuration.
func openDurableStore(ctx context.Context, cfg *config.Config) (session.Storage, error) {
	switch cfg.Store.Backend {
	case "postgres":
		log.Debugf("opening postgres session store")
		return store.NewPostgresStore(ctx, store.PostgresStoreConfig{
			DSN:   cfg.Store.Postgres.DSN,
			Table: cfg.Store.Postgres.Table,
		})
	case "object":
		log.Debugf("opening object session store, bucket: %s", cfg.Store.Object.Bucket)
		return store.NewObjectStore(ctx, store.ObjectStoreConfig{
			Endpoint:  cfg.Store.Object.Endpoint,
			Bucket:    cfg.Store.Object.Bucket,
			AccessKey: cfg.Store.Object.AccessKey,
			SecretKey: cfg.Store.Object.SecretKey,
			Region:    cfg.Store.Object.Region,
			Prefix:    cfg.Store.Object.Prefix,
			UseSSL:    cfg.Store.Object.UseSSL,
			PathStyle: cfg.Store.Object.PathStyle,
		})
	default:
		log.Debugf("opening file session store: %s", cfg.Store.SessionFile)
		return store.NewFileStore(cfg.Store.SessionFile)
	}
}

// openSession builds the session manager from the configuration, restoring any
// persisted token from the durable store.
func openSession(ctx context.Context, cfg *config.Config) (*session.Manager, error) {
	durable, err := openDurableStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.ProxyURL != "" {
		httpClient = util.SetProxy(cfg.ProxyURL, httpClient)
	}

	return session.New(session.Config{
		ClientID:              cfg.OAuth.ClientID,
		RedirectURI:           cfg.OAuth.RedirectURI,
		AuthorizationEndpoint: cfg.OAuth.AuthorizationEndpoint,
		TokenEndpoint:         cfg.OAuth.TokenEndpoint,
		Scope:                 cfg.OAuth.Scope,
	}, store.NewMemoryStore(), durable, session.WithHTTPClient(httpClient))
}
