package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/oauthkit/oauthkit/internal/browser"
	"github.com/oauthkit/oauthkit/internal/callback"
	"github.com/oauthkit/oauthkit/internal/config"
	"github.com/oauthkit/oauthkit/internal/oauth/session"

	log "github.com/sirupsen/logrus"
)

// loginTimeout bounds how long the flow waits for the user to complete the
// authorization in the browser.
const loginTimeout = 5 * time.Minute

// DoLogin runs the interactive authorization flow: it starts the handshake,
// sends the user to the authorization endpoint, collects the redirect, and
// exchanges the code for tokens. A fresh login replaces any held session.
func DoLogin(cfg *config.Config, options *LoginOptions) {
	if options == nil {
		options = &LoginOptions{}
	}

	ctx := context.Background()
	manager, err := openSession(ctx, cfg)
	if err != nil {
		log.Errorf("failed to open session: %v", err)
		return
	}

	if manager.IsAuthenticated() {
		fmt.Println("An existing session was found; logging in again will replace it.")
	}

	authURL, err := manager.Authorize()
	if err != nil {
		if errors.Is(err, session.ErrCryptoUnavailable) {
			log.Error("secure random generation is unavailable on this system")
			return
		}
		log.Errorf("failed to start authorization: %v", err)
		return
	}

	var query url.Values
	if options.NoBrowser || !browser.IsAvailable() {
		query, err = collectRedirectManually(authURL)
	} else {
		query, err = collectRedirectViaListener(ctx, cfg, options, authURL)
	}
	if err != nil {
		log.Errorf("authorization was not completed: %v", err)
		return
	}

	if err = manager.HandleCallback(ctx, query); err != nil {
		reportCallbackError(err)
		return
	}

	fmt.Println("Authentication successful!")
	printTokenInfo(manager)
}

// collectRedirectViaListener serves the redirect URI on a local port, opens
// the browser, and waits for the authorization server to send the user back.
func collectRedirectViaListener(ctx context.Context, cfg *config.Config, options *LoginOptions, authURL string) (url.Values, error) {
	port := cfg.CallbackPort
	if options.CallbackPort != 0 {
		port = options.CallbackPort
	}

	srv := callback.NewServer(port, cfg.CallbackPath())
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("start callback listener on port %d: %w", port, err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if errStop := srv.Stop(stopCtx); errStop != nil {
			log.Debugf("callback listener shutdown: %v", errStop)
		}
	}()

	fmt.Println("Opening browser for authentication...")
	fmt.Printf("If the browser does not open, visit:\n\n%s\n\n", authURL)
	if err := browser.OpenURL(authURL); err != nil {
		log.Warnf("failed to open browser: %v", err)
	}

	result, err := srv.WaitForCallback(loginTimeout)
	if err != nil {
		return nil, err
	}
	return result.Query, nil
}

// collectRedirectManually prints the authorization URL and reads the redirect
// URL (or its query fragment) pasted by the user.
func collectRedirectManually(authURL string) (url.Values, error) {
	fmt.Printf("Visit the following URL to authorize:\n\n%s\n\n", authURL)
	fmt.Print("Paste the redirect URL here: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return nil, fmt.Errorf("read redirect URL: %w", err)
	}

	return session.ParseCallbackInput(strings.TrimSpace(line))
}

func reportCallbackError(err error) {
	var denied *session.AuthorizationDeniedError
	var exchange *session.TokenExchangeError
	switch {
	case errors.As(err, &denied):
		fmt.Printf("Authorization was denied: %s\n", denied.Code)
		if denied.Description != "" {
			fmt.Printf("  %s\n", denied.Description)
		}
	case errors.Is(err, session.ErrStateMismatch):
		fmt.Println("The redirect did not match the pending authorization request.")
		fmt.Println("Start the login again and use the most recent browser window.")
	case errors.Is(err, session.ErrMalformedCallback):
		fmt.Println("The redirect URL is missing required parameters.")
	case errors.Is(err, session.ErrMissingVerifier):
		fmt.Println("No pending authorization was found. Start the login again.")
	case errors.As(err, &exchange):
		fmt.Printf("The token endpoint rejected the exchange (HTTP %d).\n", exchange.StatusCode)
	case errors.Is(err, session.ErrServiceUnavailable):
		fmt.Println("The token endpoint could not be reached. Check your network or proxy settings.")
	default:
		log.Errorf("callback handling failed: %v", err)
	}
}

func printTokenInfo(manager *session.Manager) {
	info := manager.TokenInfo()
	if info == nil {
		return
	}
	if !info.Decoded {
		fmt.Printf("Token: %s...\n", info.TokenPrefix)
		return
	}
	if info.Email != "" {
		fmt.Printf("Logged in as: %s\n", info.Email)
	} else if info.Subject != "" {
		fmt.Printf("Logged in as: %s\n", info.Subject)
	}
	if !info.ExpiresAt.IsZero() {
		fmt.Printf("Token expires: %s\n", info.ExpiresAt.Local().Format(time.RFC1123))
	}
}
