package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/oauthkit/oauthkit/internal/config"

	log "github.com/sirupsen/logrus"
)

// DoStatus reports whether a session is held and when it expires.
func DoStatus(cfg *config.Config) {
	manager, err := openSession(context.Background(), cfg)
	if err != nil {
		log.Errorf("failed to open session: %v", err)
		return
	}

	if !manager.IsAuthenticated() {
		fmt.Println("Not logged in.")
		return
	}

	fmt.Println("Logged in.")
	printTokenInfo(manager)
	if expiresAt := manager.ExpiresAt(); !expiresAt.IsZero() {
		remaining := time.Until(expiresAt).Truncate(time.Second)
		fmt.Printf("Time remaining: %s\n", remaining)
	}
}

// DoTokenInfo prints the raw access token together with its decoded claims,
// for piping into other tools.
func DoTokenInfo(cfg *config.Config) {
	manager, err := openSession(context.Background(), cfg)
	if err != nil {
		log.Errorf("failed to open session: %v", err)
		return
	}

	token := manager.AccessToken()
	if token == "" {
		fmt.Println("Not logged in.")
		return
	}

	fmt.Println(token)
	info := manager.TokenInfo()
	if info == nil || !info.Decoded {
		return
	}
	if info.Issuer != "" {
		fmt.Printf("# issuer: %s\n", info.Issuer)
	}
	if info.Subject != "" {
		fmt.Printf("# subject: %s\n", info.Subject)
	}
	if info.Scope != "" {
		fmt.Printf("# scope: %s\n", info.Scope)
	}
	if !info.ExpiresAt.IsZero() {
		fmt.Printf("# expires: %s\n", info.ExpiresAt.Format(time.RFC3339))
	}
}
