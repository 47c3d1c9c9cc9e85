package cmd

import (
	"context"
	"fmt"

	"github.com/oauthkit/oauthkit/internal/config"

	log "github.com/sirupsen/logrus"
)

// DoLogout tears the session down: in-memory state and every persisted token
// entry. Running it without a session is harmless.
func DoLogout(cfg *config.Config) {
	manager, err := openSession(context.Background(), cfg)
	if err != nil {
		log.Errorf("failed to open session: %v", err)
		return
	}

	wasAuthenticated := manager.IsAuthenticated()
	manager.Logout()

	if wasAuthenticated {
		fmt.Println("Logged out.")
	} else {
		fmt.Println("No session was held; storage cleared anyway.")
	}
}
