package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oauthkit/oauthkit/internal/api"
	"github.com/oauthkit/oauthkit/internal/config"
	"github.com/oauthkit/oauthkit/internal/watcher"

	log "github.com/sirupsen/logrus"
)

// DoAgent runs the credential agent: a local HTTP server exposing the held
// session to other processes until interrupted. The configuration file is
// watched for changes while the agent runs.
func DoAgent(cfg *config.Config, configPath string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager, err := openSession(ctx, cfg)
	if err != nil {
		log.Errorf("failed to open session: %v", err)
		return
	}
	if !manager.IsAuthenticated() {
		log.Warn("no session is held; the agent will serve unauthenticated status until a login runs")
	}

	srv := api.NewServer(cfg.AgentPort, manager)
	if err = srv.Start(); err != nil {
		log.Errorf("failed to start credential agent: %v", err)
		return
	}

	w, err := watcher.NewWatcher(configPath, cfg, func(newCfg *config.Config) {
		if newCfg.OAuth != cfg.OAuth || newCfg.Store != cfg.Store {
			log.Warn("oauth or store configuration changed; restart the agent to apply")
		}
	})
	if err != nil {
		log.Warnf("config watcher unavailable: %v", err)
	} else {
		if errStart := w.Start(ctx); errStart != nil {
			log.Warnf("config watcher failed to start: %v", errStart)
		}
		defer func() {
			if errStop := w.Stop(); errStop != nil {
				log.Debugf("config watcher shutdown: %v", errStop)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received signal %s, shutting down", sig)

	if err = srv.Stop(ctx); err != nil {
		log.Errorf("credential agent shutdown failed: %v", err)
	}
}
