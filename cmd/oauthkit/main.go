// Package main provides the entry point for oauthkit, a command-line client
// for the OAuth 2.0 Authorization Code flow with PKCE. It logs users in
// against a configured authorization server, persists the issued tokens, and
// can serve them to local processes through a credential agent.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/oauthkit/oauthkit/internal/cmd"
	"github.com/oauthkit/oauthkit/internal/config"
	"github.com/oauthkit/oauthkit/internal/logging"

	log "github.com/sirupsen/logrus"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

// main parses command-line flags, loads configuration, and dispatches to the
// selected mode: login, status, token-info, logout, or the credential agent.
func main() {
	var login bool
	var status bool
	var tokenInfo bool
	var logout bool
	var agent bool
	var noBrowser bool
	var callbackPort int
	var configPath string

	flag.BoolVar(&login, "login", false, "Log in through the browser authorization flow")
	flag.BoolVar(&status, "status", false, "Show the current session status")
	flag.BoolVar(&tokenInfo, "token-info", false, "Print the access token and its decoded claims")
	flag.BoolVar(&logout, "logout", false, "Log out and erase the persisted session")
	flag.BoolVar(&agent, "agent", false, "Run the local credential agent server")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.IntVar(&callbackPort, "callback-port", 0, "Override the local OAuth callback port")
	flag.StringVar(&configPath, "config", "", "Configure File Path")
	flag.Parse()

	fmt.Printf("oauthkit Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}

	if err = logging.ConfigureLogOutput(cfg.LoggingToFile, filepath.Join(wd, "logs")); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	logging.SetDebug(cfg.Debug)

	options := &cmd.LoginOptions{
		NoBrowser:    noBrowser,
		CallbackPort: callbackPort,
	}

	switch {
	case login:
		cmd.DoLogin(cfg, options)
	case tokenInfo:
		cmd.DoTokenInfo(cfg)
	case logout:
		cmd.DoLogout(cfg)
	case agent:
		cmd.DoAgent(cfg, configPath)
	case status:
		cmd.DoStatus(cfg)
	default:
		// Status is the default mode when no flag selects another.
		cmd.DoStatus(cfg)
	}
}
