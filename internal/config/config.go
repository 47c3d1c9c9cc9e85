// Package config provides configuration management for oauthkit. It handles
// loading and parsing the YAML configuration file and provides structured
// access to the OAuth client registration, callback listener settings, proxy
// configuration, and session store backend selection.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the configuration omits a value.
const (
	DefaultCallbackPort = 8912
	DefaultAgentPort    = 8917
	defaultSessionFile  = ".oauthkit/session.json"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// OAuth is the client registration for the authorization server.
	OAuth OAuthConfig `yaml:"oauth"`

	// CallbackPort is the local port the login flow listens on for the
	// authorization redirect. It must agree with the port baked into the
	// registered redirect URI.
	CallbackPort int `yaml:"callback-port"`

	// AgentPort is the local port for the credential agent API.
	AgentPort int `yaml:"agent-port"`

	// ProxyURL optionally routes token endpoint requests through a proxy
	// (socks5://, http://, or https://).
	ProxyURL string `yaml:"proxy-url"`

	// LoggingToFile redirects log output to rotated files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`

	// Store selects and configures the durable session store backend.
	Store StoreConfig `yaml:"store"`
}

// OAuthConfig carries the immutable OAuth client registration. The redirect
// URI must match the authorization server's registration byte-for-byte.
type OAuthConfig struct {
	ClientID              string `yaml:"client-id"`
	RedirectURI           string `yaml:"redirect-uri"`
	AuthorizationEndpoint string `yaml:"authorization-endpoint"`
	TokenEndpoint         string `yaml:"token-endpoint"`
	// Scope is the space-delimited requested scope. Empty requests the
	// default scope.
	Scope string `yaml:"scope"`
}

// StoreConfig selects the durable session store backend.
type StoreConfig struct {
	// Backend is one of "file" (default), "postgres", or "object".
	Backend string `yaml:"backend"`

	// SessionFile is the JSON document path for the file backend. Empty
	// resolves to ~/.oauthkit/session.json.
	SessionFile string `yaml:"session-file"`

	Postgres PostgresConfig `yaml:"postgres"`
	Object   ObjectConfig   `yaml:"object"`
}

// PostgresConfig configures the PostgreSQL session store backend.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// ObjectConfig configures the S3-compatible session store backend.
type ObjectConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use-ssl"`
	PathStyle bool   `yaml:"path-style"`
}

// LoadConfig reads and parses the configuration file at path, applying
// defaults and validating the OAuth registration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s failed: %w", path, err)
	}

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s failed: %w", path, err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CallbackPort == 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if c.AgentPort == 0 {
		c.AgentPort = DefaultAgentPort
	}
	if c.OAuth.RedirectURI == "" {
		c.OAuth.RedirectURI = fmt.Sprintf("http://localhost:%d/callback", c.CallbackPort)
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.SessionFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Store.SessionFile = filepath.Join(home, defaultSessionFile)
		} else {
			c.Store.SessionFile = defaultSessionFile
		}
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface mid-handshake otherwise.
func (c *Config) Validate() error {
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("config: oauth.client-id is required")
	}
	if c.OAuth.AuthorizationEndpoint == "" {
		return fmt.Errorf("config: oauth.authorization-endpoint is required")
	}
	if c.OAuth.TokenEndpoint == "" {
		return fmt.Errorf("config: oauth.token-endpoint is required")
	}

	redirect, err := url.Parse(c.OAuth.RedirectURI)
	if err != nil {
		return fmt.Errorf("config: oauth.redirect-uri is not a valid URL: %w", err)
	}
	if port := redirect.Port(); port != "" && port != strconv.Itoa(c.CallbackPort) {
		return fmt.Errorf("config: redirect URI port %s does not match callback-port %d", port, c.CallbackPort)
	}

	switch c.Store.Backend {
	case "file", "postgres", "object":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && strings.TrimSpace(c.Store.Postgres.DSN) == "" {
		return fmt.Errorf("config: store.postgres.dsn is required for the postgres backend")
	}
	if c.Store.Backend == "object" && strings.TrimSpace(c.Store.Object.Endpoint) == "" {
		return fmt.Errorf("config: store.object.endpoint is required for the object backend")
	}
	return nil
}

// CallbackPath returns the path component of the redirect URI the local
// listener must serve.
func (c *Config) CallbackPath() string {
	parsed, err := url.Parse(c.OAuth.RedirectURI)
	if err != nil || parsed.Path == "" {
		return "/callback"
	}
	return parsed.Path
}
