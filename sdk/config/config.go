// Package config provides the public SDK configuration API.
//
// It re-exports the configuration types and helpers so external projects can
// embed oauthkit without importing internal packages.
package config

import internalconfig "github.com/oauthkit/oauthkit/internal/config"

type Config = internalconfig.Config
type OAuthConfig = internalconfig.OAuthConfig
type StoreConfig = internalconfig.StoreConfig
type PostgresConfig = internalconfig.PostgresConfig
type ObjectConfig = internalconfig.ObjectConfig

const (
	DefaultCallbackPort = internalconfig.DefaultCallbackPort
	DefaultAgentPort    = internalconfig.DefaultAgentPort
)

func LoadConfig(configFile string) (*Config, error) { return internalconfig.LoadConfig(configFile) }
