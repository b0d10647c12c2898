// Package config loads service configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Search   SearchConfig   `mapstructure:"search"`
	Profile  ProfileConfig  `mapstructure:"profile"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Advisor  AdvisorConfig  `mapstructure:"advisor"`
	Database DatabaseConfig `mapstructure:"database"`
	History  HistoryConfig  `mapstructure:"history"`
	Resolver ResolverConfig `mapstructure:"resolver"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration. File enables rotating file
// output next to the console writer when set.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// SearchConfig holds defaults applied to search requests that do not
// set their own values. MaxResults is a hard cap, requests cannot ask
// past it.
type SearchConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MinSeeders     int `mapstructure:"min_seeders"`
	MaxResults     int `mapstructure:"max_results"`
}

// ProfileConfig names the source-profile document and the profile to
// activate within it.
type ProfileConfig struct {
	Path string `mapstructure:"path"`
	Name string `mapstructure:"name"`
}

// MetadataConfig holds canonical-release catalog settings. The app
// fields feed the User-Agent the upstream requires.
type MetadataConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	AppName        string `mapstructure:"app_name"`
	AppVersion     string `mapstructure:"app_version"`
	Contact        string `mapstructure:"contact"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AdvisorConfig holds the chat-completion advisor settings. The
// advisor stays off unless Enabled is set and an API key is present.
type AdvisorConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HistoryConfig controls search-history recording and retention.
type HistoryConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	RetentionDays int  `mapstructure:"retention_days"`
}

// ResolverConfig holds the stream-resolution endpoint settings.
type ResolverConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Search: SearchConfig{
			TimeoutSeconds: 30,
			MinSeeders:     1,
			MaxResults:     50,
		},
		Profile: ProfileConfig{
			Path: "profiles.yaml",
		},
		Metadata: MetadataConfig{
			AppName:        "tonearm",
			TimeoutSeconds: 10,
		},
		Advisor: AdvisorConfig{
			Enabled:        true,
			TimeoutSeconds: 30,
		},
		Database: DatabaseConfig{
			Path: "./data/tonearm.db",
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Resolver: ResolverConfig{
			TimeoutSeconds: 10,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.config/tonearm")
	}

	v.SetEnvPrefix("TONEARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine, env vars and defaults carry it.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	// Search defaults
	v.SetDefault("search.timeout_seconds", 30)
	v.SetDefault("search.min_seeders", 1)
	v.SetDefault("search.max_results", 50)

	// Profile defaults
	v.SetDefault("profile.path", "profiles.yaml")
	v.SetDefault("profile.name", "")

	// Metadata defaults, base URL empty means the public catalog
	v.SetDefault("metadata.base_url", "")
	v.SetDefault("metadata.app_name", "tonearm")
	v.SetDefault("metadata.app_version", "")
	v.SetDefault("metadata.contact", "")
	v.SetDefault("metadata.timeout_seconds", 10)

	// Advisor defaults, stays dormant until an API key is configured
	v.SetDefault("advisor.enabled", true)
	v.SetDefault("advisor.base_url", "")
	v.SetDefault("advisor.api_key", "")
	v.SetDefault("advisor.model", "")
	v.SetDefault("advisor.timeout_seconds", 30)

	// Database defaults
	v.SetDefault("database.path", "./data/tonearm.db")

	// History defaults
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.retention_days", 30)

	// Resolver defaults, base URL empty means the adapter default
	v.SetDefault("resolver.base_url", "")
	v.SetDefault("resolver.timeout_seconds", 10)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
