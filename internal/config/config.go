package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "COLIST"

	defaultHTTPAddress          = "0.0.0.0:8080"
	defaultDatabasePath         = "colist.db"
	defaultLogLevel             = "info"
	defaultTokenTTLMinutes      = 24 * 60
	defaultStatsIntervalMinutes = 5
	defaultPurgeIntervalMinutes = 60
	defaultRetentionDays        = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	TokenTTL      time.Duration
	StatsInterval time.Duration
	PurgeInterval time.Duration
	RetentionDays int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("realtime.stats_interval_minutes", defaultStatsIntervalMinutes)
	configViper.SetDefault("realtime.purge_interval_minutes", defaultPurgeIntervalMinutes)
	configViper.SetDefault("cleanup.retention_days", defaultRetentionDays)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		StatsInterval: time.Duration(configViper.GetInt("realtime.stats_interval_minutes")) * time.Minute,
		PurgeInterval: time.Duration(configViper.GetInt("realtime.purge_interval_minutes")) * time.Minute,
		RetentionDays: configViper.GetInt("cleanup.retention_days"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("cleanup.retention_days must be positive")
	}
	return nil
}
