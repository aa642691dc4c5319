package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "MEMBERLINK"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "memberlink.db"
	defaultLogLevel      = "info"
	defaultSweepInterval = time.Minute
	defaultSessionTTL    = 10 * time.Minute
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	TelegramToken string
	SweepInterval time.Duration
	SessionTTL    time.Duration
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
	configViper.SetDefault("sessions.sweep_interval", defaultSweepInterval)
	configViper.SetDefault("sessions.ttl", defaultSessionTTL)
}

// Load parses runtime configuration from viper. The Telegram token is
// optional; without one notifications are dropped.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		ClientID:      configViper.GetString("auth.client_id"),
		ClientSecret:  configViper.GetString("auth.client_secret"),
		WebhookSecret: configViper.GetString("webhook.secret"),
		TelegramToken: configViper.GetString("telegram.token"),
		SweepInterval: configViper.GetDuration("sessions.sweep_interval"),
		SessionTTL:    configViper.GetDuration("sessions.ttl"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("auth.client_id is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("auth.client_secret is required")
	}
	if strings.TrimSpace(c.WebhookSecret) == "" {
		return fmt.Errorf("webhook.secret is required")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sessions.sweep_interval must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive")
	}
	return nil
}
