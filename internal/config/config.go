package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "PINBOARDLY"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "pinboardly.db"
	defaultLogLevel     = "info"
	defaultCookieName   = "pb_session"
	defaultTrialDays    = 14
	defaultBillingURL   = "https://api.payments.example.com"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	SessionSigningKey  string
	SessionCookieName  string
	WebhookSecret      string
	BillingAPIKey      string
	BillingBaseURL     string
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	TrialDays          int
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
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("trial.days", defaultTrialDays)
	configViper.SetDefault("billing.base_url", defaultBillingURL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		SessionSigningKey:  configViper.GetString("session.signing_secret"),
		SessionCookieName:  configViper.GetString("session.cookie_name"),
		WebhookSecret:      configViper.GetString("billing.webhook_secret"),
		BillingAPIKey:      configViper.GetString("billing.api_key"),
		BillingBaseURL:     configViper.GetString("billing.base_url"),
		CheckoutSuccessURL: configViper.GetString("billing.checkout_success_url"),
		CheckoutCancelURL:  configViper.GetString("billing.checkout_cancel_url"),
		TrialDays:          configViper.GetInt("trial.days"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.WebhookSecret) == "" {
		return fmt.Errorf("billing.webhook_secret is required")
	}
	if strings.TrimSpace(c.BillingAPIKey) == "" {
		return fmt.Errorf("billing.api_key is required")
	}
	if c.TrialDays <= 0 {
		return fmt.Errorf("trial.days must be positive")
	}
	return nil
}
