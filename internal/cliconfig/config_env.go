package cliconfig

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds the DROPSHIP_* environment variables. Durations and
// numbers stay strings so they go through the same parsing as the file
// config.
type EnvConfig struct {
	RecipientsFile string `env:"DROPSHIP_RECIPIENTS_FILE"`
	DryRun         *bool  `env:"DROPSHIP_DRY_RUN"`
	GatewayURL     string `env:"DROPSHIP_GATEWAY_URL"`
	AuthKey        string `env:"DROPSHIP_AUTH_KEY"`
	Chain          string `env:"DROPSHIP_CHAIN"`
	TokenAddress   string `env:"DROPSHIP_TOKEN_ADDRESS"`
	Account        string `env:"DROPSHIP_ACCOUNT"`
	Pause          string `env:"DROPSHIP_PAUSE"`
	Confirmations  string `env:"DROPSHIP_CONFIRMATIONS"`
	ConfirmPoll    string `env:"DROPSHIP_CONFIRM_POLL"`
	HTTPTimeout    string `env:"DROPSHIP_HTTP_TIMEOUT"`
	Store          string `env:"DROPSHIP_STORE"`
	StopFile       *bool  `env:"DROPSHIP_STOP_FILE"`
	Reconcile      *bool  `env:"DROPSHIP_RECONCILE"`
	LogLevel       string `env:"DROPSHIP_LOG_LEVEL"`
	LogFormat      string `env:"DROPSHIP_LOG_FORMAT"`
}

// LoadEnvConfig parses the DROPSHIP_* variables from the process environment.
func LoadEnvConfig() (EnvConfig, error) {
	var ec EnvConfig
	if err := env.Parse(&ec); err != nil {
		return ec, fmt.Errorf("parse env: %w", err)
	}
	return ec, nil
}

// ApplyEnvConfig applies configuration from environment variables (DROPSHIP_*).
// These override file config but are overridden by flags (checked via changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	ec, err := LoadEnvConfig()
	if err != nil {
		return err
	}

	s := newConfigSetter(changed)

	s.setString("recipients-file", ec.RecipientsFile, &cfg.RecipientsFile)
	s.setString("gateway-url", ec.GatewayURL, &cfg.GatewayURL)
	s.setString("auth-key", ec.AuthKey, &cfg.AuthKey)
	s.setString("chain", ec.Chain, &cfg.Chain)
	s.setString("token-address", ec.TokenAddress, &cfg.TokenAddress)
	s.setString("account", ec.Account, &cfg.Account)
	s.setString("store", ec.Store, &cfg.Store)
	s.setString("log-level", ec.LogLevel, &cfg.LogLevel)
	s.setString("log-format", ec.LogFormat, &cfg.LogFormat)

	if err := s.setDuration("pause", ec.Pause, &cfg.Pause); err != nil {
		return err
	}
	if err := s.setDuration("confirm-poll", ec.ConfirmPoll, &cfg.ConfirmPoll); err != nil {
		return err
	}
	if err := s.setDuration("timeout", ec.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setIntFromString("confirmations", ec.Confirmations, &cfg.Confirmations); err != nil {
		return err
	}

	s.setBool("dry-run", ec.DryRun, &cfg.DryRun)
	s.setBool("stop-file", ec.StopFile, &cfg.StopFile)
	s.setBool("reconcile", ec.Reconcile, &cfg.Reconcile)

	return nil
}
