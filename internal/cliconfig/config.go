package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/dropship/internal/domain"
)

// DefaultGatewayURL is the default endpoint of the signing gateway.
const DefaultGatewayURL = "http://127.0.0.1:7420"

// Supported chains.
const (
	ChainFuji    = "fuji"
	ChainMainnet = "mainnet"
)

// Supported state stores.
const (
	StoreCSV    = "csv"
	StoreSQLite = "sqlite"
)

// Config holds CLI configuration for dropship.
type Config struct {
	RecipientsFile string
	DryRun         bool

	GatewayURL   string
	AuthKey      string
	Chain        string
	TokenAddress string
	Account      string

	Pause         time.Duration
	Confirmations int
	ConfirmPoll   time.Duration
	HTTPTimeout   time.Duration

	Store     string
	StopFile  bool
	Reconcile bool

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		GatewayURL:    DefaultGatewayURL,
		Chain:         ChainFuji,
		Account:       "default",
		Pause:         2 * time.Second,
		Confirmations: 3,
		ConfirmPoll:   2 * time.Second,
		HTTPTimeout:   30 * time.Second,
		Store:         StoreCSV,
		StopFile:      true,
		Reconcile:     true,
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.RecipientsFile == "" {
		return invalid("recipients-file is required")
	}
	if err := c.ValidateGateway(); err != nil {
		return err
	}

	if c.Pause < 0 {
		return invalid("pause must not be negative")
	}
	if c.Confirmations <= 0 {
		return invalid("confirmations must be positive")
	}
	if c.ConfirmPoll <= 0 {
		return invalid("confirm-poll must be positive")
	}

	c.Store = strings.ToLower(c.Store)
	if c.Store != StoreCSV && c.Store != StoreSQLite {
		return invalid("store must be %q or %q, got %q", StoreCSV, StoreSQLite, c.Store)
	}
	return nil
}

// ValidateGateway checks only what talking to the gateway about one token
// needs. Commands that do not disburse use it instead of Validate.
func (c *Config) ValidateGateway() error {
	if c.GatewayURL == "" {
		c.GatewayURL = DefaultGatewayURL
	}
	c.GatewayURL = strings.TrimRight(c.GatewayURL, "/")

	c.Chain = strings.ToLower(c.Chain)
	if c.Chain != ChainFuji && c.Chain != ChainMainnet {
		return invalid("chain must be %q or %q, got %q", ChainFuji, ChainMainnet, c.Chain)
	}

	if c.TokenAddress == "" {
		return invalid("token-address is required")
	}
	if err := domain.ValidateAddress(c.TokenAddress); err != nil {
		return invalid("token-address: %v", err)
	}

	if c.HTTPTimeout <= 0 {
		return invalid("timeout must be positive")
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return invalid("log-format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// Masked returns a copy safe to log.
func (c Config) Masked() Config {
	if c.AuthKey != "" {
		c.AuthKey = "*****"
	}
	return c
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}
