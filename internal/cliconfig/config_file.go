package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations to make TOML
// and YAML friendly.
type FileConfig struct {
	RecipientsFile string `toml:"recipients_file" yaml:"recipients_file"`
	DryRun         *bool  `toml:"dry_run" yaml:"dry_run"`
	GatewayURL     string `toml:"gateway_url" yaml:"gateway_url"`
	AuthKey        string `toml:"auth_key" yaml:"auth_key"`
	Chain          string `toml:"chain" yaml:"chain"`
	TokenAddress   string `toml:"token_address" yaml:"token_address"`
	Account        string `toml:"account" yaml:"account"`
	Pause          string `toml:"pause" yaml:"pause"`
	Confirmations  int    `toml:"confirmations" yaml:"confirmations"`
	ConfirmPoll    string `toml:"confirm_poll" yaml:"confirm_poll"`
	HTTPTimeout    string `toml:"http_timeout" yaml:"http_timeout"`
	Store          string `toml:"store" yaml:"store"`
	StopFile       *bool  `toml:"stop_file" yaml:"stop_file"`
	Reconcile      *bool  `toml:"reconcile" yaml:"reconcile"`
	LogLevel       string `toml:"log_level" yaml:"log_level"`
	LogFormat      string `toml:"log_format" yaml:"log_format"`
}

// LoadFileConfig reads and parses a config file from the given path.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse toml %s: %w", path, err)
		}
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.dropship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".dropship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("recipients-file", fc.RecipientsFile, &cfg.RecipientsFile)
	s.setString("gateway-url", fc.GatewayURL, &cfg.GatewayURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("chain", fc.Chain, &cfg.Chain)
	s.setString("token-address", fc.TokenAddress, &cfg.TokenAddress)
	s.setString("account", fc.Account, &cfg.Account)
	s.setString("store", fc.Store, &cfg.Store)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	if err := s.setDuration("pause", fc.Pause, &cfg.Pause); err != nil {
		return err
	}
	if err := s.setDuration("confirm-poll", fc.ConfirmPoll, &cfg.ConfirmPoll); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("confirmations", fc.Confirmations, &cfg.Confirmations)

	s.setBool("dry-run", fc.DryRun, &cfg.DryRun)
	s.setBool("stop-file", fc.StopFile, &cfg.StopFile)
	s.setBool("reconcile", fc.Reconcile, &cfg.Reconcile)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
