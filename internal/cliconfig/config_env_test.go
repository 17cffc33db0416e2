package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"DROPSHIP_RECIPIENTS_FILE": "/env/drop.csv",
				"DROPSHIP_ACCOUNT":         "env-account",
				"DROPSHIP_PAUSE":           "10s",
				"DROPSHIP_CONFIRMATIONS":   "12",
				"DROPSHIP_DRY_RUN":         "true",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				RecipientsFile: "/env/drop.csv",
				Account:        "env-account",
				Pause:          10 * time.Second,
				Confirmations:  12,
				DryRun:         true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"DROPSHIP_RECIPIENTS_FILE": "/env/drop.csv",
				"DROPSHIP_ACCOUNT":         "env-account",
			},
			changed: map[string]bool{"recipients-file": true},
			initial: Config{
				RecipientsFile: "/flag/drop.csv",
			},
			expected: Config{
				RecipientsFile: "/flag/drop.csv",
				Account:        "env-account",
			},
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"DROPSHIP_PAUSE": "not-a-duration",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "returns error for invalid int",
			envVars: map[string]string{
				"DROPSHIP_CONFIRMATIONS": "not-a-number",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "returns error for invalid bool",
			envVars: map[string]string{
				"DROPSHIP_DRY_RUN": "maybe",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "handles bool '1' as true",
			envVars: map[string]string{
				"DROPSHIP_RECONCILE": "1",
			},
			changed:  map[string]bool{},
			initial:  Config{},
			expected: Config{Reconcile: true},
		},
		{
			name: "handles bool 'false' as false",
			envVars: map[string]string{
				"DROPSHIP_STOP_FILE": "false",
			},
			changed:  map[string]bool{},
			initial:  Config{StopFile: true},
			expected: Config{},
		},
		{
			name: "handles all field types correctly",
			envVars: map[string]string{
				"DROPSHIP_RECIPIENTS_FILE": "/drop.csv",
				"DROPSHIP_DRY_RUN":         "false",
				"DROPSHIP_GATEWAY_URL":     "http://example.com",
				"DROPSHIP_AUTH_KEY":        "secret",
				"DROPSHIP_CHAIN":           "mainnet",
				"DROPSHIP_TOKEN_ADDRESS":   testToken,
				"DROPSHIP_ACCOUNT":         "ops",
				"DROPSHIP_PAUSE":           "1s",
				"DROPSHIP_CONFIRMATIONS":   "4",
				"DROPSHIP_CONFIRM_POLL":    "500ms",
				"DROPSHIP_HTTP_TIMEOUT":    "20s",
				"DROPSHIP_STORE":           "sqlite",
				"DROPSHIP_STOP_FILE":       "true",
				"DROPSHIP_RECONCILE":       "true",
				"DROPSHIP_LOG_LEVEL":       "debug",
				"DROPSHIP_LOG_FORMAT":      "json",
			},
			changed: map[string]bool{},
			initial: Config{DryRun: true},
			expected: Config{
				RecipientsFile: "/drop.csv",
				GatewayURL:     "http://example.com",
				AuthKey:        "secret",
				Chain:          "mainnet",
				TokenAddress:   testToken,
				Account:        "ops",
				Pause:          time.Second,
				Confirmations:  4,
				ConfirmPoll:    500 * time.Millisecond,
				HTTPTimeout:    20 * time.Second,
				Store:          "sqlite",
				StopFile:       true,
				Reconcile:      true,
				LogLevel:       "debug",
				LogFormat:      "json",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestApplyEnvConfig_Precedence(t *testing.T) {
	// file < env < flags
	cfg := DefaultConfig()
	changed := map[string]bool{"account": true}
	cfg.Account = "flag-account"

	if err := ApplyFileConfig(&cfg, FileConfig{Account: "file-account", Store: "sqlite", Chain: "mainnet"}, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}

	t.Setenv("DROPSHIP_ACCOUNT", "env-account")
	t.Setenv("DROPSHIP_STORE", "csv")

	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.Account != "flag-account" {
		t.Errorf("Account = %v, want flag-account", cfg.Account)
	}
	if cfg.Store != StoreCSV {
		t.Errorf("Store = %v, want env value csv", cfg.Store)
	}
	if cfg.Chain != ChainMainnet {
		t.Errorf("Chain = %v, want file value mainnet", cfg.Chain)
	}
}
