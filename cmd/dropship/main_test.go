package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/dropship/internal/cliconfig"
)

func TestLoadConfig_Layers(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DROPSHIP_PAUSE", "")
	os.Unsetenv("DROPSHIP_PAUSE")
	t.Setenv("DROPSHIP_ACCOUNT", "")
	os.Unsetenv("DROPSHIP_ACCOUNT")

	cfgFile := filepath.Join(dir, "config.toml")
	toml := "recipients_file = \"/file/drop.csv\"\naccount = \"file-account\"\npause = \"9s\"\n"
	if err := os.WriteFile(cfgFile, []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("DROPSHIP_PAUSE=4s\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := cliconfig.DefaultConfig()
	cfg.RecipientsFile = "/flag/drop.csv"
	changed := map[string]bool{"recipients-file": true}

	if err := loadConfig(&cfg, cfgFile, envFile, changed); err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.RecipientsFile != "/flag/drop.csv" {
		t.Errorf("RecipientsFile = %v, want flag value", cfg.RecipientsFile)
	}
	if cfg.Account != "file-account" {
		t.Errorf("Account = %v, want file value", cfg.Account)
	}
	if cfg.Pause != 4*time.Second {
		t.Errorf("Pause = %v, want env file value 4s", cfg.Pause)
	}
}

func TestLoadConfig_MissingExplicitConfig(t *testing.T) {
	cfg := cliconfig.DefaultConfig()
	err := loadConfig(&cfg, filepath.Join(t.TempDir(), "nope.toml"), "", map[string]bool{})
	if err == nil {
		t.Error("loadConfig() expected error for missing --config file")
	}
}

func TestWatchSignals(t *testing.T) {
	sigCh := make(chan os.Signal, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exited := make(chan int, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchSignals(sigCh, cancel, func(code int) { exited <- code }, zerolog.Nop())
	}()

	sigCh <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("first signal did not cancel the run")
	}
	select {
	case code := <-exited:
		t.Fatalf("exited with %d after the first signal", code)
	default:
	}

	sigCh <- os.Interrupt
	select {
	case code := <-exited:
		if code != 130 {
			t.Errorf("exit code = %d, want 130", code)
		}
	case <-time.After(time.Second):
		t.Fatal("second signal did not exit")
	}
	<-done
}

func TestShowBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/balance":
			_ = json.NewEncoder(w).Encode(map[string]string{"balance": "42.5"})
		case "/v1/registrations/self":
			_ = json.NewEncoder(w).Encode(map[string]bool{"registered": true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := cliconfig.DefaultConfig()
	cfg.GatewayURL = srv.URL
	cfg.TokenAddress = "0x9999999999999999999999999999999999999999"

	var out bytes.Buffer
	if err := showBalance(context.Background(), cfg, zerolog.Nop(), &out); err != nil {
		t.Fatalf("showBalance() error = %v", err)
	}
	for _, want := range []string{"balance:    42.5", "registered: true", cfg.TokenAddress} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q missing %q", out.String(), want)
		}
	}
}

func TestShowBalance_InvalidConfig(t *testing.T) {
	cfg := cliconfig.DefaultConfig()
	var out bytes.Buffer
	if err := showBalance(context.Background(), cfg, zerolog.Nop(), &out); err == nil {
		t.Error("showBalance() expected error without a token address")
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}
