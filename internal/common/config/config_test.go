package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}

	if cfg.Gateway.URL != "ws://127.0.0.1:18789" {
		t.Errorf("url = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.ClientID != "perch" {
		t.Errorf("clientId = %q", cfg.Gateway.ClientID)
	}
	if cfg.Gateway.Role != "operator" {
		t.Errorf("role = %q", cfg.Gateway.Role)
	}
	if cfg.Gateway.HandshakeDelay() != 650*time.Millisecond {
		t.Errorf("handshake delay = %v", cfg.Gateway.HandshakeDelay())
	}
	if cfg.Gateway.BackoffInitial() != 800*time.Millisecond {
		t.Errorf("backoff initial = %v", cfg.Gateway.BackoffInitial())
	}
	if cfg.Gateway.BackoffFactor != 1.7 {
		t.Errorf("backoff factor = %v", cfg.Gateway.BackoffFactor)
	}
	if cfg.Gateway.BackoffMax() != 15*time.Second {
		t.Errorf("backoff max = %v", cfg.Gateway.BackoffMax())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PERCH_GATEWAY_URL", "wss://gw.example.com")
	t.Setenv("PERCH_GATEWAY_CLIENT_ID", "perch-env")
	t.Setenv("PERCH_LOGGING_LEVEL", "debug")

	cfg, err := LoadWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}
	if cfg.Gateway.URL != "wss://gw.example.com" {
		t.Errorf("url = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.ClientID != "perch-env" {
		t.Errorf("clientId = %q", cfg.Gateway.ClientID)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`gateway:
  url: wss://file.example.com/gateway
  clientId: perch-file
  clientIdFallbacks:
    - perch-file-2
  handshakeDelayMs: 900
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithPath(dir)
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}
	if cfg.Gateway.URL != "wss://file.example.com/gateway" {
		t.Errorf("url = %q", cfg.Gateway.URL)
	}
	if len(cfg.Gateway.ClientIDFallbacks) != 1 || cfg.Gateway.ClientIDFallbacks[0] != "perch-file-2" {
		t.Errorf("fallbacks = %v", cfg.Gateway.ClientIDFallbacks)
	}
	if cfg.Gateway.HandshakeDelayMs != 900 {
		t.Errorf("handshakeDelayMs = %d", cfg.Gateway.HandshakeDelayMs)
	}
}

func TestValidateRejectsBadURL(t *testing.T) {
	t.Setenv("PERCH_GATEWAY_URL", "http://not-a-websocket")
	if _, err := LoadWithPath(t.TempDir()); err == nil {
		t.Error("expected validation error for non-ws URL")
	}
}

func TestValidateRejectsBadBackoff(t *testing.T) {
	t.Setenv("PERCH_GATEWAY_BACKOFF_INITIAL_MS", "20000")
	if _, err := LoadWithPath(t.TempDir()); err == nil {
		t.Error("expected validation error for initial > max")
	}
}
