package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notify.DedupWindow != 24*time.Hour {
		t.Errorf("DedupWindow = %v, want 24h", cfg.Notify.DedupWindow)
	}
	if cfg.Tokens.TTL != 7*24*time.Hour {
		t.Errorf("Tokens.TTL = %v, want 168h", cfg.Tokens.TTL)
	}
	if cfg.Webhook.MaxAge != 15*time.Minute {
		t.Errorf("Webhook.MaxAge = %v, want 15m", cfg.Webhook.MaxAge)
	}
	if cfg.Instancing.Horizon != 5 {
		t.Errorf("Instancing.Horizon = %d, want 5", cfg.Instancing.Horizon)
	}
	if cfg.App.Development() {
		t.Error("defaults must not run in development mode")
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "app:\n  env: development\ninstancing:\n  horizon: 8\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOLUNTEERS_CRON_SECRET", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.App.Development() {
		t.Error("expected development mode from file")
	}
	if cfg.Instancing.Horizon != 8 {
		t.Errorf("Horizon = %d, want 8", cfg.Instancing.Horizon)
	}
	if cfg.Cron.Secret != "s3cret" {
		t.Errorf("Cron.Secret = %q, want env override", cfg.Cron.Secret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := Load(missing); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestResolvePath(t *testing.T) {
	t.Chdir(t.TempDir())
	if got := ResolvePath(DefaultPath, false); got != "" {
		t.Errorf("implicit default without file = %q, want empty", got)
	}
	if got := ResolvePath("custom.yaml", true); got != "custom.yaml" {
		t.Errorf("explicit = %q, want custom.yaml", got)
	}
	if err := os.WriteFile(DefaultPath, []byte("app:\n  env: development\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ResolvePath(DefaultPath, false); got != DefaultPath {
		t.Errorf("implicit default with file = %q, want %s", got, DefaultPath)
	}
}
