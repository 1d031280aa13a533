package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_ALLOW_INSECURE", "true")
	t.Setenv("SMTP_USER", "oliver")
	t.Setenv("SMTP_PASSWORD", "oliver123")
	t.Setenv("SMTP_FROM", "noreply@example.com")
	t.Setenv("SMTP_FROM_NAME", "Trip Planner")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Host != "mail.example.com" {
		t.Errorf("Expected host mail.example.com, got %s", cfg.Host)
	}
	if cfg.Port != 2525 {
		t.Errorf("Expected port 2525, got %d", cfg.Port)
	}
	if !cfg.AllowInsecure {
		t.Error("Expected AllowInsecure to be true")
	}
	if cfg.ImplicitTLS {
		t.Error("Expected ImplicitTLS to be false by default")
	}
	if cfg.Username != "oliver" || cfg.Password != "oliver123" {
		t.Errorf("Expected credentials from env, got %s/%s", cfg.Username, cfg.Password)
	}
	if cfg.From != "noreply@example.com" || cfg.FromName != "Trip Planner" {
		t.Errorf("Expected sender from env, got %s / %s", cfg.From, cfg.FromName)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `host = "smtp.example.com"
port = 465
implicit_tls = true
username = "alice"
password = "secret"
from = "alice@example.com"
from_name = "Alice"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Host != "smtp.example.com" || cfg.Port != 465 {
		t.Errorf("Expected smtp.example.com:465, got %s:%d", cfg.Host, cfg.Port)
	}
	if !cfg.ImplicitTLS {
		t.Error("Expected ImplicitTLS to be true")
	}

	sc := cfg.SendConfig()
	if sc.Host != "smtp.example.com" || sc.Port != 465 || !sc.ImplicitTLS {
		t.Errorf("SendConfig did not carry connection fields: %+v", sc)
	}
	if sc.Username != "alice" || sc.Password != "secret" {
		t.Errorf("SendConfig did not carry credentials: %+v", sc)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `host = "smtp.example.com"
from = "alice@example.com"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("SMTP_HOST", "override.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Host != "override.example.com" {
		t.Errorf("Expected env to override file, got %s", cfg.Host)
	}
}

func TestLoadRequiresSender(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Expected an error when no sender address is configured")
	}
}
