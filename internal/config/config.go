// Package config resolves the mailer configuration for the calling side.
// The SMTP client itself never reads ambient state; everything it needs is
// resolved here and passed in explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/wanderplan/mailer/internal/smtp"
)

type Config struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	ImplicitTLS   bool   `toml:"implicit_tls"`
	AllowInsecure bool   `toml:"allow_insecure"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	From          string `toml:"from"`
	FromName      string `toml:"from_name"`
	ClientName    string `toml:"client_name"`
	DKIMDomain    string `toml:"dkim_domain"`
	DKIMSelector  string `toml:"dkim_selector"`
	DKIMKeyFile   string `toml:"dkim_key_file"`
}

// Load reads the TOML file at path (skipped when empty) and then applies
// environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Host: "localhost",
		Port: 587,
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.From == "" {
		return nil, fmt.Errorf("no sender address configured (from / SMTP_FROM)")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("SMTP_SECURE"); v != "" {
		cfg.ImplicitTLS = parseBool(v)
	}
	if v := os.Getenv("SMTP_ALLOW_INSECURE"); v != "" {
		cfg.AllowInsecure = parseBool(v)
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.From = v
	}
	if v := os.Getenv("SMTP_FROM_NAME"); v != "" {
		cfg.FromName = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// SendConfig maps the resolved configuration onto the client's connection
// context.
func (c *Config) SendConfig() smtp.Config {
	return smtp.Config{
		Host:          c.Host,
		Port:          c.Port,
		ImplicitTLS:   c.ImplicitTLS,
		AllowInsecure: c.AllowInsecure,
		Username:      c.Username,
		Password:      c.Password,
		ClientName:    c.ClientName,
		DKIMDomain:    c.DKIMDomain,
		DKIMSelector:  c.DKIMSelector,
	}
}
