package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads KEY=VALUE files into the process environment without
// overwriting variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays the deployment environment on cfg:
//
//	BOT_TOKEN, TASKS_FILE, SPECIALISTS_FILE
//	SPREADSHEET_ID (enables the ledger), SERVICE_ACCOUNT_FILE, GOOGLE_TOKEN
//	WEBHOOK_URL, SECRET_TOKEN, PORT
//	RENDER (any value switches to webhook mode with pending updates dropped)
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("BOT_TOKEN", &cfg.Telegram.Token)
	str("TASKS_FILE", &cfg.Catalog.TasksFile)
	str("SPECIALISTS_FILE", &cfg.Catalog.SpecialistsFile)
	str("WEBHOOK_URL", &cfg.Telegram.WebhookURL)
	str("SECRET_TOKEN", &cfg.Telegram.SecretToken)
	str("PORT", &cfg.HTTP.Port)

	if v, ok := lookup("SPREADSHEET_ID"); ok && strings.TrimSpace(v) != "" {
		cfg.Ledger.SpreadsheetID = strings.TrimSpace(v)
		cfg.Ledger.Enabled = true
	}
	str("SERVICE_ACCOUNT_FILE", &cfg.Ledger.ServiceAccountFile)
	// raw JSON, whitespace is part of the payload
	if v, ok := lookup("GOOGLE_TOKEN"); ok && v != "" {
		cfg.Ledger.CredentialsJSON = v
	}

	if v, ok := lookup("RENDER"); ok && v != "" {
		cfg.Telegram.Mode = ModeWebhook
		cfg.Telegram.DropPending = true
	}
}

// ListenAddr resolves the HTTP listen address. The empty string means the
// listener is not needed.
func (c *Config) ListenAddr() string {
	if a := strings.TrimSpace(c.HTTP.Addr); a != "" {
		return a
	}
	if p := strings.TrimSpace(c.HTTP.Port); p != "" {
		return net.JoinHostPort("", p)
	}
	if c.HTTP.Enabled || c.WebhookMode() {
		return ":10000"
	}
	return ""
}
