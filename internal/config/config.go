package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	envIMAPUser   = "SWEEPBOX_IMAP_USER"
	envIMAPPass   = "SWEEPBOX_IMAP_PASS"
	envIMAPAddr   = "SWEEPBOX_IMAP_ADDR"
	envWebhookURL = "SWEEPBOX_WEBHOOK_URL"
)

// Account holds the IMAP login details from environment variables. Addr is an
// optional host:port override for servers the provider table does not know.
type Account struct {
	User string
	Pass string
	Addr string
}

// Settings holds non-secret configuration loaded from YAML.
type Settings struct {
	Folder      string `yaml:"folder"`
	ScanDepth   int    `yaml:"scan_depth"`
	Concurrency int    `yaml:"concurrency"`
	LogFile     string `yaml:"log_file"`
}

// Defaults returns the settings used when no config file is given.
func Defaults() Settings {
	return Settings{
		Folder:      "INBOX",
		ScanDepth:   0,
		Concurrency: 10,
	}
}

// Load reads settings from a YAML file. Keys absent from the file keep their
// default values.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, err
	}

	return cfg, nil
}

// Validate performs basic validation on non-secret settings.
func Validate(cfg Settings) error {
	if strings.TrimSpace(cfg.Folder) == "" {
		return errors.New("folder must not be empty")
	}
	if cfg.ScanDepth < 0 {
		return fmt.Errorf("scan_depth must not be negative, got %d", cfg.ScanDepth)
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	return nil
}

// AccountFromEnv loads IMAP login details and validates required entries.
// The password value is returned as-is and must never be logged.
func AccountFromEnv() (Account, error) {
	missing := []string{}

	user := strings.TrimSpace(os.Getenv(envIMAPUser))
	if user == "" {
		missing = append(missing, envIMAPUser)
	}

	pass := strings.TrimSpace(os.Getenv(envIMAPPass))
	if pass == "" {
		missing = append(missing, envIMAPPass)
	}

	if len(missing) > 0 {
		return Account{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return Account{
		User: user,
		Pass: pass,
		Addr: EndpointOverride(),
	}, nil
}

// EndpointOverride returns the optional SWEEPBOX_IMAP_ADDR host:port, for
// servers the provider table does not know.
func EndpointOverride() string {
	return strings.TrimSpace(os.Getenv(envIMAPAddr))
}

// ReportingEnabled returns true when a webhook URL is configured via env var.
func ReportingEnabled() bool {
	return WebhookURL() != ""
}

// WebhookURL returns the reporting webhook endpoint, or "" when unset.
func WebhookURL() string {
	return strings.TrimSpace(os.Getenv(envWebhookURL))
}
