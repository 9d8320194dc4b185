package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Folder != "INBOX" {
		t.Fatalf("expected default folder INBOX, got %q", cfg.Folder)
	}
	if cfg.ScanDepth != 0 {
		t.Fatalf("expected default scan_depth 0, got %d", cfg.ScanDepth)
	}
	if cfg.Concurrency != 10 {
		t.Fatalf("expected default concurrency 10, got %d", cfg.Concurrency)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	path := writeTempFile(t, `
folder: Newsletters
scan_depth: 2000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	if cfg.Folder != "Newsletters" {
		t.Fatalf("expected folder Newsletters, got %q", cfg.Folder)
	}
	if cfg.ScanDepth != 2000 {
		t.Fatalf("expected scan_depth 2000, got %d", cfg.ScanDepth)
	}
	if cfg.Concurrency != 10 {
		t.Fatalf("expected absent keys to keep defaults, got concurrency %d", cfg.Concurrency)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeTempFile(t, `
folder: INBOX
scan_depth: 500
concurrency: 4
log_file: /tmp/sweepbox.log
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	want := Settings{Folder: "INBOX", ScanDepth: 500, Concurrency: 4, LogFile: "/tmp/sweepbox.log"}
	if cfg != want {
		t.Fatalf("expected %+v, got %+v", want, cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempFile(t, "not: [valid_yaml")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("expected defaults to validate, got error: %v", err)
	}

	if err := Validate(Settings{Folder: "  ", Concurrency: 10}); err == nil {
		t.Fatalf("expected validation error for blank folder")
	}

	err := Validate(Settings{Folder: "INBOX", ScanDepth: -1, Concurrency: 10})
	if err == nil {
		t.Fatalf("expected validation error for negative scan_depth")
	} else if !strings.Contains(err.Error(), "scan_depth") {
		t.Fatalf("expected scan_depth error, got: %v", err)
	}

	err = Validate(Settings{Folder: "INBOX"})
	if err == nil {
		t.Fatalf("expected validation error for zero concurrency")
	} else if !strings.Contains(err.Error(), "concurrency") {
		t.Fatalf("expected concurrency error, got: %v", err)
	}
}

func TestAccountFromEnv(t *testing.T) {
	t.Setenv(envIMAPUser, " user@gmail.com ")
	t.Setenv(envIMAPPass, "app-password")
	t.Setenv(envIMAPAddr, "")

	acc, err := AccountFromEnv()
	if err != nil {
		t.Fatalf("expected account to load, got error: %v", err)
	}

	if acc.User != "user@gmail.com" {
		t.Fatalf("expected trimmed user, got %q", acc.User)
	}
	if acc.Pass != "app-password" {
		t.Fatalf("unexpected pass %q", acc.Pass)
	}
	if acc.Addr != "" {
		t.Fatalf("expected empty addr, got %q", acc.Addr)
	}
}

func TestAccountFromEnvWithOverride(t *testing.T) {
	t.Setenv(envIMAPUser, "user@fastmail.fm")
	t.Setenv(envIMAPPass, "app-password")
	t.Setenv(envIMAPAddr, "imap.fastmail.com:993")

	acc, err := AccountFromEnv()
	if err != nil {
		t.Fatalf("expected account to load, got error: %v", err)
	}
	if acc.Addr != "imap.fastmail.com:993" {
		t.Fatalf("expected addr override, got %q", acc.Addr)
	}
}

func TestAccountFromEnvMissing(t *testing.T) {
	t.Setenv(envIMAPUser, "")
	t.Setenv(envIMAPPass, "")

	_, err := AccountFromEnv()
	if err == nil {
		t.Fatalf("expected error for missing environment variables")
	}
	if !strings.Contains(err.Error(), "missing required environment variables") {
		t.Fatalf("expected missing env var error, got: %v", err)
	}
	if !strings.Contains(err.Error(), envIMAPUser) || !strings.Contains(err.Error(), envIMAPPass) {
		t.Fatalf("expected both variable names in error, got: %v", err)
	}
}

func TestReportingEnabled(t *testing.T) {
	t.Setenv(envWebhookURL, "")
	if ReportingEnabled() {
		t.Fatalf("expected reporting to be disabled without a webhook URL")
	}

	t.Setenv(envWebhookURL, "https://hooks.example.com/sweepbox")
	if !ReportingEnabled() {
		t.Fatalf("expected reporting to be enabled with a webhook URL")
	}
	if got := WebhookURL(); got != "https://hooks.example.com/sweepbox" {
		t.Fatalf("unexpected webhook URL %q", got)
	}
}

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
