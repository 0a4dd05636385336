package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazz-dev/pingmon/internal/config"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "*.yml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - name: "Google DNS"
    address: "8.8.8.8"
  - name: "Cloudflare DNS"
    address: "1.1.1.1"
ping_count: 5
interval: "30s"
timeout: "3s"
retention_days: 30
database: "test.db"
server:
  address: ":9090"
alerts:
  webhook:
    url: "https://hooks.example.com/alert"
    cooldown: "5m"
log:
  level: "debug"
  format: "json"
  file: "/var/log/pingmon.log"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(cfg.Hosts))
	}
	if cfg.Hosts[0].Name != "Google DNS" {
		t.Errorf("expected host name 'Google DNS', got %q", cfg.Hosts[0].Name)
	}
	if cfg.Hosts[0].Address != "8.8.8.8" {
		t.Errorf("expected address '8.8.8.8', got %q", cfg.Hosts[0].Address)
	}
	if cfg.PingCount != 5 {
		t.Errorf("expected ping_count 5, got %d", cfg.PingCount)
	}
	if cfg.Interval.String() != "30s" {
		t.Errorf("expected interval 30s, got %v", cfg.Interval)
	}
	if cfg.Timeout.String() != "3s" {
		t.Errorf("expected timeout 3s, got %v", cfg.Timeout)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("expected retention_days 30, got %d", cfg.RetentionDays)
	}
	if cfg.Database != "test.db" {
		t.Errorf("unexpected database path: %q", cfg.Database)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("unexpected address: %q", cfg.Server.Address)
	}
	if cfg.Alerts.Webhook.URL != "https://hooks.example.com/alert" {
		t.Errorf("unexpected webhook url: %q", cfg.Alerts.Webhook.URL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("unexpected log level: %q", cfg.Log.Level)
	}
	if cfg.Log.File != "/var/log/pingmon.log" {
		t.Errorf("unexpected log file: %q", cfg.Log.File)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - address: "8.8.8.8"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PingCount != 10 {
		t.Errorf("expected default ping_count 10, got %d", cfg.PingCount)
	}
	if cfg.Interval.String() != "1m0s" {
		t.Errorf("expected default interval 60s, got %v", cfg.Interval)
	}
	if cfg.Timeout.String() != "5s" {
		t.Errorf("expected default timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.RetentionDays != 90 {
		t.Errorf("expected default retention_days 90, got %d", cfg.RetentionDays)
	}
	if cfg.Database != "pingmon.db" {
		t.Errorf("expected default database pingmon.db, got %q", cfg.Database)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %q", cfg.Server.Address)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected default log format text, got %q", cfg.Log.Format)
	}
}

func TestLoad_ExplicitZeroRetentionKeptForever(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - address: "8.8.8.8"
retention_days: 0
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0 disables retention; only an absent key gets the 90-day default.
	if cfg.RetentionDays != 0 {
		t.Errorf("expected retention_days 0 to be preserved, got %d", cfg.RetentionDays)
	}
}

func TestLoad_NegativeRetentionDays(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - address: "8.8.8.8"
retention_days: -1
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for negative retention_days, got nil")
	}
	if !strings.Contains(err.Error(), "retention_days") {
		t.Errorf("error should mention 'retention_days': %v", err)
	}
}

func TestLoad_NameDefaultsToAddress(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - address: "192.168.1.1"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Hosts[0].Name != "192.168.1.1" {
		t.Errorf("expected name to default to address, got %q", cfg.Hosts[0].Name)
	}
}

func TestLoad_MissingAddress(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - name: "No Address"
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing address, got nil")
	}
	if !strings.Contains(err.Error(), "address") {
		t.Errorf("error should mention 'address': %v", err)
	}
}

func TestLoad_DuplicateAddresses(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - name: "First"
    address: "8.8.8.8"
  - name: "Second"
    address: "8.8.8.8"
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for duplicate addresses, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention 'duplicate': %v", err)
	}
}

func TestLoad_EmptyHosts(t *testing.T) {
	path := writeTemp(t, `
hosts: []
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for empty hosts, got nil")
	}
	if !strings.Contains(err.Error(), "host") {
		t.Errorf("error should mention 'host': %v", err)
	}
}

func TestLoad_InvalidInterval(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - address: "8.8.8.8"
interval: "not-a-duration"
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for invalid interval, got nil")
	}
	if !strings.Contains(err.Error(), "interval") {
		t.Errorf("error should mention 'interval': %v", err)
	}
}

func TestLoad_NegativeInterval(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - address: "8.8.8.8"
interval: "-10s"
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for negative interval, got nil")
	}
}

func TestLoad_InvalidTimeout(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - address: "8.8.8.8"
timeout: "bad"
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for invalid timeout, got nil")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("error should mention 'timeout': %v", err)
	}
}

func TestLoad_NegativePingCount(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - address: "8.8.8.8"
ping_count: -5
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for negative ping_count, got nil")
	}
	if !strings.Contains(err.Error(), "ping_count") {
		t.Errorf("error should mention 'ping_count': %v", err)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - address: "8.8.8.8"
log:
  level: "verbose"
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "level") {
		t.Errorf("error should mention 'level': %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestAddresses(t *testing.T) {
	path := writeTemp(t, `
hosts:
  - name: "A"
    address: "10.0.0.1"
  - name: "B"
    address: "10.0.0.2"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addrs := cfg.Addresses()
	if len(addrs) != 2 || addrs[0] != "10.0.0.1" || addrs[1] != "10.0.0.2" {
		t.Errorf("unexpected addresses: %v", addrs)
	}
}
