package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
  "discord": {"ops_channel": "123"},
  "telegram": {"http_timeout": "15s"},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}, "discord": {"enabled": true, "min_level": "warn", "rate_per_sec": 1}},
  "store": {"driver": "file", "path": "./tenants.json"}
}`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.OpsChannel != "123" {
		t.Fatalf("OpsChannel = %q", cfg.Discord.OpsChannel)
	}
	if cfg.Telegram.HTTPTimeout != "15s" {
		t.Fatalf("HTTPTimeout = %q", cfg.Telegram.HTTPTimeout)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Discord.Enabled {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Store.Driver != "file" || cfg.Store.Path != "./tenants.json" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
discord:
  ops_channel: "123"
telegram:
  http_timeout: 15s
logging:
  level: info
  console: true
  file:
    enabled: true
    path: ./relay.log
  discord:
    enabled: false
    min_level: warn
    rate_per_sec: 1
store:
  driver: sqlite
  path: ./tenants.db
  busy_timeout: 5s
delivery:
  rate_per_sec: 3
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.BusyTimeout != "5s" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "./relay.log" {
		t.Fatalf("file logging = %+v", cfg.Logging.File)
	}
	if cfg.Delivery.RatePerSec != 3 {
		t.Fatalf("delivery = %+v", cfg.Delivery)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"discrod": {}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown top-level key must be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"discord": {}} {"again": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON must be rejected")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "10s", want: 10 * time.Second},
		{raw: " 1m ", want: time.Minute},
		{raw: "-5s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("x", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseDurationField(%q) = (%v, %v), want %v", tt.raw, got, err, tt.want)
		}
	}

	d, err := ParseDurationOrDefault("x", "", 10*time.Second)
	if err != nil || d != 10*time.Second {
		t.Fatalf("ParseDurationOrDefault = (%v, %v)", d, err)
	}
}
