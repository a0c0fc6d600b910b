package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Moderation.HistorySize != 10 || cfg.Moderation.HistoryScope != "sender" {
		t.Errorf("Moderation = %+v", cfg.Moderation)
	}
	if cfg.RateLimit.Message.Window != 10*time.Second {
		t.Errorf("RateLimit.Message = %+v", cfg.RateLimit.Message)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
moderation:
  history_size: 25
  history_scope: conversation
rate_limit:
  message:
    limit: 3
    window: 1m
logging:
  level: debug
  format: console
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Moderation.HistorySize != 25 || cfg.Moderation.HistoryScope != "conversation" {
		t.Errorf("Moderation = %+v", cfg.Moderation)
	}
	if cfg.RateLimit.Message.Limit != 3 || cfg.RateLimit.Message.Window != time.Minute {
		t.Errorf("RateLimit.Message = %+v", cfg.RateLimit.Message)
	}
	if cfg.RateLimit.Review.Limit != 5 {
		t.Errorf("untouched keys should keep defaults, got Review = %+v", cfg.RateLimit.Review)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GATEKEEPER_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("GATEKEEPER_STRIKES_ENABLED", "false")

	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Strikes.Enabled {
		t.Error("Strikes.Enabled = true, want false from env")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"log level", "logging:\n  level: loud\n", "invalid log level"},
		{"log format", "logging:\n  format: xml\n", "invalid log format"},
		{"history size", "moderation:\n  history_size: 0\n", "history_size"},
		{"history scope", "moderation:\n  history_scope: everyone\n", "history_scope"},
		{"rule", "rate_limit:\n  review:\n    limit: 0\n", "rate_limit.review"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [unterminated\n")); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
