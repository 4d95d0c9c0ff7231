package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr != ":10000" {
		t.Fatalf("HTTPAddr = %q, want :10000", cfg.HTTPAddr)
	}
	if cfg.Open.Minutes() != 540 || cfg.Close.Minutes() != 1200 {
		t.Fatalf("hours = %d-%d, want 540-1200", cfg.Open.Minutes(), cfg.Close.Minutes())
	}
	if cfg.Step != 5 || cfg.MinDuration != 15 || cfg.MaxDuration != 240 {
		t.Fatalf("grid = %d/%d/%d", cfg.Step, cfg.MinDuration, cfg.MaxDuration)
	}
	if cfg.SyncDefaultLimit != 50 || cfg.SyncMaxLimit != 500 || cfg.SyncDefaultConsumer != "bridge" {
		t.Fatalf("sync = %d/%d/%s", cfg.SyncDefaultLimit, cfg.SyncMaxLimit, cfg.SyncDefaultConsumer)
	}
	if cfg.DatabaseURL != "" || cfg.RedisAddr != "" || cfg.RabbitMQURL != "" {
		t.Fatalf("optional backends should default to disabled")
	}
	if cfg.ShutdownTimeout != 10*time.Second || cfg.HTTPRequestTimeout != 10*time.Second {
		t.Fatalf("timeouts = %v/%v", cfg.ShutdownTimeout, cfg.HTTPRequestTimeout)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoad_EnvOverridesAndAliases(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("BRIDGE_SECRET", "abc")
	t.Setenv("BARBEARIA_SCHEDULE_OPEN", "08:30")
	t.Setenv("BARBEARIA_SCHEDULE_CLOSE", "24:00")
	t.Setenv("BARBEARIA_SCHEDULE_CANCEL_POLICY", " Delete ")
	t.Setenv("BARBEARIA_HTTP_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/barbearia")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.BridgeSecret != "abc" {
		t.Fatalf("BridgeSecret = %q", cfg.BridgeSecret)
	}
	if cfg.Open.Minutes() != 510 || cfg.Close.Minutes() != 1440 {
		t.Fatalf("hours = %d-%d", cfg.Open.Minutes(), cfg.Close.Minutes())
	}
	if cfg.CancelPolicy != "delete" {
		t.Fatalf("CancelPolicy = %q", cfg.CancelPolicy)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.DatabaseURL == "" {
		t.Fatalf("DATABASE_URL alias not honored")
	}
}

func TestLoad_ExplicitHTTPAddrBeatsPort(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("BARBEARIA_HTTP_ADDR", "127.0.0.1:9000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"BARBEARIA_SHUTDOWN_TIMEOUT": "soon"}},
		{"bad clock", map[string]string{"BARBEARIA_SCHEDULE_OPEN": "9am"}},
		{"empty secret", map[string]string{"BRIDGE_SECRET": " "}},
		{"limits", map[string]string{"BARBEARIA_SYNC_DEFAULT_LIMIT": "100", "BARBEARIA_SYNC_MAX_LIMIT": "10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
