package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("NO_SHOW_GRACE_SECONDS", "")
	t.Setenv("SESSION_TTL_HOURS", "")
	t.Setenv("PUBLIC_BASE_URL", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.NoShowGrace != 30*time.Second {
		t.Fatalf("expected 30s grace, got %v", cfg.NoShowGrace)
	}
	if cfg.SessionTTL != 8*time.Hour {
		t.Fatalf("expected 8h session ttl, got %v", cfg.SessionTTL)
	}
	if cfg.PublicBaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected base url %q", cfg.PublicBaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("NO_SHOW_GRACE_SECONDS", "45")
	t.Setenv("SYNC_WORKERS", "8")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("PUBLIC_BASE_URL", "https://clinic.example.com/")
	t.Setenv("OTEL_TRACE_SAMPLE_RATIO", "0.25")

	cfg := Load()
	if cfg.Port != "9090" || cfg.NoShowGrace != 45*time.Second || cfg.SyncWorkers != 8 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.MetricsEnabled {
		t.Fatalf("expected metrics disabled")
	}
	if cfg.PublicBaseURL != "https://clinic.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.PublicBaseURL)
	}
	if cfg.TraceSampleRate != 0.25 {
		t.Fatalf("expected sample ratio 0.25, got %v", cfg.TraceSampleRate)
	}
}

func TestReadHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_SECS", "-5")

	if readInt("X_INT", 7) != 7 {
		t.Fatalf("expected int fallback")
	}
	if !readBool("X_BOOL", true) {
		t.Fatalf("expected bool fallback")
	}
	if readDurationSeconds("X_SECS", 10) != 0 {
		t.Fatalf("expected non-positive seconds to disable")
	}
}
