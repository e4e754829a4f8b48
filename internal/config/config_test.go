package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Queue.DeadLetterRetries != 3 {
		t.Fatalf("expected default dead letter retries 3, got %d", cfg.Queue.DeadLetterRetries)
	}
}

func TestLoadParsesTOMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engagic.toml")
	contents := `
[general]
log_level = "debug"

[queue]
poll_interval = "2s"
dead_letter_retries = 5
batch_chunk_size = 10

[vendor_rate_limits.primegov]
min_interval = "9s"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Fatalf("expected log_level debug, got %q", cfg.General.LogLevel)
	}
	if cfg.Queue.PollInterval.Duration != 2*time.Second {
		t.Fatalf("expected poll_interval 2s, got %v", cfg.Queue.PollInterval.Duration)
	}
	if cfg.Queue.DeadLetterRetries != 5 {
		t.Fatalf("expected dead_letter_retries 5, got %d", cfg.Queue.DeadLetterRetries)
	}
	if got := cfg.VendorMinInterval("primegov"); got != 9*time.Second {
		t.Fatalf("expected primegov min interval 9s, got %v", got)
	}
	if got := cfg.VendorMinInterval("some-unregistered-vendor"); got != cfg.RateLimits["unknown"].MinInterval.Duration {
		t.Fatalf("expected fallback to unknown vendor rate, got %v", got)
	}
}

func TestEnvOverlayAppliesOverTOML(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RATE_LIMIT_REQUESTS", "42")
	t.Setenv("MAX_QUERY_LENGTH", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.API.AllowedOrigins) != 2 || cfg.API.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("unexpected allowed origins: %v", cfg.API.AllowedOrigins)
	}
	if cfg.API.RateLimitMax != 42 {
		t.Fatalf("expected rate limit max 42, got %d", cfg.API.RateLimitMax)
	}
	if cfg.API.MaxQueryLength != 7 {
		t.Fatalf("expected max query length 7, got %d", cfg.API.MaxQueryLength)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Default()
	cfg.Paths.DBDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty db_dir")
	}

	cfg = Default()
	cfg.Queue.DeadLetterRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero dead_letter_retries")
	}
}

func TestDBPathJoinsDBDirAndMainDB(t *testing.T) {
	cfg := Default()
	cfg.Paths.DBDir = "/var/lib/engagic"
	cfg.Paths.MainDB = "engagic.db"
	if got, want := cfg.DBPath(), "/var/lib/engagic/engagic.db"; got != want {
		t.Fatalf("DBPath() = %q, want %q", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.RateLimits["primegov"] = VendorRate{Duration{99 * time.Second}}
	if cfg.RateLimits["primegov"] == clone.RateLimits["primegov"] {
		t.Fatal("mutating clone's rate limits should not affect original")
	}
}
