package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDashboardConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POLL_INTERVAL_MS", "2000")
	t.Setenv("CLOCK_INTERVAL_MS", "1000")
	t.Setenv("BUCKET_WIDTH_SECONDS", "10")
	t.Setenv("BUCKET_COUNT", "12")
	t.Setenv("RECENCY_WINDOW_SECONDS", "10")
	t.Setenv("ANIMATOR_MODE", " Telemetry ")

	cfg := LoadDashboardConfig()
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("expected 2s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.ClockInterval != time.Second {
		t.Fatalf("expected 1s clock interval, got %s", cfg.ClockInterval)
	}
	if cfg.BucketWidth != 10*time.Second || cfg.BucketCount != 12 {
		t.Fatalf("unexpected bucket config %s x %d", cfg.BucketWidth, cfg.BucketCount)
	}
	if cfg.RecencyWindow >= cfg.BucketWidth*time.Duration(cfg.BucketCount) {
		t.Fatalf("recency window must be shorter than the rate window")
	}
	if cfg.AnimatorMode != "telemetry" {
		t.Fatalf("expected normalised animator mode, got %q", cfg.AnimatorMode)
	}
	if cfg.FrameInterval() != time.Second/60 {
		t.Fatalf("unexpected frame interval %s", cfg.FrameInterval())
	}
}

func TestGetIntInvalidFallsBack(t *testing.T) {
	t.Setenv("NETWATCH_TEST_INT", "nope")
	if got := GetInt("NETWATCH_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	if ParseLogLevel("WARN") != slog.LevelWarn {
		t.Fatalf("expected warn level")
	}
	if ParseLogLevel("bogus") != slog.LevelInfo {
		t.Fatalf("expected info fallback")
	}
}

func TestCLIConfigRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NETWATCH_API_URL", "")
	t.Setenv("NETWATCH_OPERATOR_TOKEN", "")
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := LoadCLIConfig(path)
	if err != nil {
		t.Fatalf("load missing config: %v", err)
	}
	if cfg.APIBaseURL != defaultCLIAPIBase {
		t.Fatalf("expected default api base, got %q", cfg.APIBaseURL)
	}

	cfg.OperatorToken = "tok"
	cfg.APIBaseURL = "http://authority:5000"
	if err := SaveCLIConfig(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadCLIConfig(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.OperatorToken != "tok" || loaded.APIBaseURL != "http://authority:5000" {
		t.Fatalf("unexpected round trip %+v", loaded)
	}

	t.Setenv("NETWATCH_API_URL", "http://override:5000")
	overridden, err := LoadCLIConfig(path)
	if err != nil {
		t.Fatalf("reload with override: %v", err)
	}
	if overridden.APIBaseURL != "http://override:5000" {
		t.Fatalf("expected env override, got %q", overridden.APIBaseURL)
	}
}
