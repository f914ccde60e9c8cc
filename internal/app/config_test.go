package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_ADDR", "LOG_LEVEL", "CACHE_TTL_MINUTES", "CACHE_DISABLED",
		"ZAMUNDA_PRIMARY_CATEGORIES", "ZAMUNDA_BROAD_CATEGORIES", "ZAMUNDA_MAX_RESULTS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.CacheTTL != time.Hour || cfg.CacheSweep != 5*time.Minute {
		t.Fatalf("unexpected cache timings: ttl=%s sweep=%s", cfg.CacheTTL, cfg.CacheSweep)
	}
	if cfg.CacheDisabled {
		t.Fatal("cache should be enabled by default")
	}
	if cfg.ZamundaPrimaryCategories != nil || cfg.ZamundaBroadCategories != nil {
		t.Fatal("expected provider category defaults to be left to the provider")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("CACHE_TTL_MINUTES", "15")
	t.Setenv("CACHE_DISABLED", "yes")
	t.Setenv("ZAMUNDA_PRIMARY_CATEGORIES", "5, 7,x,-1,42")
	t.Setenv("ZAMUNDA_MAX_RESULTS", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.CacheTTL != 15*time.Minute || !cfg.CacheDisabled {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	want := []int{5, 7, 42}
	if len(cfg.ZamundaPrimaryCategories) != len(want) {
		t.Fatalf("unexpected categories %v", cfg.ZamundaPrimaryCategories)
	}
	for i := range want {
		if cfg.ZamundaPrimaryCategories[i] != want[i] {
			t.Fatalf("unexpected categories %v", cfg.ZamundaPrimaryCategories)
		}
	}
	if cfg.ZamundaMaxResults != 20 {
		t.Fatalf("expected fallback for invalid int, got %d", cfg.ZamundaMaxResults)
	}
}

func TestLoadConfigEnvFileDoesNotOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=debug\nHTTP_ADDR=:1234\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("HTTP_ADDR", ":9000")
	// godotenv sets variables that are unset, so register cleanup for it.
	os.Unsetenv("LOG_LEVEL")
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LOG_LEVEL from env file, got %q", cfg.LogLevel)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("expected process env to win, got %q", cfg.HTTPAddr)
	}
}
