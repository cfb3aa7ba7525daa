package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSyncConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync_config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSyncConfigFileKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeSyncConfig(t, `{"max_retries": 3}`)
	t.Setenv("SYNC_CONFIG_PATH", path)

	cfg := LoadSyncConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("max_retries from file should win, got %d", cfg.MaxRetries)
	}
	if !cfg.Enabled {
		t.Errorf("omitted enabled should keep its default")
	}
	if cfg.CacheTTLHours != 24 {
		t.Errorf("omitted cache_ttl_hours should default to 24, got %d", cfg.CacheTTLHours)
	}
	if cfg.CacheTTL() != 24*time.Hour {
		t.Errorf("expected 24h TTL, got %v", cfg.CacheTTL())
	}
}

func TestLoadSyncConfigFileOverridesDefaults(t *testing.T) {
	path := writeSyncConfig(t, `{"enabled": false, "cache_ttl_hours": 72}`)
	t.Setenv("SYNC_CONFIG_PATH", path)

	cfg := LoadSyncConfig()

	if cfg.Enabled {
		t.Errorf("explicit enabled=false should be honored")
	}
	if cfg.CacheTTLHours != 72 {
		t.Errorf("expected TTL of 72h, got %d", cfg.CacheTTLHours)
	}
}

func TestLoadSyncConfigFallsBackOnBadFile(t *testing.T) {
	path := writeSyncConfig(t, `{not json`)
	t.Setenv("SYNC_CONFIG_PATH", path)

	cfg := LoadSyncConfig()

	if !cfg.Enabled || cfg.MaxRetries != 5 || cfg.CacheTTLHours != 24 {
		t.Errorf("unreadable file should yield defaults, got %+v", cfg)
	}
}
