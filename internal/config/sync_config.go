package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SyncConfig holds synchronization policy
type SyncConfig struct {
	// ============ BASIC SETTINGS ============
	Enabled       bool `json:"enabled"`
	SyncOnStartup bool `json:"sync_on_startup"`

	// ============ RETRY POLICY ============
	MaxRetries int `json:"max_retries"` // per intent, then terminal failure

	// ============ CONNECTIVITY ============
	HealthCheckInterval int `json:"health_check_interval"` // seconds
	ProbeTimeout        int `json:"probe_timeout"`         // seconds

	// ============ CACHE ============
	CacheTTLHours int `json:"cache_ttl_hours"` // eviction cutoff for snapshots
}

// CacheTTL returns the snapshot eviction cutoff as a duration
func (c *SyncConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// LoadSyncConfig loads sync configuration from environment or file
func LoadSyncConfig() *SyncConfig {
	// Try to load from file first
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if cfg, err := loadSyncConfigFromFile(configPath); err == nil {
			return cfg
		}
	}

	// Otherwise use defaults
	return getDefaultSyncConfig()
}

// loadSyncConfigFromFile loads sync config from JSON file
func loadSyncConfigFromFile(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Unmarshal on top of the defaults so a field the file omits keeps
	// its default instead of collapsing to the zero value
	cfg := getDefaultSyncConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Enabled:       getBoolEnv("SYNC_ENABLED", true),
		SyncOnStartup: getBoolEnv("SYNC_ON_STARTUP", true),

		MaxRetries: getIntEnv("SYNC_MAX_RETRIES", 5),

		HealthCheckInterval: getIntEnv("SYNC_HEALTH_INTERVAL", 30),
		ProbeTimeout:        getIntEnv("SYNC_PROBE_TIMEOUT", 5),

		CacheTTLHours: getIntEnv("SYNC_CACHE_TTL_HOURS", 24),
	}
}

// Helper functions for environment variables

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
