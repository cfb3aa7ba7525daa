package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	Remote    RemoteConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// RemoteConfig holds the marketplace API configuration
type RemoteConfig struct {
	BaseURL     string
	APIToken    string
	TimeoutSecs int
	HealthPath  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	remoteURL := os.Getenv("MARKETPLACE_API_URL")
	if remoteURL == "" {
		return nil, fmt.Errorf("MARKETPLACE_API_URL is required")
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3001"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "servly"),
		},
		Remote: RemoteConfig{
			BaseURL:     remoteURL,
			APIToken:    os.Getenv("MARKETPLACE_API_TOKEN"),
			TimeoutSecs: getIntEnv("MARKETPLACE_API_TIMEOUT", 15),
			HealthPath:  getEnv("MARKETPLACE_HEALTH_PATH", "/health"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
