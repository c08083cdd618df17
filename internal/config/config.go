// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AutoSwitchSettings controls the usage monitor and proactive swapping.
type AutoSwitchSettings struct {
	Enabled              bool
	ProactiveSwapEnabled bool
	UsageCheckInterval   time.Duration
	SessionThreshold     float64
	WeeklyThreshold      float64
}

// Config holds the application configuration.
type Config struct {
	ProfilesPath  string
	DatabasePath  string
	ClaudeCommand string
	LogLevel      string
	AutoSwitch    AutoSwitchSettings
}

// Default values
const (
	defaultUsageCheckInterval = 30 * time.Second
	defaultSessionThreshold   = 90.0
	defaultWeeklyThreshold    = 90.0
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		ProfilesPath:  getEnvString("CCSENTINEL_PROFILES_PATH", getDefaultProfilesPath()),
		DatabasePath:  getEnvString("CCSENTINEL_DATABASE_PATH", getDefaultDatabasePath()),
		ClaudeCommand: getEnvString("CCSENTINEL_CLAUDE_COMMAND", ""),
		LogLevel:      getEnvString("CCSENTINEL_LOG_LEVEL", "info"),
		AutoSwitch: AutoSwitchSettings{
			Enabled:              getEnvBool("CCSENTINEL_MONITOR_ENABLED", true),
			ProactiveSwapEnabled: getEnvBool("CCSENTINEL_PROACTIVE_SWAP", true),
			UsageCheckInterval:   getEnvDuration("CCSENTINEL_CHECK_INTERVAL", defaultUsageCheckInterval),
			SessionThreshold:     getEnvFloat("CCSENTINEL_SESSION_THRESHOLD", defaultSessionThreshold),
			WeeklyThreshold:      getEnvFloat("CCSENTINEL_WEEKLY_THRESHOLD", defaultWeeklyThreshold),
		},
	}

	if cfg.AutoSwitch.SessionThreshold <= 0 || cfg.AutoSwitch.SessionThreshold > 100 {
		return nil, fmt.Errorf("CCSENTINEL_SESSION_THRESHOLD must be in (0, 100], got %v", cfg.AutoSwitch.SessionThreshold)
	}
	if cfg.AutoSwitch.WeeklyThreshold <= 0 || cfg.AutoSwitch.WeeklyThreshold > 100 {
		return nil, fmt.Errorf("CCSENTINEL_WEEKLY_THRESHOLD must be in (0, 100], got %v", cfg.AutoSwitch.WeeklyThreshold)
	}

	// Ensure profile and database directories exist
	if err := ensureDir(filepath.Dir(cfg.ProfilesPath)); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "ccsentinel", ".env"),
			filepath.Join(home, ".ccsentinel", ".env"),
		)
	}

	return paths
}

// getDefaultProfilesPath returns the default path for the profiles JSON file.
func getDefaultProfilesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "profiles.json"
	}
	return filepath.Join(home, ".config", "ccsentinel", "profiles.json")
}

// getDefaultDatabasePath returns the default path for the SQLite database.
func getDefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}
	return filepath.Join(home, ".config", "ccsentinel", "history.db")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
