package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnvString(t *testing.T) {
	key := "TEST_ENV_STRING"
	val := "test_value"
	os.Setenv(key, val)
	defer os.Unsetenv(key)

	if got := getEnvString(key, "default"); got != val {
		t.Errorf("getEnvString() = %q, want %q", got, val)
	}

	if got := getEnvString("NON_EXISTENT", "default"); got != "default" {
		t.Errorf("getEnvString() = %q, want %q", got, "default")
	}
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_ENV_BOOL"

	tests := []struct {
		name       string
		envVal     string
		defaultVal bool
		want       bool
	}{
		{"True", "true", false, true},
		{"False", "false", true, false},
		{"Numeric", "1", false, true},
		{"Invalid", "maybe", true, true},
		{"Empty", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envVal != "" {
				os.Setenv(key, tt.envVal)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			if got := getEnvBool(key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	key := "TEST_ENV_FLOAT"
	os.Setenv(key, "87.5")
	defer os.Unsetenv(key)

	if got := getEnvFloat(key, 90); got != 87.5 {
		t.Errorf("getEnvFloat() = %v, want 87.5", got)
	}

	os.Setenv(key, "not-a-number")
	if got := getEnvFloat(key, 90); got != 90 {
		t.Errorf("getEnvFloat() = %v, want default 90", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_ENV_DURATION"

	tests := []struct {
		name       string
		envVal     string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"ValidDuration", "1m", time.Second, time.Minute},
		{"ValidSeconds", "60", time.Second, 60 * time.Second},
		{"Invalid", "invalid", time.Second, time.Second},
		{"Empty", "", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envVal != "" {
				os.Setenv(key, tt.envVal)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			if got := getEnvDuration(key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoad_ThresholdValidation(t *testing.T) {
	tmpDir := t.TempDir()
	os.Setenv("CCSENTINEL_PROFILES_PATH", filepath.Join(tmpDir, "profiles.json"))
	os.Setenv("CCSENTINEL_DATABASE_PATH", filepath.Join(tmpDir, "history.db"))
	os.Setenv("CCSENTINEL_SESSION_THRESHOLD", "150")
	defer func() {
		os.Unsetenv("CCSENTINEL_PROFILES_PATH")
		os.Unsetenv("CCSENTINEL_DATABASE_PATH")
		os.Unsetenv("CCSENTINEL_SESSION_THRESHOLD")
	}()

	if _, err := Load(); err == nil {
		t.Error("Load() should reject a session threshold over 100")
	}

	os.Setenv("CCSENTINEL_SESSION_THRESHOLD", "85")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.AutoSwitch.SessionThreshold != 85 {
		t.Errorf("SessionThreshold = %v, want 85", cfg.AutoSwitch.SessionThreshold)
	}
	if cfg.AutoSwitch.UsageCheckInterval != defaultUsageCheckInterval {
		t.Errorf("UsageCheckInterval = %v, want default", cfg.AutoSwitch.UsageCheckInterval)
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "dir")

	if err := ensureDir(path); err != nil {
		t.Fatalf("ensureDir() failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("directory was not created: %v", err)
	}
}
