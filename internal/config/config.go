// Package config provides application configuration management with support
// for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the daemon configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Database DatabaseConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	Server   ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DatabaseConfig holds the local store configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file (default: ~/Leafwise/leafwise.db).
	Path string
	// AllowDestructiveMigrations permits schema upgrades that discard
	// local data, such as the legacy identifier-space rebuild. Off by
	// default; an operator must opt in explicitly.
	AllowDestructiveMigrations bool
}

// RemoteConfig holds the sync backend connection settings.
type RemoteConfig struct {
	// BaseURL is the root of the sync backend.
	BaseURL string
	// DeviceToken authenticates this device against the backend.
	DeviceToken string
	// CallTimeout bounds each individual backend request (default: 15s).
	CallTimeout time.Duration
}

// SyncConfig holds the sync engine settings.
type SyncConfig struct {
	// Interval between automatic sync cycles (default: 5m).
	Interval time.Duration
	// BatchSize is the number of records per push request (default: 50).
	BatchSize int
	// AutoStart begins periodic syncing at boot (default: true).
	AutoStart bool
	// UserID is the owning user stamped on locally created records.
	UserID string
}

// ServerConfig holds the control API configuration.
type ServerConfig struct {
	Port         string        // Control API port (default: 8484)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// Load builds the configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("leafwise-sync", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dbPath := fs.String("db-path", "", "Path to the local SQLite database")
	allowDestructive := fs.String("allow-destructive-migrations", "", "Permit schema upgrades that discard local data (default: false)")

	remoteURL := fs.String("remote-url", "", "Sync backend base URL")
	deviceToken := fs.String("device-token", "", "Device token for the sync backend")
	callTimeout := fs.String("call-timeout", "", "Per-request backend timeout (default: 15s)")

	syncInterval := fs.String("sync-interval", "", "Interval between automatic sync cycles (default: 5m)")
	batchSize := fs.String("batch-size", "", "Records per push batch (default: 50)")
	autoStart := fs.String("auto-sync", "", "Start periodic syncing at boot (default: true)")
	userID := fs.String("user-id", "", "Owning user for locally created records")

	serverPort := fs.String("port", "", "Control API port (default: 8484)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load the .env file if it exists. Real environment variables keep
	// precedence; godotenv never overwrites them.
	_ = godotenv.Load(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Path:                       getConfigValue(*dbPath, "DB_PATH", ""),
			AllowDestructiveMigrations: getBoolConfigValue(*allowDestructive, "ALLOW_DESTRUCTIVE_MIGRATIONS", false),
		},
		Remote: RemoteConfig{
			BaseURL:     getConfigValue(*remoteURL, "REMOTE_URL", ""),
			DeviceToken: getConfigValue(*deviceToken, "DEVICE_TOKEN", ""),
		},
		Sync: SyncConfig{
			BatchSize: getIntConfigValue(*batchSize, "SYNC_BATCH_SIZE", 50),
			AutoStart: getBoolConfigValue(*autoStart, "AUTO_SYNC", true),
			UserID:    getConfigValue(*userID, "USER_ID", ""),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8484"),
		},
	}

	var err error
	if cfg.Remote.CallTimeout, err = parseDurationValue(*callTimeout, "REMOTE_CALL_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Sync.Interval, err = parseDurationValue(*syncInterval, "SYNC_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.Server.ReadTimeout, err = parseDurationValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = parseDurationValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = parseDurationValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}

	if err := cfg.expandDatabasePath(); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Database.Path == "" {
		return errors.New("database path cannot be empty after expansion")
	}

	if c.Remote.BaseURL == "" {
		return errors.New("REMOTE_URL is required")
	}
	if !strings.HasPrefix(c.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Remote.BaseURL, "https://") {
		return fmt.Errorf("invalid remote url: %s", c.Remote.BaseURL)
	}

	if c.Sync.Interval < time.Second {
		return fmt.Errorf("sync interval %s is too short (minimum 1s)", c.Sync.Interval)
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", c.Sync.BatchSize)
	}

	return nil
}

// expandDatabasePath expands ~ and makes the path absolute.
// Defaults to ~/Leafwise/leafwise.db.
func (c *Config) expandDatabasePath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Leafwise", "leafwise.db")

	expanded, err := expandPath(c.Database.Path, defaultPath)
	if err != nil {
		return err
	}
	c.Database.Path = expanded
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// parseDurationValue resolves a duration setting across flag, env, and default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	str := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(strings.ReplaceAll(envKey, "_", " ")), str, err)
	}
	return d, nil
}
