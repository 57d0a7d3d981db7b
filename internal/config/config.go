package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // STATS_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
)

// Store backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// Log configuration
	LogLevel string

	// Visit store configuration
	Store StoreConfig

	// Database Configuration
	Database DatabaseConfig

	// GeoIP Configuration
	GeoIP GeoIPConfig

	// Server Configuration
	Server ServerConfig

	// Stats Configuration
	Stats StatsConfig

	// Legacy JSON import into SQLite
	Import ImportConfig

	// Performance Configuration
	Performance PerformanceConfig
}

// StoreConfig selects where visits are persisted
type StoreConfig struct {
	Backend    string // json or sqlite
	VisitsFile string
}

// DatabaseConfig contains database-related settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLife     time.Duration
	RetentionDays   int           // Number of days to retain visits (0 = unlimited)
	CleanupInterval time.Duration // How often to check for cleanup (default: 1 hour)
	CleanupTime     string        // Time of day to run cleanup (24-hour format, e.g., "02:00")
	VacuumEnabled   bool          // Run VACUUM after cleanup to reclaim space
}

// GeoIPConfig contains GeoIP database settings
type GeoIPConfig struct {
	CityDBPath string
	Enabled    bool
	CacheSize  int
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Host              string
	Port              int
	Production        bool
	TrackPath         string
	RateLimitRequests int // Per client IP within RateLimitWindow, 0 disables
	RateLimitWindow   time.Duration
}

// StatsConfig contains report settings
type StatsConfig struct {
	Timezone string // IANA name, "Local" or "UTC"
}

// ImportConfig contains legacy visits.json import settings
type ImportConfig struct {
	Path  string // Empty disables the import
	Watch bool
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	RealtimeMetricsInterval time.Duration
}

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnv("STORE_BACKEND", BackendJSON)),
			VisitsFile: getEnv("VISITS_FILE", "database/visits.json"),
		},
		Database: DatabaseConfig{
			Path:            getEnv("DB_PATH", "sitestats.db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 3),
			ConnMaxLife:     getEnvAsDuration("DB_CONN_MAX_LIFE", time.Hour),
			RetentionDays:   getEnvAsInt("DB_RETENTION_DAYS", 0),
			CleanupInterval: getEnvAsDuration("DB_CLEANUP_INTERVAL", 1*time.Hour),
			CleanupTime:     getEnv("DB_CLEANUP_TIME", "02:00"),
			VacuumEnabled:   getEnvAsBool("DB_VACUUM_ENABLED", true),
		},
		GeoIP: GeoIPConfig{
			CityDBPath: getEnv("GEOIP_CITY_DB", "geoip/GeoLite2-City.mmdb"),
			Enabled:    getEnvAsBool("GEOIP_ENABLED", false),
			CacheSize:  getEnvAsInt("GEOIP_CACHE_SIZE", 10000),
		},
		Server: ServerConfig{
			Host:       getEnv("SERVER_HOST", "0.0.0.0"),
			Port:       getEnvAsInt("SERVER_PORT", 3000),
			Production: getEnvAsBool("SERVER_PRODUCTION", false),
			TrackPath:  getEnv("TRACK_PATH", "/"),

			RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
		Stats: StatsConfig{
			Timezone: getEnv("STATS_TIMEZONE", "Local"),
		},
		Import: ImportConfig{
			Path:  getEnv("LEGACY_IMPORT_PATH", ""),
			Watch: getEnvAsBool("LEGACY_IMPORT_WATCH", false),
		},
		Performance: PerformanceConfig{
			RealtimeMetricsInterval: getEnvAsDuration("METRICS_INTERVAL", 5*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the services cannot start with
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (expected %s or %s)", c.Store.Backend, BackendJSON, BackendSQLite)
	}

	if !strings.HasPrefix(c.Server.TrackPath, "/") {
		return fmt.Errorf("TRACK_PATH must start with '/', got %q", c.Server.TrackPath)
	}

	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.Server.RateLimitWindow)
	}

	if c.RetentionEnabled() && c.Database.CleanupInterval <= 0 {
		return fmt.Errorf("DB_CLEANUP_INTERVAL must be positive, got %s", c.Database.CleanupInterval)
	}

	if _, err := c.Stats.Location(); err != nil {
		return err
	}

	return nil
}

// RetentionEnabled reports whether old visits are pruned
func (c *Config) RetentionEnabled() bool {
	return c.Database.RetentionDays > 0
}

// Location resolves the zone used for hourly and weekday buckets
func (s StatsConfig) Location() (*time.Location, error) {
	switch s.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_TIMEZONE %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// Helper functions to read environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
