// Package config provides configuration management for the blog API.
// It loads and validates configuration values from environment variables, with support for
// required variables, default values, and collective error reporting: every problem found
// is reported at once instead of failing on the first missing variable.
// The resulting AppConfig is built once in main and handed by pointer to each component.
package config

import (
	"fmt"
	// `os` package provides operating system functionalities, like reading environment variables.
	"os"
	"strconv"
	"strings"
	"time"

	// `go-multierror` collects every configuration problem into one error value.
	"github.com/hashicorp/go-multierror"
)

// Store drivers understood by StoreConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver         string // "postgres" or "memory"
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	MaxSize        int    // connection pool size, clamped to [5, 100]
	MigrationsPath string // directory holding golang-migrate SQL files
}

// DSN renders the connection string used by both pgxpool and golang-migrate.
func (c *StoreConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.DBName,
	)
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	JWTSecret     string        // Secret key for signing JWTs
	TokenDuration time.Duration // Lifetime of an issued token
	BcryptCost    int           // Work factor for password hashes
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        // Port for the HTTP server
	ClientURL      string        // Allowed CORS origin
	RequestTimeout time.Duration // Upper bound for a single request
}

// UploadsConfig holds asset storage configuration.
type UploadsConfig struct {
	Dir               string // Directory assets are written to and served from
	ThumbnailMaxBytes int64
	AvatarMaxBytes    int64
	CleanupWorkers    int // Goroutines removing replaced/deleted assets
	CleanupQueueSize  int
	SweepInterval     time.Duration // Period of the orphan sweep; 0 disables it
	SweepMinAge       time.Duration // Files younger than this are never swept
}

// RateLimitConfig configures the Redis-backed limiter on register/login.
// An empty RedisAddr disables rate limiting.
type RateLimitConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MaxRequests   int
	Window        time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c *RateLimitConfig) Enabled() bool { return c.RedisAddr != "" }

// EventsConfig configures domain event publishing. An empty NATSURL disables it.
type EventsConfig struct {
	NATSURL string
}

// LogConfig controls the logrus logger built in main.
type LogConfig struct {
	Level  string
	AppEnv string // "production" switches to JSON output
}

// AppConfig is the top-level configuration structure for the application.
type AppConfig struct {
	Store     *StoreConfig
	Auth      *AuthConfig
	Server    *ServerConfig
	Uploads   *UploadsConfig
	RateLimit *RateLimitConfig
	Events    *EventsConfig
	Log       *LogConfig
}

// Helper function to get a required environment variable.
// Records an error if the variable is not set.
func getRequiredEnv(key string, errs *multierror.Error) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		errs.Errors = append(errs.Errors, fmt.Errorf("missing required environment variable: %s", key))
		return ""
	}
	return value
}

// Helper function to get an optional environment variable with a default string value.
func getOptionalEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// Helper function to get an optional environment variable parsed as an int.
// Uses defaultValue if not set or if parsing fails. Records an error if parsing fails.
func getOptionalEnvInt(key string, defaultValue int, errs *multierror.Error) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		errs.Errors = append(errs.Errors, fmt.Errorf("invalid value for %s: expected integer, got '%s': %w", key, valueStr, err))
		return defaultValue
	}
	return valueInt
}

// Helper function to get an optional positive int64 (byte sizes).
func getOptionalEnvBytes(key string, defaultValue int64, errs *multierror.Error) int64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil || value <= 0 {
		errs.Errors = append(errs.Errors, fmt.Errorf("invalid value for %s: expected positive byte count, got '%s'", key, valueStr))
		return defaultValue
	}
	return value
}

// Helper function to get an optional environment variable parsed as time.Duration.
// `time.ParseDuration` expects a string like "15m", "1h30s".
func getOptionalEnvDuration(key string, defaultValue time.Duration, errs *multierror.Error) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	valueDuration, err := time.ParseDuration(valueStr)
	if err != nil {
		errs.Errors = append(errs.Errors, fmt.Errorf("invalid value for %s: expected duration string, got '%s': %w", key, valueStr, err))
		return defaultValue
	}
	return valueDuration
}

// clampPoolSize keeps pool sizes within [5, 100], recording an error when it had to clamp.
func clampPoolSize(size int, varName string, errs *multierror.Error) int {
	if size < 5 {
		errs.Errors = append(errs.Errors, fmt.Errorf("pool size for %s (%d) is less than minimum 5", varName, size))
		return 5
	}
	if size > 100 {
		errs.Errors = append(errs.Errors, fmt.Errorf("pool size for %s (%d) is greater than maximum 100", varName, size))
		return 100
	}
	return size
}

// LoadConfig creates and returns an AppConfig by reading and validating environment variables.
// It collects all errors encountered during loading and returns them as a single error.
func LoadConfig() (*AppConfig, error) {
	errs := &multierror.Error{}

	// Store Configuration
	store := &StoreConfig{
		Driver:         strings.ToLower(getOptionalEnv("STORE_DRIVER", DriverPostgres)),
		MigrationsPath: getOptionalEnv("MIGRATIONS_PATH", "migrations"),
	}
	switch store.Driver {
	case DriverPostgres:
		// Database credentials are only required when Postgres is actually used.
		store.User = getRequiredEnv("DB_USER", errs)
		store.Password = getRequiredEnv("DB_PASSWORD", errs)
		store.DBName = getRequiredEnv("DB_NAME", errs)
		store.Host = getOptionalEnv("DB_HOST", "localhost")
		store.Port = getOptionalEnvInt("DB_PORT", 5432, errs)
		store.MaxSize = clampPoolSize(getOptionalEnvInt("DB_POOL_SIZE", 10, errs), "DB_POOL_SIZE", errs)
	case DriverMemory:
	default:
		errs.Errors = append(errs.Errors, fmt.Errorf("invalid value for STORE_DRIVER: %q (expected %q or %q)", store.Driver, DriverPostgres, DriverMemory))
	}

	// Auth Configuration
	auth := &AuthConfig{
		JWTSecret:     getRequiredEnv("JWT_SECRET", errs),
		TokenDuration: getOptionalEnvDuration("JWT_TOKEN_DURATION", 24*time.Hour, errs),
		BcryptCost:    getOptionalEnvInt("BCRYPT_COST", 10, errs),
	}

	// Server Configuration
	server := &ServerConfig{
		Port:           getOptionalEnv("PORT", "5000"),
		ClientURL:      getOptionalEnv("CLIENT_URL", "*"),
		RequestTimeout: getOptionalEnvDuration("REQUEST_TIMEOUT", 60*time.Second, errs),
	}

	// Uploads Configuration
	uploads := &UploadsConfig{
		Dir:               getOptionalEnv("UPLOADS_DIR", "uploads"),
		ThumbnailMaxBytes: getOptionalEnvBytes("THUMBNAIL_MAX_BYTES", 2_000_000, errs),
		AvatarMaxBytes:    getOptionalEnvBytes("AVATAR_MAX_BYTES", 500_000, errs),
		CleanupWorkers:    getOptionalEnvInt("CLEANUP_WORKERS", 2, errs),
		CleanupQueueSize:  getOptionalEnvInt("CLEANUP_QUEUE_SIZE", 64, errs),
		SweepInterval:     getOptionalEnvDuration("ORPHAN_SWEEP_INTERVAL", 0, errs),
		SweepMinAge:       getOptionalEnvDuration("ORPHAN_SWEEP_MIN_AGE", time.Hour, errs),
	}
	if uploads.CleanupWorkers < 1 {
		errs.Errors = append(errs.Errors, fmt.Errorf("CLEANUP_WORKERS must be at least 1, got %d", uploads.CleanupWorkers))
		uploads.CleanupWorkers = 1
	}

	rateLimit := &RateLimitConfig{
		RedisAddr:     getOptionalEnv("REDIS_ADDR", ""),
		RedisPassword: getOptionalEnv("REDIS_PASSWORD", ""),
		RedisDB:       getOptionalEnvInt("REDIS_DB", 0, errs),
		MaxRequests:   getOptionalEnvInt("RATE_LIMIT_MAX", 20, errs),
		Window:        getOptionalEnvDuration("RATE_LIMIT_WINDOW", time.Minute, errs),
	}

	events := &EventsConfig{NATSURL: getOptionalEnv("NATS_URL", "")}

	logCfg := &LogConfig{
		Level:  getOptionalEnv("LOG_LEVEL", "info"),
		AppEnv: getOptionalEnv("APP_ENV", "development"),
	}

	// If any errors were collected during loading, return them together.
	if len(errs.Errors) > 0 {
		errs.ErrorFormat = formatErrors
		return nil, errs
	}

	return &AppConfig{
		Store:     store,
		Auth:      auth,
		Server:    server,
		Uploads:   uploads,
		RateLimit: rateLimit,
		Events:    events,
		Log:       logCfg,
	}, nil
}

func formatErrors(list []error) string {
	lines := make([]string, len(list))
	for i, err := range list {
		lines[i] = err.Error()
	}
	return "configuration errors:\n- " + strings.Join(lines, "\n- ")
}
