package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the key service.
type Config struct {
	HTTPPort   string
	JWTSecret  []byte
	SessionTTL time.Duration
	LogLevel   string
	Database   DatabaseConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	UsageQueue UsageQueueConfig
	AccessLog  AccessLogConfig
	Bootstrap  BootstrapConfig
}

// DatabaseConfig holds database connection settings.
// An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimitConfig holds limiter settings
type RateLimitConfig struct {
	Enabled bool
	// CheckTimeout bounds a single limiter round trip before failing open
	CheckTimeout time.Duration

	IPEnabled              bool
	AnonymousPerMinute     int
	AuthenticatedPerMinute int
	PremiumPerMinute       int

	// LoginPerMinute guards the password endpoint per client IP
	LoginPerMinute int
}

// UsageQueueConfig holds settings for asynchronous usage recording
type UsageQueueConfig struct {
	Backend      string // "memory" or "redis"
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// AccessLogConfig enables the JSONL access log. An empty File disables it.
type AccessLogConfig struct {
	File       string // template with one %s for the rotation timestamp
	MaxSizeMB  int
	MaxFiles   int
	BufferSize int
}

// BootstrapConfig names a superuser created at startup when missing
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// loadDotEnv loads variables from the given files without overriding the
// process environment. Missing files are ignored.
func loadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	envFile := getEnvString("KEYGUARD_ENV_FILE", ".env")
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:   getEnvString("HTTP_PORT", "8080"),
		JWTSecret:  []byte(getEnvString("JWT_SECRET", "supersecretkey")),
		SessionTTL: getEnvDuration("SESSION_TTL", 30*time.Minute),
		LogLevel:   getEnvString("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:                getEnvBool("RATE_LIMIT_ENABLED", true),
			CheckTimeout:           getEnvDuration("RATE_LIMIT_CHECK_TIMEOUT", 250*time.Millisecond),
			IPEnabled:              getEnvBool("RATE_LIMIT_IP_ENABLED", true),
			AnonymousPerMinute:     getEnvInt("RATE_LIMIT_ANONYMOUS", 10),
			AuthenticatedPerMinute: getEnvInt("RATE_LIMIT_AUTHENTICATED", 100),
			PremiumPerMinute:       getEnvInt("RATE_LIMIT_PREMIUM", 1000),
			LoginPerMinute:         getEnvInt("RATE_LIMIT_LOGIN", 5),
		},
		UsageQueue: UsageQueueConfig{
			Backend:      strings.ToLower(getEnvString("USAGE_QUEUE_BACKEND", "memory")),
			BatchSize:    getEnvInt("USAGE_QUEUE_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("USAGE_QUEUE_BATCH_TIMEOUT", 1*time.Second),
			MaxRetries:   getEnvInt("USAGE_QUEUE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("USAGE_QUEUE_RETRY_BACKOFF", 500*time.Millisecond),
		},
		AccessLog: AccessLogConfig{
			File:       os.Getenv("ACCESS_LOG_FILE"),
			MaxSizeMB:  getEnvInt("ACCESS_LOG_MAX_SIZE_MB", 100),
			MaxFiles:   getEnvInt("ACCESS_LOG_MAX_FILES", 10),
			BufferSize: getEnvInt("ACCESS_LOG_BUFFER_SIZE", 4096),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    os.Getenv("ADMIN_BOOTSTRAP_EMAIL"),
			AdminPassword: os.Getenv("ADMIN_BOOTSTRAP_PASSWORD"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if len(c.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.UsageQueue.Backend != "memory" && c.UsageQueue.Backend != "redis" {
		return fmt.Errorf("USAGE_QUEUE_BACKEND must be memory or redis, got %q", c.UsageQueue.Backend)
	}
	if c.UsageQueue.BatchSize < 1 {
		return fmt.Errorf("USAGE_QUEUE_BATCH_SIZE must be positive")
	}
	if c.RateLimit.AnonymousPerMinute < 1 || c.RateLimit.AuthenticatedPerMinute < 1 || c.RateLimit.PremiumPerMinute < 1 {
		return fmt.Errorf("IP rate limits must be positive")
	}
	if c.RateLimit.LoginPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_LOGIN must be positive")
	}
	if c.AccessLog.File != "" && strings.Count(c.AccessLog.File, "%s") != 1 {
		return fmt.Errorf("ACCESS_LOG_FILE must contain exactly one %%s, got %q", c.AccessLog.File)
	}
	return nil
}

// UsesDatabase reports whether a Postgres store is configured
func (c *Config) UsesDatabase() bool {
	return c.Database.URL != ""
}
