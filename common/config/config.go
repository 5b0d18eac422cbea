package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	FFmpeg    FFmpegConfig
	Ingest    IngestConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name          string
	Port          int
	Environment   string
	LogLevel      string
	LogFormat     string
	PublicBaseURL string // prefix for artifact URLs, empty derives it from each request
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host          string
	Port          int
	Database      string
	User          string
	Password      string
	MaxConns      int
	MinConns      int
	MaxIdleTime   time.Duration
	MaxLifetime   time.Duration
	AutoMigrate   bool
	MigrationsDir string // empty uses the embedded migrations
	LogLevel      string // pgx trace level: trace, debug, info, warn, error, none
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Required bool // false degrades to process-local state when unreachable
}

// StorageConfig holds blob store settings
type StorageConfig struct {
	VideoDir      string
	VideoMount    string
	ImageDir      string
	ImageMount    string
	HashAlgorithm string // sha256 or blake3
	ChunkSize     int
	TmpMaxAge     time.Duration
	SweepSchedule string // cron expression, empty disables the sweeper
}

// FFmpegConfig holds external transcoder settings
type FFmpegConfig struct {
	FFmpegPath  string
	FFprobePath string
	SidecarDir  string // directory searched before $PATH
}

// IngestConfig holds ingestion pipeline settings
type IngestConfig struct {
	BusCapacity       int
	MaxConcurrency    int // 0 means unbounded
	InflightTTL       time.Duration
	ProgressTTL       time.Duration
	HeartbeatInterval time.Duration
	MaxUploadBytes    int64
	Policy            string // CEL admission expression
	UploadRateLimit   int64  // uploads per user per window, 0 disables
	UploadRateWindow  time.Duration
	InternalSecret    string // X-Internal-Service value exempt from upload limits
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:          serviceName,
			Port:          getEnvInt("PORT", 8080),
			Environment:   getEnv("ENVIRONMENT", "development"),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
			LogFormat:     getEnv("LOG_FORMAT", "text"),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		},
		Database: DatabaseConfig{
			Host:          getEnv("POSTGRES_HOST", "localhost"),
			Port:          getEnvInt("POSTGRES_PORT", 5432),
			Database:      getEnv("POSTGRES_DB", "materials"),
			User:          getEnv("POSTGRES_USER", "materials"),
			Password:      getEnv("POSTGRES_PASSWORD", "materials"),
			MaxConns:      getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:      getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime:   getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime:   getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
			AutoMigrate:   getEnvBool("POSTGRES_AUTO_MIGRATE", true),
			MigrationsDir: getEnv("POSTGRES_MIGRATIONS_DIR", ""),
			LogLevel:      getEnv("POSTGRES_LOG_LEVEL", "warn"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Required: getEnvBool("REDIS_REQUIRED", false),
		},
		Storage: StorageConfig{
			VideoDir:      getEnv("STORAGE_DIR", "./storage"),
			VideoMount:    getEnv("STORAGE_MOUNT", "/storage"),
			ImageDir:      getEnv("IMAGE_STORAGE_DIR", "./storage/images"),
			ImageMount:    getEnv("IMAGE_STORAGE_MOUNT", "/storage/images"),
			HashAlgorithm: getEnv("STORAGE_HASH", "sha256"),
			ChunkSize:     getEnvInt("STORAGE_CHUNK_SIZE", 32*1024),
			TmpMaxAge:     getEnvDuration("STORAGE_TMP_MAX_AGE", 6*time.Hour),
			SweepSchedule: getEnv("STORAGE_SWEEP_SCHEDULE", "@every 1h"),
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:  getEnv("FFMPEG_PATH", ""),
			FFprobePath: getEnv("FFPROBE_PATH", ""),
			SidecarDir:  getEnv("FFMPEG_SIDECAR_DIR", ""),
		},
		Ingest: IngestConfig{
			BusCapacity:       getEnvInt("INGEST_BUS_CAPACITY", 32),
			MaxConcurrency:    getEnvInt("TRANSCODE_MAX_CONCURRENCY", 2),
			InflightTTL:       getEnvDuration("INGEST_INFLIGHT_TTL", 2*time.Hour),
			ProgressTTL:       getEnvDuration("INGEST_PROGRESS_TTL", 24*time.Hour),
			HeartbeatInterval: getEnvDuration("SSE_HEARTBEAT_INTERVAL", 15*time.Second),
			MaxUploadBytes:    getEnvInt64("INGEST_MAX_UPLOAD_BYTES", 4<<30),
			Policy:            getEnv("INGEST_POLICY", ""),
			UploadRateLimit:   getEnvInt64("INGEST_UPLOAD_RATE_LIMIT", 30),
			UploadRateWindow:  getEnvDuration("INGEST_UPLOAD_RATE_WINDOW", time.Minute),
			InternalSecret:    getEnv("INTERNAL_SERVICE_SECRET", ""),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", false),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if _, err := url.Parse(c.Service.PublicBaseURL); err != nil {
		return fmt.Errorf("invalid public base url %q: %w", c.Service.PublicBaseURL, err)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Storage.VideoDir == "" || c.Storage.ImageDir == "" {
		return fmt.Errorf("storage directories are required")
	}

	switch c.Storage.HashAlgorithm {
	case "sha256", "blake3":
	default:
		return fmt.Errorf("unsupported hash algorithm: %s", c.Storage.HashAlgorithm)
	}

	if c.Storage.ChunkSize <= 0 {
		return fmt.Errorf("storage chunk size must be positive")
	}

	if c.Ingest.BusCapacity <= 0 {
		return fmt.Errorf("ingest bus capacity must be positive")
	}

	if c.Ingest.MaxConcurrency < 0 {
		return fmt.Errorf("transcode max concurrency must be >= 0")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// MigrationURL returns the connection string in the form golang-migrate expects
func (c *Config) MigrationURL() string {
	return "pgx5" + strings.TrimPrefix(c.DatabaseURL(), "postgres")
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// BaseURL parses the public base URL, nil when unset
func (c *Config) BaseURL() *url.URL {
	if c.Service.PublicBaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.Service.PublicBaseURL)
	if err != nil {
		return nil
	}
	return u
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
