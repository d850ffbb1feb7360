package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the media engine.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"media-engine"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"MEDIA_ENGINE_PORT" envDefault:"8290"`
	LogLevel        string        `env:"MEDIA_LOG_LEVEL" envDefault:"info"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Database (required, no default)
	DBPostgresqlWriteDSN string `env:"DB_POSTGRESQL_WRITE_DSN,notEmpty"`

	// Database Connection Pool
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Public URL base for served media (e.g. "https://cdn.example.com")
	PublicBaseURL string `env:"MEDIA_PUBLIC_BASE_URL"`

	// Storage Backend Selection
	StorageBackend string `env:"MEDIA_STORAGE_BACKEND" envDefault:"local"` // Options: "local" or "s3"

	// Local Storage Configuration
	LocalStoragePath string `env:"MEDIA_LOCAL_STORAGE_PATH" envDefault:"./media-data"`

	// S3 Storage Configuration
	S3Endpoint     string `env:"MEDIA_S3_ENDPOINT"`
	S3Region       string `env:"MEDIA_S3_REGION" envDefault:"us-west-2"`
	S3Bucket       string `env:"MEDIA_S3_BUCKET"`
	S3AccessKeyID  string `env:"MEDIA_S3_ACCESS_KEY_ID"`
	S3SecretKey    string `env:"MEDIA_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle bool   `env:"MEDIA_S3_USE_PATH_STYLE" envDefault:"true"`

	// Upload ceilings, enforced before any expensive processing runs.
	MaxUploadBytes int64 `env:"MEDIA_MAX_BYTES" envDefault:"20971520"` // 20 MiB for opaque binary uploads
	MaxVectorBytes int64 `env:"MEDIA_MAX_VECTOR_BYTES" envDefault:"2097152"` // 2 MiB for vector/text formats

	// Image normalization policy
	MaxImageDimension int `env:"MEDIA_MAX_DIMENSION" envDefault:"1920"`
	JPEGQuality       int `env:"MEDIA_JPEG_QUALITY" envDefault:"85"`

	// Lifecycle
	DeleteGraceWindow    time.Duration `env:"MEDIA_DELETE_GRACE_WINDOW" envDefault:"24h"`
	ProcessingStaleAfter time.Duration `env:"MEDIA_PROCESSING_STALE_AFTER" envDefault:"10m"`
	GCInterval           time.Duration `env:"MEDIA_GC_INTERVAL" envDefault:"0"` // 0 disables the in-process ticker

	// Authentication
	AuthEnabled bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuer  string `env:"AUTH_ISSUER"`
	AuthJWKSURL string `env:"AUTH_JWKS_URL"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.S3Bucket = strings.TrimSpace(cfg.S3Bucket)
	cfg.S3AccessKeyID = strings.TrimSpace(cfg.S3AccessKeyID)
	cfg.S3SecretKey = strings.TrimSpace(cfg.S3SecretKey)
	cfg.S3Endpoint = strings.TrimSpace(cfg.S3Endpoint)
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 * 1024 * 1024
	}
	if cfg.MaxVectorBytes <= 0 {
		cfg.MaxVectorBytes = 2 * 1024 * 1024
	}
	if cfg.MaxVectorBytes > cfg.MaxUploadBytes {
		cfg.MaxVectorBytes = cfg.MaxUploadBytes
	}
	if cfg.MaxImageDimension <= 0 {
		cfg.MaxImageDimension = 1920
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 85
	}
	if cfg.AuthEnabled {
		if strings.TrimSpace(cfg.AuthIssuer) == "" {
			return nil, fmt.Errorf("AUTH_ISSUER is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
			return nil, fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ENABLED is true")
		}
	}
	return cfg, nil
}

// GetDatabaseWriteDSN returns the write database connection string.
func (c *Config) GetDatabaseWriteDSN() string {
	return c.DBPostgresqlWriteDSN
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsLocalStorage returns true if local storage backend is configured.
func (c *Config) IsLocalStorage() bool {
	backend := strings.ToLower(strings.TrimSpace(c.StorageBackend))
	return backend == "" || backend == "local"
}

// IsS3Storage returns true if S3 storage backend is configured.
func (c *Config) IsS3Storage() bool {
	return strings.ToLower(strings.TrimSpace(c.StorageBackend)) == "s3"
}
