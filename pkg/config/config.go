package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config is read once at startup from the environment and an optional .env file.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Gemini        GeminiConfig
	Classifier    ClassifierConfig
	Import        ImportConfig
	Storage       StorageConfig
	Cron          CronConfig
}

// GeminiConfig configures the external classifier backend.
// An empty APIKey disables the classifier step of the cascade.
type GeminiConfig struct {
	APIKey string
	Model  string
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	MaxUploadBytes int64
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

// ClassifierConfig controls how often and how widely the classifier is called.
type ClassifierConfig struct {
	Delay           time.Duration
	Concurrency     int
	CorrectionLimit int
	Timeout         time.Duration
}

type ImportConfig struct {
	Timezone  string
	MaxErrors int
}

type StorageConfig struct {
	Type      string
	LocalPath string
	GCSBucket string
	GCSPrefix string
}

type CronConfig struct {
	Enabled            bool
	ReclassifySchedule string
	ReclassifyLimit    int
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "localhost"),
			Port:           envInt("SERVER_PORT", 8080),
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
			MaxUploadBytes: int64(envInt("SERVER_MAX_UPLOAD_MB", 20)) << 20,
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "ledger-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: envInt("POSTGRES_MAX_CONNS", 10),
			MinConns: envInt("POSTGRES_MIN_CONNS", 2),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: envBool("METRICS_ENABLED", true),
			MetricsPort:    envInt("METRICS_PORT", 9090),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Classifier: ClassifierConfig{
			Delay:           envDuration("CLASSIFIER_DELAY", 150*time.Millisecond),
			Concurrency:     envInt("CLASSIFIER_CONCURRENCY", 1),
			CorrectionLimit: envInt("CLASSIFIER_CORRECTION_LIMIT", 50),
			Timeout:         envDuration("CLASSIFIER_TIMEOUT", 20*time.Second),
		},
		Import: ImportConfig{
			Timezone:  getEnv("IMPORT_TIMEZONE", "Asia/Bangkok"),
			MaxErrors: envInt("IMPORT_MAX_ERRORS", 10),
		},
		Storage: StorageConfig{
			Type:      getEnv("STORAGE_TYPE", "local"),
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./uploads"),
			GCSBucket: getEnv("STORAGE_GCS_BUCKET", ""),
			GCSPrefix: getEnv("STORAGE_GCS_PREFIX", "statements/"),
		},
		Cron: CronConfig{
			Enabled:            envBool("CRON_ENABLED", true),
			ReclassifySchedule: getEnv("RECLASSIFY_SCHEDULE", "30 2 * * *"),
			ReclassifyLimit:    envInt("RECLASSIFY_LIMIT", 50),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Classifier.Delay < 0 {
		return fmt.Errorf("CLASSIFIER_DELAY must not be negative, got %s", c.Classifier.Delay)
	}
	if c.Classifier.Concurrency < 1 {
		return fmt.Errorf("CLASSIFIER_CONCURRENCY must be at least 1, got %d", c.Classifier.Concurrency)
	}
	if c.Import.MaxErrors < 1 {
		return fmt.Errorf("IMPORT_MAX_ERRORS must be at least 1, got %d", c.Import.MaxErrors)
	}
	if _, err := time.LoadLocation(c.Import.Timezone); err != nil {
		return fmt.Errorf("invalid IMPORT_TIMEZONE %q: %w", c.Import.Timezone, err)
	}
	if c.Storage.Type == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("STORAGE_GCS_BUCKET is required when STORAGE_TYPE=gcs")
	}
	return nil
}

// ClassifierEnabled reports whether an external classifier can be built.
func (c *Config) ClassifierEnabled() bool {
	return c.Gemini.APIKey != ""
}

// Location returns the timezone statement dates are interpreted in.
func (c *ImportConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN is in libpq keyword/value form.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int { return envParsed(key, def, strconv.Atoi) }

func envBool(key string, def bool) bool { return envParsed(key, def, strconv.ParseBool) }

func envDuration(key string, def time.Duration) time.Duration {
	return envParsed(key, def, time.ParseDuration)
}

// envParsed falls back to def when the variable is unset or does not parse.
func envParsed[T any](key string, def T, parse func(string) (T, error)) T {
	if v, err := parse(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
