package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ListenAddr    string
	TLSListenAddr string
	LogLevel      string
	LogFormat     string

	TelegramBotToken string
	TelegramAPIURL   string
	TelegramTimeout  time.Duration
	TelegramRate     float64
	TelegramBurst    int

	GeoAPIURL    string
	GeoTimeout   time.Duration
	GeoCacheSize int
	GeoCacheTTL  time.Duration
	GeoMMDBPath  string

	RateLimit       int
	RateLimitWindow time.Duration
	RateLimitSweep  time.Duration
	MaxFileSize     int64

	DatabaseURL      string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	RetentionDays     int
	RetentionSchedule string
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		TLSListenAddr: getEnv("TLS_LISTEN_ADDR", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramTimeout:  getEnvDuration("TELEGRAM_TIMEOUT", 10*time.Second),
		TelegramRate:     getEnvFloat("TELEGRAM_RATE", 25),
		TelegramBurst:    getEnvInt("TELEGRAM_BURST", 5),

		GeoAPIURL:    getEnv("GEO_API_URL", "http://ip-api.com/json"),
		GeoTimeout:   getEnvDuration("GEO_TIMEOUT", 3*time.Second),
		GeoCacheSize: getEnvInt("GEO_CACHE_SIZE", 10000),
		GeoCacheTTL:  getEnvDuration("GEO_CACHE_TTL", time.Hour),
		GeoMMDBPath:  getEnv("GEOIP_MMDB_PATH", ""),

		RateLimit:       getEnvInt("RATE_LIMIT", 10),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitSweep:  getEnvDuration("RATE_LIMIT_SWEEP", time.Minute),
		MaxFileSize:     getEnvInt64("MAX_FILE_SIZE", 18*1024*1024),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		PostgresUser:     getEnv("POSTGRES_USER", "logrelay"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDatabase: getEnv("POSTGRES_DATABASE", "logrelay"),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Region:    getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		RetentionDays:     getEnvInt("RETENTION_DAYS", 0),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "0 3 * * *"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []string

	if c.RateLimit <= 0 {
		errs = append(errs, "RATE_LIMIT must be positive")
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, "RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimitSweep <= 0 {
		errs = append(errs, "RATE_LIMIT_SWEEP must be positive")
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, "MAX_FILE_SIZE must be positive")
	}
	if c.TelegramTimeout <= 0 {
		errs = append(errs, "TELEGRAM_TIMEOUT must be positive")
	}
	if c.TelegramRate <= 0 || c.TelegramBurst <= 0 {
		errs = append(errs, "TELEGRAM_RATE and TELEGRAM_BURST must be positive")
	}
	if c.GeoTimeout <= 0 {
		errs = append(errs, "GEO_TIMEOUT must be positive")
	}
	if c.GeoCacheSize <= 0 {
		errs = append(errs, "GEO_CACHE_SIZE must be positive")
	}
	if c.RetentionDays < 0 {
		errs = append(errs, "RETENTION_DAYS must not be negative")
	}
	if c.RetentionDays > 0 {
		if _, err := cron.ParseStandard(c.RetentionSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("RETENTION_SCHEDULE %q: %v", c.RetentionSchedule, err))
		}
	}
	if (c.S3Bucket != "") != (c.S3Endpoint != "") {
		errs = append(errs, "S3_BUCKET and S3_ENDPOINT must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ArchiveEnabled reports whether uploads are copied to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != "" && c.S3Endpoint != ""
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(c *Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if strings.EqualFold(c.LogFormat, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.WithField("log_level", c.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
