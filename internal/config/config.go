package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/learnlog/internal/logger"
)

// Config holds the application's configuration values.
type Config struct {
	Server    ServerConfig
	Logging   logger.Config
	Database  DBConfig
	Redis     RedisConfig
	Storage   StorageConfig
	AI        AIConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig
	Review    ReviewConfig
}

type ServerConfig struct {
	Port       string
	AdminToken string
	// ClientRPS and ClientBurst throttle review requests per client address.
	ClientRPS   float64
	ClientBurst int
}

type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig selects the backends. "memory" keeps everything in process
// and is only correct for a single instance.
type StorageConfig struct {
	Reviews  string
	Counters string
}

type AIConfig struct {
	LLMProvider    string
	GeminiAPIKey   string
	OllamaHost     string
	GeneratorModel string
	RequestTimeout time.Duration
}

type QuotaConfig struct {
	Enabled          bool
	GlobalDailyLimit int64
	UserDailyLimit   int64
	Timezone         string
}

type RateLimitConfig struct {
	Provider          string
	RequestsPerMinute int64
	RequestsPerDay    int64
	MinInterval       time.Duration
}

type ReviewConfig struct {
	LockTTL          time.Duration
	MinContentLength int
	MaxContentLength int
	// BatchWorkers bounds concurrent reviews in batch runs.
	BatchWorkers int
}

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates the result.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("failed to read config file", "error", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_CLIENT_RPS", 2.0)
	v.SetDefault("SERVER_CLIENT_BURST", 5)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_OUTPUT", "stdout")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USERNAME", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_DATABASE", "learnlog")
	v.SetDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("STORAGE_REVIEWS", BackendPostgres)
	v.SetDefault("STORAGE_COUNTERS", BackendRedis)

	v.SetDefault("LLM_PROVIDER", "gemini")
	v.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	v.SetDefault("GENERATOR_MODEL_NAME", "gemini-2.5-flash")
	v.SetDefault("AI_REQUEST_TIMEOUT", 30*time.Second)

	v.SetDefault("QUOTA_ENABLED", true)
	v.SetDefault("QUOTA_GLOBAL_DAILY_LIMIT", 1000)
	v.SetDefault("QUOTA_USER_DAILY_LIMIT", 5)
	v.SetDefault("QUOTA_TIMEZONE", "UTC")

	v.SetDefault("RATE_LIMIT_PROVIDER", "gemini")
	v.SetDefault("RATE_LIMIT_RPM", 15)
	v.SetDefault("RATE_LIMIT_RPD", 1500)
	v.SetDefault("RATE_LIMIT_MIN_INTERVAL", 4*time.Second)

	v.SetDefault("REVIEW_LOCK_TTL", 60*time.Second)
	v.SetDefault("REVIEW_MIN_CONTENT_LENGTH", 20)
	v.SetDefault("REVIEW_MAX_CONTENT_LENGTH", 10000)
	v.SetDefault("REVIEW_BATCH_WORKERS", 2)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:        v.GetString("SERVER_PORT"),
			AdminToken:  v.GetString("ADMIN_TOKEN"),
			ClientRPS:   v.GetFloat64("SERVER_CLIENT_RPS"),
			ClientBurst: v.GetInt("SERVER_CLIENT_BURST"),
		},
		Logging: logger.Config{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
			File:   v.GetString("LOG_FILE"),
		},
		Database: DBConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			Username:        v.GetString("DB_USERNAME"),
			Password:        v.GetString("DB_PASSWORD"),
			Database:        v.GetString("DB_DATABASE"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Storage: StorageConfig{
			Reviews:  strings.ToLower(v.GetString("STORAGE_REVIEWS")),
			Counters: strings.ToLower(v.GetString("STORAGE_COUNTERS")),
		},
		AI: AIConfig{
			LLMProvider:    strings.ToLower(v.GetString("LLM_PROVIDER")),
			GeminiAPIKey:   v.GetString("GEMINI_API_KEY"),
			OllamaHost:     v.GetString("OLLAMA_HOST"),
			GeneratorModel: v.GetString("GENERATOR_MODEL_NAME"),
			RequestTimeout: v.GetDuration("AI_REQUEST_TIMEOUT"),
		},
		Quota: QuotaConfig{
			Enabled:          v.GetBool("QUOTA_ENABLED"),
			GlobalDailyLimit: v.GetInt64("QUOTA_GLOBAL_DAILY_LIMIT"),
			UserDailyLimit:   v.GetInt64("QUOTA_USER_DAILY_LIMIT"),
			Timezone:         v.GetString("QUOTA_TIMEZONE"),
		},
		RateLimit: RateLimitConfig{
			Provider:          v.GetString("RATE_LIMIT_PROVIDER"),
			RequestsPerMinute: v.GetInt64("RATE_LIMIT_RPM"),
			RequestsPerDay:    v.GetInt64("RATE_LIMIT_RPD"),
			MinInterval:       v.GetDuration("RATE_LIMIT_MIN_INTERVAL"),
		},
		Review: ReviewConfig{
			LockTTL:          v.GetDuration("REVIEW_LOCK_TTL"),
			MinContentLength: v.GetInt("REVIEW_MIN_CONTENT_LENGTH"),
			MaxContentLength: v.GetInt("REVIEW_MAX_CONTENT_LENGTH"),
			BatchWorkers:     v.GetInt("REVIEW_BATCH_WORKERS"),
		},
	}
}

// Validate checks the configuration for values the core cannot work with.
func (c *Config) Validate() error {
	switch c.Storage.Reviews {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unsupported review storage %q", c.Storage.Reviews)
	}
	switch c.Storage.Counters {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unsupported counter storage %q", c.Storage.Counters)
	}

	switch c.AI.LLMProvider {
	case "gemini":
		if c.AI.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY must be set for the gemini provider")
		}
	case "ollama":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.AI.LLMProvider)
	}
	if c.AI.RequestTimeout <= 0 {
		return fmt.Errorf("AI_REQUEST_TIMEOUT must be positive")
	}

	if c.Quota.GlobalDailyLimit <= 0 || c.Quota.UserDailyLimit <= 0 {
		return fmt.Errorf("quota limits must be positive")
	}
	if _, err := c.Quota.Location(); err != nil {
		return err
	}

	if c.RateLimit.Provider == "" {
		return fmt.Errorf("RATE_LIMIT_PROVIDER must be set")
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.RequestsPerDay <= 0 {
		return fmt.Errorf("provider rate limits must be positive")
	}
	if c.RateLimit.MinInterval < 0 {
		return fmt.Errorf("RATE_LIMIT_MIN_INTERVAL cannot be negative")
	}

	if c.Review.LockTTL <= 0 {
		return fmt.Errorf("REVIEW_LOCK_TTL must be positive")
	}
	if c.Review.LockTTL <= c.AI.RequestTimeout {
		return fmt.Errorf("REVIEW_LOCK_TTL (%s) must exceed AI_REQUEST_TIMEOUT (%s)", c.Review.LockTTL, c.AI.RequestTimeout)
	}
	if c.Review.MinContentLength < 0 || c.Review.MaxContentLength <= c.Review.MinContentLength {
		return fmt.Errorf("review content length bounds are invalid: min=%d max=%d", c.Review.MinContentLength, c.Review.MaxContentLength)
	}
	return nil
}

// Location resolves the time zone quota days are counted in.
func (q QuotaConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", q.Timezone, err)
	}
	return loc, nil
}
