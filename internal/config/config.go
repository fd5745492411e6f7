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

	"github.com/kirillkom/comment-labeler/internal/core/domain"
)

// DefaultEnvFile is read by LoadEnvFile when no path is given.
const DefaultEnvFile = ".env"

// LoadEnvFile copies variables from a dotenv file into the process
// environment. Variables already set win, and a missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return domain.WrapError(domain.ErrConfig, "load env file "+path, err)
	}
	return nil
}

const (
	CacheBackendFile     = "file"
	CacheBackendPostgres = "postgres"
	CacheBackendSQLite   = "sqlite"
	CacheBackendRedis    = "redis"
)

type Config struct {
	LogLevel  string
	LogFormat string

	OllamaHost     string
	OllamaModel    string
	RequestTimeout time.Duration

	BatchSize       int
	Temperature     float64
	TopP            float64
	SleepBetween    time.Duration
	CheckpointEvery int

	InputPath       string
	OutputPath      string
	CommentColumn   string
	IDColumn        string
	LabelColumn     string
	OutputDelimiter string

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	BreakerEnabled      bool

	CacheBackend   string
	CachePath      string
	CacheDSN       string
	RedisURL       string
	RetryFallbacks bool

	NATSURL     string
	NATSSubject string

	MetricsAddr string
}

func Load() Config {
	return Config{
		LogLevel:  mustEnv("LOG_LEVEL", "info"),
		LogFormat: mustEnv("LOG_FORMAT", "json"),

		OllamaHost:     strings.TrimRight(mustEnv("OLLAMA_HOST", "http://127.0.0.1:11434"), "/"),
		OllamaModel:    mustEnv("OLLAMA_MODEL", "gpt-oss:20b-cloud"),
		RequestTimeout: time.Duration(mustEnvInt("REQUEST_TIMEOUT_SECONDS", 180)) * time.Second,

		BatchSize:       mustEnvInt("BATCH_SIZE", 5),
		Temperature:     mustEnvFloat("TEMPERATURE", 0.0),
		TopP:            mustEnvFloat("TOP_P", 0.9),
		SleepBetween:    time.Duration(mustEnvInt("SLEEP_BETWEEN_BATCHES_MS", 200)) * time.Millisecond,
		CheckpointEvery: mustEnvInt("CHECKPOINT_EVERY", 0),

		InputPath:       mustEnv("INPUT_CSV", "input.csv"),
		OutputPath:      mustEnv("OUTPUT_CSV", ""),
		CommentColumn:   mustEnv("COMMENT_COLUMN", "Comentario"),
		IDColumn:        mustEnv("ID_COLUMN", "#"),
		LabelColumn:     mustEnv("LABEL_COLUMN", ""),
		OutputDelimiter: mustEnv("OUTPUT_DELIMITER", ""),

		RetryMaxAttempts:    mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff: time.Duration(mustEnvInt("RETRY_INITIAL_BACKOFF_MS", 1000)) * time.Millisecond,
		BreakerEnabled:      mustEnvBool("BREAKER_ENABLED", false),

		CacheBackend:   strings.ToLower(mustEnv("CACHE_BACKEND", CacheBackendFile)),
		CachePath:      mustEnv("CACHE_PATH", ""),
		CacheDSN:       mustEnv("CACHE_DSN", ""),
		RedisURL:       mustEnv("REDIS_URL", ""),
		RetryFallbacks: mustEnvBool("RETRY_FALLBACKS", false),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "labels.batch"),

		MetricsAddr: mustEnv("METRICS_ADDR", ""),
	}
}

// Validate checks ranges once at startup. CLI flags are applied before it runs.
func (c Config) Validate() error {
	switch {
	case c.OllamaHost == "":
		return configError("OLLAMA_HOST is required")
	case c.OllamaModel == "":
		return configError("OLLAMA_MODEL is required")
	case c.BatchSize < 1:
		return configError("BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	case c.Temperature < 0 || c.Temperature > 2:
		return configError("TEMPERATURE must be within [0, 2], got %v", c.Temperature)
	case c.TopP <= 0 || c.TopP > 1:
		return configError("TOP_P must be within (0, 1], got %v", c.TopP)
	case c.SleepBetween < 0:
		return configError("SLEEP_BETWEEN_BATCHES_MS must be >= 0")
	case c.CheckpointEvery < 0:
		return configError("CHECKPOINT_EVERY must be >= 0, got %d", c.CheckpointEvery)
	case c.RequestTimeout <= 0:
		return configError("REQUEST_TIMEOUT_SECONDS must be > 0")
	case c.RetryMaxAttempts < 1:
		return configError("RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts)
	case c.RetryInitialBackoff <= 0:
		return configError("RETRY_INITIAL_BACKOFF_MS must be > 0, got %s", c.RetryInitialBackoff)
	case len([]rune(c.OutputDelimiter)) > 1:
		return configError("OUTPUT_DELIMITER must be a single character, got %q", c.OutputDelimiter)
	}

	switch c.CacheBackend {
	case CacheBackendFile, CacheBackendSQLite:
	case CacheBackendPostgres:
		if c.CacheDSN == "" {
			return configError("CACHE_DSN is required for the postgres cache backend")
		}
	case CacheBackendRedis:
		if c.RedisURL == "" {
			return configError("REDIS_URL is required for the redis cache backend")
		}
	default:
		return configError("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	return nil
}

func configError(format string, args ...any) error {
	return domain.WrapError(domain.ErrConfig, "validate config", fmt.Errorf(format, args...))
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
