package beacon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Cache backend selectors accepted by Config.CacheBackend.
const (
	CacheBackendMemory     = "memory"
	CacheBackendFilesystem = "filesystem"
	CacheBackendNull       = "null"
	CacheBackendRedis      = "redis"
	CacheBackendSQLite     = "sqlite"
)

// DefaultEndpoint is the production beacon service.
const DefaultEndpoint = "https://api.beacondeck.io"

// Config holds the client configuration. Every field can be set
// programmatically or loaded from the environment via LoadConfig.
type Config struct {
	// Token identifies the environment. Required.
	Token string `env:"BEACON_TOKEN"`

	// Endpoint overrides the service base URL.
	Endpoint string `env:"BEACON_ENDPOINT" envDefault:"https://api.beacondeck.io"`

	// CacheBackend selects the rule-set cache implementation:
	// memory, filesystem, null, redis, or sqlite.
	CacheBackend string `env:"BEACON_CACHE" envDefault:"memory"`

	// CacheTTL bounds how long a cached rule set is served before the
	// next load goes remote again.
	CacheTTL time.Duration `env:"BEACON_CACHE_TTL" envDefault:"10m"`

	// CacheDir is required when CacheBackend is "filesystem".
	CacheDir string `env:"BEACON_CACHE_DIR"`

	// RedisURL is required when CacheBackend is "redis".
	RedisURL string `env:"BEACON_REDIS_URL"`

	// SQLitePath is required when CacheBackend is "sqlite".
	SQLitePath string `env:"BEACON_SQLITE_PATH"`

	// ReportUsage toggles fire-and-forget usage reporting.
	ReportUsage bool `env:"BEACON_REPORT_USAGE" envDefault:"true"`

	// MaxFetchAttempts caps remote fetch attempts, retries included.
	MaxFetchAttempts int `env:"BEACON_FETCH_ATTEMPTS" envDefault:"3"`

	// LogLevel is used when no Logger is injected and logging is wanted:
	// "debug", "info", "warn", "error". Empty disables logging entirely.
	LogLevel string `env:"BEACON_LOG_LEVEL"`

	// Logger overrides the built-in logger factory.
	Logger *slog.Logger `env:"-"`
}

// LoadConfig reads configuration from the environment, preceded by a
// best-effort .env load, and validates it.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, &ConfigurationError{Reason: "parse environment: " + err.Error(), Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration, returning a ConfigurationError on
// the first violation.
func (c Config) Validate() error {
	if c.Token == "" {
		return &ConfigurationError{Reason: "token is required"}
	}

	switch c.CacheBackend {
	case CacheBackendMemory, CacheBackendNull:
	case CacheBackendFilesystem:
		if c.CacheDir == "" {
			return &ConfigurationError{Reason: "cache dir is required for the filesystem backend"}
		}
	case CacheBackendRedis:
		if c.RedisURL == "" {
			return &ConfigurationError{Reason: "redis url is required for the redis backend"}
		}
	case CacheBackendSQLite:
		if c.SQLitePath == "" {
			return &ConfigurationError{Reason: "sqlite path is required for the sqlite backend"}
		}
	case "":
		return &ConfigurationError{Reason: "cache backend is required"}
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown cache backend %q", c.CacheBackend)}
	}

	if c.CacheTTL < 0 {
		return &ConfigurationError{Reason: "cache ttl must not be negative"}
	}
	if c.MaxFetchAttempts < 1 {
		return &ConfigurationError{Reason: "fetch attempts must be at least 1"}
	}
	return nil
}
