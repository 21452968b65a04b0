// Package beacon is the Go client for the beacon feature-flag service.
//
// A Client fetches the environment's rule-set document, caches it
// through a pluggable backend, and resolves flags against a
// caller-supplied evaluation context:
//
//	cfg, err := beacon.LoadConfig()
//	if err != nil { ... }
//	client, err := beacon.New(cfg)
//	if err != nil { ... }
//	defer client.Close()
//
//	user := beacon.NewContext("user")
//	user.SetAttribute("country", "US")
//
//	flag, err := client.WithContext(user).SingleWithDefault(ctx, "new-checkout", false)
//	if flag.IsEnabled() { ... }
//
// Callers that supply a default for every flag they read are insulated
// from remote failures except on the very first, uncached load.
package beacon

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/beacondeck/beacon-go/api"
	"github.com/beacondeck/beacon-go/cache"
	"github.com/beacondeck/beacon-go/internal/core"
	"github.com/beacondeck/beacon-go/internal/logging"
	"github.com/beacondeck/beacon-go/internal/metrics"
)

// Domain types re-exported from the evaluation core.
type (
	Flag      = core.Flag
	FlagType  = core.FlagType
	Target    = core.Target
	Value     = core.Value
	Rule      = core.Rule
	Clause    = core.Clause
	Operator  = core.Operator
	Context   = core.Context
	Attribute = core.Attribute
	Defaults  = core.Defaults
	RuleSet   = core.RuleSet
)

// NewContext creates an evaluation context for the given entity type.
func NewContext(entityType string) Context { return core.NewContext(entityType) }

// NewDefaults creates an empty defaults collection.
func NewDefaults() *Defaults { return core.NewDefaults() }

// DefaultsFromMap creates a defaults collection pre-populated from m.
func DefaultsFromMap(m map[string]any) *Defaults { return core.DefaultsFromMap(m) }

// Client is the assembled beacon client: an api client, a cache backend,
// metrics, and the flag manager wired together from a Config.
type Client struct {
	*Manager

	metrics *metrics.Metrics
	redis   *redis.Client
	sqlite  *cache.SQLite
}

// New builds a Client from cfg. Invalid configuration is rejected with a
// ConfigurationError before any I/O happens.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		if cfg.LogLevel != "" {
			log = logging.New(cfg.LogLevel)
		} else {
			log = logging.Discard()
		}
	}

	m := metrics.New()
	client := &Client{metrics: m}

	store, err := client.buildCache(cfg, log)
	if err != nil {
		return nil, err
	}

	fetcher := api.NewClient(api.Config{
		Endpoint:    cfg.Endpoint,
		Token:       cfg.Token,
		MaxAttempts: cfg.MaxFetchAttempts,
		Logger:      log,
		Metrics:     m,
	})

	client.Manager = NewManager(ManagerConfig{
		Fetcher:      fetcher,
		Cache:        store,
		CacheBackend: cfg.CacheBackend,
		CacheTTL:     cfg.CacheTTL,
		ReportUsage:  cfg.ReportUsage,
		Logger:       log,
		Metrics:      m,
	})
	return client, nil
}

func (c *Client) buildCache(cfg Config, log *slog.Logger) (cache.Store, error) {
	switch cfg.CacheBackend {
	case CacheBackendMemory:
		return cache.NewMemory(), nil
	case CacheBackendNull:
		return cache.Null{}, nil
	case CacheBackendFilesystem:
		return cache.NewFilesystem(cfg.CacheDir, log), nil
	case CacheBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, &ConfigurationError{Reason: "parse redis url: " + err.Error(), Err: err}
		}
		c.redis = redis.NewClient(opts)
		return cache.NewRedis(c.redis, log), nil
	case CacheBackendSQLite:
		store, err := cache.NewSQLite(cfg.SQLitePath, log)
		if err != nil {
			return nil, &ConfigurationError{Reason: "open sqlite cache: " + err.Error(), Err: err}
		}
		c.sqlite = store
		return store, nil
	default:
		return nil, &ConfigurationError{Reason: "unknown cache backend " + cfg.CacheBackend}
	}
}

// MetricsRegistry exposes the client's Prometheus registry so host
// applications can mount it on their metrics endpoint.
func (c *Client) MetricsRegistry() *prometheus.Registry {
	return c.metrics.Registry
}

// Close releases cache backend resources held by the client.
func (c *Client) Close() error {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return err
		}
	}
	if c.sqlite != nil {
		return c.sqlite.Close()
	}
	return nil
}
