package beacon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/beacondeck/beacon-go/cache"
	"github.com/beacondeck/beacon-go/internal/core"
	"github.com/beacondeck/beacon-go/internal/logging"
	"github.com/beacondeck/beacon-go/internal/metrics"
)

const (
	// rulesCacheKey is the fixed key the serialized rule-set document is
	// cached under. The whole document is one cache entry.
	rulesCacheKey = "beacon.rules"

	usageReportTimeout = 2 * time.Second
)

// RuleFetcher is the remote collaborator the manager loads rules from
// and reports usage to. *api.Client implements it.
type RuleFetcher interface {
	GetRules(ctx context.Context) (core.RuleSet, []byte, error)
	ReportUsage(ctx context.Context, key string, evalCtx *core.Context) error
}

// ruleState holds the loaded flag list. It is shared by reference
// between a manager and every variant derived from it via WithContext or
// WithDefaults, so one load serves them all.
type ruleState struct {
	mu     sync.RWMutex
	flags  []core.Flag
	loaded bool
}

func (s *ruleState) adopt(flags []core.Flag) {
	s.mu.Lock()
	s.flags = flags
	s.loaded = true
	s.mu.Unlock()
}

// ManagerConfig assembles a Manager's collaborators.
type ManagerConfig struct {
	Fetcher RuleFetcher
	Cache   cache.Store
	// CacheBackend names the cache implementation for metric labels.
	CacheBackend string
	// CacheTTL is applied when writing the fetched document through to
	// the cache. Zero caches without expiry.
	CacheTTL time.Duration
	// ReportUsage enables fire-and-forget usage reporting.
	ReportUsage bool
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Manager orchestrates rule loading, per-request evaluation, and
// default-value fallback. Configured variants are derived with
// WithContext and WithDefaults; a Manager itself is never mutated after
// construction, so differently-configured variants can be used
// concurrently without cross-talk.
type Manager struct {
	state    *ruleState
	fetcher  RuleFetcher
	cache    cache.Store
	backend  string
	cacheTTL time.Duration
	usage    bool

	context  core.Context
	defaults *core.Defaults

	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewManager creates a manager with an anonymous evaluation context and
// an empty defaults collection.
func NewManager(cfg ManagerConfig) *Manager {
	store := cfg.Cache
	if store == nil {
		store = cache.Null{}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{
		state:    &ruleState{},
		fetcher:  cfg.Fetcher,
		cache:    store,
		backend:  cfg.CacheBackend,
		cacheTTL: cfg.CacheTTL,
		usage:    cfg.ReportUsage,
		context:  core.AnonymousContext(),
		defaults: core.NewDefaults(),
		log:      log,
		metrics:  cfg.Metrics,
	}
}

// WithContext returns a manager variant evaluating against evalCtx. The
// loaded rule state and collaborators are shared; the receiver is not
// modified.
func (m *Manager) WithContext(evalCtx core.Context) *Manager {
	clone := *m
	clone.context = evalCtx
	return &clone
}

// WithDefaults returns a manager variant consulting defaults for keys
// absent from the loaded rule set. The receiver is not modified.
func (m *Manager) WithDefaults(defaults *core.Defaults) *Manager {
	clone := *m
	if defaults == nil {
		defaults = core.NewDefaults()
	}
	clone.defaults = defaults
	return &clone
}

// Context returns the current evaluation context.
func (m *Manager) Context() core.Context { return m.context }

// Single resolves one flag by key against the current context. When the
// key is absent from the loaded rule set the defaults collection is
// consulted; with no default either, an EvaluationError is returned.
func (m *Manager) Single(ctx context.Context, key string) (core.Flag, error) {
	return m.single(ctx, key, nil)
}

// SingleWithDefault resolves one flag by key, falling back to
// defaultValue when the key is absent from the loaded rule set. The
// per-call default takes priority over the defaults collection; loaded
// values always win over both.
func (m *Manager) SingleWithDefault(ctx context.Context, key string, defaultValue any) (core.Flag, error) {
	return m.single(ctx, key, defaultValue)
}

func (m *Manager) single(ctx context.Context, key string, defaultValue any) (core.Flag, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return core.Flag{}, err
	}

	if flag, ok := m.lookup(key); ok {
		m.reportUsage(ctx, key)
		return m.evaluate(flag), nil
	}

	if defaultValue != nil {
		m.countEvaluation(key, metrics.OutcomeDefault)
		m.reportUsage(ctx, key)
		return core.FlagFromDefault(key, defaultValue), nil
	}
	if value, ok := m.defaults.Get(key); ok {
		m.countEvaluation(key, metrics.OutcomeDefault)
		m.reportUsage(ctx, key)
		return core.FlagFromDefault(key, value), nil
	}

	m.countEvaluation(key, metrics.OutcomeMissing)
	return core.Flag{}, &EvaluationError{Key: key}
}

// All resolves every loaded flag against the current context, in load
// order.
func (m *Manager) All(ctx context.Context) ([]core.Flag, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	m.state.mu.RLock()
	flags := make([]core.Flag, len(m.state.flags))
	copy(flags, m.state.flags)
	m.state.mu.RUnlock()

	for i := range flags {
		flags[i] = m.evaluate(flags[i])
	}
	return flags, nil
}

// Refresh unconditionally reloads rules from the remote service,
// bypassing the cache read but still writing through on success.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.loadFromAPI(ctx)
}

// ReportUsage fires a usage report for key with the current context. It
// returns immediately; delivery failures are logged and dropped.
func (m *Manager) ReportUsage(ctx context.Context, key string) {
	m.reportUsage(ctx, key)
}

// ensureLoaded loads the rule set exactly once per shared state: first
// from cache, then from the remote service on a miss or a corrupt entry.
func (m *Manager) ensureLoaded(ctx context.Context) error {
	m.state.mu.RLock()
	loaded := m.state.loaded
	m.state.mu.RUnlock()
	if loaded {
		return nil
	}

	if raw, ok := m.cache.Get(ctx, rulesCacheKey); ok {
		m.countCacheRequest("hit")
		ruleSet, err := core.ParseRuleSet([]byte(raw))
		if err == nil {
			m.state.adopt(ruleSet.Flags)
			m.countRuleLoad("cache")
			m.log.Debug("rules loaded from cache", "version", ruleSet.Version, "flags", len(ruleSet.Flags))
			return nil
		}
		m.log.Warn("discarding corrupt cached rules", "error", err)
	} else {
		m.countCacheRequest("miss")
	}

	return m.loadFromAPI(ctx)
}

// loadFromAPI fetches the rule set and writes the raw document through
// to the cache. On failure the in-memory list becomes empty, not
// unloaded, so subsequent lookups fall back to defaults instead of
// re-fetching on every call.
func (m *Manager) loadFromAPI(ctx context.Context) error {
	ruleSet, raw, err := m.fetcher.GetRules(ctx)
	if err != nil {
		m.state.adopt([]core.Flag{})
		m.log.Warn("rule fetch failed", "error", err)
		return err
	}

	m.state.adopt(ruleSet.Flags)
	m.cache.Set(ctx, rulesCacheKey, string(raw), m.cacheTTL)
	m.countRuleLoad("api")
	m.log.Debug("rules loaded from api", "version", ruleSet.Version, "flags", len(ruleSet.Flags))
	return nil
}

func (m *Manager) lookup(key string) (core.Flag, bool) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	for _, flag := range m.state.flags {
		if flag.Key == key {
			return flag, true
		}
	}
	return core.Flag{}, false
}

// evaluate resolves a loaded flag against the current context. A rule
// match yields a copy with the matched value as its target; otherwise
// the flag's baseline target stands.
func (m *Manager) evaluate(flag core.Flag) core.Flag {
	if len(flag.Rules) == 0 {
		m.countEvaluation(flag.Key, metrics.OutcomeTarget)
		return flag
	}
	if rule := core.Evaluate(flag.Rules, m.context.AttributeValues()); rule != nil {
		m.countEvaluation(flag.Key, metrics.OutcomeRule)
		return flag.WithTargetValue(rule.Value)
	}
	m.countEvaluation(flag.Key, metrics.OutcomeTarget)
	return flag
}

// reportUsage delivers a usage report in the background. The call never
// blocks on, or fails with, the report's outcome.
func (m *Manager) reportUsage(ctx context.Context, key string) {
	if !m.usage || m.fetcher == nil {
		return
	}
	evalCtx := m.context
	go func() {
		reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageReportTimeout)
		defer cancel()
		if err := m.fetcher.ReportUsage(reportCtx, key, &evalCtx); err != nil {
			m.log.Debug("usage report dropped", "key", key, "error", err)
			m.countUsageReport("error")
			return
		}
		m.countUsageReport("ok")
	}()
}

func (m *Manager) countEvaluation(key, outcome string) {
	if m.metrics != nil {
		m.metrics.EvaluationsTotal.WithLabelValues(key, outcome).Inc()
	}
}

func (m *Manager) countCacheRequest(result string) {
	if m.metrics != nil {
		m.metrics.CacheRequestsTotal.WithLabelValues(m.backend, result).Inc()
	}
}

func (m *Manager) countRuleLoad(source string) {
	if m.metrics != nil {
		m.metrics.RuleLoadsTotal.WithLabelValues(source).Inc()
	}
}

func (m *Manager) countUsageReport(status string) {
	if m.metrics != nil {
		m.metrics.UsageReportsTotal.WithLabelValues(status).Inc()
	}
}
