package beacon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beacondeck/beacon-go/cache"
	"github.com/beacondeck/beacon-go/internal/core"
)

// testDoc has one boolean flag whose baseline is false and whose single
// rule enables it for US users, plus a rule-less string flag.
const testDoc = `{
	"version": "7",
	"flags": [
		{
			"version": "1",
			"type": "boolean",
			"key": "new-checkout",
			"name": "New checkout",
			"target": {"version": "2", "value": {"value": {"boolean": false}}},
			"rules": [
				{
					"clauses": [{"attribute": "country", "operator": "equals", "value": "US"}],
					"value": {"value": {"boolean": true}}
				}
			]
		},
		{
			"version": "1",
			"type": "string",
			"key": "banner",
			"target": {"value": {"value": {"string": "spring"}}}
		}
	]
}`

type usageRecord struct {
	key     string
	evalCtx core.Context
}

type fakeFetcher struct {
	mu       sync.Mutex
	doc      string
	err      error
	getCalls int
	usage    []usageRecord
}

func (f *fakeFetcher) GetRules(context.Context) (core.RuleSet, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.err != nil {
		return core.RuleSet{}, nil, f.err
	}
	ruleSet, err := core.ParseRuleSet([]byte(f.doc))
	if err != nil {
		return core.RuleSet{}, nil, err
	}
	return ruleSet, []byte(f.doc), nil
}

func (f *fakeFetcher) ReportUsage(_ context.Context, key string, evalCtx *core.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record := usageRecord{key: key}
	if evalCtx != nil {
		record.evalCtx = *evalCtx
	}
	f.usage = append(f.usage, record)
	return nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeFetcher) usageKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, len(f.usage))
	for i, record := range f.usage {
		keys[i] = record.key
	}
	return keys
}

func newTestManager(fetcher *fakeFetcher, store cache.Store) *Manager {
	return NewManager(ManagerConfig{
		Fetcher:      fetcher,
		Cache:        store,
		CacheBackend: "memory",
		CacheTTL:     time.Minute,
	})
}

func usContext() Context {
	evalCtx := NewContext("user")
	evalCtx.SetAttribute("country", "US")
	return evalCtx
}

func TestSingleEvaluatesRules(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, cache.NewMemory())

	flag, err := m.WithContext(usContext()).Single(ctx, "new-checkout")
	if err != nil {
		t.Fatalf("Single() error = %v", err)
	}
	if !flag.IsEnabled() {
		t.Error("US context should match the targeting rule")
	}
	// Matched target inherits the baseline's metadata.
	if flag.Target.Version != "2" {
		t.Errorf("target version = %q, want inherited %q", flag.Target.Version, "2")
	}

	caContext := NewContext("user")
	caContext.SetAttribute("country", "CA")
	flag, err = m.WithContext(caContext).Single(ctx, "new-checkout")
	if err != nil {
		t.Fatalf("Single() error = %v", err)
	}
	if flag.IsEnabled() {
		t.Error("CA context should fall back to the baseline target")
	}
}

func TestSingleFlagWithoutRulesUnchanged(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, cache.NewMemory())

	flag, err := m.WithContext(usContext()).Single(ctx, "banner")
	if err != nil {
		t.Fatalf("Single() error = %v", err)
	}
	if flag.AsString() != "spring" {
		t.Errorf("AsString() = %q, want %q", flag.AsString(), "spring")
	}
}

func TestDefaultPriority(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, cache.NewMemory()).
		WithDefaults(DefaultsFromMap(map[string]any{"x": "B"}))

	// The per-call default wins over the defaults collection.
	flag, err := m.SingleWithDefault(ctx, "x", "A")
	if err != nil {
		t.Fatalf("SingleWithDefault() error = %v", err)
	}
	if flag.AsString() != "A" {
		t.Errorf("AsString() = %q, want per-call default %q", flag.AsString(), "A")
	}

	// Without a per-call default the collection is consulted.
	flag, err = m.Single(ctx, "x")
	if err != nil {
		t.Fatalf("Single() error = %v", err)
	}
	if flag.AsString() != "B" {
		t.Errorf("AsString() = %q, want collection default %q", flag.AsString(), "B")
	}
}

func TestLoadedValueWinsOverDefaults(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, cache.NewMemory()).
		WithDefaults(DefaultsFromMap(map[string]any{"banner": "winter"}))

	flag, err := m.SingleWithDefault(ctx, "banner", "summer")
	if err != nil {
		t.Fatalf("SingleWithDefault() error = %v", err)
	}
	if flag.AsString() != "spring" {
		t.Errorf("AsString() = %q, loaded value must win over both default sources", flag.AsString())
	}
}

func TestSingleNotFound(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, cache.NewMemory())

	_, err := m.Single(ctx, "does-not-exist")
	if !errors.Is(err, ErrFlagNotFound) {
		t.Fatalf("Single() error = %v, want ErrFlagNotFound", err)
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.Key != "does-not-exist" {
		t.Fatalf("Single() error = %v, want *EvaluationError with the key", err)
	}
}

func TestRulesLoadedOncePerState(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, cache.NewMemory())

	if _, err := m.Single(ctx, "banner"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Single(ctx, "new-checkout"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.All(ctx); err != nil {
		t.Fatal(err)
	}
	if got := fetcher.calls(); got != 1 {
		t.Errorf("GetRules calls = %d, want 1", got)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()

	first := &fakeFetcher{doc: testDoc}
	m1 := newTestManager(first, store)
	flags1, err := m1.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}

	// A second manager sharing only the cache must load without a fetch.
	second := &fakeFetcher{doc: testDoc}
	m2 := newTestManager(second, store)
	flags2, err := m2.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if got := second.calls(); got != 0 {
		t.Errorf("GetRules calls = %d, want 0 (served from cache)", got)
	}

	if len(flags1) != len(flags2) {
		t.Fatalf("flag counts differ: %d vs %d", len(flags1), len(flags2))
	}
	for i := range flags1 {
		if flags1[i].Key != flags2[i].Key || flags1[i].Type != flags2[i].Type {
			t.Errorf("flag %d differs after cache reload: %+v vs %+v", i, flags1[i], flags2[i])
		}
		if flags1[i].Value() != flags2[i].Value() {
			t.Errorf("flag %d value differs after cache reload", i)
		}
	}
}

func TestCorruptCacheFallsThroughToFetch(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	store.Set(ctx, "beacon.rules", "{not json", 0)

	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, store)

	if _, err := m.Single(ctx, "banner"); err != nil {
		t.Fatalf("Single() error = %v", err)
	}
	if got := fetcher.calls(); got != 1 {
		t.Errorf("GetRules calls = %d, want 1", got)
	}
}

func TestFetchFailureAdoptsEmptyList(t *testing.T) {
	ctx := context.Background()
	fetchErr := errors.New("boom")
	fetcher := &fakeFetcher{err: fetchErr}
	m := newTestManager(fetcher, cache.Null{})

	// The first load propagates the failure.
	if _, err := m.Single(ctx, "banner"); !errors.Is(err, fetchErr) {
		t.Fatalf("Single() error = %v, want the fetch failure", err)
	}

	// The flag list is now empty, not unloaded: defaults work and no
	// further fetch is attempted.
	flag, err := m.SingleWithDefault(ctx, "banner", "fallback")
	if err != nil {
		t.Fatalf("SingleWithDefault() error = %v", err)
	}
	if flag.AsString() != "fallback" {
		t.Errorf("AsString() = %q, want %q", flag.AsString(), "fallback")
	}
	if got := fetcher.calls(); got != 1 {
		t.Errorf("GetRules calls = %d, want 1", got)
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory()
	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, store)

	if _, err := m.All(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := fetcher.calls(); got != 2 {
		t.Errorf("GetRules calls = %d, want 2 (refresh always fetches)", got)
	}
	// Refresh still writes through to the cache.
	if _, ok := store.Get(ctx, "beacon.rules"); !ok {
		t.Error("refresh should write the document back to the cache")
	}
}

func TestConfiguredVariantsDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	base := newTestManager(fetcher, cache.NewMemory())

	caContext := NewContext("user")
	caContext.SetAttribute("country", "CA")

	usManager := base.WithContext(usContext())
	caManager := base.WithContext(caContext)

	usFlag, err := usManager.Single(ctx, "new-checkout")
	if err != nil {
		t.Fatal(err)
	}
	caFlag, err := caManager.Single(ctx, "new-checkout")
	if err != nil {
		t.Fatal(err)
	}
	if !usFlag.IsEnabled() || caFlag.IsEnabled() {
		t.Errorf("variant cross-talk: us=%v ca=%v", usFlag.IsEnabled(), caFlag.IsEnabled())
	}

	// The base manager keeps its anonymous context.
	if base.Context().Type != "user" || len(base.Context().AttributeValues()) != 0 {
		t.Error("base manager context must be untouched")
	}

	// Variants share one loaded rule state.
	if got := fetcher.calls(); got != 1 {
		t.Errorf("GetRules calls = %d, want 1 (shared rule state)", got)
	}
}

func TestAllPreservesLoadOrder(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, cache.NewMemory())

	flags, err := m.WithContext(usContext()).All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(flags) != 2 {
		t.Fatalf("len(flags) = %d, want 2", len(flags))
	}
	if flags[0].Key != "new-checkout" || flags[1].Key != "banner" {
		t.Errorf("order = [%s %s], want load order", flags[0].Key, flags[1].Key)
	}
	if !flags[0].IsEnabled() {
		t.Error("All must evaluate rules against the current context")
	}
}

func TestUsageReporting(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	m := NewManager(ManagerConfig{
		Fetcher:     fetcher,
		Cache:       cache.NewMemory(),
		ReportUsage: true,
	})

	if _, err := m.WithContext(usContext()).Single(ctx, "new-checkout"); err != nil {
		t.Fatal(err)
	}

	// Reporting is fire-and-forget; wait for the background delivery.
	deadline := time.Now().Add(2 * time.Second)
	for {
		keys := fetcher.usageKeys()
		if len(keys) == 1 {
			if keys[0] != "new-checkout" {
				t.Errorf("reported key = %q", keys[0])
			}
			fetcher.mu.Lock()
			values, _ := fetcher.usage[0].evalCtx.Attribute("country")
			fetcher.mu.Unlock()
			if len(values) != 1 || values[0] != "US" {
				t.Errorf("reported context attributes = %v", values)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("usage report never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUsageReportingDisabled(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{doc: testDoc}
	m := newTestManager(fetcher, cache.NewMemory()) // ReportUsage false

	if _, err := m.Single(ctx, "banner"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := fetcher.usageKeys(); len(got) != 0 {
		t.Errorf("usage reported while disabled: %v", got)
	}
}
