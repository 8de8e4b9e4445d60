package config

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeParser serves whatever document or error it currently holds and records requests.
type fakeParser struct {
	mu    sync.Mutex
	doc   string
	err   error
	calls int
	reqs  []LoadRequest
}

func (f *fakeParser) set(doc string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc, f.err = doc, err
}

func (f *fakeParser) Load(_ context.Context, req LoadRequest) (*Tree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return ParseYAML(f.doc)
}

func (f *fakeParser) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestSource(t *testing.T, p Parser, opts ...SetOption) *Source {
	t.Helper()
	set, err := NewOptionSet(opts...)
	require.NoError(t, err)
	src, err := NewSource(p, set)
	require.NoError(t, err)
	return src
}

func TestNewSource_NoIOAndInvalidCombination(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}

	set, err := NewOptionSet(WithResourceName("app"), WithPresetConfig(NewTree(nil)))
	require.NoError(t, err)

	_, err = NewSource(p, set)
	assert.ErrorAs(t, err, &AmbiguousOrInvalidConfigurationError{})

	_, err = NewSource(nil, set)
	assert.ErrorAs(t, err, &InvalidArgumentError{})

	assert.Equal(t, 0, p.Calls())
}

func TestSource_QueriesBeforeInit(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}
	src := newTestSource(t, p)

	assert.False(t, src.Ready())
	assert.Nil(t, src.Tree())

	_, err := src.Configuration(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = src.Snapshot()
	assert.ErrorIs(t, err, ErrNotInitialized)

	var nerr NotInitializedError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "snapshot", nerr.Op)

	assert.Equal(t, 0, p.Calls())
}

func TestSource_InitAndConfiguration(t *testing.T) {
	p := &fakeParser{doc: "b: 2\na:\n  c: x"}
	src := newTestSource(t, p)
	ctx := context.Background()

	require.NoError(t, src.Init(ctx))
	assert.True(t, src.Ready())

	props, err := src.Configuration(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.c", "b"}, props.Keys())
	assert.Equal(t, map[string]string{"a.c": "x", "b": "2"}, props.StringMap())

	// init plus the implicit reload of Configuration
	assert.Equal(t, 2, p.Calls())
}

func TestSource_InitIsRepeatable(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}
	src := newTestSource(t, p)
	ctx := context.Background()

	require.NoError(t, src.Init(ctx))
	p.set("a: 2", nil)
	require.NoError(t, src.Init(ctx))

	props, err := src.Snapshot()
	require.NoError(t, err)
	v, _ := props.GetString("a")
	assert.Equal(t, "2", v)
}

func TestSource_InitTwiceOnUnchangedInputs(t *testing.T) {
	p := &fakeParser{doc: "b: [x, y]\na:\n  c: 1\n  d: true"}
	src := newTestSource(t, p)
	ctx := context.Background()

	require.NoError(t, src.Init(ctx))
	first, err := src.Snapshot()
	require.NoError(t, err)

	require.NoError(t, src.Init(ctx))
	second, err := src.Snapshot()
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Equal(t, first.Keys(), second.Keys())
	assert.Equal(t, 2, p.Calls())
}

func TestSource_FailedInitStaysUninitialized(t *testing.T) {
	boom := errors.New("boom")
	p := &fakeParser{err: boom}
	src := newTestSource(t, p)

	err := src.Init(context.Background())
	assert.ErrorIs(t, err, boom)

	var lerr ExternalLoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, StrategyDefault, lerr.Strategy)

	assert.False(t, src.Ready())
	_, err = src.Snapshot()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSource_FailedReloadKeepsLastGoodView(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}
	src := newTestSource(t, p)
	ctx := context.Background()
	require.NoError(t, src.Init(ctx))

	boom := errors.New("parse failure")
	p.set("", boom)

	assert.ErrorIs(t, src.Reload(ctx), boom)
	assert.True(t, src.Ready())

	_, err := src.Configuration(ctx)
	assert.ErrorIs(t, err, boom)

	props, err := src.Snapshot()
	require.NoError(t, err)
	v, _ := props.GetString("a")
	assert.Equal(t, "1", v)
	assert.Equal(t, 1, src.Int(ctx, "a", 0))
}

func TestSource_ReloadPicksUpChanges(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}
	src := newTestSource(t, p)
	ctx := context.Background()
	require.NoError(t, src.Init(ctx))

	p.set("a: 2\nb: new", nil)
	props, err := src.Configuration(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "2", "b": "new"}, props.StringMap())
}

func TestSource_MissingPrefixFailsInit(t *testing.T) {
	p := &fakeParser{doc: "other: {a: 1}"}
	src := newTestSource(t, p, WithPrefix("pref1"))

	err := src.Init(context.Background())
	var perr MissingPrefixError
	require.ErrorAs(t, err, &perr)
	assert.False(t, src.Ready())
}

func TestSource_PrefixWithFallback(t *testing.T) {
	p := &fakeParser{doc: "globalVal: g\npref1:\n  compound1:\n    val1: a"}
	src := newTestSource(t, p, WithPrefix("pref1"))
	ctx := context.Background()
	require.NoError(t, src.Init(ctx))

	assert.Equal(t, "a", src.String(ctx, "compound1.val1", ""))
	assert.Equal(t, "g", src.String(ctx, "globalVal", ""))
}

func TestSource_ForwardsOnlyStrategyInputs(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}
	po := ParseOptions{AllowMissing: true}
	ro := ResolveOptions{AllowUnresolved: true}
	src := newTestSource(t, p,
		WithResourceName("service"),
		WithParseOptions(po),
		WithResolveOptions(ro),
	)
	require.NoError(t, src.Init(context.Background()))
	assert.Equal(t, StrategyResourceNameParseOptionsResolveOptions, src.Strategy())

	require.Len(t, p.reqs, 1)
	req := p.reqs[0]
	assert.Equal(t, StrategyResourceNameParseOptionsResolveOptions, req.Strategy)
	require.NotNil(t, req.ResourceName)
	assert.Equal(t, "service", *req.ResourceName)
	assert.Nil(t, req.LoaderContext)
	assert.Nil(t, req.PresetTree)
	assert.Equal(t, &po, req.ParseOptions)
	assert.Equal(t, &ro, req.ResolveOptions)
	assert.Equal(t, src.Strategy().Fields(), req.Fields())
}

func TestSource_SubscribersNotifiedOnChangeOnly(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}
	src := newTestSource(t, p)
	ctx := context.Background()

	var notified int
	src.Subscribe(func(context.Context) error {
		notified++
		return nil
	})

	require.NoError(t, src.Init(ctx))
	assert.Equal(t, 1, notified)

	require.NoError(t, src.Reload(ctx))
	assert.Equal(t, 1, notified, "unchanged view must not notify")

	p.set("a: 2", nil)
	require.NoError(t, src.Reload(ctx))
	assert.Equal(t, 2, notified)
}

func TestSource_SubscriberErrorsAreAggregated(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}
	src := newTestSource(t, p)

	src.Subscribe(func(context.Context) error { return errors.New("first") })
	src.Subscribe(func(context.Context) error { panic("second") })

	err := src.Init(context.Background())
	var rerr BaseRefreshError
	require.ErrorAs(t, err, &rerr)
	assert.Len(t, rerr, 2)
	assert.True(t, src.Ready(), "the view is swapped even when a subscriber fails")
}

func TestSource_ConcurrentReloads(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}
	src := newTestSource(t, p)
	ctx := context.Background()
	require.NoError(t, src.Init(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := src.Configuration(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 17, p.Calls())
}

func TestSource_Accessors(t *testing.T) {
	p := &fakeParser{doc: `
server:
  port: 8080
  ratio: 0.5
  debug: true
  timeout: 2s
  hosts: [a, b]
`}
	src := newTestSource(t, p)
	ctx := context.Background()
	require.NoError(t, src.Init(ctx))

	assert.Equal(t, 8080, src.Int(ctx, "server.port", 0))
	assert.Equal(t, 0.5, src.Float(ctx, "server.ratio", 0))
	assert.True(t, src.Bool(ctx, "server.debug", false))
	assert.Equal(t, 2*time.Second, src.Duration(ctx, "server.timeout", 0))
	assert.Equal(t, []string{"a", "b"}, src.List(ctx, "server.hosts", nil))
	assert.Equal(t, "fallback", src.String(ctx, "server.missing", "fallback"))
	assert.Equal(t, time.Minute, src.Duration(ctx, "server.port", time.Minute))

	assert.True(t, src.Contains(ctx, "server.port"))
	assert.False(t, src.Contains(ctx, "server"))
	assert.True(t, src.Contains(ctx, "server", EnablePartialLookUp()))
	assert.False(t, src.Contains(ctx, "nope", EnablePartialLookUp()))

	m := src.Map(ctx, "server", nil)
	assert.Equal(t, "8080", m["port"])
	assert.Equal(t, "a,b", m["hosts"])
}

func TestSource_NoCacheReloads(t *testing.T) {
	p := &fakeParser{doc: "a: 1"}
	src := newTestSource(t, p)
	ctx := context.Background()
	require.NoError(t, src.Init(ctx))

	p.set("a: 2", nil)
	assert.Equal(t, 1, src.Int(ctx, "a", 0))
	assert.Equal(t, 2, src.Int(ctx, "a", 0, NoCache()))
}

func TestSource_ValueProviders(t *testing.T) {
	p := &fakeParser{doc: "name: one\nport: 1\nenabled: false\nratio: 1.5\nwait: 1s\nlist: [x]"}
	src := newTestSource(t, p)
	ctx := context.Background()
	require.NoError(t, src.Init(ctx))

	name := NewStringProvider(ctx, src, "name", "")
	port := NewIntProvider(ctx, src, "port", 0)
	enabled := NewBoolProvider(ctx, src, "enabled", true)
	ratio := NewFloatProvider(ctx, src, "ratio", 0)
	wait := NewDurationProvider(ctx, src, "wait", 0)
	list := NewListProvider(ctx, src, "list", nil)

	assert.Equal(t, "one", name.Get())
	assert.Equal(t, 1, port.Get())
	assert.False(t, enabled.Get())
	assert.Equal(t, 1.5, ratio.Get())
	assert.Equal(t, time.Second, wait.Get())
	assert.Equal(t, []string{"x"}, list.Get())

	p.set("name: two\nport: 2\nenabled: true\nratio: 2.5\nwait: 2s\nlist: [y, z]", nil)
	require.NoError(t, src.Reload(ctx))

	assert.Equal(t, "two", name.Get())
	assert.Equal(t, 2, port.Get())
	assert.True(t, enabled.Get())
	assert.Equal(t, 2.5, ratio.Get())
	assert.Equal(t, 2*time.Second, wait.Get())
	assert.Equal(t, []string{"y", "z"}, list.Get())
}

func TestNamespaced(t *testing.T) {
	p := &fakeParser{doc: `
database:
  host: db.local
  port: 5432
  replica:
    host: replica.local
`}
	src := newTestSource(t, p)
	ctx := context.Background()
	require.NoError(t, src.Init(ctx))

	db := NewNamespaced(".database.", src)
	assert.Equal(t, ".database.", db.Namespace())
	assert.Equal(t, "db.local", db.String(ctx, "host", ""))
	assert.Equal(t, 5432, db.Int(ctx, "port", 0))
	assert.True(t, db.Contains(ctx, "replica", EnablePartialLookUp()))

	replica := db.At("replica")
	assert.Equal(t, "replica.local", replica.String(ctx, "host", ""))
	assert.Equal(t, map[string]string{"host": "replica.local"}, replica.Map(ctx, "", nil))

	host := NewStringProvider(ctx, replica, "host", "")
	p.set("database:\n  replica:\n    host: moved.local", nil)
	require.NoError(t, src.Reload(ctx))
	assert.Equal(t, "moved.local", host.Get())
}

func TestSource_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := &fakeParser{doc: "a: 1\nb: 2"}

	set, err := NewOptionSet()
	require.NoError(t, err)
	src, err := NewSource(p, set, WithName("test"), WithMetrics(reg))
	require.NoError(t, err)
	assert.Equal(t, "test", src.Name())

	ctx := context.Background()
	require.NoError(t, src.Init(ctx))
	p.set("", errors.New("boom"))
	require.Error(t, src.Reload(ctx))

	assert.Equal(t, 1.0, gathered(t, reg, "confsource_resolves_total", map[string]string{"outcome": outcomeSuccess, "strategy": "default"}))
	assert.Equal(t, 1.0, gathered(t, reg, "confsource_resolves_total", map[string]string{"outcome": outcomeFailure, "strategy": "default"}))
	assert.Equal(t, 2.0, gathered(t, reg, "confsource_keys", nil))

	// a second source with the same name shares the collectors
	again, err := NewSource(p, set, WithName("test"), WithMetrics(reg))
	require.NoError(t, err)
	assert.Same(t, src.metrics.resolves, again.metrics.resolves)
}

// gathered returns the value of the first sample of family name whose labels include want.
func gathered(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not gathered", name, want)
	return 0
}
