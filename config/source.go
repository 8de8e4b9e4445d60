package config

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const (
	sourceLoggerName  = "confsource"
	defaultSourceName = "default"
)

type (
	// Source owns the resolved view of a configuration and its lifecycle.
	//
	// A Source starts uninitialized. Init resolves the view from scratch through
	// the selected strategy and the prefix composer; Reload runs the same pipeline.
	// Every resolve and swap runs in a single critical section, and a failed resolve
	// never discards the last good view.
	Source struct {
		*refresher

		// mutex serializes resolves and guards view and props
		mutex *sync.RWMutex

		name    string
		set     OptionSet
		loader  *Loader
		logger  hclog.Logger
		metrics *metrics

		ready *atomic.Bool
		view  *Tree
		props Properties
	}

	// SourceOption configures a Source using the functional options pattern.
	SourceOption func(*SourceConfiguration)

	// SourceConfiguration holds the options of a Source.
	SourceConfiguration struct {
		Name       string
		Logger     hclog.Logger
		Registerer prometheus.Registerer
	}
)

// NewSource selects the loading strategy for the option set and binds it to the parser.
// No I/O happens here: an invalid combination of inputs is reported before anything
// is read, and the source stays uninitialized until Init is called.
//
// Example:
//
//	set, err := config.NewOptionSet(config.WithPrefix("pref1"))
//	if err != nil {
//	    return err
//	}
//	src, err := config.NewSource(parser.New(), set)
//	if err != nil {
//	    return err
//	}
//	if err := src.Init(ctx); err != nil {
//	    return err
//	}
//	props, err := src.Configuration(ctx)
func NewSource(p Parser, set OptionSet, opts ...SourceOption) (*Source, error) {
	sc := SourceConfiguration{
		Name:   defaultSourceName,
		Logger: hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(&sc)
	}

	l, err := NewLoader(set, p)
	if err != nil {
		return nil, err
	}

	s := &Source{
		refresher: nil,
		mutex:     new(sync.RWMutex),
		name:      sc.Name,
		set:       set,
		loader:    l,
		logger:    sc.Logger.Named(sourceLoggerName).With("source", sc.Name),
		metrics:   newMetrics(sc.Registerer, sc.Name),
		ready:     atomic.NewBool(false),
		props:     newProperties(),
	}
	s.refresher = newRefresher(s.resolve)
	return s, nil
}

// WithName labels the source in logs and metrics.
func WithName(name string) SourceOption {
	return func(sc *SourceConfiguration) {
		if name != "" {
			sc.Name = name
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l hclog.Logger) SourceOption {
	return func(sc *SourceConfiguration) {
		if l != nil {
			sc.Logger = l
		}
	}
}

// WithMetrics registers resolve metrics on the given registerer.
func WithMetrics(reg prometheus.Registerer) SourceOption {
	return func(sc *SourceConfiguration) {
		sc.Registerer = reg
	}
}

// Init resolves the view from scratch and marks the source ready. It may be called
// any number of times; every call re-reads the external sources. When it fails on
// a source that was never initialized, the source stays uninitialized.
func (s *Source) Init(ctx context.Context) error {
	_, err := s.Refresh(ctx)
	return err
}

// Reload runs the same pipeline as Init. On a source that was never initialized it
// behaves exactly like Init. On failure the previous view is kept intact.
func (s *Source) Reload(ctx context.Context) error {
	_, err := s.Refresh(ctx)
	return err
}

// Configuration re-resolves the view and returns it flattened to dotted keys.
// It fails with NotInitializedError before the first successful Init. If the
// implicit reload fails, the error is returned instead of the stale view; use
// Snapshot to read the last good view explicitly.
func (s *Source) Configuration(ctx context.Context) (Properties, error) {
	if !s.ready.Load() {
		return Properties{}, NotInitializedError{Op: "configuration"}
	}
	if err := s.Reload(ctx); err != nil {
		return Properties{}, err
	}
	return s.Snapshot()
}

// Snapshot returns the last successfully resolved view without touching the
// external sources.
func (s *Source) Snapshot() (Properties, error) {
	if !s.ready.Load() {
		return Properties{}, NotInitializedError{Op: "snapshot"}
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.props, nil
}

// Tree returns the last successfully resolved tree, or nil before Init.
func (s *Source) Tree() *Tree {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.view
}

// Ready reports whether the source was successfully initialized.
func (s *Source) Ready() bool {
	return s.ready.Load()
}

// Strategy returns the loading strategy selected for this source.
func (s *Source) Strategy() Strategy {
	return s.loader.Strategy()
}

// Name returns the label of the source.
func (s *Source) Name() string {
	return s.name
}

// resolve loads, composes and swaps the view. It reports whether the flattened
// view differs from the previous one.
func (s *Source) resolve(ctx context.Context) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	strategy := s.loader.Strategy()
	raw, err := s.loader.Load(ctx)
	if err == nil {
		raw, err = ComposeSet(raw, s.set)
	}
	if err != nil {
		s.metrics.observe(strategy, 0, err)
		s.logger.Warn("configuration resolve failed",
			"strategy", strategy,
			"ready", s.ready.Load(),
			"error", err,
		)
		return false, err
	}

	props := raw.Flatten()
	changed := !s.ready.Load() || !props.Equal(s.props)

	s.view = raw
	s.props = props
	s.ready.Store(true)

	s.metrics.observe(strategy, props.Len(), nil)
	s.logger.Debug("configuration resolved",
		"strategy", strategy,
		"keys", props.Len(),
		"changed", changed,
	)
	return changed, nil
}
