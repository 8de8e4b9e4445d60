package config

import (
	"context"
	"fmt"
	"time"

	fileConfig "github.com/olebedev/config"
)

type (
	// opConfig holds the options of a single typed lookup.
	opConfig struct {
		// PartialLookUp when true allows Contains to match object paths
		// (e.g. "foo" would match "foo.bar", "foo.baz", etc.)
		PartialLookUp bool
		// Fresh when true reloads the source before the lookup instead of
		// reading the last resolved view
		Fresh bool
	}

	// Option customizes a typed lookup on a Source.
	Option func(*opConfig)

	// ContainsOption is an alias for Option used with Contains.
	ContainsOption = Option
)

func newOpConfig(opts ...Option) opConfig {
	c := opConfig{}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// NoCache reloads the source from its external inputs before the lookup.
// If the reload fails the last good view is used.
func NoCache() Option {
	return func(oc *opConfig) {
		oc.Fresh = true
	}
}

// EnablePartialLookUp makes Contains report true for object paths too.
// For example, checking for "database" would match "database.host".
func EnablePartialLookUp() ContainsOption {
	return func(oc *opConfig) {
		oc.PartialLookUp = true
	}
}

// Contains returns true if the given key exists in the resolved view, false otherwise.
func (s *Source) Contains(ctx context.Context, path string, opts ...ContainsOption) bool {
	oc := newOpConfig(opts...)
	cfg, err := s.lookup(ctx, oc).Get(path)
	if err != nil {
		return false
	}
	if oc.PartialLookUp {
		return cfg.Root != nil
	}
	if _, ok := cfg.Root.(map[string]any); cfg.Root != nil && !ok {
		return true // value exists and it's not a subtree.
	}
	return false // either it doesnt exist or it's a subtree of multiple values
}

// Int returns an int value stored in the resolved view.
func (s *Source) Int(ctx context.Context, path string, def int, opts ...Option) int {
	i, err := s.lookup(ctx, newOpConfig(opts...)).Int(path)
	if err != nil {
		return def
	}
	return i
}

// String returns a string value stored in the resolved view.
func (s *Source) String(ctx context.Context, path string, def string, opts ...Option) string {
	v, err := s.lookup(ctx, newOpConfig(opts...)).String(path)
	if err != nil {
		return def
	}
	return v
}

// Float returns a float value stored in the resolved view.
func (s *Source) Float(ctx context.Context, path string, def float64, opts ...Option) float64 {
	f, err := s.lookup(ctx, newOpConfig(opts...)).Float64(path)
	if err != nil {
		return def
	}
	return f
}

// Bool returns a bool value stored in the resolved view.
func (s *Source) Bool(ctx context.Context, path string, def bool, opts ...Option) bool {
	b, err := s.lookup(ctx, newOpConfig(opts...)).Bool(path)
	if err != nil {
		return def
	}
	return b
}

// Duration returns a duration value stored in the resolved view, parsed with time.ParseDuration.
func (s *Source) Duration(ctx context.Context, path string, def time.Duration, opts ...Option) time.Duration {
	v := s.String(ctx, path, "", opts...)
	if len(v) == 0 {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Map returns the object stored at path flattened to dotted keys.
// Non-string values are stringified.
func (s *Source) Map(ctx context.Context, path string, def map[string]string, opts ...Option) map[string]string {
	m, err := s.lookup(ctx, newOpConfig(opts...)).Map(path)
	if err != nil {
		return def
	}
	return DeflateMap(m)
}

// List returns the list stored at path. Non-string values are stringified.
func (s *Source) List(ctx context.Context, path string, def []string, opts ...Option) []string {
	l, err := s.lookup(ctx, newOpConfig(opts...)).List(path)
	if err != nil {
		return def
	}

	res := make([]string, len(l))
	for i, v := range l {
		res[i] = fmt.Sprintf("%v", v)
	}
	return res
}

// DeflateMap converts a nested map to a flat map of dotted keys to stringified values.
func DeflateMap(src map[string]any) map[string]string {
	return NewTree(src).Flatten().StringMap()
}

// lookup returns the view a typed getter reads from, reloading first when asked.
func (s *Source) lookup(ctx context.Context, oc opConfig) *fileConfig.Config {
	if oc.Fresh && s.Ready() {
		if err := s.Reload(ctx); err != nil {
			s.logger.Warn("lookup reload failed, using last resolved view", "error", err)
		}
	}
	return s.Tree().Config()
}
