package config

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

type (
	// StringProvider holds a string value that follows the source across reloads.
	StringProvider struct {
		v *atomic.String
	}

	// IntProvider holds an int value that follows the source across reloads.
	IntProvider struct {
		v *atomic.Int64
	}

	// BoolProvider holds a bool value that follows the source across reloads.
	BoolProvider struct {
		v *atomic.Bool
	}

	// FloatProvider holds a float64 value that follows the source across reloads.
	FloatProvider struct {
		v *atomic.Float64
	}

	// DurationProvider holds a time.Duration value that follows the source across reloads.
	DurationProvider struct {
		v *atomic.Duration
	}

	// ListProvider holds a []string value that follows the source across reloads.
	ListProvider struct {
		v *atomic.Value
	}

	// valueProviderConfig is what a provider needs from a configuration: typed
	// reads plus change notifications. Source and Namespaced both satisfy it.
	valueProviderConfig interface {
		Subscribe(func(context.Context) error)
		String(context.Context, string, string, ...Option) string
		Int(context.Context, string, int, ...Option) int
		Bool(context.Context, string, bool, ...Option) bool
		Float(context.Context, string, float64, ...Option) float64
		Duration(context.Context, string, time.Duration, ...Option) time.Duration
		List(context.Context, string, []string, ...Option) []string
	}
)

// NewStringProvider reads path from conf and keeps the value updated after every
// reload that changes the view.
//
// Example:
//
//	host := config.NewStringProvider(ctx, src, "database.host", "localhost")
//	// later, from any goroutine
//	dial(host.Get())
func NewStringProvider(ctx context.Context, conf valueProviderConfig, path string, def string, opts ...Option) *StringProvider {
	p := &StringProvider{v: atomic.NewString(conf.String(ctx, path, def, opts...))}
	conf.Subscribe(func(c context.Context) error {
		p.v.Store(conf.String(c, path, def, opts...))
		return nil
	})
	return p
}

// NewIntProvider reads path from conf and keeps the value updated after every reload.
func NewIntProvider(ctx context.Context, conf valueProviderConfig, path string, def int, opts ...Option) *IntProvider {
	p := &IntProvider{v: atomic.NewInt64(int64(conf.Int(ctx, path, def, opts...)))}
	conf.Subscribe(func(c context.Context) error {
		p.v.Store(int64(conf.Int(c, path, def, opts...)))
		return nil
	})
	return p
}

// NewBoolProvider reads path from conf and keeps the value updated after every reload.
func NewBoolProvider(ctx context.Context, conf valueProviderConfig, path string, def bool, opts ...Option) *BoolProvider {
	p := &BoolProvider{v: atomic.NewBool(conf.Bool(ctx, path, def, opts...))}
	conf.Subscribe(func(c context.Context) error {
		p.v.Store(conf.Bool(c, path, def, opts...))
		return nil
	})
	return p
}

// NewFloatProvider reads path from conf and keeps the value updated after every reload.
func NewFloatProvider(ctx context.Context, conf valueProviderConfig, path string, def float64, opts ...Option) *FloatProvider {
	p := &FloatProvider{v: atomic.NewFloat64(conf.Float(ctx, path, def, opts...))}
	conf.Subscribe(func(c context.Context) error {
		p.v.Store(conf.Float(c, path, def, opts...))
		return nil
	})
	return p
}

// NewDurationProvider reads path from conf and keeps the value updated after every reload.
func NewDurationProvider(ctx context.Context, conf valueProviderConfig, path string, def time.Duration, opts ...Option) *DurationProvider {
	p := &DurationProvider{v: atomic.NewDuration(conf.Duration(ctx, path, def, opts...))}
	conf.Subscribe(func(c context.Context) error {
		p.v.Store(conf.Duration(c, path, def, opts...))
		return nil
	})
	return p
}

// NewListProvider reads path from conf and keeps the value updated after every reload.
func NewListProvider(ctx context.Context, conf valueProviderConfig, path string, def []string, opts ...Option) *ListProvider {
	p := &ListProvider{v: &atomic.Value{}}
	p.v.Store(conf.List(ctx, path, def, opts...))
	conf.Subscribe(func(c context.Context) error {
		p.v.Store(conf.List(c, path, def, opts...))
		return nil
	})
	return p
}

// Get returns the current value.
func (p *StringProvider) Get() string {
	return p.v.Load()
}

// Get returns the current value.
func (p *IntProvider) Get() int {
	return int(p.v.Load())
}

// Get returns the current value.
func (p *BoolProvider) Get() bool {
	return p.v.Load()
}

// Get returns the current value.
func (p *FloatProvider) Get() float64 {
	return p.v.Load()
}

// Get returns the current value.
func (p *DurationProvider) Get() time.Duration {
	return p.v.Load()
}

// Get returns the current value.
func (p *ListProvider) Get() []string {
	l, _ := p.v.Load().([]string)
	return l
}
