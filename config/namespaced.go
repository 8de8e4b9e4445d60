package config

import (
	"context"
	"strings"
	"time"
)

type (
	// Namespaced is a read view over a configuration that joins a namespace to every
	// path, so clients can read "host" instead of "database.host".
	//
	// Unlike a Source prefix, which narrows the resolved view itself, a Namespaced
	// view leaves the underlying configuration untouched and several views over
	// different namespaces can share one Source.
	Namespaced struct {
		namespacedJoiner

		// config is the underlying configuration
		config namespacedConfig
		// name is the namespace this view adds, without its parents
		name string
	}

	// namespacedConfig is what Namespaced needs from the configuration it wraps.
	namespacedConfig interface {
		valueProviderConfig

		Map(ctx context.Context, path string, def map[string]string, opts ...Option) map[string]string
		Contains(ctx context.Context, path string, opts ...ContainsOption) bool
	}

	// namespacedJoiner joins a namespace prefix with a path.
	namespacedJoiner struct {
		nmspc string
	}
)

// NewNamespaced creates a view over cfg that prefixes every path with name.
//
// Parameters:
//   - name: The namespace joined in front of every path, without a trailing dot
//   - cfg: The configuration to read from, usually a *Source or another *Namespaced
//
// Returns:
//   - A new Namespaced view
//
// Example:
//
//	db := config.NewNamespaced("database", src)
//	host := db.String(ctx, "host", "localhost") // reads "database.host"
func NewNamespaced(name string, cfg namespacedConfig) *Namespaced {
	return &Namespaced{
		namespacedJoiner: newNamespacedJoiner(name),
		config:           cfg,
		name:             name,
	}
}

// At creates a nested view.
//
// Parameters:
//   - inner: The namespace added below this view's own
//
// Returns:
//   - A Namespaced view whose paths resolve under both namespaces
//
// Example:
//
//	replica := db.At("replica")
//	host := replica.String(ctx, "host", "") // reads "database.replica.host"
func (c *Namespaced) At(inner string) *Namespaced {
	return NewNamespaced(inner, c)
}

// Namespace returns the namespace this view adds.
func (c *Namespaced) Namespace() string {
	return c.name
}

// Contains reports whether the namespaced key exists.
func (c *Namespaced) Contains(ctx context.Context, path string, opts ...ContainsOption) bool {
	return c.config.Contains(ctx, c.join(path), opts...)
}

// Int returns the int stored at the namespaced path.
func (c *Namespaced) Int(ctx context.Context, path string, def int, opts ...Option) int {
	return c.config.Int(ctx, c.join(path), def, opts...)
}

// String returns the string stored at the namespaced path.
func (c *Namespaced) String(ctx context.Context, path string, def string, opts ...Option) string {
	return c.config.String(ctx, c.join(path), def, opts...)
}

// Float returns the float stored at the namespaced path.
func (c *Namespaced) Float(ctx context.Context, path string, def float64, opts ...Option) float64 {
	return c.config.Float(ctx, c.join(path), def, opts...)
}

// Bool returns the bool stored at the namespaced path.
func (c *Namespaced) Bool(ctx context.Context, path string, def bool, opts ...Option) bool {
	return c.config.Bool(ctx, c.join(path), def, opts...)
}

// Duration returns the duration stored at the namespaced path.
func (c *Namespaced) Duration(ctx context.Context, path string, def time.Duration, opts ...Option) time.Duration {
	return c.config.Duration(ctx, c.join(path), def, opts...)
}

// Map returns the object stored at the namespaced path, flattened.
func (c *Namespaced) Map(ctx context.Context, path string, def map[string]string, opts ...Option) map[string]string {
	return c.config.Map(ctx, c.join(path), def, opts...)
}

// List returns the list stored at the namespaced path.
func (c *Namespaced) List(ctx context.Context, path string, def []string, opts ...Option) []string {
	return c.config.List(ctx, c.join(path), def, opts...)
}

// Subscribe registers fn on the underlying configuration.
func (c *Namespaced) Subscribe(fn func(context.Context) error) {
	c.config.Subscribe(fn)
}

func newNamespacedJoiner(nmspc string) namespacedJoiner {
	return namespacedJoiner{nmspc: strings.Trim(nmspc, ".")}
}

// join prefixes path with the namespace. An empty path addresses the namespace itself.
func (n namespacedJoiner) join(path string) string {
	path = strings.Trim(path, ".")
	switch {
	case n.nmspc == "":
		return path
	case path == "":
		return n.nmspc
	default:
		return n.nmspc + "." + path
	}
}
