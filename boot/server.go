// Package boot wires a configuration source into a running process: an HTTP
// server exposing the resolved view, a directory watcher that triggers reloads
// and a registry of shutdown callbacks bound to OS signals.
package boot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wixia/confsource/config"
)

const defaultAddr = ":8080"

type (
	// Config is the source a server exposes.
	Config interface {
		Map(context.Context, string, map[string]string, ...config.Option) map[string]string
		Reload(context.Context) error
		Strategy() config.Strategy
		Name() string
	}

	// Server defines the interface for HTTP servers with listen and shutdown capabilities.
	Server interface {
		ListenAndServe() error
		Shutdown(context.Context) error
	}

	// Configuration holds the options of Run and NewHandler.
	Configuration struct {
		Addr      string
		Logger    hclog.Logger
		Gatherer  prometheus.Gatherer
		AccessLog bool
		Recovery  bool
	}

	// Option is a function type for configuring boot options.
	Option func(*Configuration)

	// HTTPServerWrapper wraps *http.Server to implement the Server interface
	HTTPServerWrapper struct {
		server *http.Server
	}

	// statusRecorder captures the status code written by a handler.
	statusRecorder struct {
		http.ResponseWriter
		status int
	}
)

// WithAddr sets the listen address, ":8080" by default.
func WithAddr(addr string) Option {
	return func(c *Configuration) {
		c.Addr = addr
	}
}

// WithLogger sets the logger used by the server and its middlewares.
func WithLogger(l hclog.Logger) Option {
	return func(c *Configuration) {
		c.Logger = l
	}
}

// WithGatherer mounts /metrics serving the given gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *Configuration) {
		c.Gatherer = g
	}
}

// NoAccessLog disables the access log middleware.
func NoAccessLog() Option {
	return func(c *Configuration) {
		c.AccessLog = false
	}
}

// NoRecovery disables the panic recovery middleware.
func NoRecovery() Option {
	return func(c *Configuration) {
		c.Recovery = false
	}
}

func newConfiguration(opts ...Option) Configuration {
	c := Configuration{
		Addr:      defaultAddr,
		Logger:    hclog.NewNullLogger(),
		AccessLog: true,
		Recovery:  true,
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// NewHTTPServer returns an HTTP server listening on addr.
func NewHTTPServer(addr string, h http.Handler) Server {
	return &HTTPServerWrapper{
		server: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP server
func (w *HTTPServerWrapper) ListenAndServe() error {
	return w.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (w *HTTPServerWrapper) Shutdown(ctx context.Context) error {
	return w.server.Shutdown(ctx)
}

// NewHandler builds the HTTP routes over conf:
//
//	GET  /ping             liveness
//	GET  /config           flattened view, see configServlet.Get
//	GET  /config/strategy  selected loading strategy
//	POST /config/reload    re-read external inputs
//	GET  /metrics          when a gatherer is configured
func NewHandler(conf Config, opts ...Option) http.Handler {
	c := newConfiguration(opts...)
	return newHandler(conf, c)
}

func newHandler(conf Config, c Configuration) http.Handler {
	servlet := newConfigServlet(conf)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", ping)
	mux.HandleFunc("GET /config", servlet.Get)
	mux.HandleFunc("GET /config/strategy", servlet.Strategy)
	mux.HandleFunc("POST /config/reload", servlet.Reload)
	if c.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{}))
	}

	var h http.Handler = mux
	logger := c.Logger.Named("http")
	if c.AccessLog {
		h = accessLog(logger, h)
	}
	if c.Recovery {
		h = recovery(logger, h)
	}
	return h
}

// Run serves conf until ctx is cancelled or a shutdown signal is received.
// It blocks and returns nil after a graceful shutdown.
func Run(ctx context.Context, conf Config, opts ...Option) error {
	c := newConfiguration(opts...)

	sr := NewShutdownRegistry(ctx, WithShutdownLogger(c.Logger))
	ctx = NewContextWithShutdownRegistry(ctx, sr)

	sv := NewHTTPServer(c.Addr, newHandler(conf, c))
	if err := RegisterOnShutdown(ctx, func(ctx context.Context) {
		if err := sv.Shutdown(ctx); err != nil {
			c.Logger.Error("http server shutdown failed", "error", err)
		}
	}); err != nil {
		return err
	}

	c.Logger.Info("listening and serving HTTP", "addr", c.Addr, "source", conf.Name())
	if err := sv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sr.Shutdown(ctx)
		return fmt.Errorf("serve %s: %w", c.Addr, err)
	}
	<-sr.Done()
	return nil
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func accessLog(logger hclog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		logger.Debug("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start),
		)
	})
}

func recovery(logger hclog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", "path", req.URL.Path, "panic", r)
				writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
			}
		}()
		next.ServeHTTP(w, req)
	})
}
