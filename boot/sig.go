package boot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// shutdownDeadlineTimeout is the maximum amount of time to wait for shutdown callbacks to complete.
	shutdownDeadlineTimeout = 10 * time.Second
)

type (
	// ShutdownRegistry collects callbacks to run when the process is asked to stop.
	// Callbacks run concurrently, once, with panics recovered and a deadline enforced.
	ShutdownRegistry struct {
		// mux protects concurrent access to the registry
		mux sync.RWMutex
		// registry is the list of callback functions to execute on shutdown
		registry []func(context.Context)
		// once ensures Shutdown runs the callbacks exactly once
		once sync.Once
		// done is closed once every callback returned or the deadline passed
		done chan struct{}

		logger  hclog.Logger
		timeout time.Duration
		signals []SignalCode
	}

	// SignalCode is an alias for os.Signal, representing OS signals that can trigger a shutdown
	SignalCode = os.Signal

	// ShutdownOption configures a ShutdownRegistry.
	ShutdownOption func(*ShutdownRegistry)

	// shutdownContextKey is a unique key type for storing the ShutdownRegistry in context
	shutdownContextKey struct{}
)

// WithShutdownLogger sets the logger used to report panics and timeouts.
func WithShutdownLogger(l hclog.Logger) ShutdownOption {
	return func(r *ShutdownRegistry) {
		r.logger = l.Named("shutdown")
	}
}

// WithShutdownTimeout overrides the shutdown deadline.
func WithShutdownTimeout(d time.Duration) ShutdownOption {
	return func(r *ShutdownRegistry) {
		r.timeout = d
	}
}

// WithSignals sets the OS signals that trigger a shutdown. SIGINT and SIGTERM by default.
func WithSignals(codes ...SignalCode) ShutdownOption {
	return func(r *ShutdownRegistry) {
		r.signals = codes
	}
}

// NewContextWithShutdownRegistry returns a context carrying sr, so code deep in
// the call tree can register cleanup without holding the registry.
//
// Parameters:
//   - ctx: The parent context
//   - sr: The ShutdownRegistry to store in the context
//
// Returns a new context containing the ShutdownRegistry.
//
// Example:
//
//	sr := NewShutdownRegistry(context.Background())
//	ctx := NewContextWithShutdownRegistry(context.Background(), sr)
//
//	RegisterOnShutdown(ctx, func(ctx context.Context) {
//	    watcher.Close()
//	})
func NewContextWithShutdownRegistry(ctx context.Context, sr *ShutdownRegistry) context.Context {
	return context.WithValue(ctx, shutdownContextKey{}, sr)
}

// RegisterOnShutdown registers onShutdown on the registry carried by ctx.
//
// Parameters:
//   - ctx: Context created by NewContextWithShutdownRegistry
//   - onShutdown: Function to call during shutdown, receives the shutdown context
//
// Returns an error when ctx carries no registry.
//
// Example:
//
//	err := RegisterOnShutdown(ctx, func(shutdownCtx context.Context) {
//	    _ = srv.Shutdown(shutdownCtx)
//	})
func RegisterOnShutdown(ctx context.Context, onShutdown func(context.Context)) error {
	sr, ok := ctx.Value(shutdownContextKey{}).(*ShutdownRegistry)
	if !ok {
		return errors.New("context without shutdown registry")
	}

	sr.Register(onShutdown)
	return nil
}

// NewShutdownRegistry creates a ShutdownRegistry that shuts down when one of the
// configured signals is received or ctx is cancelled.
//
// Parameters:
//   - ctx: The parent context; cancelling it starts the shutdown
//   - opts: Logger, deadline and signal overrides; SIGINT and SIGTERM by default
//
// Returns a new initialized ShutdownRegistry.
//
// Example:
//
//	sr := NewShutdownRegistry(ctx, WithShutdownLogger(logger))
//	sr.Register(func(ctx context.Context) {
//	    server.Shutdown(ctx)
//	})
//	<-sr.Done()
func NewShutdownRegistry(ctx context.Context, opts ...ShutdownOption) *ShutdownRegistry {
	sr := &ShutdownRegistry{
		registry: make([]func(context.Context), 0),
		done:     make(chan struct{}),
		logger:   hclog.NewNullLogger(),
		timeout:  shutdownDeadlineTimeout,
		signals:  []SignalCode{syscall.SIGINT, syscall.SIGTERM}, // default pid kills.
	}
	for _, o := range opts {
		o(sr)
	}

	ctx, cancel := signal.NotifyContext(ctx, sr.signals...)
	go sr.onDeath(ctx, cancel)

	return sr
}

// Register adds a function to run during shutdown. Functions registered after
// shutdown started are not guaranteed to run.
func (r *ShutdownRegistry) Register(onShutdown func(context.Context)) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.registry = append(r.registry, onShutdown)
}

// Done is closed when shutdown has completed.
func (r *ShutdownRegistry) Done() <-chan struct{} {
	return r.done
}

// Shutdown runs every registered callback concurrently and waits for them up to
// the shutdown deadline. Only the first call has any effect. A callback that
// panics is logged and does not stop the others.
//
// Parameters:
//   - ctx: The context passed to every callback
func (r *ShutdownRegistry) Shutdown(ctx context.Context) {
	r.once.Do(func() {
		defer close(r.done)

		r.mux.RLock()
		fns := make([]func(context.Context), len(r.registry))
		copy(fns, r.registry)
		r.mux.RUnlock()

		wg := new(sync.WaitGroup)
		wg.Add(len(fns))

		for _, fn := range fns {
			go func(fn func(context.Context)) {
				defer wg.Done()
				defer r.recoverPanic()
				fn(ctx)
			}(fn)
		}

		ch := make(chan struct{})
		go func() {
			defer close(ch)
			wg.Wait()
		}()

		timer := time.NewTimer(r.timeout)
		defer timer.Stop()

		select {
		case <-ch:
			r.logger.Info("graceful shutdown completed")
		case <-timer.C:
			r.logger.Error("timeout while waiting for shutdown callbacks to finish", "timeout", r.timeout)
		}
	})
}

func (r *ShutdownRegistry) recoverPanic() {
	if rec := recover(); rec != nil {
		r.logger.Error("shutdown callback panicked", "error", fmt.Errorf("panic recovered: %v", rec))
	}
}

// onDeath waits for ctx to be cancelled and triggers shutdown.
func (r *ShutdownRegistry) onDeath(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	<-ctx.Done()
	r.logger.Info("shutdown signal received, initiating graceful shutdown")
	r.Shutdown(context.WithoutCancel(ctx))
}
