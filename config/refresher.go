package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const baseRefreshErrorMsg = "configuration swapped but subscribers failed"

type (
	// refresher runs a resolve step and fans the outcome out to change subscribers.
	// Source embeds it with its own resolve method as the step.
	refresher struct {
		mu       sync.RWMutex
		handlers []func(context.Context) error

		// resolve loads, composes and swaps the view. changed is false when the
		// new flattened view equals the previous one.
		resolve func(context.Context) (changed bool, err error)
	}

	// BaseRefreshError is returned by Reload when the new view was installed but one
	// or more subscribers failed. Each element is one subscriber's error.
	BaseRefreshError []error
)

func (e BaseRefreshError) Error() string {
	if len(e) == 0 {
		return baseRefreshErrorMsg
	}

	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s: %s", baseRefreshErrorMsg, strings.Join(msgs, "; "))
}

// Unwrap exposes the individual subscriber errors to errors.Is and errors.As.
func (e BaseRefreshError) Unwrap() []error {
	return e
}

func newRefresher(resolve func(context.Context) (bool, error)) *refresher {
	return &refresher{resolve: resolve}
}

// Subscribe registers fn to run after every reload whose flattened view differs
// from the previous one. The first successful Init counts as a change.
//
// Handlers run synchronously, in registration order, on the goroutine that called
// Init or Reload. A handler that panics is reported like one that returned an error.
//
// Example:
//
//	src.Subscribe(func(ctx context.Context) error {
//		return pool.Resize(src.Int(ctx, "db.pool.size", 10))
//	})
func (r *refresher) Subscribe(fn func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Refresh resolves a new view. A resolve error is returned as is and no
// subscriber runs. When the view changed every subscriber is called; their
// errors come back together as a BaseRefreshError, after the view was swapped.
func (r *refresher) Refresh(ctx context.Context) (changed bool, err error) {
	changed, err = r.resolve(ctx)
	if err != nil || !changed {
		return false, err
	}

	var failed BaseRefreshError
	for _, h := range r.snapshotHandlers() {
		if herr := notify(ctx, h); herr != nil {
			failed = append(failed, herr)
		}
	}
	if len(failed) > 0 {
		return true, failed
	}
	return true, nil
}

func notify(ctx context.Context, h func(context.Context) error) (err error) {
	defer func() {
		switch v := recover().(type) {
		case nil:
		case error:
			err = fmt.Errorf("subscriber panicked: %w", v)
		default:
			err = fmt.Errorf("subscriber panicked: %v", v)
		}
	}()
	return h(ctx)
}

func (r *refresher) snapshotHandlers() []func(context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]func(context.Context) error(nil), r.handlers...)
}
