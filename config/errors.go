// Package config provides a configuration source that resolves layered, hierarchical
// configuration trees through a deterministic loading strategy.
package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInitialized is returned when configuration is requested from a Source
	// that has never been successfully initialized.
	ErrNotInitialized = errors.New("configuration source has to be successfully initialized before you request configuration")

	// ErrKeyNotFound is returned when a dotted path does not resolve in a Tree.
	ErrKeyNotFound = errors.New("key not found")
)

type (
	// InvalidArgumentError indicates a required collaborator was supplied empty or nil.
	// It is detected when the option set is built, never deferred to load time.
	InvalidArgumentError struct {
		Argument string
		Reason   string
	}

	// AmbiguousOrInvalidConfigurationError indicates the combination of present inputs
	// matches none of the declared loading strategies.
	AmbiguousOrInvalidConfigurationError struct {
		Mask    int
		Present []string
	}

	// ExternalLoadError wraps a failure of the underlying parser for a given strategy.
	ExternalLoadError struct {
		Strategy Strategy
		Err      error
	}

	// MissingPrefixError indicates the requested prefix does not address an object in the loaded tree.
	MissingPrefixError struct {
		Prefix string
		Err    error
	}

	// NotInitializedError is returned by queries issued before the first successful Init.
	NotInitializedError struct {
		Op string
	}
)

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("argument '%s' %s", e.Argument, e.Reason)
}

func (e AmbiguousOrInvalidConfigurationError) Error() string {
	present := "none"
	if len(e.Present) > 0 {
		present = strings.Join(e.Present, ", ")
	}
	return fmt.Sprintf("could not get loading strategy from the current state (mask=%d, present={%s})", e.Mask, present)
}

func (e ExternalLoadError) Error() string {
	return fmt.Sprintf("can't load configuration with strategy %s: %s", e.Strategy, e.Err)
}

func (e ExternalLoadError) Unwrap() error {
	return e.Err
}

func (e MissingPrefixError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prefix %q not found in configuration: %s", e.Prefix, e.Err)
	}
	return fmt.Sprintf("prefix %q not found in configuration", e.Prefix)
}

func (e MissingPrefixError) Unwrap() error {
	return e.Err
}

func (e NotInitializedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, ErrNotInitialized)
}

// Is lets callers match any NotInitializedError against ErrNotInitialized.
func (e NotInitializedError) Is(target error) bool {
	return target == ErrNotInitialized
}
