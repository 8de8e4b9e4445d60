package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceNotFound is returned when a required resource exists under none of its candidate names.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrReadNotSupported is returned by byte providers asked for a parsed map.
	ErrReadNotSupported = errors.New("parser: Read not supported by byte provider, use ReadBytes() instead")
)

type (
	// ResourceNotFoundError indicates none of the candidate names of a resource exist.
	ResourceNotFoundError struct {
		Name       string
		Candidates []string
	}

	// ParseError indicates a resource could not be parsed.
	ParseError struct {
		Origin string
		Err    error
	}

	// UnresolvedSubstitutionError indicates a ${...} reference that resolves neither
	// in the tree nor in the environment.
	UnresolvedSubstitutionError struct {
		Path      string
		Reference string
	}

	// CyclicSubstitutionError indicates substitutions that reference each other.
	CyclicSubstitutionError struct {
		Path string
	}

	// FetchError indicates a URL root could not be retrieved.
	FetchError struct {
		URL    string
		Status int
		Err    error
	}
)

func (e ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s (tried %v)", ErrResourceNotFound, e.Name, e.Candidates)
}

// Is lets callers match any ResourceNotFoundError against ErrResourceNotFound.
func (e ResourceNotFoundError) Is(target error) bool {
	return target == ErrResourceNotFound
}

func (e ParseError) Error() string {
	return fmt.Sprintf("can't parse %s: %s", e.Origin, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

func (e UnresolvedSubstitutionError) Error() string {
	return fmt.Sprintf("can't resolve substitution ${%s} at %q", e.Reference, e.Path)
}

func (e CyclicSubstitutionError) Error() string {
	return fmt.Sprintf("cycle in substitutions involving %q", e.Path)
}

func (e FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("can't fetch %s: %s", e.URL, e.Err)
	}
	return fmt.Sprintf("can't fetch %s: unexpected status %d", e.URL, e.Status)
}

func (e FetchError) Unwrap() error {
	return e.Err
}
