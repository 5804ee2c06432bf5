package domain

import "errors"

// Errors surfaced by the core. Callers classify with errors.Is; adapters
// wrap these with fmt.Errorf("%w") to add detail.
var (
	// ErrWildcardNotFound is returned when a template references a set with no definition
	ErrWildcardNotFound = errors.New("wildcard set not found")

	// ErrEmptyWildcardSet is returned when a set exists but has zero items
	ErrEmptyWildcardSet = errors.New("wildcard set has no items")

	// ErrRecursionLimit is returned when nested expansion exceeds the depth bound
	ErrRecursionLimit = errors.New("wildcard recursion limit exceeded")

	// ErrJobNotFound is returned for lookups of unknown job IDs
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned for state changes the job lifecycle forbids
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrBackend wraps any failure surfaced by the generation backend
	ErrBackend = errors.New("generation backend error")

	// ErrConfigNotFound is returned when a named template config does not exist
	ErrConfigNotFound = errors.New("template config not found")
)
