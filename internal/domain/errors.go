package domain

import "errors"

// Sentinel errors shared across the engine. Callers match them with
// errors.Is; lower layers wrap them with context via fmt.Errorf("%w").
var (
	// ErrInvalidInput marks a malformed quality rating or unknown policy.
	// It is never silently clamped away.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing card, set, project or source.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification marks a card mutated between load and save.
	// The caller decides whether to retry or abandon.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrStoreUnavailable marks a transient persistence failure. Retryable
	// by the caller; the session coordinator never auto-retries.
	ErrStoreUnavailable = errors.New("store unavailable")
)
