// Package cerrors defines sentinel errors used across the cache.
package cerrors

import "errors"

var (
	// ErrAccessorUnavailable wraps a transport-level failure from the
	// metadata accessor (spec §7 accessor-transport-failure).
	ErrAccessorUnavailable = errors.New("metadata accessor unavailable")

	// ErrNoProvider indicates a write-back was attempted with a nil
	// accessor.
	ErrNoProvider = errors.New("no metadata accessor configured")

	// ErrSessionMismatch indicates a current-state record was found under
	// a session that no longer matches the live instance's current session.
	ErrSessionMismatch = errors.New("current state session does not match live instance session")

	// ErrInvalidReplicas indicates an ideal state's replicas field could
	// not be parsed (spec §4.5 getReplicas, §7 parse-failure).
	ErrInvalidReplicas = errors.New("invalid replicas value")

	// ErrTaskCacheDisabled indicates a task-cache-only operation was
	// invoked on an aggregator not configured as a task cache.
	ErrTaskCacheDisabled = errors.New("task cache is disabled for this aggregator")
)
