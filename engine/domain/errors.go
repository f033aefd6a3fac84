package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds the engine distinguishes.
var (
	// ErrUpstreamFetchFailed is fatal to an ingestion run: there is no
	// partial batch to process.
	ErrUpstreamFetchFailed = errors.New("upstream fetch failed")

	// ErrEmbeddingUnavailable covers network/service errors and responses
	// with no embedding values. Recoverable during ingestion (the record is
	// stored without a vector), fatal for a search request.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStoreWriteFailed marks a per-record persistence failure. It is
	// counted against the batch but never aborts sibling records.
	ErrStoreWriteFailed = errors.New("store write failed")

	// ErrInvalidQuery rejects empty or non-text search input before any
	// backend call is made.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrSearchBackendError is surfaced to search callers as a retryable
	// service error.
	ErrSearchBackendError = errors.New("search backend error")

	// ErrDimensionMismatch rejects vectors whose length differs from the
	// model dimension the index was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ConfigError names a missing or invalid configuration value. Construction
// fails fast with one of these instead of deferring to a nil dereference
// deep in a request path.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}
