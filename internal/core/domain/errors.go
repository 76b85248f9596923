package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means a required external capability is missing or
	// misconfigured at startup. Fatal before any query is accepted.
	ErrConfiguration = errors.New("configuration error")

	// ErrStorageNotFound means the persisted document store or index is
	// missing or empty at load time. Recoverable by re-running ingestion.
	ErrStorageNotFound = errors.New("storage not found or empty")

	// ErrDimensionMismatch means the query-time embedding dimensionality
	// does not match the persisted index. Never silently coerced.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrRetrieval means a sub-retriever failed; the query fails as a whole.
	ErrRetrieval = errors.New("retrieval failure")

	// ErrRateLimited means an external model call hit its quota. Classified
	// so callers can apply backoff; never retried inside the core.
	ErrRateLimited = errors.New("rate limited")

	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
