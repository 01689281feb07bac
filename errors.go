package brainy

import (
	"errors"
	"fmt"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
	"github.com/soulcraft-research/brainy-sub005/graph"
	"github.com/soulcraft-research/brainy-sub005/hnsw"
)

var (
	// ErrNotFound is returned when a node or edge does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned for operations on a closed DB.
	ErrClosed = errors.New("database is closed")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrNoEmbedder is returned by AddContent when no embedder is
	// configured.
	ErrNoEmbedder = errors.New("no embedder configured")

	// ErrNoSharedStore is returned by Sync when the DB has no blob
	// store to share changes through.
	ErrNoSharedStore = errors.New("no shared blob store configured")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidDimension struct {
	Dimension int
	cause     error
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

func (e *ErrInvalidDimension) Unwrap() error { return e.cause }

// translateError normalizes errors from inner layers to the root
// package's error surface so callers match on one vocabulary.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, graph.ErrEdgeNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var enf *hnsw.ErrNodeNotFound
	if errors.As(err, &enf) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Dimension and argument normalization.
	var dm *hnsw.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var id *hnsw.ErrInvalidDimension
	if errors.As(err, &id) {
		return &ErrInvalidDimension{Dimension: id.Dimension, cause: err}
	}
	if errors.Is(err, hnsw.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	return err
}
