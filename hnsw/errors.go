package hnsw

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyVector is returned when an empty vector is inserted.
	ErrEmptyVector = errors.New("vector must not be empty")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
// Mismatches are always surfaced to the caller; silently skipping them during
// bulk loads empties indexes without anyone noticing.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrNodeNotFound indicates the requested node id is not in the index.
type ErrNodeNotFound struct {
	ID uint64
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node %d not found", e.ID)
}
