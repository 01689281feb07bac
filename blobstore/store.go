package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an object does not exist.
//
// Implementations must return an error that satisfies
// `errors.Is(err, ErrNotFound)`.
var ErrNotFound = errors.New("blobstore: object not found")

// ErrAlreadyExists is returned by PutIfAbsent when the key is already
// present. Lock acquisition treats this as "held by someone else".
var ErrAlreadyExists = errors.New("blobstore: object already exists")

// ErrPreconditionFailed is returned by CompareAndDelete when the stored
// value no longer matches the expected one, including when the key is
// gone. The caller's view of the object is stale either way.
var ErrPreconditionFailed = errors.New("blobstore: precondition failed")

// Store is an abstraction over a shared object store. Every durable
// artifact (snapshots, change log buckets, lock records, statistics)
// goes through this interface, so a single backing bucket can be shared
// by multiple instances.
type Store interface {
	// Get reads the full object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes an object, replacing any existing value.
	Put(ctx context.Context, key string, data []byte) error

	// PutIfAbsent writes an object only if the key does not exist yet.
	// Returns ErrAlreadyExists when it does. This is the primitive the
	// distributed lock is built on, so implementations must make it
	// atomic with respect to concurrent callers.
	PutIfAbsent(ctx context.Context, key string, data []byte) error

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndDelete removes an object only while its stored value
	// still equals expected, returning ErrPreconditionFailed otherwise.
	// Expired-lock takeover depends on this being atomic with respect
	// to concurrent writers of the same key.
	CompareAndDelete(ctx context.Context, key string, expected []byte) error

	// List returns the keys under prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
}
