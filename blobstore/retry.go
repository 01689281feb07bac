package blobstore

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RetryOptions configures RetryStore.
type RetryOptions struct {
	// MaxAttempts is the total number of tries per operation.
	MaxAttempts int
	// Limiter paces retries globally across all operations so a flapping
	// backend is not hammered by every caller at once.
	Limiter *rate.Limiter
}

// DefaultRetryOptions retries three times on top of the initial attempt,
// at most ten retries per second overall.
var DefaultRetryOptions = RetryOptions{
	MaxAttempts: 4,
	Limiter:     rate.NewLimiter(rate.Limit(10), 10),
}

// RetryStore wraps a Store and retries transient failures. ErrNotFound,
// ErrAlreadyExists and context cancellation are terminal and returned
// as-is.
type RetryStore struct {
	inner Store
	opts  RetryOptions
}

// NewRetryStore wraps inner with retry behavior.
func NewRetryStore(inner Store, optFns ...func(o *RetryOptions)) *RetryStore {
	opts := DefaultRetryOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Limiter == nil {
		opts.Limiter = DefaultRetryOptions.Limiter
	}
	return &RetryStore{inner: inner, opts: opts}
}

func terminal(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrPreconditionFailed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (r *RetryStore) do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if werr := r.opts.Limiter.Wait(ctx); werr != nil {
				return werr
			}
		}
		if err = op(); terminal(err) {
			return err
		}
	}
	return err
}

// Get reads the full object stored under key.
func (r *RetryStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, func() error {
		var opErr error
		data, opErr = r.inner.Get(ctx, key)
		return opErr
	})
	return data, err
}

// Put writes an object, replacing any existing value.
func (r *RetryStore) Put(ctx context.Context, key string, data []byte) error {
	return r.do(ctx, func() error {
		return r.inner.Put(ctx, key, data)
	})
}

// PutIfAbsent writes an object only if the key does not exist yet.
// Not retried: after a transport error the write may in fact have
// landed, and a retry would then misreport the key as taken.
func (r *RetryStore) PutIfAbsent(ctx context.Context, key string, data []byte) error {
	return r.inner.PutIfAbsent(ctx, key, data)
}

// CompareAndDelete removes an object only while its stored value still
// equals expected. Not retried for the same reason as PutIfAbsent: the
// first attempt may have landed, and a retry would then report a
// precondition failure for a delete that succeeded.
func (r *RetryStore) CompareAndDelete(ctx context.Context, key string, expected []byte) error {
	return r.inner.CompareAndDelete(ctx, key, expected)
}

// Delete removes an object.
func (r *RetryStore) Delete(ctx context.Context, key string) error {
	return r.do(ctx, func() error {
		return r.inner.Delete(ctx, key)
	})
}

// List returns the keys under prefix in lexicographic order.
func (r *RetryStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.do(ctx, func() error {
		var opErr error
		keys, opErr = r.inner.List(ctx, prefix)
		return opErr
	})
	return keys, err
}
