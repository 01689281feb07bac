package consistency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
)

// ErrLockHeld is returned when another live instance holds the lock.
// Callers are expected to fail fast or skip, not to spin.
type ErrLockHeld struct {
	Name      string
	Owner     string
	ExpiresAt time.Time
}

func (e *ErrLockHeld) Error() string {
	return fmt.Sprintf("lock %q held by %s until %s", e.Name, e.Owner, e.ExpiresAt.Format(time.RFC3339))
}

// ErrNotLockOwner is returned when releasing a lock that has been taken
// over by another instance after expiry.
var ErrNotLockOwner = errors.New("consistency: lock no longer owned")

// DefaultLockTTL bounds how long a crashed holder can block others.
const DefaultLockTTL = 30 * time.Second

type lockRecord struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// LockManager implements advisory TTL locks on top of the store's
// PutIfAbsent primitive. No server-side coordination is needed; every
// instance sharing the bucket observes the same lock records.
type LockManager struct {
	store      blobstore.Store
	instanceID string
	prefix     string
	ttl        time.Duration
	now        func() time.Time
}

// NewLockManager creates a LockManager identified by instanceID.
func NewLockManager(store blobstore.Store, instanceID string, optFns ...func(m *LockManager)) *LockManager {
	m := &LockManager{
		store:      store,
		instanceID: instanceID,
		prefix:     "locks",
		ttl:        DefaultLockTTL,
		now:        time.Now,
	}
	for _, fn := range optFns {
		fn(m)
	}
	return m
}

// WithLockTTL overrides the lock lifetime.
func WithLockTTL(ttl time.Duration) func(m *LockManager) {
	return func(m *LockManager) { m.ttl = ttl }
}

func (m *LockManager) key(name string) string {
	return path.Join(m.prefix, name)
}

// Acquire takes the named lock, returning a release function. A lock
// whose record is past its TTL is treated as abandoned and stolen.
// Returns *ErrLockHeld without waiting when the lock is live.
func (m *LockManager) Acquire(ctx context.Context, name string) (func(ctx context.Context) error, error) {
	key := m.key(name)

	for attempt := 0; attempt < 2; attempt++ {
		rec := lockRecord{
			Owner:      m.instanceID,
			AcquiredAt: m.now(),
			ExpiresAt:  m.now().Add(m.ttl),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}

		err = m.store.PutIfAbsent(ctx, key, data)
		if err == nil {
			return m.releaseFunc(key), nil
		}
		if !errors.Is(err, blobstore.ErrAlreadyExists) {
			return nil, err
		}

		existing, err := m.store.Get(ctx, key)
		if errors.Is(err, blobstore.ErrNotFound) {
			continue // released between our attempts
		}
		if err != nil {
			return nil, err
		}

		var held lockRecord
		if err := json.Unmarshal(existing, &held); err == nil && m.now().Before(held.ExpiresAt) {
			return nil, &ErrLockHeld{Name: name, Owner: held.Owner, ExpiresAt: held.ExpiresAt}
		}

		// Expired or corrupt record: remove exactly the record we
		// observed, then try once more. A plain delete here could evict
		// a peer that stole the lock between our read and our write.
		if err := m.store.CompareAndDelete(ctx, key, existing); err != nil {
			if errors.Is(err, blobstore.ErrPreconditionFailed) {
				continue // someone else took over; re-read on the next attempt
			}
			return nil, err
		}
	}
	return nil, &ErrLockHeld{Name: name, Owner: "unknown"}
}

func (m *LockManager) releaseFunc(key string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		existing, err := m.store.Get(ctx, key)
		if errors.Is(err, blobstore.ErrNotFound) {
			return ErrNotLockOwner
		}
		if err != nil {
			return err
		}
		var held lockRecord
		if err := json.Unmarshal(existing, &held); err != nil || held.Owner != m.instanceID {
			return ErrNotLockOwner
		}
		err = m.store.CompareAndDelete(ctx, key, existing)
		if errors.Is(err, blobstore.ErrPreconditionFailed) {
			return ErrNotLockOwner
		}
		return err
	}
}

// WithLock runs fn while holding the named lock.
func (m *LockManager) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	release, err := m.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		_ = release(ctx)
	}()
	return fn(ctx)
}
