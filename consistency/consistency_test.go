package consistency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
	"github.com/soulcraft-research/brainy-sub005/model"
)

func TestLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	a := NewLockManager(store, "instance-a")
	b := NewLockManager(store, "instance-b")

	release, err := a.Acquire(ctx, "write")
	require.NoError(t, err)

	_, err = b.Acquire(ctx, "write")
	var held *ErrLockHeld
	require.ErrorAs(t, err, &held)
	assert.Equal(t, "instance-a", held.Owner)
	assert.Equal(t, "write", held.Name)

	require.NoError(t, release(ctx))

	releaseB, err := b.Acquire(ctx, "write")
	require.NoError(t, err)
	require.NoError(t, releaseB(ctx))
}

func TestLockExpiredIsStolen(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	base := time.Now()
	a := NewLockManager(store, "instance-a", WithLockTTL(time.Second))
	a.now = func() time.Time { return base }
	_, err := a.Acquire(ctx, "write")
	require.NoError(t, err)

	// instance-a dies without releasing; b arrives after the TTL.
	b := NewLockManager(store, "instance-b")
	b.now = func() time.Time { return base.Add(2 * time.Second) }

	release, err := b.Acquire(ctx, "write")
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

// stealingStore lets a rival lock manager run in the window between an
// acquirer reading a stale lock record and deleting it.
type stealingStore struct {
	*blobstore.MemoryStore
	mu    sync.Mutex
	steal func(ctx context.Context)
	fired bool
}

func (s *stealingStore) CompareAndDelete(ctx context.Context, key string, expected []byte) error {
	s.mu.Lock()
	fire := !s.fired && s.steal != nil
	s.fired = true
	s.mu.Unlock()
	if fire {
		s.steal(ctx)
	}
	return s.MemoryStore.CompareAndDelete(ctx, key, expected)
}

func TestAcquireExpiredDoesNotEvictFreshLock(t *testing.T) {
	ctx := context.Background()
	store := &stealingStore{MemoryStore: blobstore.NewMemoryStore()}

	// An expired record from a holder that died without releasing.
	crashed := NewLockManager(store, "crashed", WithLockTTL(-time.Second))
	_, err := crashed.Acquire(ctx, "compaction")
	require.NoError(t, err)

	a := NewLockManager(store, "instance-a")
	b := NewLockManager(store, "instance-b", WithLockTTL(time.Minute))

	// While a is between reading the stale record and removing it, b
	// completes its own takeover.
	var releaseB func(ctx context.Context) error
	store.steal = func(ctx context.Context) {
		r, err := b.Acquire(ctx, "compaction")
		require.NoError(t, err)
		releaseB = r
	}

	_, err = a.Acquire(ctx, "compaction")
	var held *ErrLockHeld
	require.ErrorAs(t, err, &held, "a must not acquire while b holds a live lock")
	assert.Equal(t, "instance-b", held.Owner)

	require.NoError(t, releaseB(ctx))
}

func TestLockReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	base := time.Now()
	a := NewLockManager(store, "instance-a", WithLockTTL(time.Second))
	a.now = func() time.Time { return base }
	releaseA, err := a.Acquire(ctx, "write")
	require.NoError(t, err)

	b := NewLockManager(store, "instance-b")
	b.now = func() time.Time { return base.Add(2 * time.Second) }
	_, err = b.Acquire(ctx, "write")
	require.NoError(t, err)

	// a's stale release must not clobber b's lock.
	require.ErrorIs(t, releaseA(ctx), ErrNotLockOwner)
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	m := NewLockManager(store, "instance-a")

	ran := false
	err := m.WithLock(ctx, "maintenance", func(ctx context.Context) error {
		ran = true
		// Lock is held inside the callback.
		_, err := m.Acquire(ctx, "maintenance")
		var held *ErrLockHeld
		assert.ErrorAs(t, err, &held)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// Released afterwards.
	release, err := m.Acquire(ctx, "maintenance")
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func newTestChangeLog(t *testing.T, store blobstore.Store, instanceID string, optFns ...func(l *ChangeLog)) *ChangeLog {
	t.Helper()
	l, err := NewChangeLog(store, instanceID, optFns...)
	require.NoError(t, err)
	return l
}

func TestChangeLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	writer := newTestChangeLog(t, store, "instance-a")
	reader := newTestChangeLog(t, store, "instance-b")

	since := time.Now().Add(-time.Minute)
	require.NoError(t, writer.Append(ctx, []model.ChangeEntry{
		{Operation: model.OpAdd, EntityType: model.EntityNode, EntityID: "n1"},
		{Operation: model.OpAdd, EntityType: model.EntityEdge, EntityID: "e1"},
	}))
	require.NoError(t, writer.Append(ctx, []model.ChangeEntry{
		{Operation: model.OpDelete, EntityType: model.EntityNode, EntityID: "n1"},
	}))

	entries, watermark, err := reader.Poll(ctx, since)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "n1", entries[0].EntityID)
	assert.Equal(t, model.OpDelete, entries[2].Operation)
	for _, e := range entries {
		assert.Equal(t, "instance-a", e.InstanceID)
	}

	// Nothing new after the watermark.
	entries, _, err = reader.Poll(ctx, watermark)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChangeLogFiltersOwnEntries(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	log := newTestChangeLog(t, store, "instance-a")

	require.NoError(t, log.Append(ctx, []model.ChangeEntry{
		{Operation: model.OpAdd, EntityType: model.EntityNode, EntityID: "n1"},
	}))

	entries, _, err := log.Poll(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, entries, "own writes are not replayed")
}

func TestChangeLogUncompressed(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	writer := newTestChangeLog(t, store, "instance-a", WithoutCompression())
	reader := newTestChangeLog(t, store, "instance-b")

	require.NoError(t, writer.Append(ctx, []model.ChangeEntry{
		{Operation: model.OpUpdate, EntityType: model.EntityNode, EntityID: "n7"},
	}))

	entries, _, err := reader.Poll(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "n7", entries[0].EntityID)
}

func TestChangeLogPrune(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	log := newTestChangeLog(t, store, "instance-a")

	base := time.Now()
	log.now = func() time.Time { return base.Add(-2 * time.Hour) }
	require.NoError(t, log.Append(ctx, []model.ChangeEntry{
		{Operation: model.OpAdd, EntityType: model.EntityNode, EntityID: "old", Timestamp: base.Add(-2 * time.Hour)},
	}))

	log.now = func() time.Time { return base }
	require.NoError(t, log.Append(ctx, []model.ChangeEntry{
		{Operation: model.OpAdd, EntityType: model.EntityNode, EntityID: "new", Timestamp: base},
	}))

	deleted, err := log.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	reader := newTestChangeLog(t, store, "instance-b")
	entries, _, err := reader.Poll(ctx, base.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].EntityID)
}

func TestStatsUpdateAndSkipOnContention(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	locksA := NewLockManager(store, "instance-a")
	locksB := NewLockManager(store, "instance-b")
	statsA := NewStatsManager(store, locksA)
	statsB := NewStatsManager(store, locksB)

	applied, err := statsA.Update(ctx, func(s *SharedStats) {
		s.NodeCount = 42
		s.PartitionSizes = map[string]int64{"p0": 42}
	})
	require.NoError(t, err)
	assert.True(t, applied)

	loaded, err := statsB.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), loaded.NodeCount)
	assert.Equal(t, "instance-a", loaded.UpdatedBy)

	// Hold the stats lock as a; b's update is skipped, not an error.
	release, err := locksA.Acquire(ctx, statsLock)
	require.NoError(t, err)

	applied, err = statsB.Update(ctx, func(s *SharedStats) { s.NodeCount = 0 })
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, release(ctx))

	loaded, err = statsB.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), loaded.NodeCount, "skipped update changed nothing")
}
