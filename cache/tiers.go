package cache

import (
	"context"
	"errors"
	"math"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when an entry exists in no tier, including
// the backing store.
var ErrNotFound = errors.New("cache: entry not found")

// Entry is a cached item: the full-precision vector plus its metadata.
type Entry struct {
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Loader fetches an entry from the cold tier (the backing store).
// It must return ErrNotFound (or wrap it) for missing ids.
type Loader func(ctx context.Context, id uint64) (*Entry, error)

// Options configures a TierManager.
type Options struct {
	// HotCapacity bounds the hot LRU tier by entry count.
	HotCapacity int
	// WarmCapacity bounds the warm tier by entry count.
	WarmCapacity int
	// WarmTTL is how long a demoted entry stays warm.
	WarmTTL time.Duration
	// PrefetchParallelism bounds concurrent cold-tier loads per
	// Prefetch call.
	PrefetchParallelism int
	// PrefetchNeighbors, when set, is consulted after every cold-tier
	// hit: the ids it returns for the loaded entry are warmed in the
	// background. Wire it to the proximity graph so a cold read pulls
	// in the entries a search is about to touch.
	PrefetchNeighbors func(id uint64) []uint64
	// PrefetchDepth is how many neighbor hops a background prefetch
	// follows. Zero means one hop.
	PrefetchDepth int
}

// DefaultOptions holds sensible defaults for TierManager.
var DefaultOptions = Options{
	HotCapacity:         4096,
	WarmCapacity:        65536,
	WarmTTL:             5 * time.Minute,
	PrefetchParallelism: 8,
}

// TierManager layers three tiers over the backing store: a hot bounded
// LRU, a warm TTL map fed by hot-tier evictions, and the cold tier
// reached through the Loader. Reads promote upward; hot evictions
// demote downward.
type TierManager struct {
	hot    *lruTier
	warm   *ttlTier
	loader Loader
	flight singleflight.Group
	opts   Options

	coldHits   atomic.Int64
	coldMisses atomic.Int64
}

// NewTierManager creates a TierManager over the given cold-tier loader.
func NewTierManager(loader Loader, optFns ...func(o *Options)) *TierManager {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HotCapacity < 1 {
		opts.HotCapacity = 1
	}
	if opts.WarmCapacity < 1 {
		opts.WarmCapacity = 1
	}
	if opts.WarmTTL <= 0 {
		opts.WarmTTL = DefaultOptions.WarmTTL
	}
	if opts.PrefetchParallelism < 1 {
		opts.PrefetchParallelism = 1
	}
	if opts.PrefetchDepth < 1 {
		opts.PrefetchDepth = 1
	}

	m := &TierManager{
		warm:   newTTLTier(opts.WarmTTL, opts.WarmCapacity),
		loader: loader,
		opts:   opts,
	}
	m.hot = newLRUTier(opts.HotCapacity, func(id uint64, e *Entry) {
		m.warm.set(id, e)
	})
	return m
}

// Get returns the entry for id, consulting hot, then warm, then the
// backing store. Warm and cold hits are promoted to the hot tier.
// Concurrent cold loads for the same id are coalesced. A cold hit
// kicks off a background neighbor prefetch when one is configured.
func (m *TierManager) Get(ctx context.Context, id uint64) (*Entry, error) {
	e, cold, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cold && m.opts.PrefetchNeighbors != nil {
		// Best effort, detached from the caller's deadline. Prefetch
		// loads go through load directly so they cannot fan out into
		// further prefetches.
		go func() {
			_ = m.PrefetchConnected(context.Background(), id, m.opts.PrefetchNeighbors, m.opts.PrefetchDepth)
		}()
	}
	return e, nil
}

// load resolves id through the tiers and reports whether the entry came
// from the cold tier.
func (m *TierManager) load(ctx context.Context, id uint64) (*Entry, bool, error) {
	if e, ok := m.hot.get(id); ok {
		return e, false, nil
	}
	if e, ok := m.warm.get(id); ok {
		m.warm.remove(id)
		m.hot.set(id, e)
		return e, false, nil
	}
	if m.loader == nil {
		return nil, false, ErrNotFound
	}

	v, err, _ := m.flight.Do(strconv.FormatUint(id, 10), func() (any, error) {
		e, err := m.loader(ctx, id)
		if err != nil {
			return nil, err
		}
		m.hot.set(id, e)
		return e, nil
	})
	if err != nil {
		m.coldMisses.Add(1)
		return nil, false, err
	}
	m.coldHits.Add(1)
	return v.(*Entry), true, nil
}

// Put inserts or replaces an entry in the hot tier.
func (m *TierManager) Put(id uint64, e *Entry) {
	m.warm.remove(id)
	m.hot.set(id, e)
}

// Delete drops id from all in-memory tiers. The backing store is not
// touched.
func (m *TierManager) Delete(id uint64) {
	m.hot.remove(id)
	m.warm.remove(id)
}

// Pin keeps id in the hot tier until Unpin, loading it first if needed.
func (m *TierManager) Pin(ctx context.Context, id uint64) error {
	if m.hot.pin(id, true) {
		return nil
	}
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}
	m.hot.pin(id, true)
	return nil
}

// Unpin releases a pinned entry back to normal LRU treatment.
func (m *TierManager) Unpin(id uint64) {
	m.hot.pin(id, false)
}

// Resize changes the tier bounds at runtime, evicting down to the new
// bounds immediately. Non-positive values leave that tier's bound
// unchanged.
func (m *TierManager) Resize(hot, warm int) {
	if hot > 0 {
		m.hot.resize(hot)
	}
	if warm > 0 {
		m.warm.resize(warm)
	}
}

// DeriveHotCapacity sizes the hot tier from the process memory limit.
// A sixteenth of GOMEMLIMIT is budgeted at one full-precision vector
// plus bookkeeping per entry; without a limit configured the default
// capacity stands.
func DeriveHotCapacity(dimension int) int {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return DefaultOptions.HotCapacity
	}

	bytesPerEntry := int64(dimension)*4 + 96
	capacity := limit / 16 / bytesPerEntry
	if capacity < 1024 {
		capacity = 1024
	}
	if capacity > 1<<20 {
		capacity = 1 << 20
	}
	return int(capacity)
}

// Prefetch warms the cache for the given ids. Missing ids are skipped
// silently; other load errors abort the prefetch.
func (m *TierManager) Prefetch(ctx context.Context, ids []uint64) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.PrefetchParallelism)

	for _, id := range ids {
		g.Go(func() error {
			if _, _, err := m.load(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// PrefetchConnected walks the neighbor function breadth-first from seed
// up to depth hops and warms every reached id. Graph connectivity is a
// strong predictor of which entries a search will touch next.
func (m *TierManager) PrefetchConnected(ctx context.Context, seed uint64, neighbors func(id uint64) []uint64, depth int) error {
	if neighbors == nil || depth < 1 {
		return nil
	}

	seen := map[uint64]struct{}{seed: {}}
	frontier := []uint64{seed}
	var reached []uint64

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []uint64
		for _, id := range frontier {
			for _, nb := range neighbors(id) {
				if _, ok := seen[nb]; ok {
					continue
				}
				seen[nb] = struct{}{}
				next = append(next, nb)
			}
		}
		reached = append(reached, next...)
		frontier = next
	}
	return m.Prefetch(ctx, reached)
}

// Stats reports per-tier occupancy and hit counters.
type Stats struct {
	HotLen     int
	WarmLen    int
	HotHits    int64
	HotMisses  int64
	WarmHits   int64
	WarmMisses int64
	ColdHits   int64
	ColdMisses int64
}

// Stats returns a snapshot of the cache counters.
func (m *TierManager) Stats() Stats {
	return Stats{
		HotLen:     m.hot.len(),
		WarmLen:    m.warm.len(),
		HotHits:    m.hot.hits.Load(),
		HotMisses:  m.hot.misses.Load(),
		WarmHits:   m.warm.hits.Load(),
		WarmMisses: m.warm.misses.Load(),
		ColdHits:   m.coldHits.Load(),
		ColdMisses: m.coldMisses.Load(),
	}
}
