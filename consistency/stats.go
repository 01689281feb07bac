package consistency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
)

const (
	statsKey  = "stats/global.json"
	statsLock = "stats"
)

// SharedStats is the store-wide statistics document kept in the backing
// store so every instance sees the same view.
type SharedStats struct {
	NodeCount      int64            `json:"node_count"`
	EdgeCount      int64            `json:"edge_count"`
	PartitionSizes map[string]int64 `json:"partition_sizes,omitempty"`
	LastCompaction time.Time        `json:"last_compaction,omitzero"`
	UpdatedAt      time.Time        `json:"updated_at"`
	UpdatedBy      string           `json:"updated_by"`
}

// StatsManager maintains SharedStats with lock-guarded read-modify-write
// cycles. Updates are best effort: when another instance holds the
// stats lock the update is skipped rather than queued, since the next
// writer recomputes from its own counters anyway.
type StatsManager struct {
	store blobstore.Store
	locks *LockManager
	now   func() time.Time
}

// NewStatsManager creates a StatsManager sharing the lock manager's
// instance identity.
func NewStatsManager(store blobstore.Store, locks *LockManager) *StatsManager {
	return &StatsManager{store: store, locks: locks, now: time.Now}
}

// Load reads the current shared statistics. A missing document is an
// empty one.
func (s *StatsManager) Load(ctx context.Context) (SharedStats, error) {
	var stats SharedStats
	data, err := s.store.Get(ctx, statsKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return stats, nil
	}
	if err != nil {
		return stats, err
	}
	err = json.Unmarshal(data, &stats)
	return stats, err
}

// Update applies mutate inside a locked read-modify-write cycle.
// Returns (false, nil) when the lock is contended and the update was
// skipped.
func (s *StatsManager) Update(ctx context.Context, mutate func(stats *SharedStats)) (bool, error) {
	err := s.locks.WithLock(ctx, statsLock, func(ctx context.Context) error {
		stats, err := s.Load(ctx)
		if err != nil {
			return err
		}

		mutate(&stats)
		stats.UpdatedAt = s.now()
		stats.UpdatedBy = s.locks.instanceID

		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return s.store.Put(ctx, statsKey, data)
	})

	var held *ErrLockHeld
	if errors.As(err, &held) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
