package coordinator

import (
	"sort"
	"sync"

	"github.com/soulcraft-research/brainy-sub005/partition"
)

// contributionDecay ages hit counts per recorded query, so a partition
// that stops contributing loses its bias within a few hundred queries.
const contributionDecay = 0.99

// contributionBias scales how far a partition's hit share can promote
// it past centroid-closer partitions in the probe ranking. 1.0 means a
// partition supplying every recent result jumps to the front.
const contributionBias = 1.0

// contributionTracker keeps a decayed count per partition of how often
// it supplied final top-k results. Adaptive probing uses the counts to
// keep probing partitions that answer queries even when their centroid
// ranks them outside the probe bound.
type contributionTracker struct {
	mu   sync.Mutex
	hits map[string]float64
}

func newContributionTracker() *contributionTracker {
	return &contributionTracker{hits: make(map[string]float64)}
}

// Record decays all counts and credits the partitions that supplied the
// results of one query.
func (t *contributionTracker) Record(partitionIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, h := range t.hits {
		h *= contributionDecay
		if h < 0.01 {
			delete(t.hits, id)
			continue
		}
		t.hits[id] = h
	}
	for _, id := range partitionIDs {
		t.hits[id]++
	}
}

// Share returns the partition's fraction of all recorded hits, in [0, 1].
func (t *contributionTracker) Share(partitionID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total float64
	for _, h := range t.hits {
		total += h
	}
	if total == 0 {
		return 0
	}
	return t.hits[partitionID] / total
}

// Rank reorders centroid-ranked partitions by blending the centroid
// rank with each partition's historical hit share, then keeps the first
// bound entries. With no recorded history the centroid order stands.
func (t *contributionTracker) Rank(ranked []*partition.Partition, bound int) []*partition.Partition {
	out := make([]*partition.Partition, len(ranked))
	copy(out, ranked)

	scores := make(map[string]float64, len(out))
	for i, p := range out {
		scores[p.ID()] = float64(i) - contributionBias*t.Share(p.ID())*float64(len(out))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i].ID()] < scores[out[j].ID()]
	})

	if bound > 0 && len(out) > bound {
		out = out[:bound]
	}
	return out
}
