package coordinator

import (
	"sort"

	"github.com/soulcraft-research/brainy-sub005/hnsw"
)

// mergeTopK merges per-partition result lists into the global top k.
// Ordering is deterministic: ascending distance, ties broken by id so
// repeated queries over the same data always agree.
func mergeTopK(results []hnsw.SearchResult, k int) []hnsw.SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	// Redundant dispatch can answer the same id from two replicas.
	deduped := results[:0]
	seen := make(map[uint64]bool, len(results))
	for _, r := range results {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		deduped = append(deduped, r)
	}

	if len(deduped) > k {
		deduped = deduped[:k]
	}
	return deduped
}
