package coordinator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/soulcraft-research/brainy-sub005/hnsw"
	"github.com/soulcraft-research/brainy-sub005/partition"
)

// SearchStrategy selects how queries fan out over partitions.
type SearchStrategy uint8

const (
	// StrategyBroadcast probes every partition.
	StrategyBroadcast SearchStrategy = iota
	// StrategySelective probes only the partitions ranked closest to
	// the query by the partition manager.
	StrategySelective
	// StrategyAdaptive broadcasts while the partition set is small and
	// switches to selective probing as it grows, biasing the probe set
	// toward partitions whose recent answers made the final top-k.
	StrategyAdaptive
	// StrategyHierarchical probes the closest partitions first and
	// widens to the rest only when the first wave comes up short.
	StrategyHierarchical
)

// Options configures a Coordinator.
type Options struct {
	// Strategy is the fan-out policy.
	Strategy SearchStrategy
	// MaxProbes bounds selective probing. Zero derives the bound from
	// the partition count.
	MaxProbes int
	// PartitionTimeout bounds each partition search. A partition that
	// misses its deadline is reported degraded instead of failing the
	// query.
	PartitionTimeout time.Duration
	// Redundant dispatches every partition search twice and keeps the
	// first answer, trading work for tail latency.
	Redundant bool
	// Workers sizes the shared worker pool.
	Workers int
	// EFSearch is passed through to each partition index.
	EFSearch int
}

// DefaultOptions holds the default Coordinator configuration.
var DefaultOptions = Options{
	Strategy:         StrategyAdaptive,
	PartitionTimeout: 2 * time.Second,
}

// adaptiveBroadcastLimit is the partition count up to which adaptive
// mode still broadcasts.
const adaptiveBroadcastLimit = 4

// PartitionFailure records one partition that could not answer in time.
type PartitionFailure struct {
	PartitionID string
	Err         error
}

// Report describes how a query was executed.
type Report struct {
	Probed   int
	Degraded []PartitionFailure
}

// Coordinator fans queries out across partitions and merges the
// per-partition answers into one deterministic result list.
type Coordinator struct {
	manager *partition.Manager
	pool    *WorkerPool
	contrib *contributionTracker
	opts    Options
}

// New creates a Coordinator over the given partition manager.
func New(manager *partition.Manager, optFns ...func(o *Options)) *Coordinator {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{
		manager: manager,
		pool:    NewWorkerPool(opts.Workers),
		contrib: newContributionTracker(),
		opts:    opts,
	}
}

// Close releases the worker pool.
func (c *Coordinator) Close() {
	c.pool.Close()
}

func (c *Coordinator) targets(q []float32) []*partition.Partition {
	all := c.manager.Partitions()
	n := len(all)

	switch c.opts.Strategy {
	case StrategyBroadcast:
		return all
	case StrategySelective:
		return c.manager.RouteForRead(q, c.probeBound(n))
	case StrategyHierarchical:
		// First wave only; Search widens on demand.
		return c.manager.RouteForRead(q, c.firstWaveBound(n))
	default: // StrategyAdaptive
		if n <= adaptiveBroadcastLimit {
			return all
		}
		// Full centroid ranking, re-ranked by historical contribution
		// before the probe bound is applied.
		return c.contrib.Rank(c.manager.RouteForRead(q, 0), c.probeBound(n))
	}
}

func (c *Coordinator) probeBound(n int) int {
	if c.opts.MaxProbes > 0 {
		return c.opts.MaxProbes
	}
	if bound := (n + 1) / 2; bound > adaptiveBroadcastLimit {
		return bound
	}
	return adaptiveBroadcastLimit
}

func (c *Coordinator) firstWaveBound(n int) int {
	if c.opts.MaxProbes > 0 {
		return c.opts.MaxProbes
	}
	if bound := int(math.Ceil(math.Sqrt(float64(n)))); bound > 1 {
		return bound
	}
	return 1
}

// Search runs a k-nearest-neighbor query across the partitions chosen
// by the strategy. Partitions that fail or time out degrade the answer
// instead of failing it; the Report lists them. The error is non-nil
// only when no partition answered or the context ended.
func (c *Coordinator) Search(ctx context.Context, q []float32, k int) ([]hnsw.SearchResult, Report, error) {
	if k <= 0 {
		return nil, Report{}, hnsw.ErrInvalidK
	}

	wave := c.targets(q)
	results, origins, report, err := c.searchWave(ctx, wave, q, k)
	if err != nil {
		return nil, report, err
	}

	// Hierarchical: widen to the remaining partitions when the first
	// wave cannot fill k.
	if c.opts.Strategy == StrategyHierarchical && len(results) < k {
		rest := remaining(c.manager.Partitions(), wave)
		if len(rest) > 0 {
			more, moreOrigins, secondReport, err := c.searchWave(ctx, rest, q, k)
			if err != nil {
				return nil, report, err
			}
			report.Probed += secondReport.Probed
			report.Degraded = append(report.Degraded, secondReport.Degraded...)
			results = mergeTopK(append(results, more...), k)
			for id, pid := range moreOrigins {
				origins[id] = pid
			}
		}
	}

	// Credit the partitions whose candidates survived the final merge.
	pids := make([]string, 0, len(results))
	for _, r := range results {
		if pid, ok := origins[r.ID]; ok {
			pids = append(pids, pid)
		}
	}
	c.contrib.Record(pids)

	return results, report, nil
}

type partitionResult struct {
	partitionID string
	results     []hnsw.SearchResult
	err         error
}

func (c *Coordinator) searchWave(ctx context.Context, targets []*partition.Partition, q []float32, k int) ([]hnsw.SearchResult, map[uint64]string, Report, error) {
	report := Report{Probed: len(targets)}
	origins := make(map[uint64]string)
	if len(targets) == 0 {
		return nil, origins, report, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, origins, report, err
	}

	dispatch := 1
	if c.opts.Redundant {
		dispatch = 2
	}

	resultsCh := make(chan partitionResult, len(targets)*dispatch)
	for _, p := range targets {
		for replica := 0; replica < dispatch; replica++ {
			idx := p.Index()
			pid := p.ID()
			if err := c.pool.Submit(ctx, func() {
				pctx := ctx
				var cancel context.CancelFunc
				if c.opts.PartitionTimeout > 0 {
					pctx, cancel = context.WithTimeout(ctx, c.opts.PartitionTimeout)
					defer cancel()
				}
				res, err := idx.Search(pctx, q, k, c.opts.EFSearch)
				select {
				case resultsCh <- partitionResult{partitionID: pid, results: res, err: err}:
				case <-ctx.Done():
				}
			}); err != nil {
				return nil, origins, report, fmt.Errorf("dispatch to partition %s: %w", pid, err)
			}
		}
	}

	// First answer per partition wins; with redundant dispatch the
	// slower replica is dropped here. A partition counts as failed only
	// once every replica has failed.
	answered := make(map[string]bool, len(targets))
	failed := make(map[string]error)
	failCount := make(map[string]int)
	var all []hnsw.SearchResult

	for done := 0; done < len(targets); {
		select {
		case res := <-resultsCh:
			if answered[res.partitionID] {
				continue
			}
			if res.err != nil {
				failed[res.partitionID] = res.err
				failCount[res.partitionID]++
				if failCount[res.partitionID] == dispatch {
					done++
				}
				continue
			}
			answered[res.partitionID] = true
			delete(failed, res.partitionID)
			for _, r := range res.results {
				origins[r.ID] = res.partitionID
			}
			all = append(all, res.results...)
			done++
		case <-ctx.Done():
			return nil, origins, report, fmt.Errorf("search cancelled: %w", ctx.Err())
		}
	}

	for pid, err := range failed {
		report.Degraded = append(report.Degraded, PartitionFailure{PartitionID: pid, Err: err})
	}
	sort.Slice(report.Degraded, func(i, j int) bool {
		return report.Degraded[i].PartitionID < report.Degraded[j].PartitionID
	})

	if len(answered) == 0 && len(failed) > 0 {
		return nil, origins, report, fmt.Errorf("all %d probed partitions failed, first: %w", len(failed), report.Degraded[0].Err)
	}
	return mergeTopK(all, k), origins, report, nil
}

func remaining(all, used []*partition.Partition) []*partition.Partition {
	seen := make(map[string]bool, len(used))
	for _, p := range used {
		seen[p.ID()] = true
	}
	var rest []*partition.Partition
	for _, p := range all {
		if !seen[p.ID()] {
			rest = append(rest, p)
		}
	}
	return rest
}
