package coordinator

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulcraft-research/brainy-sub005/hnsw"
	"github.com/soulcraft-research/brainy-sub005/partition"
)

var seed = int64(42)

func newTestManager(t *testing.T, strategy partition.Strategy, parts int) (*partition.Manager, [][]float32) {
	t.Helper()
	m, err := partition.NewManager(func(o *partition.Options) {
		o.Dimension = 8
		o.Strategy = strategy
		o.InitialPartitions = parts
		o.RandomSeed = &seed
	})
	require.NoError(t, err)

	ctx := context.Background()
	rng := rand.New(rand.NewSource(11))
	vectors := make([][]float32, 400)
	for id := range vectors {
		v := make([]float32, 8)
		for d := range v {
			v[d] = rng.Float32()
		}
		vectors[id] = v
		require.NoError(t, m.Insert(ctx, uint64(id), v))
	}
	return m, vectors
}

func TestBroadcastFindsExactMatch(t *testing.T) {
	m, vectors := newTestManager(t, partition.StrategyHash, 4)
	c := New(m, func(o *Options) { o.Strategy = StrategyBroadcast })
	defer c.Close()

	for _, probe := range []int{0, 123, 399} {
		results, report, err := c.Search(context.Background(), vectors[probe], 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint64(probe), results[0].ID)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)
		assert.Equal(t, 4, report.Probed)
		assert.Empty(t, report.Degraded)
	}
}

func TestMergedOrderingIsDeterministic(t *testing.T) {
	m, vectors := newTestManager(t, partition.StrategyHash, 4)
	c := New(m, func(o *Options) { o.Strategy = StrategyBroadcast })
	defer c.Close()

	first, _, err := c.Search(context.Background(), vectors[7], 10)
	require.NoError(t, err)
	require.Len(t, first, 10)

	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i].Distance, first[i-1].Distance)
	}

	for run := 0; run < 5; run++ {
		again, _, err := c.Search(context.Background(), vectors[7], 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSelectiveProbesFewerPartitions(t *testing.T) {
	m, vectors := newTestManager(t, partition.StrategySemantic, 8)
	c := New(m, func(o *Options) {
		o.Strategy = StrategySelective
		o.MaxProbes = 3
	})
	defer c.Close()

	results, report, err := c.Search(context.Background(), vectors[5], 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Equal(t, 3, report.Probed)
}

func TestAdaptiveBroadcastsSmallSets(t *testing.T) {
	m, vectors := newTestManager(t, partition.StrategyHash, 3)
	c := New(m, func(o *Options) { o.Strategy = StrategyAdaptive })
	defer c.Close()

	_, report, err := c.Search(context.Background(), vectors[0], 3)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Probed)
}

func TestContributionBiasesProbeOrder(t *testing.T) {
	m, _ := newTestManager(t, partition.StrategyHash, 4)
	parts := m.Partitions()
	require.Len(t, parts, 4)

	tr := newContributionTracker()

	// No history: centroid order stands and the bound applies.
	out := tr.Rank(parts, 2)
	require.Len(t, out, 2)
	assert.Equal(t, parts[0].ID(), out[0].ID())
	assert.Equal(t, parts[1].ID(), out[1].ID())

	// The last-ranked partition answers every query for a while.
	last := parts[len(parts)-1].ID()
	for i := 0; i < 50; i++ {
		tr.Record([]string{last, last, last})
	}
	assert.Greater(t, tr.Share(last), 0.9)

	out = tr.Rank(parts, 2)
	require.Len(t, out, 2)
	assert.Equal(t, last, out[0].ID())

	// Once it stops contributing the decayed share fades and the
	// centroid order reasserts itself.
	for i := 0; i < 600; i++ {
		tr.Record([]string{parts[0].ID()})
	}
	assert.Less(t, tr.Share(last), 0.05)
	out = tr.Rank(parts, 2)
	assert.Equal(t, parts[0].ID(), out[0].ID())
}

func TestHierarchicalWidensWhenShort(t *testing.T) {
	m, vectors := newTestManager(t, partition.StrategySemantic, 8)
	c := New(m, func(o *Options) {
		o.Strategy = StrategyHierarchical
		o.MaxProbes = 2
	})
	defer c.Close()

	// k exceeds what two partitions can plausibly return alone only if
	// they are small; with 400 points over 8 partitions two partitions
	// hold ~100, so use a huge k to force the second wave.
	results, report, err := c.Search(context.Background(), vectors[0], 150)
	require.NoError(t, err)
	assert.Greater(t, report.Probed, 2, "second wave expected")
	assert.Greater(t, len(results), 100)
}

func TestInvalidK(t *testing.T) {
	m, _ := newTestManager(t, partition.StrategyHash, 2)
	c := New(m)
	defer c.Close()

	_, _, err := c.Search(context.Background(), []float32{0, 0, 0, 0, 0, 0, 0, 0}, 0)
	require.ErrorIs(t, err, hnsw.ErrInvalidK)
}

func TestRedundantDispatchDedupes(t *testing.T) {
	m, vectors := newTestManager(t, partition.StrategyHash, 4)
	c := New(m, func(o *Options) {
		o.Strategy = StrategyBroadcast
		o.Redundant = true
	})
	defer c.Close()

	results, report, err := c.Search(context.Background(), vectors[3], 10)
	require.NoError(t, err)
	require.Len(t, results, 10)
	assert.Empty(t, report.Degraded)

	seen := make(map[uint64]bool)
	for _, r := range results {
		assert.False(t, seen[r.ID], "duplicate id %d from redundant replicas", r.ID)
		seen[r.ID] = true
	}
}

func TestCancelledContext(t *testing.T) {
	m, vectors := newTestManager(t, partition.StrategyHash, 4)
	c := New(m, func(o *Options) { o.Strategy = StrategyBroadcast })
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Search(ctx, vectors[0], 5)
	require.Error(t, err)
}

func TestWorkerPoolLifecycle(t *testing.T) {
	wp := NewWorkerPool(2)

	var ran atomic.Int64
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		require.NoError(t, wp.Submit(context.Background(), func() {
			if ran.Add(1) == 10 {
				close(done)
			}
		}))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks did not run")
	}

	wp.Close()
	wp.Close() // idempotent

	err := wp.Submit(context.Background(), func() {})
	require.ErrorIs(t, err, ErrClosed)
}
