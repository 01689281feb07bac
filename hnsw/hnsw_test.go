package hnsw

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulcraft-research/brainy-sub005/distance"
	"github.com/soulcraft-research/brainy-sub005/quantization"
)

var seed = int64(42)

func newTestIndex(t *testing.T, dim int, optFns ...func(o *Options)) *Index {
	t.Helper()
	fns := append([]func(o *Options){func(o *Options) {
		o.Dimension = dim
		o.RandomSeed = &seed
	}}, optFns...)
	idx, err := New(fns...)
	require.NoError(t, err)
	return idx
}

func randomVectors(n, dim int, rngSeed int64) [][]float32 {
	rng := rand.New(rand.NewSource(rngSeed))
	out := make([][]float32, n)
	for i := range out {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = rng.Float32()
		}
		out[i] = vec
	}
	return out
}

func TestNewValidation(t *testing.T) {
	_, err := New(func(o *Options) { o.Dimension = 0 })
	var invalidDim *ErrInvalidDimension
	require.ErrorAs(t, err, &invalidDim)
}

func TestInsertDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, 4)

	err := idx.Insert(context.Background(), 1, []float32{1, 2, 3})
	var mismatch *ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Actual)
	assert.Equal(t, 0, idx.Len())

	require.ErrorIs(t, idx.Insert(context.Background(), 1, nil), ErrEmptyVector)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := newTestIndex(t, 4)

	results, err := idx.Search(context.Background(), []float32{1, 2, 3, 4}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchInvalidK(t *testing.T) {
	idx := newTestIndex(t, 2)
	_, err := idx.Search(context.Background(), []float32{1, 2}, 0, 0)
	require.ErrorIs(t, err, ErrInvalidK)
}

func TestExactMatchSelfSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 8)

	vectors := randomVectors(1000, 8, 7)
	for i, vec := range vectors {
		require.NoError(t, idx.Insert(ctx, uint64(i), vec))
	}
	require.Equal(t, 1000, idx.Len())

	// Searching for an inserted vector must return that exact id at distance 0.
	for _, probe := range []int{0, 137, 999} {
		results, err := idx.Search(ctx, vectors[probe], 1, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint64(probe), results[0].ID)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)
	}
}

func TestSearchResultOrdering(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 8)

	for i, vec := range randomVectors(500, 8, 3) {
		require.NoError(t, idx.Insert(ctx, uint64(i), vec))
	}

	query := randomVectors(1, 8, 99)[0]
	results, err := idx.Search(ctx, query, 10, 100)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 10)
	require.NotEmpty(t, results)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestInsertIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)

	require.NoError(t, idx.Insert(ctx, 1, []float32{1, 2}))
	before := idx.Neighbors(1)

	require.NoError(t, idx.Insert(ctx, 1, []float32{1, 2}))
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, before, idx.Neighbors(1))
}

func TestInsertReplacesChangedVector(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)

	require.NoError(t, idx.Insert(ctx, 1, []float32{0, 0}))
	require.NoError(t, idx.Insert(ctx, 2, []float32{1, 1}))
	require.NoError(t, idx.Insert(ctx, 1, []float32{5, 5}))
	assert.Equal(t, 2, idx.Len())

	results, err := idx.Search(ctx, []float32{5, 5}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestDeleteExcludesFromSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 8)

	vectors := randomVectors(200, 8, 21)
	for i, vec := range vectors {
		require.NoError(t, idx.Insert(ctx, uint64(i), vec))
	}

	require.True(t, idx.Delete(ctx, 50))
	require.False(t, idx.Delete(ctx, 50), "double delete")
	require.False(t, idx.Delete(ctx, 9999), "unknown id")
	assert.Equal(t, 199, idx.Len())

	results, err := idx.Search(ctx, vectors[50], 20, 200)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, uint64(50), r.ID)
	}
}

func TestCompactRemovesTombstones(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 8)

	vectors := randomVectors(300, 8, 5)
	for i, vec := range vectors {
		require.NoError(t, idx.Insert(ctx, uint64(i), vec))
	}

	for i := 0; i < 100; i++ {
		require.True(t, idx.Delete(ctx, uint64(i)))
	}
	assert.Equal(t, 100, idx.Stats().Tombstoned)

	removed := idx.Compact(ctx)
	assert.Equal(t, 100, removed)
	assert.Equal(t, 0, idx.Stats().Tombstoned)
	assert.Equal(t, 200, idx.Len())

	// Graph still searches correctly after physical removal.
	results, err := idx.Search(ctx, vectors[200], 1, 100)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(200), results[0].ID)
}

func TestDeleteEntryPoint(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)

	for i := 0; i < 20; i++ {
		require.NoError(t, idx.Insert(ctx, uint64(i), []float32{float32(i), float32(i)}))
	}

	ep := idx.Stats().EntryPoint
	require.True(t, idx.Delete(ctx, ep))
	idx.Compact(ctx)

	results, err := idx.Search(ctx, []float32{3, 3}, 3, 20)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, ep, r.ID)
	}
}

func TestCosineMetricNormalizes(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2, func(o *Options) { o.Metric = distance.MetricCosine })

	require.NoError(t, idx.Insert(ctx, 1, []float32{10, 0}))
	require.NoError(t, idx.Insert(ctx, 2, []float32{0, 10}))

	results, err := idx.Search(ctx, []float32{1, 0.1}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
}

func TestQuantizedIndexRecall(t *testing.T) {
	ctx := context.Background()

	vectors := randomVectors(500, 16, 13)
	sq := quantization.NewScalarQuantizer(16)
	require.NoError(t, sq.Train(vectors))

	idx := newTestIndex(t, 16, func(o *Options) { o.Quantizer = sq })
	for i, vec := range vectors {
		require.NoError(t, idx.Insert(ctx, uint64(i), vec))
	}

	// Quantized scoring is lossy but self-search should still land in the
	// top handful for most probes.
	hits := 0
	for probe := 0; probe < 50; probe++ {
		results, err := idx.Search(ctx, vectors[probe], 5, 100)
		require.NoError(t, err)
		for _, r := range results {
			if r.ID == uint64(probe) {
				hits++
				break
			}
		}
	}
	assert.Greater(t, hits, 40)
}

func TestRerankRestoresExactOrdering(t *testing.T) {
	ctx := context.Background()

	// Every vector is positive, so the sign-bit codes are identical and
	// Hamming distance cannot tell them apart.
	bq := quantization.NewBinaryQuantizer(4)
	vectors := [][]float32{
		{4, 4, 4, 4},
		{1, 1, 1, 1},
		{3, 3, 3, 3},
		{2, 2, 2, 2},
	}

	quantized := newTestIndex(t, 4, func(o *Options) {
		o.Metric = distance.MetricL2
		o.Quantizer = bq
	})
	for i, vec := range vectors {
		require.NoError(t, quantized.Insert(ctx, uint64(i), vec))
	}
	results, err := quantized.Search(ctx, []float32{1, 1, 1, 1}, 4, 0)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.Zero(t, r.Distance, "hamming over equal codes")
	}

	reranked := newTestIndex(t, 4, func(o *Options) {
		o.Metric = distance.MetricL2
		o.Quantizer = bq
		o.RerankFinal = true
	})
	for i, vec := range vectors {
		require.NoError(t, reranked.Insert(ctx, uint64(i), vec))
	}
	results, err = reranked.Search(ctx, []float32{1, 1, 1, 1}, 3, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.Equal(t, uint64(3), results[1].ID)
	assert.Equal(t, uint64(2), results[2].ID)
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestVectorAccess(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)

	require.NoError(t, idx.Insert(ctx, 7, []float32{1, 2}))

	vec, err := idx.Vector(7)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)

	_, err = idx.Vector(8)
	var notFound *ErrNodeNotFound
	require.ErrorAs(t, err, &notFound)
}
