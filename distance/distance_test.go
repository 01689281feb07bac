package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 0},
		{name: "unit apart", a: []float32{0, 0}, b: []float32{1, 0}, want: 1},
		{name: "mixed signs", a: []float32{1, -1}, b: []float32{-1, 1}, want: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SquaredL2(tt.a, tt.b), 1e-6)
		})
	}
}

func TestManhattan(t *testing.T) {
	assert.InDelta(t, 4, Manhattan([]float32{1, -1}, []float32{-1, 1}), 1e-6)
	assert.InDelta(t, 0, Manhattan([]float32{2, 2}, []float32{2, 2}), 1e-6)
}

func TestCosine(t *testing.T) {
	t.Run("parallel", func(t *testing.T) {
		assert.InDelta(t, 0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-6)
	})

	t.Run("orthogonal", func(t *testing.T) {
		assert.InDelta(t, 1, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	})

	t.Run("opposite", func(t *testing.T) {
		assert.InDelta(t, 2, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	})

	t.Run("zero vector", func(t *testing.T) {
		assert.InDelta(t, 1, Cosine([]float32{0, 0}, []float32{1, 0}), 1e-6)
	})
}

func TestHamming(t *testing.T) {
	assert.Equal(t, float32(0), Hamming([]byte{0xFF}, []byte{0xFF}))
	assert.Equal(t, float32(8), Hamming([]byte{0xFF}, []byte{0x00}))
	assert.Equal(t, float32(1), Hamming([]byte{0x01, 0x00}, []byte{0x00, 0x00}))
}

func TestNormalizeL2(t *testing.T) {
	t.Run("in place", func(t *testing.T) {
		v := []float32{3, 4}
		require.True(t, NormalizeL2InPlace(v))
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("zero norm", func(t *testing.T) {
		require.False(t, NormalizeL2InPlace([]float32{0, 0}))
	})

	t.Run("copy leaves source intact", func(t *testing.T) {
		src := []float32{3, 4}
		dst, ok := NormalizeL2Copy(src)
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, src)
		assert.InDelta(t, 1.0, Dot(dst, dst), 1e-6)
	})
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{MetricL2, MetricCosine, MetricDot, MetricManhattan} {
		fn, err := Provider(m)
		require.NoError(t, err, m.String())
		require.NotNil(t, fn)
	}

	_, err := Provider(MetricHamming)
	require.Error(t, err)

	fnb, err := ProviderBytes(MetricHamming)
	require.NoError(t, err)
	require.NotNil(t, fnb)
}

func TestNegDotOrdering(t *testing.T) {
	q := []float32{1, 0}
	close := []float32{0.9, 0.1}
	far := []float32{0.1, 0.9}
	assert.Less(t, NegDot(q, close), NegDot(q, far))
}
