package quantization

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	vectors := make([][]float32, n)
	for i := range vectors {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = rng.Float32()*2 - 1
		}
		vectors[i] = vec
	}
	return vectors
}

func TestScalarQuantizer(t *testing.T) {
	t.Run("untrained rejects encode", func(t *testing.T) {
		sq := NewScalarQuantizer(4)
		_, err := sq.Encode([]float32{1, 2, 3, 4})
		require.ErrorIs(t, err, ErrNotTrained)
	})

	t.Run("round trip error bound", func(t *testing.T) {
		vectors := randomVectors(200, 16, 42)
		sq := NewScalarQuantizer(16)
		require.NoError(t, sq.Train(vectors))

		for _, vec := range vectors[:20] {
			code, err := sq.Encode(vec)
			require.NoError(t, err)
			decoded, err := sq.Decode(code)
			require.NoError(t, err)

			for d := range vec {
				// One quantization step per dimension, range is ~2.
				assert.InDelta(t, vec[d], decoded[d], 2.0/255.0+1e-4)
			}
		}
	})

	t.Run("quantized distance tracks exact distance", func(t *testing.T) {
		vectors := randomVectors(100, 8, 7)
		sq := NewScalarQuantizer(8)
		require.NoError(t, sq.Train(vectors))

		a, _ := sq.Encode(vectors[0])
		b, _ := sq.Encode(vectors[1])

		var exact float32
		for d := range vectors[0] {
			diff := vectors[0][d] - vectors[1][d]
			exact += diff * diff
		}
		assert.InDelta(t, exact, sq.DistanceSquared(a, b), 0.3)
	})

	t.Run("marshal round trip", func(t *testing.T) {
		vectors := randomVectors(50, 8, 3)
		sq := NewScalarQuantizer(8)
		require.NoError(t, sq.Train(vectors))

		data, err := sq.MarshalBinary()
		require.NoError(t, err)

		restored := &ScalarQuantizer{}
		require.NoError(t, restored.UnmarshalBinary(data))

		code, err := sq.Encode(vectors[0])
		require.NoError(t, err)
		restoredCode, err := restored.Encode(vectors[0])
		require.NoError(t, err)
		assert.Equal(t, code, restoredCode)
	})
}

func TestProductQuantizer(t *testing.T) {
	t.Run("invalid configuration rejected", func(t *testing.T) {
		_, err := NewProductQuantizer(10, 3, 256)
		require.Error(t, err)
		_, err = NewProductQuantizer(16, 4, 300)
		require.Error(t, err)
	})

	t.Run("decode approximates input", func(t *testing.T) {
		vectors := randomVectors(500, 16, 11)
		pq, err := NewProductQuantizer(16, 4, 16)
		require.NoError(t, err)
		require.NoError(t, pq.Train(vectors))

		var totalErr float64
		for _, vec := range vectors[:50] {
			codes, err := pq.Encode(vec)
			require.NoError(t, err)
			require.Len(t, codes, 4)

			decoded, err := pq.Decode(codes)
			require.NoError(t, err)
			for d := range vec {
				diff := float64(vec[d] - decoded[d])
				totalErr += diff * diff
			}
		}
		// Average reconstruction error should be far below the variance of
		// the uniform [-1, 1] source (~0.33 per dimension).
		avgErr := totalErr / float64(50*16)
		assert.Less(t, avgErr, 0.25)
	})

	t.Run("asymmetric distance matches decode path", func(t *testing.T) {
		vectors := randomVectors(300, 8, 5)
		pq, err := NewProductQuantizer(8, 2, 8)
		require.NoError(t, err)
		require.NoError(t, pq.Train(vectors))

		query := vectors[0]
		codes, err := pq.Encode(vectors[1])
		require.NoError(t, err)

		decoded, err := pq.Decode(codes)
		require.NoError(t, err)
		var viaDecode float32
		for d := range query {
			diff := query[d] - decoded[d]
			viaDecode += diff * diff
		}
		assert.InDelta(t, viaDecode, pq.AsymmetricDistance(query, codes), 1e-4)
	})

	t.Run("marshal round trip", func(t *testing.T) {
		vectors := randomVectors(300, 16, 7)
		pq, err := NewProductQuantizer(16, 4, 16)
		require.NoError(t, err)
		require.NoError(t, pq.Train(vectors))

		data, err := pq.MarshalBinary()
		require.NoError(t, err)

		restored, err := NewProductQuantizer(16, 4, 16)
		require.NoError(t, err)
		require.NoError(t, restored.UnmarshalBinary(data))

		for _, vec := range vectors[:20] {
			code, err := pq.Encode(vec)
			require.NoError(t, err)
			restoredCode, err := restored.Encode(vec)
			require.NoError(t, err)
			assert.Equal(t, code, restoredCode)
		}
	})

	t.Run("marshal before training rejected", func(t *testing.T) {
		pq, err := NewProductQuantizer(16, 4, 16)
		require.NoError(t, err)
		_, err = pq.MarshalBinary()
		require.ErrorIs(t, err, ErrNotTrained)
	})

	t.Run("unmarshal rejects truncated state", func(t *testing.T) {
		vectors := randomVectors(300, 16, 7)
		pq, err := NewProductQuantizer(16, 4, 16)
		require.NoError(t, err)
		require.NoError(t, pq.Train(vectors))

		data, err := pq.MarshalBinary()
		require.NoError(t, err)

		restored, err := NewProductQuantizer(16, 4, 16)
		require.NoError(t, err)
		require.Error(t, restored.UnmarshalBinary(data[:len(data)-3]))
	})
}

func TestBinaryQuantizer(t *testing.T) {
	t.Run("sign quantization", func(t *testing.T) {
		bq := NewBinaryQuantizer(8).WithThreshold(0)
		code, err := bq.Encode([]float32{1, -1, 1, -1, 1, 1, -1, -1})
		require.NoError(t, err)
		require.Len(t, code, 1)
		assert.Equal(t, byte(0b00110101), code[0])
	})

	t.Run("identical vectors have zero hamming distance", func(t *testing.T) {
		vectors := randomVectors(10, 32, 9)
		bq := NewBinaryQuantizer(32)
		require.NoError(t, bq.Train(vectors))

		a, err := bq.Encode(vectors[0])
		require.NoError(t, err)
		b, err := bq.Encode(vectors[0])
		require.NoError(t, err)
		assert.Equal(t, float32(0), bq.Distance(a, b))
	})

	t.Run("marshal round trip", func(t *testing.T) {
		bq := NewBinaryQuantizer(16).WithThreshold(0.25)
		data, err := bq.MarshalBinary()
		require.NoError(t, err)

		restored := &BinaryQuantizer{}
		require.NoError(t, restored.UnmarshalBinary(data))
		assert.Equal(t, bq.threshold, restored.threshold)
		assert.Equal(t, bq.dimension, restored.dimension)
	})
}
