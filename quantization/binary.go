package quantization

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/soulcraft-research/brainy-sub005/distance"
)

// BinaryQuantizer implements 1-bit-per-dimension quantization. Values at or
// above the threshold become 1, the rest 0, packed little-endian into bytes.
// Hamming distance over the codes serves as a fast pre-filter; callers that
// need exact ordering re-rank against full-precision vectors.
type BinaryQuantizer struct {
	dimension int
	threshold float32
	trained   bool
}

// NewBinaryQuantizer creates a binary quantizer for the given dimension.
// The default threshold is 0 (sign-based quantization).
func NewBinaryQuantizer(dimension int) *BinaryQuantizer {
	return &BinaryQuantizer{dimension: dimension}
}

// WithThreshold sets a custom threshold and marks the quantizer trained.
func (bq *BinaryQuantizer) WithThreshold(threshold float32) *BinaryQuantizer {
	bq.threshold = threshold
	bq.trained = true
	return bq
}

// Train sets the threshold to the global mean of the training values.
func (bq *BinaryQuantizer) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return ErrNoTrainingData
	}

	var sum float64
	var count int
	for _, vec := range vectors {
		for _, val := range vec {
			sum += float64(val)
			count++
		}
	}
	if count > 0 {
		bq.threshold = float32(sum / float64(count))
	}
	bq.trained = true
	return nil
}

// Encode packs one sign bit per dimension.
func (bq *BinaryQuantizer) Encode(v []float32) ([]byte, error) {
	if len(v) != bq.dimension {
		return nil, errors.New("vector dimension mismatch")
	}

	out := make([]byte, (len(v)+7)/8)
	for i, val := range v {
		if val >= bq.threshold {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out, nil
}

// Decode reconstructs a coarse vector: +1 for set bits, -1 otherwise,
// shifted by the threshold.
func (bq *BinaryQuantizer) Decode(b []byte) ([]float32, error) {
	if len(b) != (bq.dimension+7)/8 {
		return nil, errors.New("code length mismatch")
	}

	out := make([]float32, bq.dimension)
	for i := range out {
		if b[i/8]&(1<<(i%8)) != 0 {
			out[i] = bq.threshold + 1
		} else {
			out[i] = bq.threshold - 1
		}
	}
	return out, nil
}

// Distance returns the Hamming distance between two codes.
func (bq *BinaryQuantizer) Distance(a, b []byte) float32 {
	return distance.Hamming(a, b)
}

// BytesPerVector returns the packed code size.
func (bq *BinaryQuantizer) BytesPerVector() int { return (bq.dimension + 7) / 8 }

// CompressionRatio returns the compression ratio versus float32 storage (32x).
func (bq *BinaryQuantizer) CompressionRatio() float64 { return 32.0 }

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [dimension:uint32][threshold:float32]
func (bq *BinaryQuantizer) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(bq.dimension))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(bq.threshold))
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (bq *BinaryQuantizer) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return errors.New("invalid binary quantizer binary length")
	}
	bq.dimension = int(binary.LittleEndian.Uint32(data[0:4]))
	bq.threshold = math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	bq.trained = true
	return nil
}
