// Package quantization provides lossy vector compression for memory-efficient
// storage. Quantization trades precision for footprint; search layers that
// need exactness re-rank top candidates against full-precision vectors.
package quantization

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrNotTrained is returned when Encode/Decode is called before Train.
var ErrNotTrained = errors.New("quantizer not trained")

// ErrNoTrainingData is returned when Train is called with no vectors.
var ErrNoTrainingData = errors.New("no vectors provided for training")

// Quantizer defines the interface for vector quantization methods.
type Quantizer interface {
	// Train calibrates the quantizer on a sample of vectors.
	Train(vectors [][]float32) error

	// Encode quantizes a float32 vector to its compressed representation.
	Encode(v []float32) ([]byte, error)

	// Decode reconstructs an approximate float32 vector.
	Decode(b []byte) ([]float32, error)

	// BytesPerVector returns the compressed size of one vector.
	BytesPerVector() int
}

// ScalarQuantizer implements 8-bit scalar quantization with a per-dimension
// linear mapping. Each dimension is mapped from its observed [min, max] range
// to [0, 255], giving 4x memory savings over float32.
type ScalarQuantizer struct {
	dimension int
	mins      []float32
	maxs      []float32
	trained   bool
}

// NewScalarQuantizer creates an 8-bit scalar quantizer for the given dimension.
func NewScalarQuantizer(dimension int) *ScalarQuantizer {
	return &ScalarQuantizer{
		dimension: dimension,
		mins:      make([]float32, dimension),
		maxs:      make([]float32, dimension),
	}
}

// Train calibrates per-dimension min/max ranges from the given vectors.
func (sq *ScalarQuantizer) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return ErrNoTrainingData
	}

	for d := 0; d < sq.dimension; d++ {
		sq.mins[d] = math.MaxFloat32
		sq.maxs[d] = -math.MaxFloat32
	}

	for _, vec := range vectors {
		if len(vec) != sq.dimension {
			return errors.New("training vector dimension mismatch")
		}
		for d, val := range vec {
			if val < sq.mins[d] {
				sq.mins[d] = val
			}
			if val > sq.maxs[d] {
				sq.maxs[d] = val
			}
		}
	}

	// Degenerate dimensions would divide by zero during encoding.
	for d := 0; d < sq.dimension; d++ {
		if sq.mins[d] == sq.maxs[d] {
			sq.maxs[d] = sq.mins[d] + 1
		}
	}

	sq.trained = true
	return nil
}

// Encode quantizes a float32 vector to one byte per dimension.
func (sq *ScalarQuantizer) Encode(v []float32) ([]byte, error) {
	if !sq.trained {
		return nil, ErrNotTrained
	}
	if len(v) != sq.dimension {
		return nil, errors.New("vector dimension mismatch")
	}

	out := make([]byte, sq.dimension)
	for d, val := range v {
		lo, hi := sq.mins[d], sq.maxs[d]
		if val < lo {
			val = lo
		} else if val > hi {
			val = hi
		}
		out[d] = uint8((val-lo)*255.0/(hi-lo) + 0.5)
	}
	return out, nil
}

// Decode reconstructs an approximate float32 vector.
func (sq *ScalarQuantizer) Decode(b []byte) ([]float32, error) {
	if !sq.trained {
		return nil, ErrNotTrained
	}
	if len(b) != sq.dimension {
		return nil, errors.New("code length mismatch")
	}

	out := make([]float32, sq.dimension)
	for d, val := range b {
		out[d] = float32(val)*(sq.maxs[d]-sq.mins[d])/255.0 + sq.mins[d]
	}
	return out, nil
}

// DistanceSquared computes squared L2 distance between two codes in quantized
// space, applying the per-dimension scale correction so the result is
// comparable to full-precision distances.
func (sq *ScalarQuantizer) DistanceSquared(a, b []byte) float32 {
	var sum float32
	for d := range a {
		scale := (sq.maxs[d] - sq.mins[d]) / 255.0
		diff := (float32(a[d]) - float32(b[d])) * scale
		sum += diff * diff
	}
	return sum
}

// BytesPerVector returns one byte per dimension.
func (sq *ScalarQuantizer) BytesPerVector() int { return sq.dimension }

// CompressionRatio returns the memory compression ratio (4x for 8-bit codes).
func (sq *ScalarQuantizer) CompressionRatio() float64 { return 4.0 }

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [dimension:uint32][mins...][maxs...]
func (sq *ScalarQuantizer) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4+8*sq.dimension)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(sq.dimension))
	for d := 0; d < sq.dimension; d++ {
		binary.LittleEndian.PutUint32(buf[4+4*d:], math.Float32bits(sq.mins[d]))
		binary.LittleEndian.PutUint32(buf[4+4*sq.dimension+4*d:], math.Float32bits(sq.maxs[d]))
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (sq *ScalarQuantizer) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return errors.New("invalid scalar quantizer binary length")
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	if len(data) != 4+8*dim {
		return errors.New("invalid scalar quantizer binary length")
	}
	sq.dimension = dim
	sq.mins = make([]float32, dim)
	sq.maxs = make([]float32, dim)
	for d := 0; d < dim; d++ {
		sq.mins[d] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*d:]))
		sq.maxs[d] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*dim+4*d:]))
	}
	sq.trained = true
	return nil
}
