package quantization

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"

	"github.com/soulcraft-research/brainy-sub005/distance"
)

// ProductQuantizer implements product quantization for 8-32x compression.
// Vectors are split into M subvectors, each quantized independently against a
// k-means codebook; one uint8 code is stored per subvector.
type ProductQuantizer struct {
	numSubvectors int // M
	numCentroids  int // K, <= 256 for uint8 codes
	dimension     int
	subvectorDim  int
	codebooks     [][][]float32
	rng           *rand.Rand
	trained       bool
}

// NewProductQuantizer creates a PQ quantizer.
// dimension must be divisible by numSubvectors; numCentroids must be <= 256.
func NewProductQuantizer(dimension, numSubvectors, numCentroids int) (*ProductQuantizer, error) {
	if numSubvectors <= 0 || dimension%numSubvectors != 0 {
		return nil, errors.New("dimension must be divisible by numSubvectors")
	}
	if numCentroids <= 0 || numCentroids > 256 {
		return nil, errors.New("numCentroids must be in [1, 256] for uint8 encoding")
	}

	return &ProductQuantizer{
		numSubvectors: numSubvectors,
		numCentroids:  numCentroids,
		dimension:     dimension,
		subvectorDim:  dimension / numSubvectors,
		codebooks:     make([][][]float32, numSubvectors),
		rng:           rand.New(rand.NewSource(1)),
	}, nil
}

// Train builds one codebook per subvector position via k-means++.
func (pq *ProductQuantizer) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return ErrNoTrainingData
	}
	if len(vectors[0]) != pq.dimension {
		return errors.New("training vector dimension mismatch")
	}

	for m := 0; m < pq.numSubvectors; m++ {
		subvectors := make([][]float32, len(vectors))
		for i, vec := range vectors {
			start := m * pq.subvectorDim
			subvectors[i] = vec[start : start+pq.subvectorDim]
		}
		pq.codebooks[m] = pq.kmeans(subvectors, pq.numCentroids, 20)
	}

	pq.trained = true
	return nil
}

// Encode quantizes a vector into M uint8 codes.
func (pq *ProductQuantizer) Encode(vec []float32) ([]byte, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(vec) != pq.dimension {
		return nil, errors.New("vector dimension mismatch")
	}

	codes := make([]byte, pq.numSubvectors)
	for m := 0; m < pq.numSubvectors; m++ {
		start := m * pq.subvectorDim
		codes[m] = uint8(nearestCentroid(vec[start:start+pq.subvectorDim], pq.codebooks[m]))
	}
	return codes, nil
}

// Decode reconstructs an approximate vector from PQ codes.
func (pq *ProductQuantizer) Decode(codes []byte) ([]float32, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(codes) != pq.numSubvectors {
		return nil, errors.New("code length mismatch")
	}

	out := make([]float32, pq.dimension)
	for m, code := range codes {
		start := m * pq.subvectorDim
		copy(out[start:start+pq.subvectorDim], pq.codebooks[m][code])
	}
	return out, nil
}

// AsymmetricDistance computes squared L2 distance between a full-precision
// query and a quantized vector without decoding.
func (pq *ProductQuantizer) AsymmetricDistance(query []float32, codes []byte) float32 {
	var sum float32
	for m, code := range codes {
		start := m * pq.subvectorDim
		sum += distance.SquaredL2(query[start:start+pq.subvectorDim], pq.codebooks[m][code])
	}
	return sum
}

// BytesPerVector returns one byte per subvector.
func (pq *ProductQuantizer) BytesPerVector() int { return pq.numSubvectors }

// CompressionRatio returns the compression ratio versus float32 storage.
func (pq *ProductQuantizer) CompressionRatio() float64 {
	return float64(pq.dimension*4) / float64(pq.numSubvectors)
}

// Codebooks returns the trained codebooks with shape [M][K][subvectorDim].
func (pq *ProductQuantizer) Codebooks() [][][]float32 { return pq.codebooks }

// SetCodebooks installs codebooks directly (for snapshot restore).
func (pq *ProductQuantizer) SetCodebooks(codebooks [][][]float32) {
	pq.codebooks = codebooks
	pq.trained = true
}

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [dimension:uint32][M:uint32][K:uint32]
// followed by M*K centroids of dimension/M float32s each.
func (pq *ProductQuantizer) MarshalBinary() ([]byte, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}

	buf := make([]byte, 12+4*pq.numSubvectors*pq.numCentroids*pq.subvectorDim)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(pq.dimension))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(pq.numSubvectors))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(pq.numCentroids))

	off := 12
	for m := 0; m < pq.numSubvectors; m++ {
		for k := 0; k < pq.numCentroids; k++ {
			for _, val := range pq.codebooks[m][k] {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(val))
				off += 4
			}
		}
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (pq *ProductQuantizer) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return errors.New("invalid product quantizer binary length")
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	m := int(binary.LittleEndian.Uint32(data[4:8]))
	k := int(binary.LittleEndian.Uint32(data[8:12]))
	if m <= 0 || k <= 0 || k > 256 || dim <= 0 || dim%m != 0 {
		return errors.New("invalid product quantizer header")
	}
	subDim := dim / m
	if len(data) != 12+4*m*k*subDim {
		return errors.New("invalid product quantizer binary length")
	}

	codebooks := make([][][]float32, m)
	off := 12
	for i := 0; i < m; i++ {
		codebooks[i] = make([][]float32, k)
		for j := 0; j < k; j++ {
			centroid := make([]float32, subDim)
			for d := range centroid {
				centroid[d] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
				off += 4
			}
			codebooks[i][j] = centroid
		}
	}

	pq.dimension = dim
	pq.numSubvectors = m
	pq.numCentroids = k
	pq.subvectorDim = subDim
	pq.codebooks = codebooks
	pq.trained = true
	return nil
}

func (pq *ProductQuantizer) kmeans(vectors [][]float32, k, maxIters int) [][]float32 {
	dim := len(vectors[0])

	centroids := make([][]float32, k)
	for i := range centroids {
		centroids[i] = make([]float32, dim)
	}

	if len(vectors) < k {
		for i := range centroids {
			copy(centroids[i], vectors[i%len(vectors)])
		}
		return centroids
	}

	// k-means++ seeding: sample proportional to squared distance from the
	// nearest already-chosen centroid.
	copy(centroids[0], vectors[pq.rng.Intn(len(vectors))])

	minDistSq := make([]float32, len(vectors))
	var sum float32
	for i, vec := range vectors {
		d := distance.SquaredL2(vec, centroids[0])
		minDistSq[i] = d
		sum += d
	}

	for c := 1; c < k; c++ {
		if sum == 0 {
			copy(centroids[c], vectors[pq.rng.Intn(len(vectors))])
			continue
		}

		target := pq.rng.Float32() * sum
		var cumsum float32
		chosen := 0
		for i, d := range minDistSq {
			cumsum += d
			if cumsum >= target {
				chosen = i
				break
			}
		}
		copy(centroids[c], vectors[chosen])

		sum = 0
		for i, vec := range vectors {
			if d := distance.SquaredL2(vec, centroids[c]); d < minDistSq[i] {
				minDistSq[i] = d
			}
			sum += minDistSq[i]
		}
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, vec := range vectors {
			nearest := nearestCentroid(vec, centroids)
			if assignments[i] != nearest {
				changed = true
				assignments[i] = nearest
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float32, k)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for i, vec := range vectors {
			cluster := assignments[i]
			counts[cluster]++
			for j, val := range vec {
				sums[cluster][j] += val
			}
		}
		for i := range centroids {
			if counts[i] > 0 {
				for j := range centroids[i] {
					centroids[i][j] = sums[i][j] / float32(counts[i])
				}
			}
		}
	}

	return centroids
}

func nearestCentroid(vec []float32, centroids [][]float32) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for i, c := range centroids {
		if d := distance.SquaredL2(vec, c); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
