package partition

import (
	"math/rand"

	"github.com/soulcraft-research/brainy-sub005/distance"
)

// kmeans2 splits the given vectors into two clusters and returns the
// assignment per vector plus both centroids. Seeding picks the pair of
// points farthest apart from a sample, which is stable enough for the
// split use case without full k-means++ machinery.
func kmeans2(vectors [][]float32, rng *rand.Rand) ([]int, [][]float32) {
	n := len(vectors)
	assign := make([]int, n)
	if n < 2 {
		return assign, [][]float32{centroidOf(vectors)}
	}

	dim := len(vectors[0])

	// Seed: a random point and the point farthest from it.
	first := rng.Intn(n)
	second := 0
	var worst float32 = -1
	for i, v := range vectors {
		if d := distance.SquaredL2(vectors[first], v); d > worst {
			worst = d
			second = i
		}
	}
	if second == first {
		second = (first + 1) % n
	}

	centroids := [][]float32{
		append([]float32(nil), vectors[first]...),
		append([]float32(nil), vectors[second]...),
	}

	for iter := 0; iter < 10; iter++ {
		changed := false
		for i, v := range vectors {
			best := 0
			if distance.SquaredL2(v, centroids[1]) < distance.SquaredL2(v, centroids[0]) {
				best = 1
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := [][]float32{make([]float32, dim), make([]float32, dim)}
		counts := [2]int{}
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += x
			}
		}
		for c := 0; c < 2; c++ {
			if counts[c] == 0 {
				// Degenerate split: reseed the empty side with the point
				// farthest from the surviving centroid.
				far, worst := 0, float32(-1)
				for i, v := range vectors {
					if d := distance.SquaredL2(v, centroids[1-c]); d > worst {
						worst, far = d, i
					}
				}
				copy(centroids[c], vectors[far])
				continue
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float32(counts[c])
			}
		}

		if !changed && iter > 0 {
			break
		}
	}
	return assign, centroids
}

func centroidOf(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float32, len(vectors[0]))
	for _, v := range vectors {
		for d, x := range v {
			out[d] += x
		}
	}
	for d := range out {
		out[d] /= float32(len(vectors))
	}
	return out
}
