// Package embedding defines the boundary between the store and text
// embedding models. The store never depends on a concrete model; any
// provider that can turn content into a fixed-width vector plugs in
// through the Embedder interface.
package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/soulcraft-research/brainy-sub005/distance"
)

// ErrEmptyContent is returned when there is nothing to embed.
var ErrEmptyContent = errors.New("embedding: empty content")

// Embedder turns content into a vector of fixed dimensionality.
type Embedder interface {
	// Embed computes the vector for the given content.
	Embed(ctx context.Context, content string) ([]float32, error)

	// Dimension returns the width of the vectors Embed produces.
	Dimension() int
}

// HashingEmbedder is a deterministic feature-hashing embedder. Tokens
// are hashed into buckets with a sign bit, so the same content always
// maps to the same unit-length vector. It carries no semantics; it
// exists for tests and for pipelines that bring their own similarity.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates a hashing embedder with the given output
// dimensionality.
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	return &HashingEmbedder{dimension: dimension}
}

// Dimension implements Embedder.
func (e *HashingEmbedder) Dimension() int { return e.dimension }

// Embed implements Embedder. The result is L2-normalized so dot and
// cosine metrics behave sensibly on it.
func (e *HashingEmbedder) Embed(ctx context.Context, content string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := tokenize(content)
	if len(tokens) == 0 {
		return nil, ErrEmptyContent
	}

	v := make([]float32, e.dimension)
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimension))
		if sum&(1<<63) != 0 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	distance.NormalizeL2InPlace(v)
	return v, nil
}

func tokenize(content string) []string {
	return strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
