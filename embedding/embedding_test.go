package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Equal(t, 64, e.Dimension())
}

func TestHashingEmbedderUnitLength(t *testing.T) {
	e := NewHashingEmbedder(32)

	v, err := e.Embed(context.Background(), "Normalize ME, please!")
	require.NoError(t, err)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashingEmbedderCaseAndPunctuationInsensitive(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Hello, World")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHashingEmbedderDistinctContent(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "cats chase mice")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "stock markets fell sharply")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashingEmbedderEmptyContent(t *testing.T) {
	e := NewHashingEmbedder(16)

	_, err := e.Embed(context.Background(), "  ... !!! ")
	assert.ErrorIs(t, err, ErrEmptyContent)
}
