package facet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndFilter(t *testing.T) {
	x := NewIndex()
	x.Add(1, map[string]any{"type": "article", "lang": "en"})
	x.Add(2, map[string]any{"type": "article", "lang": "de"})
	x.Add(3, map[string]any{"type": "video", "lang": "en"})

	bm := x.Filter(map[string]any{"type": "article"})
	require.NotNil(t, bm)
	assert.Equal(t, []uint64{1, 2}, bm.ToArray())

	bm = x.Filter(map[string]any{"type": "article", "lang": "en"})
	assert.Equal(t, []uint64{1}, bm.ToArray())

	bm = x.Filter(map[string]any{"type": "podcast"})
	assert.True(t, bm.IsEmpty())

	assert.Nil(t, x.Filter(nil), "empty filter means no constraint")
}

func TestNumericAndBoolTerms(t *testing.T) {
	x := NewIndex()
	x.Add(1, map[string]any{"year": float64(2024), "published": true})
	x.Add(2, map[string]any{"year": float64(2024), "published": false})

	bm := x.Filter(map[string]any{"year": float64(2024), "published": true})
	assert.Equal(t, []uint64{1}, bm.ToArray())
}

func TestNestedValuesSkipped(t *testing.T) {
	x := NewIndex()
	x.Add(1, map[string]any{
		"tags":  []any{"a", "b"},
		"inner": map[string]any{"k": "v"},
		"type":  "doc",
	})

	assert.Equal(t, []string{"type"}, x.Fields())
}

func TestRemoveAndUpdate(t *testing.T) {
	x := NewIndex()
	x.Add(1, map[string]any{"type": "article"})
	x.Add(2, map[string]any{"type": "article"})

	x.Remove(1, map[string]any{"type": "article"})
	bm := x.Filter(map[string]any{"type": "article"})
	assert.Equal(t, []uint64{2}, bm.ToArray())

	x.Update(2, map[string]any{"type": "article"}, map[string]any{"type": "video"})
	assert.True(t, x.Filter(map[string]any{"type": "article"}).IsEmpty())
	assert.Equal(t, []uint64{2}, x.Filter(map[string]any{"type": "video"}).ToArray())

	// Dropping the last id of a term prunes it entirely.
	x.Remove(2, map[string]any{"type": "video"})
	assert.Empty(t, x.Fields())
}

func TestTerms(t *testing.T) {
	x := NewIndex()
	x.Add(1, map[string]any{"lang": "en"})
	x.Add(2, map[string]any{"lang": "en"})
	x.Add(3, map[string]any{"lang": "de"})

	terms := x.Terms("lang")
	assert.Equal(t, map[string]uint64{"en": 2, "de": 1}, terms)
	assert.Nil(t, x.Terms("missing"))
}
