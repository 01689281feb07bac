package facet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Index maps field=value facets to the set of nodes carrying them,
// one roaring bitmap per facet. Filters intersect bitmaps, so a
// conjunctive filter costs a handful of bitmap ANDs regardless of how
// many nodes match.
type Index struct {
	mu     sync.RWMutex
	fields map[string]map[string]*roaring64.Bitmap
}

// NewIndex creates an empty facet index.
func NewIndex() *Index {
	return &Index{fields: make(map[string]map[string]*roaring64.Bitmap)}
}

// facetKey normalizes a metadata value into a facet term. Numbers come
// out of JSON as float64, so 1 and 1.0 collapse to the same term.
func facetKey(v any) string {
	return fmt.Sprintf("%v", v)
}

// Add indexes every scalar metadata field of id. Nested values are
// skipped; facets are flat by design.
func (x *Index) Add(id uint64, metadata map[string]any) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for field, value := range metadata {
		switch value.(type) {
		case map[string]any, []any:
			continue
		}
		byValue := x.fields[field]
		if byValue == nil {
			byValue = make(map[string]*roaring64.Bitmap)
			x.fields[field] = byValue
		}
		term := facetKey(value)
		bm := byValue[term]
		if bm == nil {
			bm = roaring64.New()
			byValue[term] = bm
		}
		bm.Add(id)
	}
}

// Remove drops id from every facet, using metadata to find them.
func (x *Index) Remove(id uint64, metadata map[string]any) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for field, value := range metadata {
		byValue := x.fields[field]
		if byValue == nil {
			continue
		}
		term := facetKey(value)
		if bm := byValue[term]; bm != nil {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(byValue, term)
			}
		}
		if len(byValue) == 0 {
			delete(x.fields, field)
		}
	}
}

// Update reindexes id after a metadata change.
func (x *Index) Update(id uint64, oldMetadata, newMetadata map[string]any) {
	x.Remove(id, oldMetadata)
	x.Add(id, newMetadata)
}

// Filter returns the ids matching every field=value pair. A filter on
// an unknown field or term matches nothing. A nil or empty filter
// returns nil, meaning "no constraint".
func (x *Index) Filter(equals map[string]any) *roaring64.Bitmap {
	if len(equals) == 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var out *roaring64.Bitmap
	for field, value := range equals {
		bm := x.fields[field][facetKey(value)]
		if bm == nil {
			return roaring64.New()
		}
		if out == nil {
			out = bm.Clone()
			continue
		}
		out.And(bm)
		if out.IsEmpty() {
			return out
		}
	}
	return out
}

// Terms returns the distinct terms of a field with their cardinality,
// sorted by term.
func (x *Index) Terms(field string) map[string]uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	byValue := x.fields[field]
	if len(byValue) == 0 {
		return nil
	}
	out := make(map[string]uint64, len(byValue))
	for term, bm := range byValue {
		out[term] = bm.GetCardinality()
	}
	return out
}

// Fields returns the sorted list of indexed field names.
func (x *Index) Fields() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]string, 0, len(x.fields))
	for field := range x.fields {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}
