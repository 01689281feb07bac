// Package bitset provides a growable bitset used for tombstone tracking.
// It is not safe for concurrent use; callers hold the owning index lock.
package bitset

import "math/bits"

// BitSet is a growable set of bit flags indexed by node id.
type BitSet struct {
	words []uint64
}

// New creates a BitSet sized for at least capacity bits.
func New(capacity uint64) *BitSet {
	return &BitSet{words: make([]uint64, (capacity+63)/64)}
}

// Grow ensures the bitset can hold at least size bits.
func (b *BitSet) Grow(size uint64) {
	need := int((size + 63) / 64)
	if need <= len(b.words) {
		return
	}
	grown := make([]uint64, max(need, len(b.words)*2))
	copy(grown, b.words)
	b.words = grown
}

// Set sets the bit at the given index, growing as needed.
func (b *BitSet) Set(i uint64) {
	b.Grow(i + 1)
	b.words[i>>6] |= 1 << (i & 63)
}

// Unset clears the bit at the given index.
func (b *BitSet) Unset(i uint64) {
	if int(i>>6) >= len(b.words) {
		return
	}
	b.words[i>>6] &^= 1 << (i & 63)
}

// Test returns true if the bit at the given index is set.
func (b *BitSet) Test(i uint64) bool {
	if int(i>>6) >= len(b.words) {
		return false
	}
	return b.words[i>>6]&(1<<(i&63)) != 0
}

// Count returns the number of set bits.
func (b *BitSet) Count() int {
	var count int
	for _, w := range b.words {
		count += bits.OnesCount64(w)
	}
	return count
}

// ClearAll clears every bit.
func (b *BitSet) ClearAll() {
	for i := range b.words {
		b.words[i] = 0
	}
}
