// Package visited tracks visited nodes during graph traversal.
package visited

// Set tracks visited nodes using a bitset plus a dirty list for O(visited) reset.
type Set struct {
	bits  []uint64
	dirty []uint64
}

// New creates a visited set sized for capacity nodes.
func New(capacity int) *Set {
	return &Set{
		bits:  make([]uint64, (capacity+63)/64),
		dirty: make([]uint64, 0, 128),
	}
}

// Visit marks a node as visited.
func (v *Set) Visit(id uint64) {
	wordIdx := int(id >> 6)
	if wordIdx >= len(v.bits) {
		v.grow(wordIdx + 1)
	}
	mask := uint64(1) << (id & 63)
	if v.bits[wordIdx]&mask == 0 {
		v.bits[wordIdx] |= mask
		v.dirty = append(v.dirty, id)
	}
}

// Visited returns true if the node has been visited.
func (v *Set) Visited(id uint64) bool {
	wordIdx := int(id >> 6)
	if wordIdx >= len(v.bits) {
		return false
	}
	return v.bits[wordIdx]&(uint64(1)<<(id&63)) != 0
}

// Reset clears the visited status of every node touched since the last reset.
func (v *Set) Reset() {
	for _, id := range v.dirty {
		v.bits[id>>6] &^= uint64(1) << (id & 63)
	}
	v.dirty = v.dirty[:0]
}

func (v *Set) grow(newLen int) {
	newCap := len(v.bits) * 2
	if newCap < newLen {
		newCap = newLen
	}
	grown := make([]uint64, newCap)
	copy(grown, v.bits)
	v.bits = grown
}
