package tree

import (
	"fmt"
)

// Key is a path code from the root of the global tree. The root is 1 and the
// i-th child of k is k*B + i for branching factor B.
type Key uint64

// RootKey identifies the global root.
const RootKey Key = 1

// String renders the key in binary so path digits stay readable.
func (k Key) String() string {
	return fmt.Sprintf("%#b", uint64(k))
}

// Branching is the tree's branching factor.
type Branching int

const (
	// Binary splits every internal node in two (k-d style bisection).
	Binary Branching = 2
	// Octree splits every internal node into octants.
	Octree Branching = 8
)

// Valid reports whether b is a supported branching factor.
func (b Branching) Valid() bool {
	return b == Binary || b == Octree
}

// Child returns the key of the i-th child of k.
// Panics if i is outside [0, b).
func (b Branching) Child(k Key, i int) Key {
	if i < 0 || i >= int(b) {
		panic(fmt.Sprintf("tree: child index %d out of range for branching %d", i, b))
	}
	return k*Key(b) + Key(i)
}

// Parent returns the key of k's parent. The root's parent is 0.
func (b Branching) Parent(k Key) Key {
	return k / Key(b)
}

// ChildIndex returns which child of its parent k is.
func (b Branching) ChildIndex(k Key) int {
	return int(k % Key(b))
}

// Depth returns the number of edges between the root and k.
func (b Branching) Depth(k Key) int {
	d := 0
	for k > RootKey {
		k /= Key(b)
		d++
	}
	return d
}

// IsAncestor reports whether a is a strict ancestor of d.
func (b Branching) IsAncestor(a, d Key) bool {
	if a == 0 || d <= a {
		return false
	}
	for d > a {
		d /= Key(b)
	}
	return d == a
}

// Digits returns the child indices leading from ancestor down to k, root-most
// first. ok is false when ancestor is neither k nor one of its ancestors.
func (b Branching) Digits(ancestor, k Key) (digits []int, ok bool) {
	if ancestor == 0 || k < ancestor {
		return nil, false
	}
	for k > ancestor {
		digits = append(digits, int(k%Key(b)))
		k /= Key(b)
	}
	if k != ancestor {
		return nil, false
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return digits, true
}

// FirstAtDepth returns the leftmost key at the given depth.
func (b Branching) FirstAtDepth(depth int) Key {
	k := RootKey
	for i := 0; i < depth; i++ {
		k *= Key(b)
	}
	return k
}
