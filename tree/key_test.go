package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBranching_ChildParentRoundTrip(t *testing.T) {
	for _, b := range []Branching{Binary, Octree} {
		for i := 0; i < int(b); i++ {
			child := b.Child(RootKey, i)
			if got := b.Parent(child); got != RootKey {
				t.Errorf("B=%d: Parent(Child(root,%d)) = %v, want %v", b, i, got, RootKey)
			}
			if got := b.ChildIndex(child); got != i {
				t.Errorf("B=%d: ChildIndex = %d, want %d", b, got, i)
			}
		}
	}
}

func TestBranching_Depth(t *testing.T) {
	tests := []struct {
		b    Branching
		key  Key
		want int
	}{
		{Binary, RootKey, 0},
		{Binary, 0b10, 1},
		{Binary, 0b1011, 3},
		{Octree, 0b1000, 1},
		{Octree, 0b1000111, 2},
	}
	for _, tc := range tests {
		if got := tc.b.Depth(tc.key); got != tc.want {
			t.Errorf("B=%d Depth(%v) = %d, want %d", tc.b, tc.key, got, tc.want)
		}
	}
}

func TestBranching_IsAncestor(t *testing.T) {
	assert.True(t, Binary.IsAncestor(RootKey, 0b1011))
	assert.True(t, Binary.IsAncestor(0b10, 0b1011))
	assert.False(t, Binary.IsAncestor(0b11, 0b1011), "sibling branch")
	assert.False(t, Binary.IsAncestor(0b1011, 0b1011), "strict ancestry")
	assert.False(t, Binary.IsAncestor(0b1011, 0b10), "descendant is not ancestor")
	assert.True(t, Octree.IsAncestor(RootKey, 0b1000111))
	assert.False(t, Octree.IsAncestor(0b1001, 0b1000111))
}

func TestBranching_Digits(t *testing.T) {
	// GIVEN key 0b1011 in a binary tree
	digits, ok := Binary.Digits(RootKey, 0b1011)

	// THEN the path from the root is 0, 1, 1
	assert.True(t, ok)
	assert.Equal(t, []int{0, 1, 1}, digits)

	digits, ok = Binary.Digits(0b1011, 0b1011)
	assert.True(t, ok)
	assert.Empty(t, digits)

	_, ok = Binary.Digits(0b11, 0b1011)
	assert.False(t, ok)
}

func TestBranching_ChildPanicsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { Binary.Child(RootKey, 2) })
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "0b1011", Key(0b1011).String())
}

func TestBranching_FirstAtDepth(t *testing.T) {
	assert.Equal(t, Key(0b1000), Binary.FirstAtDepth(3))
	assert.Equal(t, Key(64), Octree.FirstAtDepth(2))
	assert.Equal(t, RootKey, Octree.FirstAtDepth(0))
}
