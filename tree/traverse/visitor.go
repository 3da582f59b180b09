package traverse

import "github.com/paratreet/treecache/tree"

// Visitor decides how a walk proceeds and performs the interactions.
// source is the node being walked; target is the local node the walk
// works for. Both are resident.
type Visitor interface {
	// Open reports whether the walk should descend into source.
	Open(source, target *tree.Node) bool
	// Node interacts with an internal source that was not opened.
	Node(source, target *tree.Node)
	// Leaf interacts with a resident source leaf.
	Leaf(source, target *tree.Node)
}

// CellVisitor decides whether a dual walk opens the cross product of
// source and target children. Visitors without it fall back to Open.
type CellVisitor interface {
	Cell(source, target *tree.Node) bool
}

// SelfLeafPolicy lets a visitor skip the leaf a target walk starts from.
// Visitors without it see their own leaf.
type SelfLeafPolicy interface {
	CallSelfLeaf() bool
}

// Ascender is consulted by up-and-down walks before moving the level
// barrier to ancestor. Returning false walks every remaining level at once.
type Ascender interface {
	Ascend(ancestor, target *tree.Node) bool
}
