package tree

import "fmt"

// Ref addresses a node inside an Arena. Refs stay valid until the arena is
// truncated below them.
type Ref int32

// NoRef is the parent of the root and the ref of nothing.
const NoRef Ref = -1

// Content is the tagged payload of a node: *Resident or *Placeholder.
type Content interface {
	isContent()
}

// Resident is the data of a node available on this PE.
type Resident struct {
	ParticleCount int
	// Particles is set on non-empty leaves only. For locally owned leaves it
	// aliases the PE's particle slice.
	Particles []Particle
	Summary   Summary
}

// Placeholder stands in for a subtree that lives on another PE.
type Placeholder struct {
	Owner         int
	ParticleCount int
}

func (*Resident) isContent()    {}
func (*Placeholder) isContent() {}

// Node is one entry of the tree known to a PE.
type Node struct {
	Key      Key
	Depth    int
	Locality Locality
	Parent   Ref
	// Children has Branching entries for resident internal nodes and none
	// for leaves and placeholders.
	Children []Ref

	content Content
}

// NewResidentNode builds a node that carries data. Panics if loc is not a
// resident locality.
func NewResidentNode(key Key, depth int, loc Locality, r Resident) Node {
	if !IsResident(loc) {
		panic(fmt.Sprintf("tree: resident node %v tagged %v", key, loc))
	}
	return Node{Key: key, Depth: depth, Locality: loc, Parent: NoRef, content: &r}
}

// NewPlaceholderNode builds a stub for a non-resident subtree. Panics if loc
// is not a placeholder locality.
func NewPlaceholderNode(key Key, depth int, loc Locality, owner, count int) Node {
	if !loc.IsPlaceholder() {
		panic(fmt.Sprintf("tree: placeholder node %v tagged %v", key, loc))
	}
	return Node{Key: key, Depth: depth, Locality: loc, Parent: NoRef,
		content: &Placeholder{Owner: owner, ParticleCount: count}}
}

// Content returns the node's payload.
func (n *Node) Content() Content { return n.content }

// Resident returns the node's data when it is resident.
func (n *Node) Resident() (*Resident, bool) {
	r, ok := n.content.(*Resident)
	return r, ok
}

// Placeholder returns the node's stub when it is not resident.
func (n *Node) Placeholder() (*Placeholder, bool) {
	p, ok := n.content.(*Placeholder)
	return p, ok
}

// IsResident reports whether the node carries data.
func (n *Node) IsResident() bool {
	_, ok := n.content.(*Resident)
	return ok
}

// ParticleCount returns the number of particles below the node.
func (n *Node) ParticleCount() int {
	switch c := n.content.(type) {
	case *Resident:
		return c.ParticleCount
	case *Placeholder:
		return c.ParticleCount
	}
	return 0
}

// Owner returns the owning PE of a placeholder, or -1 for resident nodes.
func (n *Node) Owner() int {
	if p, ok := n.content.(*Placeholder); ok {
		return p.Owner
	}
	return -1
}

// Summary returns the node's summary; zero for placeholders.
func (n *Node) Summary() Summary {
	if r, ok := n.content.(*Resident); ok {
		return r.Summary
	}
	return Summary{Box: NewBox()}
}

// Particles returns the leaf's particles; nil for everything else.
func (n *Node) Particles() []Particle {
	if r, ok := n.content.(*Resident); ok {
		return r.Particles
	}
	return nil
}

func (n *Node) String() string {
	return fmt.Sprintf("%v[%v n=%d]", n.Key, n.Locality, n.ParticleCount())
}
