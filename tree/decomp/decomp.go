// Package decomp splits a particle set into a global tree, cuts it into
// subtrees, hands those to PEs and builds every PE's starting view.
package decomp

import (
	"fmt"
	"math"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/wire"
)

// Config controls the decomposition.
type Config struct {
	Branching tree.Branching
	// LeafSize is the most particles a leaf holds.
	LeafSize int
	// SubtreeSize is the most particles an owned subtree holds.
	SubtreeSize int
	PEs         int
	// ShareDepth is how many canopy levels every PE holds resident. It is
	// clamped to the depth of the shallowest subtree root.
	ShareDepth int
}

// maxDepth bounds splitting so keys fit in 64 bits.
func maxDepth(b tree.Branching) int {
	if b == tree.Octree {
		return 20
	}
	return 60
}

type onode struct {
	key      tree.Key
	depth    int
	lo, hi   int
	cell     tree.Box
	children []*onode
	summary  tree.Summary

	subtreeRoot bool
	canopy      bool
	// owner is the subtree owner, or for canopy nodes the owner of the
	// leftmost subtree below.
	owner int
}

func (n *onode) count() int { return n.hi - n.lo }
func (n *onode) leaf() bool { return len(n.children) == 0 }

// Subtree describes one owned subtree root.
type Subtree struct {
	Key           tree.Key
	Owner         int
	ParticleCount int
}

// Decomposition is the global tree and its assignment to PEs.
type Decomposition struct {
	cfg        Config
	particles  []tree.Particle
	root       *onode
	byKey      map[tree.Key]*onode
	subtrees   []*onode
	shareDepth int
	// ancestors[pe] holds the canopy keys above the PE's subtrees.
	ancestors []map[tree.Key]bool
}

// New builds the decomposition. particles is reordered into key order.
func New(cfg Config, particles []tree.Particle) (*Decomposition, error) {
	if !cfg.Branching.Valid() {
		return nil, fmt.Errorf("unsupported branching factor %d", cfg.Branching)
	}
	if cfg.LeafSize < 1 || cfg.SubtreeSize < 1 || cfg.PEs < 1 {
		return nil, fmt.Errorf("leaf size, subtree size and PE count must be positive (got %d, %d, %d)",
			cfg.LeafSize, cfg.SubtreeSize, cfg.PEs)
	}
	d := &Decomposition{
		cfg:       cfg,
		particles: particles,
		byKey:     make(map[tree.Key]*onode),
	}
	d.root = &onode{key: tree.RootKey, lo: 0, hi: len(particles), cell: boundingCube(particles)}
	d.split(d.root)
	d.markSubtrees(d.root)
	d.assignOwners()

	minDepth := math.MaxInt
	for _, st := range d.subtrees {
		minDepth = min(minDepth, st.depth)
	}
	d.shareDepth = max(0, min(cfg.ShareDepth, minDepth))

	d.ancestors = make([]map[tree.Key]bool, cfg.PEs)
	for pe := range d.ancestors {
		d.ancestors[pe] = make(map[tree.Key]bool)
	}
	b := cfg.Branching
	for _, st := range d.subtrees {
		for k := b.Parent(st.key); k >= tree.RootKey; k = b.Parent(k) {
			d.ancestors[st.owner][k] = true
		}
	}
	return d, nil
}

func boundingCube(ps []tree.Particle) tree.Box {
	box := tree.NewBox()
	for i := range ps {
		box.Grow(ps[i].Position)
	}
	if box.Empty() {
		return tree.Box{Max: tree.Vec3{X: 1, Y: 1, Z: 1}}
	}
	size := box.Size()
	edge := math.Max(size.X, math.Max(size.Y, size.Z))
	if edge == 0 {
		edge = 1
	}
	// Pad so particles on the upper faces fall inside.
	edge *= 1 + 1e-9
	return tree.Box{Min: box.Min, Max: box.Min.Add(tree.Vec3{X: edge, Y: edge, Z: edge})}
}

// childCell returns the i-th child cell and, for binary trees, the split axis.
func (d *Decomposition) childCell(cell tree.Box, depth, i int) tree.Box {
	mid := cell.Center()
	out := cell
	if d.cfg.Branching == tree.Binary {
		axis := depth % 3
		if i == 0 {
			out.Max.SetAxis(axis, mid.Axis(axis))
		} else {
			out.Min.SetAxis(axis, mid.Axis(axis))
		}
		return out
	}
	for axis := 0; axis < 3; axis++ {
		if i&(1<<axis) != 0 {
			out.Min.SetAxis(axis, mid.Axis(axis))
		} else {
			out.Max.SetAxis(axis, mid.Axis(axis))
		}
	}
	return out
}

func (d *Decomposition) childIndex(p tree.Vec3, cell tree.Box, depth int) int {
	mid := cell.Center()
	if d.cfg.Branching == tree.Binary {
		axis := depth % 3
		if p.Axis(axis) >= mid.Axis(axis) {
			return 1
		}
		return 0
	}
	i := 0
	for axis := 0; axis < 3; axis++ {
		if p.Axis(axis) >= mid.Axis(axis) {
			i |= 1 << axis
		}
	}
	return i
}

func (d *Decomposition) split(n *onode) {
	d.byKey[n.key] = n
	b := d.cfg.Branching
	if n.count() <= d.cfg.LeafSize || n.depth >= maxDepth(b) {
		for i := n.lo; i < n.hi; i++ {
			d.particles[i].Key = n.key
		}
		n.summary = tree.SummarizeParticles(d.particles[n.lo:n.hi])
		return
	}

	buckets := make([][]tree.Particle, int(b))
	for _, p := range d.particles[n.lo:n.hi] {
		i := d.childIndex(p.Position, n.cell, n.depth)
		buckets[i] = append(buckets[i], p)
	}
	lo := n.lo
	sums := make([]tree.Summary, 0, int(b))
	for i, bucket := range buckets {
		copy(d.particles[lo:], bucket)
		child := &onode{
			key:   b.Child(n.key, i),
			depth: n.depth + 1,
			lo:    lo,
			hi:    lo + len(bucket),
			cell:  d.childCell(n.cell, n.depth, i),
		}
		lo = child.hi
		d.split(child)
		n.children = append(n.children, child)
		sums = append(sums, child.summary)
	}
	n.summary = tree.MergeSummaries(sums)
}

func (d *Decomposition) markSubtrees(n *onode) {
	if n.count() <= d.cfg.SubtreeSize || n.leaf() {
		n.subtreeRoot = true
		d.subtrees = append(d.subtrees, n)
		return
	}
	n.canopy = true
	for _, c := range n.children {
		d.markSubtrees(c)
	}
}

// assignOwners hands subtrees to PEs in key order, balanced by particle
// count, then gives each canopy node the owner of its leftmost subtree.
func (d *Decomposition) assignOwners() {
	total := len(d.particles)
	p := d.cfg.PEs
	cum := 0
	for _, st := range d.subtrees {
		owner := 0
		if total > 0 {
			owner = min(p-1, cum*p/total)
		}
		d.setOwner(st, owner)
		cum += st.count()
	}
	d.canopyOwners(d.root)
}

func (d *Decomposition) setOwner(n *onode, owner int) {
	n.owner = owner
	for _, c := range n.children {
		d.setOwner(c, owner)
	}
}

func (d *Decomposition) canopyOwners(n *onode) int {
	if !n.canopy {
		return n.owner
	}
	for i, c := range n.children {
		o := d.canopyOwners(c)
		if i == 0 {
			n.owner = o
		}
	}
	return n.owner
}

// Config returns the decomposition's configuration.
func (d *Decomposition) Config() Config { return d.cfg }

// Particles returns every particle in key order.
func (d *Decomposition) Particles() []tree.Particle { return d.particles }

// ShareDepth returns the effective share depth.
func (d *Decomposition) ShareDepth() int { return d.shareDepth }

// Subtrees lists the subtree roots in key order.
func (d *Decomposition) Subtrees() []Subtree {
	out := make([]Subtree, len(d.subtrees))
	for i, st := range d.subtrees {
		out[i] = Subtree{Key: st.key, Owner: st.owner, ParticleCount: st.count()}
	}
	return out
}

// OwnedSubtreeRoots returns the keys of the subtrees pe owns.
func (d *Decomposition) OwnedSubtreeRoots(pe int) []tree.Key {
	var keys []tree.Key
	for _, st := range d.subtrees {
		if st.owner == pe {
			keys = append(keys, st.key)
		}
	}
	return keys
}

// OwnerOf returns the PE that serves key: the subtree owner for keys at or
// below a subtree root, the canopy owner above.
func (d *Decomposition) OwnerOf(key tree.Key) (int, bool) {
	n, ok := d.byKey[key]
	if !ok {
		return 0, false
	}
	return n.owner, true
}

func (d *Decomposition) shared(n *onode) bool {
	return n.canopy && n.depth < d.shareDepth
}

// stubLocality is how a PE that does not hold n sees it.
func stubLocality(n *onode) tree.Locality {
	switch {
	case n.canopy:
		return tree.RemoteAboveCacheRoot
	case n.count() == 0:
		return tree.RemoteEmptyLeaf
	case n.leaf():
		return tree.RemoteLeaf
	}
	return tree.Remote
}

// SharedRootNodes returns the canopy nodes above the share depth, in
// preorder, followed in place by stubs for their unshared children. Every
// PE starts from these records.
func (d *Decomposition) SharedRootNodes() []wire.WireNode {
	if !d.shared(d.root) {
		return nil
	}
	var out []wire.WireNode
	var walk func(n *onode)
	walk = func(n *onode) {
		rec := wire.WireNode{
			Key:           n.key,
			Depth:         n.depth,
			ParticleCount: n.count(),
			Owner:         n.owner,
			Summary:       n.summary,
		}
		if !d.shared(n) {
			rec.Locality = stubLocality(n)
			out = append(out, rec)
			return
		}
		rec.Locality = tree.Boundary
		for _, c := range n.children {
			rec.ChildKeys = append(rec.ChildKeys, c.key)
		}
		out = append(out, rec)
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(d.root)
	return out
}
