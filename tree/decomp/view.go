package decomp

import (
	"fmt"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/wire"
)

// Assignment is the share of the decomposition one PE owns.
type Assignment struct {
	PE           int
	SubtreeRoots []tree.Key
	// Particles is the PE's own copy of its contiguous key range.
	Particles []tree.Particle
	offset    int
}

// Assign returns pe's subtrees and a private copy of their particles.
func (d *Decomposition) Assign(pe int) *Assignment {
	asg := &Assignment{PE: pe}
	lo, hi := -1, -1
	for _, st := range d.subtrees {
		if st.owner != pe {
			continue
		}
		asg.SubtreeRoots = append(asg.SubtreeRoots, st.key)
		if lo < 0 {
			lo = st.lo
		}
		if st.lo != hi && hi >= 0 {
			panic(fmt.Sprintf("decomp: PE %d owns a non-contiguous range at %v", pe, st.key))
		}
		hi = st.hi
	}
	if lo >= 0 {
		asg.Particles = append([]tree.Particle(nil), d.particles[lo:hi]...)
		asg.offset = lo
	}
	return asg
}

// View is a PE's starting tree. Arena is what the PE's cache works on and
// fills in; Served is an untouched copy the PE's owner service reads from.
// Both alias the assignment's particles.
type View struct {
	Arena  *tree.Arena
	Served *tree.Arena
	// Buckets are the PE's non-empty owned leaves in key order.
	Buckets []tree.Ref
	// SubtreeRoots are the PE's owned subtree roots in key order.
	SubtreeRoots []tree.Ref
}

// BuildView builds pe's starting tree from the shared canopy records and
// the PE's own subtrees. Everything else appears as placeholders.
func (d *Decomposition) BuildView(asg *Assignment) (*View, error) {
	v := &View{
		Arena:  d.buildArena(asg),
		Served: d.buildArena(asg),
	}
	if err := v.Arena.CheckShape(); err != nil {
		return nil, fmt.Errorf("PE %d view: %w", asg.PE, err)
	}
	v.Arena.Walk(func(r tree.Ref, n *tree.Node) bool {
		if n.Locality == tree.Leaf {
			v.Buckets = append(v.Buckets, r)
		}
		return true
	})
	for _, k := range asg.SubtreeRoots {
		r, ok := v.Arena.Lookup(k)
		if !ok {
			return nil, fmt.Errorf("PE %d view: subtree root %v missing", asg.PE, k)
		}
		v.SubtreeRoots = append(v.SubtreeRoots, r)
	}
	return v, nil
}

func (d *Decomposition) buildArena(asg *Assignment) *tree.Arena {
	a := tree.NewArena(d.cfg.Branching)
	var root tree.Ref
	if recs := d.SharedRootNodes(); len(recs) > 0 {
		pos := 0
		root = d.buildShared(a, asg, recs, &pos)
	} else {
		root = d.buildNode(a, asg, d.root)
	}
	a.SetRoot(root)
	a.Mark()
	return a
}

func (d *Decomposition) buildShared(a *tree.Arena, asg *Assignment, recs []wire.WireNode, pos *int) tree.Ref {
	rec := recs[*pos]
	*pos++
	if rec.IsStub() {
		if d.holds(asg.PE, rec.Key) {
			return d.buildNode(a, asg, d.byKey[rec.Key])
		}
		return a.Add(tree.NewPlaceholderNode(rec.Key, rec.Depth, rec.Locality, rec.Owner, rec.ParticleCount))
	}
	r := a.Add(tree.NewResidentNode(rec.Key, rec.Depth, tree.Boundary, tree.Resident{
		ParticleCount: rec.ParticleCount,
		Summary:       rec.Summary,
	}))
	children := make([]tree.Ref, len(rec.ChildKeys))
	for i := range children {
		children[i] = d.buildShared(a, asg, recs, pos)
	}
	a.SetChildren(r, children)
	return r
}

// holds reports whether pe has the node at key resident from the start.
func (d *Decomposition) holds(pe int, key tree.Key) bool {
	n := d.byKey[key]
	if n.canopy {
		return d.ancestors[pe][key] || d.shared(n)
	}
	return n.owner == pe
}

func (d *Decomposition) buildNode(a *tree.Arena, asg *Assignment, n *onode) tree.Ref {
	if !d.holds(asg.PE, n.key) {
		return a.Add(tree.NewPlaceholderNode(n.key, n.depth, stubLocality(n), n.owner, n.count()))
	}
	res := tree.Resident{ParticleCount: n.count(), Summary: n.summary}
	switch {
	case n.leaf() && n.count() == 0:
		return a.Add(tree.NewResidentNode(n.key, n.depth, tree.EmptyLeaf, res))
	case n.leaf():
		res.Particles = asg.Particles[n.lo-asg.offset : n.hi-asg.offset]
		return a.Add(tree.NewResidentNode(n.key, n.depth, tree.Leaf, res))
	}
	loc := tree.Internal
	if n.canopy {
		loc = tree.Boundary
	}
	r := a.Add(tree.NewResidentNode(n.key, n.depth, loc, res))
	children := make([]tree.Ref, len(n.children))
	for i, c := range n.children {
		children[i] = d.buildNode(a, asg, c)
	}
	a.SetChildren(r, children)
	return r
}
