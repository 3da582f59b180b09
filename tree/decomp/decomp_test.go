package decomp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paratreet/treecache/tree"
)

func uniformDecomp(t *testing.T, b tree.Branching, n int, cfg Config) *Decomposition {
	t.Helper()
	ps := GenerateUniform(n, rand.New(rand.NewSource(7)))
	cfg.Branching = b
	d, err := New(cfg, ps)
	require.NoError(t, err)
	return d
}

func TestNew_LeavesAndKeys(t *testing.T) {
	for _, b := range []tree.Branching{tree.Binary, tree.Octree} {
		// GIVEN 300 uniform particles and leaves of at most 5
		d := uniformDecomp(t, b, 300, Config{LeafSize: 5, SubtreeSize: 40, PEs: 3, ShareDepth: 1})

		// THEN every leaf respects the size and tags its particles with its key
		total := 0
		for key, n := range d.byKey {
			if !n.leaf() {
				continue
			}
			if n.count() > 5 {
				t.Errorf("B=%d leaf %v holds %d particles, want <= 5", b, key, n.count())
			}
			for _, p := range d.particles[n.lo:n.hi] {
				if p.Key != key {
					t.Errorf("B=%d particle %d keyed %v, sits in leaf %v", b, p.ID, p.Key, key)
				}
				if !n.cell.Contains(p.Position) {
					t.Errorf("B=%d particle %d at %v outside its cell", b, p.ID, p.Position)
				}
			}
			total += n.count()
		}
		assert.Equal(t, 300, total)
		assert.InDelta(t, 1.0, d.root.summary.Mass, 1e-9)
		assert.Equal(t, 300, d.root.summary.Count)
	}
}

func TestNew_SubtreesCoverAndBalance(t *testing.T) {
	// GIVEN a decomposition over 4 PEs
	d := uniformDecomp(t, tree.Binary, 400, Config{LeafSize: 4, SubtreeSize: 30, PEs: 4, ShareDepth: 2})

	// THEN subtrees partition the particles, owners never decrease in key order
	subs := d.Subtrees()
	require.NotEmpty(t, subs)
	total, lastOwner, lastKeyDepthFirst := 0, 0, -1
	for i, st := range subs {
		n := d.byKey[st.Key]
		if n.count() > 30 && !n.leaf() {
			t.Errorf("subtree %v holds %d particles, want <= 30", st.Key, n.count())
		}
		if st.Owner < lastOwner || st.Owner >= 4 {
			t.Errorf("subtree %d owner = %d after %d", i, st.Owner, lastOwner)
		}
		if n.lo < lastKeyDepthFirst {
			t.Errorf("subtree %v out of key order", st.Key)
		}
		lastOwner, lastKeyDepthFirst = st.Owner, n.lo
		total += st.ParticleCount
	}
	assert.Equal(t, 400, total)
	assert.Equal(t, 3, lastOwner, "last subtree goes to the last PE")

	// AND every canopy node is owned by the owner of its leftmost subtree
	for key, n := range d.byKey {
		if !n.canopy {
			continue
		}
		left := n
		for left.canopy {
			left = left.children[0]
		}
		assert.Equal(t, left.owner, n.owner, "canopy owner of %v", key)
		owner, ok := d.OwnerOf(key)
		require.True(t, ok)
		assert.Equal(t, n.owner, owner)
	}
}

func TestNew_ShareDepthClamped(t *testing.T) {
	// GIVEN a share depth far below the shallowest subtree root
	d := uniformDecomp(t, tree.Binary, 200, Config{LeafSize: 4, SubtreeSize: 20, PEs: 2, ShareDepth: 50})

	// THEN it is clamped to that root's depth
	shallowest := math.MaxInt
	for _, st := range d.subtrees {
		shallowest = min(shallowest, st.depth)
	}
	assert.Equal(t, shallowest, d.ShareDepth())

	// AND the shared records start at the root and never go below it
	recs := d.SharedRootNodes()
	require.NotEmpty(t, recs)
	assert.Equal(t, tree.RootKey, recs[0].Key)
	for _, r := range recs {
		if !r.IsStub() && r.Depth >= d.ShareDepth() {
			t.Errorf("record %v at depth %d is expanded past share depth %d", r.Key, r.Depth, d.ShareDepth())
		}
		if r.IsStub() && r.Depth > d.ShareDepth() {
			t.Errorf("stub %v at depth %d below share depth", r.Key, r.Depth)
		}
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{Branching: 3, LeafSize: 1, SubtreeSize: 1, PEs: 1}, nil)
	assert.Error(t, err)
	_, err = New(Config{Branching: tree.Binary, LeafSize: 0, SubtreeSize: 1, PEs: 1}, nil)
	assert.Error(t, err)
}

func TestBuildView_EveryPE(t *testing.T) {
	for _, b := range []tree.Branching{tree.Binary, tree.Octree} {
		d := uniformDecomp(t, b, 500, Config{LeafSize: 6, SubtreeSize: 50, PEs: 4, ShareDepth: 1})
		total := 0
		for pe := 0; pe < 4; pe++ {
			// GIVEN pe's assignment
			asg := d.Assign(pe)

			// WHEN its view is built
			v, err := d.BuildView(asg)
			require.NoError(t, err)

			// THEN its buckets hold exactly its particles
			inBuckets := 0
			for _, r := range v.Buckets {
				inBuckets += len(v.Arena.Node(r).Particles())
			}
			if inBuckets != len(asg.Particles) {
				t.Errorf("B=%d PE %d buckets hold %d particles, want %d", b, pe, inBuckets, len(asg.Particles))
			}
			total += len(asg.Particles)

			// AND every owned subtree root is resident and not a boundary node
			for _, r := range v.SubtreeRoots {
				n := v.Arena.Node(r)
				assert.True(t, n.IsResident(), "PE %d subtree %v", pe, n.Key)
				assert.NotEqual(t, tree.Boundary, n.Locality)
			}

			// AND the root is resident everywhere because it is shared
			assert.Equal(t, tree.Boundary, v.Arena.Node(v.Arena.Root()).Locality)

			// AND every placeholder names an owner other than pe
			v.Arena.Walk(func(_ tree.Ref, n *tree.Node) bool {
				if n.Locality.IsPlaceholder() && n.Owner() == pe {
					t.Errorf("B=%d PE %d holds a placeholder for its own node %v", b, pe, n.Key)
				}
				return true
			})
			assert.Equal(t, v.Arena.Len(), v.Served.Len())
		}
		assert.Equal(t, 500, total)
	}
}

func TestBuildView_CanopyOwnerHoldsCanopy(t *testing.T) {
	// GIVEN no shared levels, so canopy nodes are only resident where owned
	d := uniformDecomp(t, tree.Binary, 300, Config{LeafSize: 4, SubtreeSize: 25, PEs: 3, ShareDepth: 0})
	require.Equal(t, 0, d.ShareDepth())
	views := make([]*View, 3)
	for pe := range views {
		v, err := d.BuildView(d.Assign(pe))
		require.NoError(t, err)
		views[pe] = v
	}

	// THEN each canopy node is resident on its owner
	for key, n := range d.byKey {
		if !n.canopy {
			continue
		}
		r, ok := views[n.owner].Served.Lookup(key)
		require.True(t, ok, "canopy %v missing on owner %d", key, n.owner)
		assert.Equal(t, tree.Boundary, views[n.owner].Served.Node(r).Locality)
	}
	// AND a PE that owns no subtree below the root sees it as a placeholder
	for pe, v := range views {
		root := v.Arena.Node(v.Arena.Root())
		if len(d.OwnedSubtreeRoots(pe)) == 0 {
			assert.Equal(t, tree.RemoteAboveCacheRoot, root.Locality)
		}
	}
}

func TestBuildView_RootIsSubtree(t *testing.T) {
	// GIVEN a subtree size larger than the whole set
	d := uniformDecomp(t, tree.Binary, 20, Config{LeafSize: 4, SubtreeSize: 100, PEs: 2, ShareDepth: 3})

	// THEN nothing is shared and PE 1 sees the root as PE 0's
	assert.Equal(t, 0, d.ShareDepth())
	assert.Empty(t, d.SharedRootNodes())
	assert.Equal(t, []tree.Key{tree.RootKey}, d.OwnedSubtreeRoots(0))
	assert.Empty(t, d.OwnedSubtreeRoots(1))

	v, err := d.BuildView(d.Assign(1))
	require.NoError(t, err)
	root := v.Arena.Node(v.Arena.Root())
	assert.Equal(t, tree.Remote, root.Locality)
	assert.Equal(t, 0, root.Owner())
	assert.Equal(t, 20, root.ParticleCount())
	assert.Empty(t, v.Buckets)
}

func TestAssign_CopiesParticles(t *testing.T) {
	d := uniformDecomp(t, tree.Binary, 100, Config{LeafSize: 4, SubtreeSize: 20, PEs: 2, ShareDepth: 1})
	asg := d.Assign(0)
	require.NotEmpty(t, asg.Particles)

	// WHEN the PE mutates its copy
	asg.Particles[0].Mass = 99

	// THEN the decomposition's particles are untouched
	assert.NotEqual(t, 99.0, d.Particles()[asg.offset].Mass)
}

func TestBuildView_ServedIsIndependent(t *testing.T) {
	d := uniformDecomp(t, tree.Binary, 100, Config{LeafSize: 4, SubtreeSize: 20, PEs: 2, ShareDepth: 1})
	v, err := d.BuildView(d.Assign(0))
	require.NoError(t, err)

	// GIVEN a placeholder in the working arena
	var ph tree.Ref = tree.NoRef
	v.Arena.Walk(func(r tree.Ref, n *tree.Node) bool {
		if ph == tree.NoRef && n.Locality.NeedsFetch() {
			ph = r
		}
		return true
	})
	require.NotEqual(t, tree.NoRef, ph)
	n := v.Arena.Node(ph)

	// WHEN it is overwritten as the cache would
	v.Arena.Overwrite(ph, tree.NewResidentNode(n.Key, n.Depth, tree.CachedRemote, tree.Resident{}))

	// THEN the served copy still has the placeholder
	assert.True(t, v.Served.Node(ph).Locality.NeedsFetch())
}

func TestGenerate(t *testing.T) {
	// GIVEN a seeded Plummer sphere
	ps, err := Generate(Plummer, 1000, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Len(t, ps, 1000)

	// THEN total mass is one and the centre of mass is at the origin
	var mass float64
	var cm tree.Vec3
	for _, p := range ps {
		mass += p.Mass
		cm = cm.Add(p.Position.Scale(p.Mass))
	}
	assert.InDelta(t, 1.0, mass, 1e-9)
	for axis := 0; axis < 3; axis++ {
		assert.InDelta(t, 0.0, cm.Axis(axis), 1e-9)
	}

	// AND the same seed gives the same set
	again, err := Generate(Plummer, 1000, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, ps, again)

	_, err = Generate("disk", 10, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestGenerateUniform_InUnitCube(t *testing.T) {
	ps := GenerateUniform(200, rand.New(rand.NewSource(1)))
	unit := tree.Box{Max: tree.Vec3{X: 1, Y: 1, Z: 1}}
	for _, p := range ps {
		if !unit.Contains(p.Position) {
			t.Errorf("particle %d at %v outside unit cube", p.ID, p.Position)
		}
	}
}
