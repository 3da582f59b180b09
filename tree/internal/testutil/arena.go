package testutil

import (
	"testing"

	"github.com/paratreet/treecache/tree"
)

// NodeSpec describes one node of a hand-built arena. Internal and Boundary
// nodes get all their children from the other specs; their particle counts
// and summaries are derived.
type NodeSpec struct {
	Key       tree.Key
	Locality  tree.Locality
	Particles []tree.Particle
	// Owner and Count apply to placeholders.
	Owner int
	Count int
}

// BuildArena builds and marks an arena from specs. The spec for the root
// must be present.
func BuildArena(t *testing.T, b tree.Branching, specs ...NodeSpec) *tree.Arena {
	t.Helper()
	byKey := make(map[tree.Key]NodeSpec, len(specs))
	for _, s := range specs {
		if _, dup := byKey[s.Key]; dup {
			t.Fatalf("BuildArena: key %v given twice", s.Key)
		}
		byKey[s.Key] = s
	}
	a := tree.NewArena(b)
	root, _, _ := build(t, a, byKey, tree.RootKey)
	a.SetRoot(root)
	a.Mark()
	if err := a.CheckShape(); err != nil {
		t.Fatalf("BuildArena: %v", err)
	}
	return a
}

func build(t *testing.T, a *tree.Arena, byKey map[tree.Key]NodeSpec, key tree.Key) (tree.Ref, int, tree.Summary) {
	t.Helper()
	s, ok := byKey[key]
	if !ok {
		t.Fatalf("BuildArena: no spec for key %v", key)
	}
	b := a.Branching()
	depth := b.Depth(key)
	switch {
	case s.Locality.IsPlaceholder():
		return a.Add(tree.NewPlaceholderNode(key, depth, s.Locality, s.Owner, s.Count)), s.Count, tree.Summary{Box: tree.NewBox()}
	case s.Locality.IsLeaf():
		sum := tree.SummarizeParticles(s.Particles)
		r := a.Add(tree.NewResidentNode(key, depth, s.Locality, tree.Resident{
			ParticleCount: len(s.Particles), Particles: s.Particles, Summary: sum}))
		return r, len(s.Particles), sum
	}
	self := a.Add(tree.NewResidentNode(key, depth, s.Locality, tree.Resident{}))
	children := make([]tree.Ref, int(b))
	sums := make([]tree.Summary, 0, int(b))
	count := 0
	for i := range children {
		r, n, sum := build(t, a, byKey, b.Child(key, i))
		children[i] = r
		count += n
		sums = append(sums, sum)
	}
	a.SetChildren(self, children)
	sum := tree.MergeSummaries(sums)
	res, _ := a.Node(self).Resident()
	res.ParticleCount = count
	res.Summary = sum
	return self, count, sum
}

// Particles returns n unit-mass particles spread along the x axis from x0.
func Particles(firstID int64, n int, x0 float64) []tree.Particle {
	ps := make([]tree.Particle, n)
	for i := range ps {
		ps[i] = tree.Particle{ID: firstID + int64(i), Mass: 1, Position: tree.Vec3{X: x0 + float64(i), Y: 0, Z: 0}}
	}
	return ps
}

// MustLookup returns the ref of key or fails the test.
func MustLookup(t *testing.T, a *tree.Arena, key tree.Key) tree.Ref {
	t.Helper()
	r, ok := a.Lookup(key)
	if !ok {
		t.Fatalf("key %v not in arena", key)
	}
	return r
}
