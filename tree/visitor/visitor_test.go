package visitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/internal/testutil"
)

func leafNode(key tree.Key, ps []tree.Particle) *tree.Node {
	n := tree.NewResidentNode(key, tree.Binary.Depth(key), tree.Leaf, tree.Resident{
		ParticleCount: len(ps), Particles: ps, Summary: tree.SummarizeParticles(ps)})
	return &n
}

func internalNode(key tree.Key, ps []tree.Particle) *tree.Node {
	n := tree.NewResidentNode(key, tree.Binary.Depth(key), tree.Internal, tree.Resident{
		ParticleCount: len(ps), Summary: tree.SummarizeParticles(ps)})
	return &n
}

func TestGravity_LeafPairwise(t *testing.T) {
	// GIVEN a target particle at the origin and a source of mass 2 at x=2
	target := leafNode(0b10, []tree.Particle{{ID: 0, Mass: 1}})
	source := leafNode(0b11, []tree.Particle{{ID: 1, Mass: 2, Position: tree.Vec3{X: 2, Y: 0, Z: 0}}})

	// WHEN they interact
	NewGravity(0.7).Leaf(source, target)

	// THEN a = m/r^2 along +x and phi = -m/r
	p := target.Particles()[0]
	testutil.AssertFloat64Equal(t, "ax", 0.5, p.Acceleration.X, 1e-12)
	assert.Equal(t, 0.0, p.Acceleration.Y)
	testutil.AssertFloat64Equal(t, "phi", -1.0, p.Potential, 1e-12)
}

func TestGravity_LeafSkipsSelfPair(t *testing.T) {
	ps := []tree.Particle{{ID: 0, Mass: 1}}
	leaf := leafNode(0b10, ps)
	NewGravity(0.7).Leaf(leaf, leaf)
	assert.Equal(t, tree.Vec3{}, leaf.Particles()[0].Acceleration)
}

func TestGravity_NodeUsesMonopole(t *testing.T) {
	far := []tree.Particle{
		{Mass: 1, Position: tree.Vec3{X: 9, Y: 0, Z: 0}},
		{Mass: 1, Position: tree.Vec3{X: 11, Y: 0, Z: 0}},
	}
	target := leafNode(0b10, []tree.Particle{{Mass: 1}})
	NewGravity(0.7).Node(internalNode(0b11, far), target)

	// Centroid at x=10 with mass 2.
	testutil.AssertFloat64Equal(t, "ax", 2.0/100, target.Particles()[0].Acceleration.X, 1e-12)
}

func TestGravity_Open(t *testing.T) {
	g := NewGravity(0.7)
	target := leafNode(0b10, []tree.Particle{{Mass: 1}})

	small := internalNode(0b11, testutil.Particles(0, 3, 100))
	assert.True(t, g.Open(small, target), "small sources always open")

	far := internalNode(0b11, testutil.Particles(0, 10, 1000))
	assert.False(t, g.Open(far, target))

	near := internalNode(0b11, testutil.Particles(0, 10, 0))
	assert.True(t, g.Open(near, target))
}

func TestGravity_Cell(t *testing.T) {
	g := NewGravity(0.7)
	target := internalNode(0b10, testutil.Particles(0, 10, 0))
	inside := internalNode(0b11, testutil.Particles(20, 3, 4))
	assert.True(t, g.Cell(inside, target), "centroid inside target box")

	far := internalNode(0b11, testutil.Particles(20, 3, 1000))
	assert.False(t, g.Cell(far, target))
}

func TestNewGravity_DefaultTheta(t *testing.T) {
	assert.Equal(t, DefaultTheta, NewGravity(0).Theta)
}

func TestCounter_BulkAndExact(t *testing.T) {
	c := NewCounter([]float64{0, 5, math.Inf(1)})
	target := leafNode(0b10, testutil.Particles(0, 2, 0))  // x = 0, 1
	source := leafNode(0b11, testutil.Particles(2, 3, 100)) // x = 100..102

	// Whole leaves land in the far bin without pairwise work.
	assert.False(t, c.Open(source, target))
	assert.Equal(t, []int64{0, 6}, c.Bins)

	// A straddling pair is counted particle by particle.
	c2 := NewCounter([]float64{0, 0.5, math.Inf(1)})
	c2.Leaf(target, target)
	assert.Equal(t, []int64{2, 2}, c2.Bins, "distances 0, 1, 1, 0")
	assert.Equal(t, int64(4), c2.Total())
}

func TestCounter_OutsideRangeIgnored(t *testing.T) {
	c := NewCounter([]float64{0, 1})
	target := leafNode(0b10, testutil.Particles(0, 1, 0))
	source := leafNode(0b11, testutil.Particles(1, 1, 50))

	assert.False(t, c.Open(source, target))
	c.Leaf(source, target)
	assert.Equal(t, int64(0), c.Total())
}

func TestCounter_SpanningNodeOpens(t *testing.T) {
	c := NewCounter([]float64{0, 2, math.Inf(1)})
	target := leafNode(0b10, testutil.Particles(0, 1, 0))
	source := internalNode(0b11, testutil.Particles(1, 4, 1)) // x = 1..4
	assert.True(t, c.Open(source, target))
}

func TestCounter_Merge(t *testing.T) {
	a := NewCounter([]float64{0, 1, 2})
	b := NewCounter([]float64{0, 1, 2})
	a.Bins[0], b.Bins[0], b.Bins[1] = 1, 2, 3
	a.Merge(b)
	assert.Equal(t, []int64{3, 3}, a.Bins)
}
