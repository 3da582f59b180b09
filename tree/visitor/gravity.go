// Package visitor holds the physics policies traversals drive: Barnes-Hut
// gravity and a pair-distance counter.
package visitor

import (
	"math"

	"github.com/paratreet/treecache/tree"
)

// DefaultTheta is the Barnes-Hut opening angle.
const DefaultTheta = 0.7

// minOpenParticles is the size below which a source is always opened.
const minOpenParticles = 6

// Gravity accumulates Newtonian accelerations (G = 1) into target particles.
type Gravity struct {
	Theta float64
}

// NewGravity returns a gravity visitor with the given opening angle.
func NewGravity(theta float64) *Gravity {
	if theta <= 0 {
		theta = DefaultTheta
	}
	return &Gravity{Theta: theta}
}

func (g *Gravity) openRSq(s tree.Summary) float64 {
	return s.RSq / (g.Theta * g.Theta)
}

// Open descends into sources that are small or too close to the target.
func (g *Gravity) Open(source, target *tree.Node) bool {
	if source.ParticleCount() <= minOpenParticles {
		return true
	}
	s := source.Summary()
	return s.Box.DistanceSq(target.Summary().Box.Center()) <= g.openRSq(s)
}

// Node applies the source's monopole to every target particle.
func (g *Gravity) Node(source, target *tree.Node) {
	s := source.Summary()
	if s.Mass <= 0 {
		return
	}
	c := s.Centroid()
	ps := target.Particles()
	for i := range ps {
		addAccel(&ps[i], c, s.Mass)
	}
}

// Leaf sums the pairwise interactions of two leaves.
func (g *Gravity) Leaf(source, target *tree.Node) {
	src := source.Particles()
	ps := target.Particles()
	for i := range ps {
		for j := range src {
			addAccel(&ps[i], src[j].Position, src[j].Mass)
		}
	}
}

// Cell opens a dual-walk pair when the source centroid is inside the target
// box or any target corner is within the opening radius.
func (g *Gravity) Cell(source, target *tree.Node) bool {
	s := source.Summary()
	box := target.Summary().Box
	c := s.Centroid()
	if box.Contains(c) {
		return true
	}
	for i := 0; i < 8; i++ {
		var corner tree.Vec3
		for axis := 0; axis < 3; axis++ {
			if i&(1<<axis) != 0 {
				corner.SetAxis(axis, box.Max.Axis(axis))
			} else {
				corner.SetAxis(axis, box.Min.Axis(axis))
			}
		}
		if g.Theta*c.Sub(corner).Norm2() < s.RSq {
			return true
		}
	}
	return false
}

func addAccel(p *tree.Particle, at tree.Vec3, mass float64) {
	diff := at.Sub(p.Position)
	rsq := diff.Norm2()
	if rsq == 0 {
		return
	}
	r := math.Sqrt(rsq)
	p.Acceleration = p.Acceleration.Add(diff.Scale(mass / (rsq * r)))
	p.Potential -= mass / r
}
