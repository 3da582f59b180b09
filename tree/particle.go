package tree

import (
	"math"

	"github.com/fxamacker/cbor/v2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a point or vector in 3-space. It travels as a three-element CBOR
// array.
type Vec3 r3.Vec

func (v Vec3) Add(o Vec3) Vec3 { return Vec3(r3.Add(r3.Vec(v), r3.Vec(o))) }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3(r3.Sub(r3.Vec(v), r3.Vec(o))) }
func (v Vec3) Scale(s float64) Vec3 { return Vec3(r3.Scale(s, r3.Vec(v))) }
func (v Vec3) Dot(o Vec3) float64 { return r3.Dot(r3.Vec(v), r3.Vec(o)) }

// Norm2 returns the squared length.
func (v Vec3) Norm2() float64 { return r3.Norm2(r3.Vec(v)) }

// Axis returns component i: 0 is X, 1 is Y, 2 is Z.
func (v Vec3) Axis(i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

// SetAxis sets component i.
func (v *Vec3) SetAxis(i int, x float64) {
	switch i {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	default:
		v.Z = x
	}
}

// MarshalCBOR encodes v as [x, y, z].
func (v Vec3) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal([3]float64{v.X, v.Y, v.Z})
}

// UnmarshalCBOR decodes [x, y, z].
func (v *Vec3) UnmarshalCBOR(data []byte) error {
	var a [3]float64
	if err := cbor.Unmarshal(data, &a); err != nil {
		return err
	}
	*v = Vec3{X: a[0], Y: a[1], Z: a[2]}
	return nil
}

// Particle is one body of the point set.
type Particle struct {
	ID       int64   `cbor:"1,keyasint"`
	Key      Key     `cbor:"2,keyasint"`
	Mass     float64 `cbor:"3,keyasint"`
	Position Vec3    `cbor:"4,keyasint"`
	Velocity Vec3    `cbor:"5,keyasint"`

	// Accumulated by visitors; never shipped.
	Acceleration Vec3    `cbor:"-"`
	Potential    float64 `cbor:"-"`
}

// Box is an axis-aligned bounding box. The zero Box is not empty; use NewBox.
type Box struct {
	Min Vec3 `cbor:"1,keyasint"`
	Max Vec3 `cbor:"2,keyasint"`
}

func (b Box) r3() r3.Box { return r3.Box{Min: r3.Vec(b.Min), Max: r3.Vec(b.Max)} }

// NewBox returns an empty box that any Grow call replaces.
func NewBox() Box {
	inf := math.Inf(1)
	return Box{Min: Vec3{inf, inf, inf}, Max: Vec3{-inf, -inf, -inf}}
}

// Empty reports whether the box contains no point. A box around a single
// point is not empty.
func (b Box) Empty() bool {
	return b.Min.X > b.Max.X
}

// Grow extends the box to include p.
func (b *Box) Grow(p Vec3) {
	b.Min = Vec3{math.Min(b.Min.X, p.X), math.Min(b.Min.Y, p.Y), math.Min(b.Min.Z, p.Z)}
	b.Max = Vec3{math.Max(b.Max.X, p.X), math.Max(b.Max.Y, p.Y), math.Max(b.Max.Z, p.Z)}
}

// Union extends the box to include o.
func (b *Box) Union(o Box) {
	if o.Empty() {
		return
	}
	b.Grow(o.Min)
	b.Grow(o.Max)
}

// Center returns the midpoint of the box.
func (b Box) Center() Vec3 { return Vec3(b.r3().Center()) }

// Size returns the edge lengths.
func (b Box) Size() Vec3 { return Vec3(b.r3().Size()) }

// DistanceSq returns the squared distance from p to the nearest point of the box.
func (b Box) DistanceSq(p Vec3) float64 {
	var d Vec3
	for i := 0; i < 3; i++ {
		x := p.Axis(i)
		switch {
		case x < b.Min.Axis(i):
			d.SetAxis(i, b.Min.Axis(i)-x)
		case x > b.Max.Axis(i):
			d.SetAxis(i, x-b.Max.Axis(i))
		}
	}
	return d.Norm2()
}

// Contains reports whether p lies inside the box, borders included. Flat
// boxes, such as a leaf around collinear particles, still contain their
// points; r3.Box treats those as empty.
func (b Box) Contains(p Vec3) bool {
	return !b.Empty() && b.DistanceSq(p) == 0
}

// Summary is the mass moment data a node carries for visitors.
type Summary struct {
	Mass   float64 `cbor:"1,keyasint"`
	Moment Vec3    `cbor:"2,keyasint"`
	Box    Box     `cbor:"3,keyasint"`
	Count  int     `cbor:"4,keyasint"`
	// RSq is the squared distance from the centroid to the farthest corner.
	RSq float64 `cbor:"5,keyasint"`
}

// SummarizeParticles builds the summary of a leaf.
func SummarizeParticles(ps []Particle) Summary {
	s := Summary{Box: NewBox(), Count: len(ps)}
	for i := range ps {
		s.Mass += ps[i].Mass
		s.Moment = s.Moment.Add(ps[i].Position.Scale(ps[i].Mass))
		s.Box.Grow(ps[i].Position)
	}
	s.RSq = cornerRSq(s.Centroid(), s.Box)
	return s
}

// MergeSummaries builds an internal node's summary from its children.
func MergeSummaries(children []Summary) Summary {
	s := Summary{Box: NewBox()}
	for _, c := range children {
		s.Mass += c.Mass
		s.Moment = s.Moment.Add(c.Moment)
		s.Box.Union(c.Box)
		s.Count += c.Count
	}
	s.RSq = cornerRSq(s.Centroid(), s.Box)
	return s
}

// cornerRSq is the squared distance from c to the farthest box corner,
// taken per axis.
func cornerRSq(c Vec3, b Box) float64 {
	if b.Empty() {
		return 0
	}
	d := Vec3{
		X: math.Max(c.X-b.Min.X, b.Max.X-c.X),
		Y: math.Max(c.Y-b.Min.Y, b.Max.Y-c.Y),
		Z: math.Max(c.Z-b.Min.Z, b.Max.Z-c.Z),
	}
	return d.Norm2()
}

// Centroid returns the centre of mass, or the box centre for a massless node.
func (s Summary) Centroid() Vec3 {
	if s.Mass > 0 {
		return s.Moment.Scale(1 / s.Mass)
	}
	if s.Box.Empty() {
		return Vec3{}
	}
	return s.Box.Center()
}
