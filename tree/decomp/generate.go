package decomp

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/paratreet/treecache/tree"
)

// Distribution names a particle generator.
type Distribution string

const (
	Plummer Distribution = "plummer"
	Uniform Distribution = "uniform"
)

// massCutoff drops the outermost tail of the Plummer mass profile.
const massCutoff = 0.999

// Generate draws n particles of total mass 1 from dist.
func Generate(dist Distribution, n int, rng *rand.Rand) ([]tree.Particle, error) {
	switch dist {
	case Plummer:
		return GeneratePlummer(n, rng), nil
	case Uniform:
		return GenerateUniform(n, rng), nil
	}
	return nil, fmt.Errorf("unknown distribution %q (want plummer or uniform)", dist)
}

// GeneratePlummer samples a Plummer sphere in Henon units (M = G = 1,
// E = -1/4), centred on the origin.
func GeneratePlummer(n int, rng *rand.Rand) []tree.Particle {
	ps := make([]tree.Particle, n)
	if n == 0 {
		return ps
	}
	rsc := 9 * math.Pi / 16
	vsc := math.Sqrt(1 / rsc)
	var cmr, cmv tree.Vec3
	for i := range ps {
		r := plummerRadius(rng)
		for r > 9 {
			r = plummerRadius(rng)
		}
		var x, y float64
		for {
			x = rng.Float64()
			y = rng.Float64() * 0.1
			if y <= x*x*math.Pow(1-x*x, 3.5) {
				break
			}
		}
		v := math.Sqrt2 * x / math.Pow(1+r*r, 0.25)
		ps[i] = tree.Particle{
			ID:       int64(i),
			Mass:     1 / float64(n),
			Position: pickShell(rng, rsc*r),
			Velocity: pickShell(rng, vsc*v),
		}
		cmr = cmr.Add(ps[i].Position)
		cmv = cmv.Add(ps[i].Velocity)
	}
	cmr = cmr.Scale(1 / float64(n))
	cmv = cmv.Scale(1 / float64(n))
	for i := range ps {
		ps[i].Position = ps[i].Position.Sub(cmr)
		ps[i].Velocity = ps[i].Velocity.Sub(cmv)
	}
	return ps
}

func plummerRadius(rng *rand.Rand) float64 {
	return 1 / math.Sqrt(math.Pow(rng.Float64()*massCutoff, -2.0/3.0)-1)
}

// pickShell returns a point uniformly distributed on the sphere of radius rad.
func pickShell(rng *rand.Rand, rad float64) tree.Vec3 {
	for {
		v := tree.Vec3{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 2*rng.Float64() - 1}
		rsq := v.Norm2()
		if rsq > 0 && rsq <= 1 {
			return v.Scale(rad / math.Sqrt(rsq))
		}
	}
}

// GenerateUniform fills the unit cube.
func GenerateUniform(n int, rng *rand.Rand) []tree.Particle {
	ps := make([]tree.Particle, n)
	for i := range ps {
		ps[i] = tree.Particle{
			ID:       int64(i),
			Mass:     1 / float64(n),
			Position: tree.Vec3{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()},
		}
	}
	return ps
}
