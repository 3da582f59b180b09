package visitor

import (
	"math"
	"sort"

	"github.com/paratreet/treecache/tree"
)

const (
	binSpans   = -1
	binOutside = -2
)

// Counter histograms pair distances between source and target particles.
// Bin i covers [Edges[i], Edges[i+1]). Pairs of whole nodes whose distance
// range fits in one bin are counted without opening them.
type Counter struct {
	Edges []float64
	Bins  []int64
}

// NewCounter returns a counter over the given ascending edges.
func NewCounter(edges []float64) *Counter {
	e := append([]float64(nil), edges...)
	sort.Float64s(e)
	n := len(e) - 1
	if n < 0 {
		n = 0
	}
	return &Counter{Edges: e, Bins: make([]int64, n)}
}

// Total returns the number of pairs counted.
func (c *Counter) Total() int64 {
	var t int64
	for _, b := range c.Bins {
		t += b
	}
	return t
}

// Merge adds o's bins into c. Both must share edges.
func (c *Counter) Merge(o *Counter) {
	for i := range c.Bins {
		if i < len(o.Bins) {
			c.Bins[i] += o.Bins[i]
		}
	}
}

func (c *Counter) bin(d float64) int {
	if len(c.Bins) == 0 || d < c.Edges[0] || d >= c.Edges[len(c.Edges)-1] {
		return binOutside
	}
	return sort.SearchFloat64s(c.Edges, math.Nextafter(d, math.Inf(1))) - 1
}

// findBin classifies the distance range [lo, hi].
func (c *Counter) findBin(lo, hi float64) int {
	if len(c.Bins) == 0 || hi < c.Edges[0] || lo >= c.Edges[len(c.Edges)-1] {
		return binOutside
	}
	a, b := c.bin(lo), c.bin(hi)
	if a == b && a >= 0 {
		return a
	}
	return binSpans
}

func radius(s tree.Summary) float64 {
	if s.Box.Empty() {
		return 0
	}
	return math.Sqrt(s.Box.Size().Norm2()) / 2
}

func (c *Counter) nodeBin(source, target *tree.Node) int {
	s, t := source.Summary(), target.Summary()
	d := math.Sqrt(s.Box.Center().Sub(t.Box.Center()).Norm2())
	r := radius(s) + radius(t)
	return c.findBin(math.Max(d-r, 0), d+r)
}

// Open counts whole-node pairs that land in one bin and opens the rest.
func (c *Counter) Open(source, target *tree.Node) bool {
	if source.ParticleCount() == 0 || target.ParticleCount() == 0 {
		return false
	}
	idx := c.nodeBin(source, target)
	if idx < 0 {
		return idx == binSpans
	}
	c.Bins[idx] += int64(source.ParticleCount()) * int64(target.ParticleCount())
	return false
}

// Cell opens dual pairs the same way.
func (c *Counter) Cell(source, target *tree.Node) bool {
	return c.Open(source, target)
}

// Node does nothing: unopened pairs were counted or are out of range.
func (c *Counter) Node(_, _ *tree.Node) {}

// Leaf counts leaf pairs in bulk when possible, else particle by particle.
func (c *Counter) Leaf(source, target *tree.Node) {
	idx := c.nodeBin(source, target)
	if idx >= 0 {
		c.Bins[idx] += int64(source.ParticleCount()) * int64(target.ParticleCount())
		return
	}
	if idx == binOutside {
		return
	}
	for _, p := range source.Particles() {
		for _, q := range target.Particles() {
			if b := c.bin(math.Sqrt(p.Position.Sub(q.Position).Norm2())); b >= 0 {
				c.Bins[b]++
			}
		}
	}
}
