package cluster

import (
	"context"
	"fmt"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/cache"
	"github.com/paratreet/treecache/tree/decomp"
	"github.com/paratreet/treecache/tree/traverse"
	"github.com/paratreet/treecache/tree/wire"
)

// PE is one processing element: its share of the particles, its view of
// the tree, the cache over that view and the service for what it owns.
type PE struct {
	ID         int
	Assignment *decomp.Assignment
	View       *decomp.View
	Cache      *cache.PartitionCache
	Service    *RemoteService
}

func newPE(d *decomp.Decomposition, id int, cfg Config, sender cache.Sender) (*PE, error) {
	asg := d.Assign(id)
	view, err := d.BuildView(asg)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(cache.Config{
		PE:              id,
		PEs:             d.Config().PEs,
		LookupCacheSize: cfg.LookupCacheSize,
		Registerer:      cfg.Registerer,
	}, view.Arena, cache.NewResumer(), sender)
	if err != nil {
		return nil, fmt.Errorf("PE %d cache: %w", id, err)
	}
	return &PE{
		ID:         id,
		Assignment: asg,
		View:       view,
		Cache:      c,
		Service:    NewRemoteService(id, view.Served, cfg.ReplyDepth),
	}, nil
}

// Targets returns the slots a traversal in mode walks for.
func (p *PE) Targets(mode traverse.Mode) []tree.Ref {
	if mode == traverse.DualTree {
		return p.View.SubtreeRoots
	}
	return p.View.Buckets
}

// Particles returns the PE's own particles, in key order.
func (p *PE) Particles() []tree.Particle { return p.Assignment.Particles }

// ClearForces zeroes accumulated accelerations and potentials.
func (p *PE) ClearForces() {
	ps := p.Assignment.Particles
	for i := range ps {
		ps[i].Acceleration = tree.Vec3{}
		ps[i].Potential = 0
	}
}

// VisitorFactory builds the visitor one PE's traversal drives.
type VisitorFactory func(pe int) traverse.Visitor

// Handle identifies one StartTraversal call.
type Handle int

// Iteration is the outcome of one traversal started on every PE.
type Iteration struct {
	Handle     Handle
	Mode       traverse.Mode
	Traversals []*traverse.Traversal
	Visitors   []traverse.Visitor
	// Clock is the simulated time the iteration took, in ticks. The
	// concurrent runtime leaves it at zero.
	Clock int64
}

// Done reports whether every PE's traversal has finished.
func (it *Iteration) Done() bool {
	for _, t := range it.Traversals {
		if !t.Done() {
			return false
		}
	}
	return true
}

// Stats sums the traversal counters across PEs.
func (it *Iteration) Stats() traverse.Stats {
	var s traverse.Stats
	for _, t := range it.Traversals {
		s.Add(t.Stats())
	}
	return s
}

func newIteration(h Handle, mode traverse.Mode, pes []*PE, newVisitor VisitorFactory) *Iteration {
	it := &Iteration{Handle: h, Mode: mode}
	for _, p := range pes {
		v := newVisitor(p.ID)
		it.Visitors = append(it.Visitors, v)
		it.Traversals = append(it.Traversals, traverse.New(int(h), mode, p.Cache, v, p.Targets(mode)))
	}
	return it
}

// checkQuiescent fails when the runtime went quiet with work left, which
// means a context was never woken.
func checkQuiescent(it *Iteration, pes []*PE) error {
	for i, t := range it.Traversals {
		if !t.Done() {
			return fmt.Errorf("PE %d: traversal %d quiescent with %d suspended branches and %d fetches pending",
				i, it.Handle, t.Blocked(), pes[i].Cache.PendingCount())
		}
	}
	return nil
}

// transmit validates env and, with a codec, pushes it through the wire
// format.
func transmit(codec *wire.Codec, env wire.Envelope) (wire.Envelope, int, error) {
	if err := env.Validate(); err != nil {
		return env, 0, err
	}
	if codec == nil {
		return env, 0, nil
	}
	return codec.RoundTrip(env)
}

func resetAll(pes []*PE) error {
	for _, p := range pes {
		if err := p.Cache.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// Runtime runs traversals over a decomposed tree.
type Runtime interface {
	// Iterate runs one traversal on every PE to completion.
	Iterate(ctx context.Context, mode traverse.Mode, newVisitor VisitorFactory) (*Iteration, error)
	// ResetCache frees every fetched node on every PE.
	ResetCache() error
	PEs() []*PE
	RunID() string
}
