// Package cache keeps the locally known part of the global tree on one PE:
// the persistent tree built at decomposition, plus remote subtrees fetched
// on demand and held until the next reset.
package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/wire"
)

// Sender puts a fetch request on the wire to its owner.
type Sender interface {
	SendFetchRequest(owner int, req wire.FetchRequest)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(owner int, req wire.FetchRequest)

func (f SenderFunc) SendFetchRequest(owner int, req wire.FetchRequest) { f(owner, req) }

// Config parameterizes a PartitionCache.
type Config struct {
	PE int
	// PEs is the number of PEs in the run. Replies naming an owner outside
	// [0, PEs) are rejected. Zero skips the check.
	PEs int
	// LookupCacheSize bounds the key -> slot accelerator. Zero disables it.
	LookupCacheSize int
	// Registerer receives the cache metrics; nil keeps them unregistered.
	Registerer prometheus.Registerer
}

// Stats counts what the cache did since it was created.
type Stats struct {
	Lookups         int
	LookupMisses    int
	FetchesSent     int
	FetchesDeduped  int
	RepliesApplied  int
	NodesInstalled  int
	ContextsResumed int
	Resets          int
	NodesFreed      int
}

type pendingFetch struct {
	owner      int
	requesters int
}

// PartitionCache is one PE's view of the tree. It is not safe for concurrent
// use: a PE serializes its local steps and message handling.
type PartitionCache struct {
	pe      int
	pes     int
	arena   *tree.Arena
	resumer *Resumer
	sender  Sender
	pending map[tree.Key]*pendingFetch
	lookup  *lookupCache
	metrics *Metrics
	stats   Stats
}

// New creates a cache over an arena whose persistent region is already built
// and marked.
func New(cfg Config, arena *tree.Arena, resumer *Resumer, sender Sender) (*PartitionCache, error) {
	lookup, err := newLookupCache(cfg.LookupCacheSize)
	if err != nil {
		return nil, err
	}
	return &PartitionCache{
		pe:      cfg.PE,
		pes:     cfg.PEs,
		arena:   arena,
		resumer: resumer,
		sender:  sender,
		pending: make(map[tree.Key]*pendingFetch),
		lookup:  lookup,
		metrics: NewMetrics(cfg.Registerer, cfg.PE),
	}, nil
}

// PE returns the id of the PE this cache belongs to.
func (c *PartitionCache) PE() int { return c.pe }

// Arena exposes the node storage.
func (c *PartitionCache) Arena() *tree.Arena { return c.arena }

// Resumer returns the resumer the cache fires.
func (c *PartitionCache) Resumer() *Resumer { return c.resumer }

// Metrics returns the cache's prometheus collectors.
func (c *PartitionCache) Metrics() *Metrics { return c.metrics }

// Stats returns a copy of the counters.
func (c *PartitionCache) Stats() Stats { return c.stats }

// Pending reports whether a fetch for key is outstanding.
func (c *PartitionCache) Pending(key tree.Key) bool {
	_, ok := c.pending[key]
	return ok
}

// PendingCount returns the number of outstanding fetches.
func (c *PartitionCache) PendingCount() int { return len(c.pending) }

// Node returns the node at r.
func (c *PartitionCache) Node(r tree.Ref) *tree.Node { return c.arena.Node(r) }

// Root returns the ref of the shared root.
func (c *PartitionCache) Root() tree.Ref { return c.arena.Root() }

// Lookup returns the resident node with key. It never blocks; a key that is
// unknown or only a placeholder is reported as not resident.
func (c *PartitionCache) Lookup(key tree.Key) (tree.Ref, bool) {
	c.stats.Lookups++
	if r, ok := c.lookup.get(key); ok {
		c.metrics.Lookups.WithLabelValues("accelerated").Inc()
		return r, true
	}
	r, ok := c.arena.Lookup(key)
	if !ok || !c.arena.Node(r).IsResident() {
		c.stats.LookupMisses++
		c.metrics.Lookups.WithLabelValues("miss").Inc()
		return tree.NoRef, false
	}
	c.lookup.add(key, r)
	c.metrics.Lookups.WithLabelValues("hit").Inc()
	return r, true
}

// RequestFetch parks ctx until ctx.Key is resident and makes sure exactly one
// fetch for that key is in flight to owner.
func (c *PartitionCache) RequestFetch(ctx Context, owner int) error {
	key := ctx.Key
	r, ok := c.arena.Lookup(key)
	if !ok {
		return protocolErr(c.pe, key, ErrNotPlaceholder, "key is not in the local tree")
	}
	if n := c.arena.Node(r); !n.Locality.NeedsFetch() {
		return protocolErr(c.pe, key, ErrNotPlaceholder, "node is %v", n.Locality)
	}
	if p, ok := c.pending[key]; ok && p.owner != owner {
		return protocolErr(c.pe, key, ErrDuplicateFetch,
			"fetch already sent to PE %d, asked again for PE %d", p.owner, owner)
	}
	if err := c.resumer.Await(ctx); err != nil {
		return protocolErr(c.pe, key, ErrDuplicateWait, "%v", err)
	}

	if p, ok := c.pending[key]; ok {
		p.requesters++
		c.stats.FetchesDeduped++
		c.metrics.FetchesDeduped.Inc()
		logrus.WithFields(logrus.Fields{"pe": c.pe, "key": key, "owner": owner}).
			Debugf("fetch already pending, %d requesters", p.requesters)
		return nil
	}

	c.pending[key] = &pendingFetch{owner: owner, requesters: 1}
	c.stats.FetchesSent++
	c.metrics.FetchesSent.Inc()
	logrus.WithFields(logrus.Fields{"pe": c.pe, "key": key, "owner": owner}).Debugf("fetch sent")
	c.sender.SendFetchRequest(owner, wire.FetchRequest{Key: key, RequesterPE: c.pe})
	return nil
}

// OnFetchReply installs a reply and replays every context waiting on an
// installed key. The first error returned by a resumed traversal aborts
// the remaining replays.
func (c *PartitionCache) OnFetchReply(reply wire.FetchReply) error {
	key := reply.Key
	p, ok := c.pending[key]
	if !ok {
		return protocolErr(c.pe, key, ErrUnexpectedReply, "from PE %d", reply.OwnerPE)
	}
	if p.owner != reply.OwnerPE {
		return protocolErr(c.pe, key, ErrUnexpectedReply,
			"from PE %d, fetch was sent to PE %d", reply.OwnerPE, p.owner)
	}
	slot, ok := c.arena.Lookup(key)
	if !ok || !c.arena.Node(slot).Locality.NeedsFetch() {
		return protocolErr(c.pe, key, ErrUnexpectedReply, "no placeholder to fill")
	}
	declared := c.arena.Node(slot).ParticleCount()

	root, err := parseReply(c.arena.Branching(), c.pes, reply)
	if err != nil {
		return protocolErr(c.pe, key, ErrMalformedReply, "%v", err)
	}
	if root.rec.ParticleCount != declared {
		return protocolErr(c.pe, key, ErrMalformedReply,
			"reply holds %d particles, placeholder declared %d", root.rec.ParticleCount, declared)
	}

	installed := c.install(slot, root, reply.Particles)
	delete(c.pending, key)
	c.stats.RepliesApplied++
	c.stats.NodesInstalled += len(installed)
	c.metrics.RepliesInstalled.Inc()
	c.metrics.NodesInstalled.Add(float64(len(installed)))
	c.metrics.CachedNodes.Set(float64(c.arena.Len() - c.arena.Persistent()))

	// The requested key first, then any other installed key with waiters.
	fired := c.resumer.Fire(key)
	for _, r := range installed[1:] {
		if n := c.arena.Node(r); n.IsResident() {
			fired = append(fired, c.resumer.Fire(n.Key)...)
		}
	}
	logrus.WithFields(logrus.Fields{"pe": c.pe, "key": key, "owner": reply.OwnerPE}).
		Debugf("reply installed: %d nodes, %d contexts", len(installed), len(fired))

	for i, ctx := range fired {
		r, ok := c.arena.Lookup(ctx.Key)
		if !ok || !c.arena.Node(r).IsResident() {
			panic("cache: fired context at a key that is not resident: " + ctx.Key.String())
		}
		c.stats.ContextsResumed++
		c.metrics.ContextsResumed.Inc()
		if err := ctx.Traversal.Resume(ctx, r); err != nil {
			// Contexts not yet replayed are lost with the run.
			logrus.Debugf("PE %d: %d contexts dropped after resume error", c.pe, len(fired)-i-1)
			return err
		}
	}
	return nil
}

// Reset frees every fetched node and restores the placeholders they
// replaced. It requires quiescence: nothing pending and nothing waiting.
func (c *PartitionCache) Reset() error {
	if keys := c.resumer.Keys(); len(keys) > 0 {
		return protocolErr(c.pe, keys[0], ErrBlockedAtReset,
			"%d contexts still waiting on %d keys", c.resumer.Len(), len(keys))
	}
	if len(c.pending) > 0 {
		key := c.lowestPending()
		return protocolErr(c.pe, key, ErrBlockedAtReset,
			"fetch to PE %d still pending", c.pending[key].owner)
	}
	freed := c.arena.Rollback()
	c.lookup.purge()
	c.stats.Resets++
	c.stats.NodesFreed += freed
	c.metrics.CachedNodes.Set(0)
	logrus.WithField("pe", c.pe).Debugf("cache reset, %d nodes freed", freed)
	return nil
}

func (c *PartitionCache) lowestPending() tree.Key {
	first := true
	var low tree.Key
	for k := range c.pending {
		if first || k < low {
			low, first = k, false
		}
	}
	return low
}
