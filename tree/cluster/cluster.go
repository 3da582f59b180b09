// Package cluster runs PEs against each other: a deterministic
// discrete-event runtime with modelled link latency, and a concurrent
// runtime with one goroutine per PE.
package cluster

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/cache"
	"github.com/paratreet/treecache/tree/decomp"
	"github.com/paratreet/treecache/tree/trace"
	"github.com/paratreet/treecache/tree/traverse"
	"github.com/paratreet/treecache/tree/wire"
)

type sendKey struct {
	pe  int
	key tree.Key
}

// Cluster is the discrete-event runtime. Every PE's local work and message
// handling runs on the single event loop, so one message is handled at a
// time and the run is reproducible for a given seed.
type Cluster struct {
	cfg        Config
	runID      string
	pes        []*PE
	events     *EventHeap
	clock      int64
	rng        *PartitionedRNG
	codec      *wire.Codec
	trace      *trace.RunTrace
	iterations []*Iteration
	started    int64
	sentAt     map[sendKey]int64
	fatal      error
}

// New builds every PE's view of d and wires their caches to the event loop.
func New(cfg Config, d *decomp.Decomposition) (*Cluster, error) {
	c := &Cluster{
		cfg:    cfg,
		runID:  uuid.NewString(),
		events: NewEventHeap(),
		rng:    NewPartitionedRNG(cfg.Seed),
		trace:  cfg.Trace,
		sentAt: make(map[sendKey]int64),
	}
	if cfg.EncodeMessages {
		codec, err := wire.NewCodec()
		if err != nil {
			return nil, err
		}
		c.codec = codec
	}
	for id := 0; id < d.Config().PEs; id++ {
		from := id
		p, err := newPE(d, id, cfg, cache.SenderFunc(func(owner int, req wire.FetchRequest) {
			c.sendRequest(from, owner, req)
		}))
		if err != nil {
			return nil, err
		}
		c.pes = append(c.pes, p)
	}
	logrus.WithField("run", c.runID).Infof("event runtime: %d PEs, reply depth %d, latency %+v",
		len(c.pes), cfg.ReplyDepth, cfg.Latency)
	return c, nil
}

// RunID identifies this run in logs and reports.
func (c *Cluster) RunID() string { return c.runID }

// PEs returns the processing elements.
func (c *Cluster) PEs() []*PE { return c.pes }

// Clock returns the current simulated time.
func (c *Cluster) Clock() int64 { return c.clock }

// Pending returns the number of undelivered events.
func (c *Cluster) Pending() int { return c.events.Len() }

// StartTraversal creates a traversal on every PE and schedules its start.
// Nothing runs until Run.
func (c *Cluster) StartTraversal(mode traverse.Mode, newVisitor VisitorFactory) Handle {
	h := Handle(len(c.iterations))
	it := newIteration(h, mode, c.pes, newVisitor)
	c.iterations = append(c.iterations, it)
	c.started = c.clock
	for i, t := range it.Traversals {
		c.events.Schedule(NewTraversalStartEvent(c.clock, i, t))
	}
	return h
}

// IsComplete reports whether the traversal behind h finished on every PE.
func (c *Cluster) IsComplete(h Handle) bool {
	if int(h) < 0 || int(h) >= len(c.iterations) {
		return false
	}
	return c.iterations[h].Done()
}

// Iteration returns the state of the traversal behind h.
func (c *Cluster) Iteration(h Handle) *Iteration { return c.iterations[h] }

// Run processes events until none are left. It stops at the first fatal
// error.
func (c *Cluster) Run(ctx context.Context) error {
	for c.events.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev := c.events.PopNext()
		if ev.Timestamp() < c.clock {
			panic(fmt.Sprintf("cluster: clock went backwards from %d to %d", c.clock, ev.Timestamp()))
		}
		c.clock = ev.Timestamp()
		if err := ev.Execute(c); err != nil {
			return err
		}
		if c.fatal != nil {
			return c.fatal
		}
	}
	return nil
}

// Iterate starts one traversal on every PE and runs it to quiescence.
func (c *Cluster) Iterate(ctx context.Context, mode traverse.Mode, newVisitor VisitorFactory) (*Iteration, error) {
	h := c.StartTraversal(mode, newVisitor)
	if err := c.Run(ctx); err != nil {
		return nil, err
	}
	it := c.iterations[h]
	it.Clock = c.clock - c.started
	if err := checkQuiescent(it, c.pes); err != nil {
		return nil, err
	}
	return it, nil
}

// ResetCache frees fetched nodes on every PE. Every traversal must have
// finished.
func (c *Cluster) ResetCache() error {
	if c.events.Len() > 0 {
		return fmt.Errorf("reset with %d events undelivered: %d requests, %d replies, %d traversal starts",
			c.events.Len(), c.events.InFlight(EventTypeFetchRequest),
			c.events.InFlight(EventTypeFetchReply), c.events.InFlight(EventTypeTraversalStart))
	}
	if err := resetAll(c.pes); err != nil {
		return err
	}
	logrus.WithField("run", c.runID).Infof("caches reset at clock %d", c.clock)
	return nil
}

func (c *Cluster) linkLatency(from, to int) int64 {
	l := c.cfg.Latency.Base
	if c.cfg.Latency.Jitter > 0 {
		l += c.rng.ForLink(from, to).Int63n(c.cfg.Latency.Jitter + 1)
	}
	return l
}

func (c *Cluster) iteration() int { return len(c.iterations) - 1 }

func (c *Cluster) sendRequest(from, owner int, req wire.FetchRequest) {
	env, size, err := transmit(c.codec, wire.NewRequestEnvelope(from, owner, req))
	if err != nil {
		if c.fatal == nil {
			c.fatal = fmt.Errorf("PE %d request for %v: %w", from, req.Key, err)
		}
		return
	}
	c.sentAt[sendKey{pe: from, key: req.Key}] = c.clock
	if c.trace.Enabled() {
		c.trace.RecordFetch(trace.FetchRecord{
			Iteration:   c.iteration(),
			Clock:       c.clock,
			RequesterPE: from,
			OwnerPE:     owner,
			Key:         uint64(req.Key),
			Bytes:       size,
		})
	}
	c.events.Schedule(NewFetchRequestEvent(c.clock+c.linkLatency(from, owner), env))
}

func (c *Cluster) handleTraversalStart(e *TraversalStartEvent) error {
	logrus.Debugf("PE %d: traversal %d starts with %d targets", e.PE, e.Traversal.ID(), len(c.pes[e.PE].Targets(e.Traversal.Mode())))
	return e.Traversal.Start()
}

func (c *Cluster) handleFetchRequest(e *FetchRequestEvent) error {
	req := *e.Envelope.Request
	owner := c.pes[e.Envelope.To]
	reply, err := owner.Service.Serve(req)
	if err != nil {
		return err
	}
	env, size, err := transmit(c.codec, wire.NewReplyEnvelope(owner.ID, e.Envelope.From, reply))
	if err != nil {
		return fmt.Errorf("PE %d reply for %v: %w", owner.ID, req.Key, err)
	}
	at := c.clock + c.cfg.Latency.Service + c.linkLatency(owner.ID, e.Envelope.From)
	c.events.Schedule(NewFetchReplyEvent(at, env, size))
	return nil
}

func (c *Cluster) handleFetchReply(e *FetchReplyEvent) error {
	reply := *e.Envelope.Reply
	to := e.Envelope.To
	sk := sendKey{pe: to, key: reply.Key}
	if c.trace.Enabled() {
		c.trace.RecordReply(trace.ReplyRecord{
			Iteration:   c.iteration(),
			Clock:       c.clock,
			RequesterPE: to,
			OwnerPE:     reply.OwnerPE,
			Key:         uint64(reply.Key),
			Nodes:       len(reply.Nodes),
			Particles:   len(reply.Particles),
			Bytes:       e.Bytes,
			RoundTrip:   c.clock - c.sentAt[sk],
		})
	}
	delete(c.sentAt, sk)
	return c.pes[to].Cache.OnFetchReply(reply)
}
