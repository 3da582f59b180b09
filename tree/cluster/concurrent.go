package cluster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/paratreet/treecache/tree/cache"
	"github.com/paratreet/treecache/tree/decomp"
	"github.com/paratreet/treecache/tree/trace"
	"github.com/paratreet/treecache/tree/traverse"
	"github.com/paratreet/treecache/tree/wire"
)

type message struct {
	start *traverse.Traversal
	env   wire.Envelope
	bytes int
}

// inbox is an unbounded queue drained by one PE goroutine.
type inbox struct {
	mu     sync.Mutex
	queue  []message
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (b *inbox) put(m message) {
	b.mu.Lock()
	b.queue = append(b.queue, m)
	b.mu.Unlock()
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *inbox) take() []message {
	b.mu.Lock()
	q := b.queue
	b.queue = nil
	b.mu.Unlock()
	return q
}

// Concurrent runs every PE on its own goroutine. PEs share nothing but
// their inboxes; the run is quiescent once no message is queued or being
// handled anywhere.
type Concurrent struct {
	cfg     Config
	runID   string
	pes     []*PE
	inboxes []*inbox
	codec   *wire.Codec
	// sendErr is written only by the owning PE's goroutine.
	sendErr []error

	inflight   atomic.Int64
	quiet      chan struct{}
	quietOnce  *sync.Once
	iterations int

	traceMu sync.Mutex
	trace   *trace.RunTrace
}

// NewConcurrent builds every PE's view of d and wires their caches to the
// PE inboxes.
func NewConcurrent(cfg Config, d *decomp.Decomposition) (*Concurrent, error) {
	c := &Concurrent{
		cfg:     cfg,
		runID:   uuid.NewString(),
		trace:   cfg.Trace,
		sendErr: make([]error, d.Config().PEs),
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
		c.inboxes = append(c.inboxes, newInbox())
	}
	logrus.WithField("run", c.runID).Infof("concurrent runtime: %d PEs, reply depth %d", len(c.pes), cfg.ReplyDepth)
	return c, nil
}

// RunID identifies this run in logs and reports.
func (c *Concurrent) RunID() string { return c.runID }

// PEs returns the processing elements.
func (c *Concurrent) PEs() []*PE { return c.pes }

// Iterate starts one traversal on every PE and runs all PEs until the
// system is quiescent or a PE fails.
func (c *Concurrent) Iterate(ctx context.Context, mode traverse.Mode, newVisitor VisitorFactory) (*Iteration, error) {
	it := newIteration(Handle(c.iterations), mode, c.pes, newVisitor)
	c.iterations++
	c.quiet = make(chan struct{})
	c.quietOnce = &sync.Once{}
	c.inflight.Store(0)
	for i, t := range it.Traversals {
		c.post(i, message{start: t})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range c.pes {
		id := i
		g.Go(func() error { return c.worker(gctx, id) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := checkQuiescent(it, c.pes); err != nil {
		return nil, err
	}
	return it, nil
}

// ResetCache frees fetched nodes on every PE. Call it between iterations.
func (c *Concurrent) ResetCache() error {
	if err := resetAll(c.pes); err != nil {
		return err
	}
	logrus.WithField("run", c.runID).Info("caches reset")
	return nil
}

func (c *Concurrent) post(to int, m message) {
	c.inflight.Add(1)
	c.inboxes[to].put(m)
}

func (c *Concurrent) worker(ctx context.Context, id int) error {
	box := c.inboxes[id]
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.quiet:
			return nil
		case <-box.signal:
			for _, m := range box.take() {
				if err := c.handle(id, m); err != nil {
					return err
				}
				if err := c.sendErr[id]; err != nil {
					return err
				}
				if c.inflight.Add(-1) == 0 {
					c.quietOnce.Do(func() { close(c.quiet) })
				}
			}
		}
	}
}

func (c *Concurrent) handle(id int, m message) error {
	if m.start != nil {
		return m.start.Start()
	}
	switch m.env.Kind {
	case wire.KindFetchRequest:
		reply, err := c.pes[id].Service.Serve(*m.env.Request)
		if err != nil {
			return err
		}
		env, size, err := transmit(c.codec, wire.NewReplyEnvelope(id, m.env.From, reply))
		if err != nil {
			return fmt.Errorf("PE %d reply for %v: %w", id, reply.Key, err)
		}
		c.post(m.env.From, message{env: env, bytes: size})
		return nil
	case wire.KindFetchReply:
		reply := *m.env.Reply
		if c.trace.Enabled() {
			c.traceMu.Lock()
			c.trace.RecordReply(trace.ReplyRecord{
				Iteration:   c.iterations - 1,
				RequesterPE: id,
				OwnerPE:     reply.OwnerPE,
				Key:         uint64(reply.Key),
				Nodes:       len(reply.Nodes),
				Particles:   len(reply.Particles),
				Bytes:       m.bytes,
			})
			c.traceMu.Unlock()
		}
		return c.pes[id].Cache.OnFetchReply(reply)
	}
	return fmt.Errorf("PE %d: message of kind %v", id, m.env.Kind)
}

// sendRequest runs on the requester's goroutine.
func (c *Concurrent) sendRequest(from, owner int, req wire.FetchRequest) {
	env, size, err := transmit(c.codec, wire.NewRequestEnvelope(from, owner, req))
	if err != nil {
		if c.sendErr[from] == nil {
			c.sendErr[from] = fmt.Errorf("PE %d request for %v: %w", from, req.Key, err)
		}
		return
	}
	if c.trace.Enabled() {
		c.traceMu.Lock()
		c.trace.RecordFetch(trace.FetchRecord{
			Iteration:   c.iterations - 1,
			RequesterPE: from,
			OwnerPE:     owner,
			Key:         uint64(req.Key),
			Bytes:       size,
		})
		c.traceMu.Unlock()
	}
	c.post(owner, message{env: env, bytes: size})
}
