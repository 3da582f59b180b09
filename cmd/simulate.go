package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/paratreet/treecache/tree/cluster"
	"github.com/paratreet/treecache/tree/decomp"
	"github.com/paratreet/treecache/tree/trace"
	"github.com/paratreet/treecache/tree/traverse"
	"github.com/paratreet/treecache/tree/visitor"
)

// Result is everything a run leaves behind for reporting.
type Result struct {
	Config        RunConfig
	RunID         string
	Decomposition *decomp.Decomposition
	Runtime       cluster.Runtime
	Iterations    []*cluster.Iteration
	// Counts merges every PE's counter from the last iteration. Nil unless
	// the count visitor ran.
	Counts   *visitor.Counter
	Registry *prometheus.Registry
	Trace    *trace.RunTrace
	Elapsed  time.Duration
}

// Simulate generates the particles, decomposes them and runs the configured
// number of traversal iterations, resetting every cache in between.
func Simulate(ctx context.Context, cfg RunConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mode, _ := traverse.ParseMode(cfg.Mode)

	d, err := decompose(cfg)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Decomposed %d particles into %d subtrees over %d PEs (share depth %d)",
		cfg.Particles, len(d.Subtrees()), cfg.PEs, d.ShareDepth())

	res := &Result{
		Config:        cfg,
		Decomposition: d,
		Registry:      prometheus.NewRegistry(),
		Trace:         trace.NewRunTrace(trace.Level(cfg.Trace)),
	}
	rt, err := newRuntime(cfg, d, res.Registry, res.Trace)
	if err != nil {
		return nil, err
	}
	res.Runtime = rt
	res.RunID = rt.RunID()

	start := time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		if i > 0 {
			if err := rt.ResetCache(); err != nil {
				return res, fmt.Errorf("iteration %d: %w", i, err)
			}
		}
		for _, pe := range rt.PEs() {
			pe.ClearForces()
		}
		it, err := rt.Iterate(ctx, mode, visitorFactory(cfg))
		if err != nil {
			return res, fmt.Errorf("iteration %d: %w", i, err)
		}
		st := it.Stats()
		logrus.Debugf("Iteration %d: %d opens, %d suspensions, clock %d", i, st.Opens, st.Suspensions, it.Clock)
		res.Iterations = append(res.Iterations, it)
	}
	res.Elapsed = time.Since(start)

	if cfg.Visitor == VisitorCount {
		res.Counts = mergeCounts(cfg, res.Iterations[len(res.Iterations)-1])
	}
	return res, nil
}

// decompose generates the configured particle set and splits it.
func decompose(cfg RunConfig) (*decomp.Decomposition, error) {
	rng := cluster.NewPartitionedRNG(cfg.Seed).ForSubsystem(cluster.SubsystemParticles)
	particles, err := decomp.Generate(decomp.Distribution(cfg.Distribution), cfg.Particles, rng)
	if err != nil {
		return nil, err
	}
	d, err := decomp.New(cfg.decompConfig(), particles)
	if err != nil {
		return nil, fmt.Errorf("decomposing: %w", err)
	}
	return d, nil
}

func newRuntime(cfg RunConfig, d *decomp.Decomposition, reg prometheus.Registerer, rt *trace.RunTrace) (cluster.Runtime, error) {
	ccfg := cluster.Config{
		Seed:            cfg.Seed,
		ReplyDepth:      cfg.ReplyDepth,
		LookupCacheSize: cfg.LookupCacheSize,
		Latency:         cfg.Latency,
		EncodeMessages:  cfg.EncodeMessages,
		Trace:           rt,
		Registerer:      reg,
	}
	if cfg.Runtime == RuntimeConcurrent {
		return cluster.NewConcurrent(ccfg, d)
	}
	return cluster.New(ccfg, d)
}

func visitorFactory(cfg RunConfig) cluster.VisitorFactory {
	if cfg.Visitor == VisitorCount {
		return func(int) traverse.Visitor { return visitor.NewCounter(cfg.CountEdges) }
	}
	return func(int) traverse.Visitor { return visitor.NewGravity(cfg.Theta) }
}

func mergeCounts(cfg RunConfig, it *cluster.Iteration) *visitor.Counter {
	total := visitor.NewCounter(cfg.CountEdges)
	for _, v := range it.Visitors {
		if c, ok := v.(*visitor.Counter); ok {
			total.Merge(c)
		}
	}
	return total
}
