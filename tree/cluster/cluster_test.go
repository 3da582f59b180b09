package cluster

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/cache"
	"github.com/paratreet/treecache/tree/decomp"
	"github.com/paratreet/treecache/tree/internal/testutil"
	"github.com/paratreet/treecache/tree/trace"
	"github.com/paratreet/treecache/tree/traverse"
	"github.com/paratreet/treecache/tree/visitor"
)

var countEdges = []float64{0, 0.1, 0.3, math.Inf(1)}

var allModes = []traverse.Mode{traverse.TopDown, traverse.UpAndDown, traverse.DualTree}

func uniformDecomp(t *testing.T, b tree.Branching, n, pes int) *decomp.Decomposition {
	t.Helper()
	ps := decomp.GenerateUniform(n, rand.New(rand.NewSource(11)))
	d, err := decomp.New(decomp.Config{Branching: b, LeafSize: 8, SubtreeSize: 40, PEs: pes, ShareDepth: 1}, ps)
	require.NoError(t, err)
	return d
}

func testConfig() Config {
	return Config{
		Seed:       1,
		ReplyDepth: DefaultReplyDepth,
		Latency:    Latency{Base: 10, Jitter: 5, Service: 2},
		Trace:      trace.NewRunTrace(trace.LevelFetches),
	}
}

func counterFactory(int) traverse.Visitor { return visitor.NewCounter(countEdges) }

func mergedCounts(it *Iteration) *visitor.Counter {
	total := visitor.NewCounter(countEdges)
	for _, v := range it.Visitors {
		total.Merge(v.(*visitor.Counter))
	}
	return total
}

func TestCluster_CountsEveryPairInEveryMode(t *testing.T) {
	for _, b := range []tree.Branching{tree.Binary, tree.Octree} {
		for _, mode := range allModes {
			// GIVEN 300 particles spread over 4 PEs
			cfg := testConfig()
			c, err := New(cfg, uniformDecomp(t, b, 300, 4))
			require.NoError(t, err)

			// WHEN a counting traversal runs to quiescence
			it, err := c.Iterate(context.Background(), mode, counterFactory)
			require.NoError(t, err, "B=%d %v", b, mode)

			// THEN every ordered pair was counted exactly once
			if got := mergedCounts(it).Total(); got != 300*300 {
				t.Errorf("B=%d %v: counted %d pairs, want %d", b, mode, got, 300*300)
			}
			assert.True(t, c.IsComplete(it.Handle))
			assert.Equal(t, 0, c.Pending())

			// AND remote data was fetched, never twice by the same PE
			s := trace.Summarize(cfg.Trace)
			assert.Positive(t, s.WireRequests, "B=%d %v", b, mode)
			assert.Equal(t, 0, s.RepeatedFetches, "B=%d %v", b, mode)
			assert.Equal(t, s.WireRequests, s.Replies)
			for _, p := range c.PEs() {
				assert.Equal(t, 0, p.Cache.PendingCount())
				assert.Equal(t, 0, p.Cache.Resumer().Len())
			}
		}
	}
}

func TestCluster_MatchesSinglePE(t *testing.T) {
	for _, mode := range allModes {
		// GIVEN the same particles on one PE and on four
		one, err := New(testConfig(), uniformDecomp(t, tree.Binary, 250, 1))
		require.NoError(t, err)
		four, err := New(testConfig(), uniformDecomp(t, tree.Binary, 250, 4))
		require.NoError(t, err)

		// WHEN both count pairs
		itOne, err := one.Iterate(context.Background(), mode, counterFactory)
		require.NoError(t, err)
		itFour, err := four.Iterate(context.Background(), mode, counterFactory)
		require.NoError(t, err)

		// THEN the histograms agree bin for bin
		assert.Equal(t, mergedCounts(itOne).Bins, mergedCounts(itFour).Bins, "mode %v", mode)
		assert.Equal(t, 0, itOne.Stats().Suspensions, "a single PE never suspends")
		assert.Positive(t, itFour.Stats().Suspensions)
		assert.Equal(t, itFour.Stats().Suspensions, itFour.Stats().Resumes)
	}
}

func gravityAccels(t *testing.T, pes int, mode traverse.Mode) map[int64]tree.Vec3 {
	t.Helper()
	ps := decomp.GeneratePlummer(400, rand.New(rand.NewSource(5)))
	d, err := decomp.New(decomp.Config{Branching: tree.Binary, LeafSize: 6, SubtreeSize: 50, PEs: pes, ShareDepth: 2}, ps)
	require.NoError(t, err)
	c, err := New(testConfig(), d)
	require.NoError(t, err)
	_, err = c.Iterate(context.Background(), mode, func(int) traverse.Visitor { return visitor.NewGravity(0.7) })
	require.NoError(t, err)

	out := make(map[int64]tree.Vec3, 400)
	for _, p := range c.PEs() {
		for _, q := range p.Particles() {
			out[q.ID] = q.Acceleration
		}
	}
	require.Len(t, out, 400)
	return out
}

func TestCluster_GravityMatchesSinglePE(t *testing.T) {
	for _, mode := range allModes {
		// GIVEN Barnes-Hut gravity on one PE and on three
		want := gravityAccels(t, 1, mode)
		got := gravityAccels(t, 3, mode)

		// THEN every particle feels the same force up to summation order
		for id, w := range want {
			g := got[id]
			testutil.AssertFloat64Equal(t, "|accel|", math.Sqrt(w.Norm2()), math.Sqrt(g.Norm2()), 1e-9)
			tol := 1e-9 * math.Max(1, math.Sqrt(w.Norm2()))
			for axis := 0; axis < 3; axis++ {
				assert.InDelta(t, w.Axis(axis), g.Axis(axis), tol, "particle %d axis %d mode %v", id, axis, mode)
			}
		}
	}
}

func TestCluster_Deterministic(t *testing.T) {
	run := func() (*trace.RunTrace, []int64) {
		cfg := testConfig()
		c, err := New(cfg, uniformDecomp(t, tree.Binary, 200, 3))
		require.NoError(t, err)
		it, err := c.Iterate(context.Background(), traverse.TopDown, counterFactory)
		require.NoError(t, err)
		return cfg.Trace, mergedCounts(it).Bins
	}

	// GIVEN two runs with the same seed
	ta, ba := run()
	tb, bb := run()

	// THEN the traffic and the results are identical
	assert.Equal(t, ba, bb)
	assert.Equal(t, ta.Fetches, tb.Fetches)
	assert.Equal(t, ta.Replies, tb.Replies)
}

func TestCluster_ResetThenRefetch(t *testing.T) {
	// GIVEN a finished iteration
	cfg := testConfig()
	c, err := New(cfg, uniformDecomp(t, tree.Binary, 200, 3))
	require.NoError(t, err)
	first, err := c.Iterate(context.Background(), traverse.TopDown, counterFactory)
	require.NoError(t, err)
	sent := trace.Summarize(cfg.Trace).WireRequests
	require.Positive(t, sent)

	// WHEN the caches are reset
	require.NoError(t, c.ResetCache())

	// THEN fetched nodes are gone
	for _, p := range c.PEs() {
		a := p.Cache.Arena()
		assert.Equal(t, a.Persistent(), a.Len(), "PE %d", p.ID)
		a.Walk(func(_ tree.Ref, n *tree.Node) bool {
			if n.Locality.IsCached() {
				t.Errorf("PE %d still holds cached node %v", p.ID, n.Key)
			}
			return true
		})
	}

	// AND the next iteration fetches the same data again with the same result
	second, err := c.Iterate(context.Background(), traverse.TopDown, counterFactory)
	require.NoError(t, err)
	assert.Equal(t, mergedCounts(first).Bins, mergedCounts(second).Bins)
	s := trace.Summarize(cfg.Trace)
	assert.Equal(t, 2*sent, s.WireRequests)
	assert.Equal(t, 0, s.RepeatedFetches)
}

func TestCluster_ResetWithUndeliveredEventsFails(t *testing.T) {
	c, err := New(testConfig(), uniformDecomp(t, tree.Binary, 100, 2))
	require.NoError(t, err)

	// GIVEN a traversal scheduled but not run
	h := c.StartTraversal(traverse.TopDown, counterFactory)
	assert.False(t, c.IsComplete(h))

	// THEN reset is refused and names what is still queued
	err = c.ResetCache()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 traversal starts")
	assert.False(t, c.IsComplete(Handle(7)), "unknown handles are never complete")
}

func TestCluster_EncodedMessages(t *testing.T) {
	// GIVEN the same run with and without the wire codec
	plain, err := New(testConfig(), uniformDecomp(t, tree.Octree, 200, 3))
	require.NoError(t, err)
	cfg := testConfig()
	cfg.EncodeMessages = true
	encoded, err := New(cfg, uniformDecomp(t, tree.Octree, 200, 3))
	require.NoError(t, err)

	itPlain, err := plain.Iterate(context.Background(), traverse.DualTree, counterFactory)
	require.NoError(t, err)
	itEnc, err := encoded.Iterate(context.Background(), traverse.DualTree, counterFactory)
	require.NoError(t, err)

	// THEN results match and bytes were counted
	assert.Equal(t, mergedCounts(itPlain).Bins, mergedCounts(itEnc).Bins)
	assert.Positive(t, trace.Summarize(cfg.Trace).BytesShipped)
}

func TestCluster_MetricsTrackStats(t *testing.T) {
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	cfg.Registerer = reg
	cfg.LookupCacheSize = 64
	c, err := New(cfg, uniformDecomp(t, tree.Binary, 200, 3))
	require.NoError(t, err)
	_, err = c.Iterate(context.Background(), traverse.UpAndDown, counterFactory)
	require.NoError(t, err)

	for _, p := range c.PEs() {
		st := p.Cache.Stats()
		m := p.Cache.Metrics()
		assert.Equal(t, float64(st.FetchesSent), promtest.ToFloat64(m.FetchesSent), "PE %d", p.ID)
		assert.Equal(t, float64(st.RepliesApplied), promtest.ToFloat64(m.RepliesInstalled), "PE %d", p.ID)
		assert.Equal(t, float64(st.ContextsResumed), promtest.ToFloat64(m.ContextsResumed), "PE %d", p.ID)
	}
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCluster_NotOwnerAborts(t *testing.T) {
	c, err := New(testConfig(), uniformDecomp(t, tree.Binary, 100, 2))
	require.NoError(t, err)

	// GIVEN a PE that forwards its request to the wrong owner
	var wrong tree.Key
	c.PEs()[0].View.Arena.Walk(func(_ tree.Ref, n *tree.Node) bool {
		if wrong == 0 && n.Locality.NeedsFetch() {
			wrong = n.Key
		}
		return true
	})
	require.NotZero(t, wrong)
	c.sendRequest(0, 0, wireRequest(wrong, 0))

	// THEN the run stops with a not-owner error
	err = c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrNotOwner), "%v", err)
}
