package cmd

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() RunConfig {
	cfg := DefaultRunConfig()
	cfg.Particles = 300
	cfg.PEs = 3
	cfg.LeafSize = 8
	cfg.SubtreeSize = 40
	cfg.Latency.Jitter = 3
	cfg.Trace = "fetches"
	return cfg
}

func TestSimulate_CountVisitsEveryPair(t *testing.T) {
	for _, mode := range []string{"topdown", "upanddown", "dual"} {
		// GIVEN a small run with the count visitor and edges covering every distance
		cfg := smallConfig()
		cfg.Mode = mode
		cfg.Visitor = VisitorCount
		cfg.CountEdges = []float64{0, 0.1, 0.5, math.Inf(1)}

		// WHEN it runs
		res, err := Simulate(context.Background(), cfg)
		require.NoError(t, err)

		// THEN every ordered pair is counted once
		require.NotNil(t, res.Counts)
		if got, want := res.Counts.Total(), int64(300*300); got != want {
			t.Errorf("%s: Total() = %d, want %d", mode, got, want)
		}
	}
}

func TestSimulate_IterationsResetBetween(t *testing.T) {
	// GIVEN two iterations
	cfg := smallConfig()
	cfg.Iterations = 2

	// WHEN the run completes
	res, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)

	// THEN each PE's cache was reset once, between the iterations
	require.Len(t, res.Iterations, 2)
	for _, pe := range res.Runtime.PEs() {
		if got := pe.Cache.Stats().Resets; got != 1 {
			t.Errorf("PE %d Resets = %d, want 1", pe.ID, got)
		}
	}
	// AND both iterations did the same interactions
	first, second := res.Iterations[0].Stats(), res.Iterations[1].Stats()
	assert.Equal(t, first.Opens, second.Opens)
	assert.Equal(t, first.NodeInteractions, second.NodeInteractions)
	assert.Equal(t, first.LeafInteractions, second.LeafInteractions)
}

func TestSimulate_ConcurrentRuntime(t *testing.T) {
	cfg := smallConfig()
	cfg.Runtime = RuntimeConcurrent
	cfg.EncodeMessages = true
	res, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, res.Iterations, 1)
	assert.True(t, res.Iterations[0].Done())
	assert.NotEmpty(t, res.RunID)
}

func TestSimulate_InvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Runtime = "mpi"
	_, err := Simulate(context.Background(), cfg)
	assert.Error(t, err)
}

func TestPrintReport_Sections(t *testing.T) {
	// GIVEN a traced gravity run
	res, err := Simulate(context.Background(), smallConfig())
	require.NoError(t, err)

	// WHEN the report is printed
	var buf bytes.Buffer
	require.NoError(t, PrintReport(&buf, res))

	// THEN every section is present
	out := buf.String()
	for _, want := range []string{
		"=== Tree Cache Run " + res.RunID,
		"--- Cache per PE ---",
		"--- Iterations ---",
		"--- Gravity ---",
		"--- Fetch trace ---",
		"--- Metrics ---",
		"treecache_fetches_sent_total",
	} {
		assert.Contains(t, out, want)
	}
}

func TestPrintReport_CountTable(t *testing.T) {
	cfg := smallConfig()
	cfg.Visitor = VisitorCount
	cfg.Trace = "none"
	res, err := Simulate(context.Background(), cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, PrintReport(&buf, res))
	out := buf.String()
	assert.Contains(t, out, "--- Pair distances ---")
	assert.Contains(t, out, "inf")
	assert.NotContains(t, out, "--- Fetch trace ---")
}

func TestInspectArena(t *testing.T) {
	cfg := smallConfig()

	// GIVEN PE 1's starting view and its cache after a run
	before, err := inspectArena(context.Background(), cfg, 1, false)
	require.NoError(t, err)
	after, err := inspectArena(context.Background(), cfg, 1, true)
	require.NoError(t, err)

	// THEN the run grew the tree with fetched nodes
	if after.Len() <= before.Len() {
		t.Errorf("after-run arena Len() = %d, want more than %d", after.Len(), before.Len())
	}
}

func TestWriteDotFile(t *testing.T) {
	a, err := inspectArena(context.Background(), smallConfig(), 0, false)
	require.NoError(t, err)

	// GIVEN a writable path
	path := filepath.Join(t.TempDir(), "pe0.dot")

	// WHEN the tree is written there
	require.NoError(t, writeDotFile(path, a))

	// THEN the file holds the whole graph
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "digraph tree {"))
	assert.Contains(t, string(body), "}")
}

func TestWriteDotFile_BadPath(t *testing.T) {
	a, err := inspectArena(context.Background(), smallConfig(), 0, false)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "missing", "pe0.dot")
	assert.Error(t, writeDotFile(path, a))
}
