package cmd

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/paratreet/treecache/tree/trace"
)

// PrintReport writes the human-readable summary of a run.
func PrintReport(w io.Writer, res *Result) error {
	cfg := res.Config
	fmt.Fprintf(w, "=== Tree Cache Run %s ===\n", res.RunID)
	fmt.Fprintf(w, "Particles            : %d (%s)\n", cfg.Particles, cfg.Distribution)
	fmt.Fprintf(w, "PEs                  : %d, branching %d\n", cfg.PEs, cfg.Branching)
	fmt.Fprintf(w, "Subtrees             : %d, share depth %d\n", len(res.Decomposition.Subtrees()), res.Decomposition.ShareDepth())
	fmt.Fprintf(w, "Walk                 : %s with %s visitor on the %s runtime\n", cfg.Mode, cfg.Visitor, cfg.Runtime)
	fmt.Fprintf(w, "Elapsed              : %v\n\n", res.Elapsed)

	printCacheTable(w, res)
	printIterationTable(w, res)
	if res.Counts != nil {
		printCountTable(w, res)
	} else {
		printGravitySummary(w, res)
	}
	if res.Trace.Enabled() {
		printTraceSummary(w, trace.Summarize(res.Trace))
	}
	return printMetrics(w, res)
}

func printCacheTable(w io.Writer, res *Result) {
	fmt.Fprintln(w, "--- Cache per PE ---")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PE", "Particles", "Buckets", "Lookups", "Misses", "Fetches", "Deduped", "Replies", "Nodes", "Resumed", "Resets", "Freed"})
	var sent, deduped int
	for _, pe := range res.Runtime.PEs() {
		st := pe.Cache.Stats()
		sent += st.FetchesSent
		deduped += st.FetchesDeduped
		table.Append([]string{
			strconv.Itoa(pe.ID),
			strconv.Itoa(len(pe.Particles())),
			strconv.Itoa(len(pe.View.Buckets)),
			strconv.Itoa(st.Lookups),
			strconv.Itoa(st.LookupMisses),
			strconv.Itoa(st.FetchesSent),
			strconv.Itoa(st.FetchesDeduped),
			strconv.Itoa(st.RepliesApplied),
			strconv.Itoa(st.NodesInstalled),
			strconv.Itoa(st.ContextsResumed),
			strconv.Itoa(st.Resets),
			strconv.Itoa(st.NodesFreed),
		})
	}
	table.Render()
	if requested := sent + deduped; requested > 0 {
		fmt.Fprintf(w, "Dedup ratio          : %.2f%% of %d fetch requests\n", 100*float64(deduped)/float64(requested), requested)
	}
	fmt.Fprintln(w)
}

func printIterationTable(w io.Writer, res *Result) {
	fmt.Fprintln(w, "--- Iterations ---")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Iteration", "Opens", "Node", "Leaf", "Empty", "Suspended", "Resumed", "Clock"})
	for i, it := range res.Iterations {
		st := it.Stats()
		table.Append([]string{
			strconv.Itoa(i),
			strconv.Itoa(st.Opens),
			strconv.Itoa(st.NodeInteractions),
			strconv.Itoa(st.LeafInteractions),
			strconv.Itoa(st.EmptySkipped),
			strconv.Itoa(st.Suspensions),
			strconv.Itoa(st.Resumes),
			strconv.FormatInt(it.Clock, 10),
		})
	}
	table.Render()
	fmt.Fprintln(w)
}

func printCountTable(w io.Writer, res *Result) {
	fmt.Fprintln(w, "--- Pair distances ---")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"From", "To", "Pairs"})
	c := res.Counts
	for i, n := range c.Bins {
		table.Append([]string{formatEdge(c.Edges[i]), formatEdge(c.Edges[i+1]), strconv.FormatInt(n, 10)})
	}
	table.Render()
	fmt.Fprintf(w, "Total pairs          : %d of %d\n\n", c.Total(), int64(res.Config.Particles)*int64(res.Config.Particles))
}

func formatEdge(e float64) string {
	if math.IsInf(e, 1) {
		return "inf"
	}
	return strconv.FormatFloat(e, 'g', 4, 64)
}

func printGravitySummary(w io.Writer, res *Result) {
	fmt.Fprintln(w, "--- Gravity ---")
	var sum, peak float64
	n := 0
	for _, pe := range res.Runtime.PEs() {
		for _, p := range pe.Particles() {
			a := math.Sqrt(p.Acceleration.Norm2())
			sum += a
			peak = math.Max(peak, a)
			n++
		}
	}
	if n > 0 {
		fmt.Fprintf(w, "Mean |a|             : %.6g\n", sum/float64(n))
		fmt.Fprintf(w, "Peak |a|             : %.6g\n", peak)
	}
	fmt.Fprintln(w)
}

func printTraceSummary(w io.Writer, s *trace.Summary) {
	fmt.Fprintln(w, "--- Fetch trace ---")
	fmt.Fprintf(w, "Wire requests        : %d\n", s.WireRequests)
	fmt.Fprintf(w, "Replies              : %d\n", s.Replies)
	fmt.Fprintf(w, "Nodes shipped        : %d\n", s.NodesShipped)
	fmt.Fprintf(w, "Particles shipped    : %d\n", s.ParticlesShipped)
	fmt.Fprintf(w, "Bytes shipped        : %d\n", s.BytesShipped)
	fmt.Fprintf(w, "Mean round trip      : %.2f ticks\n", s.MeanRoundTrip)
	fmt.Fprintf(w, "Max round trip       : %d ticks\n", s.MaxRoundTrip)
	fmt.Fprintf(w, "Repeated fetches     : %d\n", s.RepeatedFetches)

	owners := make([]int, 0, len(s.OwnerDistribution))
	for pe := range s.OwnerDistribution {
		owners = append(owners, pe)
	}
	sort.Ints(owners)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Owner", "Requests served"})
	for _, pe := range owners {
		table.Append([]string{strconv.Itoa(pe), strconv.Itoa(s.OwnerDistribution[pe])})
	}
	table.Render()
	fmt.Fprintln(w)
}

// printMetrics sums every registered series across PEs.
func printMetrics(w io.Writer, res *Result) error {
	families, err := res.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	fmt.Fprintln(w, "--- Metrics ---")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Total"})
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
		table.Append([]string{mf.GetName(), strconv.FormatFloat(total, 'f', -1, 64)})
	}
	table.Render()
	return nil
}
