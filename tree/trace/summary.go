package trace

// Summary aggregates a RunTrace.
type Summary struct {
	WireRequests     int
	Replies          int
	NodesShipped     int
	ParticlesShipped int
	BytesShipped     int
	MeanRoundTrip    float64
	MaxRoundTrip     int64
	// RepeatedFetches counts requests for a key the same PE already fetched
	// in the same iteration. Anything above zero means dedup failed.
	RepeatedFetches int
	// OwnerDistribution maps owner PE to the requests it served.
	OwnerDistribution map[int]int
}

type fetchID struct {
	iteration int
	pe        int
	key       uint64
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces.
func Summarize(rt *RunTrace) *Summary {
	s := &Summary{OwnerDistribution: make(map[int]int)}
	if rt == nil {
		return s
	}

	s.WireRequests = len(rt.Fetches)
	seen := make(map[fetchID]bool, len(rt.Fetches))
	for _, f := range rt.Fetches {
		id := fetchID{iteration: f.Iteration, pe: f.RequesterPE, key: f.Key}
		if seen[id] {
			s.RepeatedFetches++
		}
		seen[id] = true
		s.OwnerDistribution[f.OwnerPE]++
		s.BytesShipped += f.Bytes
	}

	s.Replies = len(rt.Replies)
	if s.Replies > 0 {
		var total int64
		for _, r := range rt.Replies {
			s.NodesShipped += r.Nodes
			s.ParticlesShipped += r.Particles
			s.BytesShipped += r.Bytes
			total += r.RoundTrip
			if r.RoundTrip > s.MaxRoundTrip {
				s.MaxRoundTrip = r.RoundTrip
			}
		}
		s.MeanRoundTrip = float64(total) / float64(s.Replies)
	}
	return s
}
