package cluster

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paratreet/treecache/tree/trace"
)

// EventType names a kind of simulation event.
type EventType string

const (
	EventTypeFetchReply     EventType = "FetchReply"
	EventTypeFetchRequest   EventType = "FetchRequest"
	EventTypeTraversalStart EventType = "TraversalStart"
)

// EventTypePriority orders simultaneous events. Replies land before new
// requests are served, and both before traversals start.
var EventTypePriority = map[EventType]int{
	EventTypeFetchReply:     1,
	EventTypeFetchRequest:   2,
	EventTypeTraversalStart: 3,
}

// Latency models the link between two PEs, in ticks.
type Latency struct {
	// Base is the one-way delay of every message.
	Base int64 `yaml:"base"`
	// Jitter adds a uniform draw from [0, Jitter] per message.
	Jitter int64 `yaml:"jitter"`
	// Service is the owner's time to build a reply.
	Service int64 `yaml:"service"`
}

// Config parameterizes both runtimes.
type Config struct {
	Seed int64
	// ReplyDepth is how many levels below the requested node an owner ships
	// in full. Deeper children travel as placeholders.
	ReplyDepth      int
	LookupCacheSize int
	Latency         Latency
	// EncodeMessages pushes every message through the CBOR codec.
	EncodeMessages bool
	Trace          *trace.RunTrace
	Registerer     prometheus.Registerer
}

// DefaultReplyDepth ships a node and two levels of descendants.
const DefaultReplyDepth = 2
