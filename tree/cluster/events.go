package cluster

import (
	"sync/atomic"

	"github.com/paratreet/treecache/tree/traverse"
	"github.com/paratreet/treecache/tree/wire"
)

// Global event ID counter for deterministic tie-breaking.
var globalEventID uint64

// Event is one step of the discrete-event runtime.
type Event interface {
	Timestamp() int64
	EventID() uint64
	Type() EventType
	Execute(c *Cluster) error
}

// BaseEvent provides the common event fields.
type BaseEvent struct {
	timestamp int64
	eventID   uint64
	eventType EventType
}

func newBaseEvent(timestamp int64, eventType EventType) BaseEvent {
	return BaseEvent{
		timestamp: timestamp,
		eventID:   atomic.AddUint64(&globalEventID, 1),
		eventType: eventType,
	}
}

func (e *BaseEvent) Timestamp() int64 { return e.timestamp }

func (e *BaseEvent) EventID() uint64 { return e.eventID }

func (e *BaseEvent) Type() EventType { return e.eventType }

// TraversalStartEvent starts one PE's traversal of an iteration.
type TraversalStartEvent struct {
	BaseEvent
	PE        int
	Traversal *traverse.Traversal
}

func NewTraversalStartEvent(timestamp int64, pe int, t *traverse.Traversal) *TraversalStartEvent {
	return &TraversalStartEvent{
		BaseEvent: newBaseEvent(timestamp, EventTypeTraversalStart),
		PE:        pe,
		Traversal: t,
	}
}

func (e *TraversalStartEvent) Execute(c *Cluster) error {
	return c.handleTraversalStart(e)
}

// FetchRequestEvent delivers a fetch request to its owner.
type FetchRequestEvent struct {
	BaseEvent
	Envelope wire.Envelope
}

func NewFetchRequestEvent(timestamp int64, env wire.Envelope) *FetchRequestEvent {
	return &FetchRequestEvent{
		BaseEvent: newBaseEvent(timestamp, EventTypeFetchRequest),
		Envelope:  env,
	}
}

func (e *FetchRequestEvent) Execute(c *Cluster) error {
	return c.handleFetchRequest(e)
}

// FetchReplyEvent delivers a reply to the PE that asked for it.
type FetchReplyEvent struct {
	BaseEvent
	Envelope wire.Envelope
	Bytes    int
}

func NewFetchReplyEvent(timestamp int64, env wire.Envelope, bytes int) *FetchReplyEvent {
	return &FetchReplyEvent{
		BaseEvent: newBaseEvent(timestamp, EventTypeFetchReply),
		Envelope:  env,
		Bytes:     bytes,
	}
}

func (e *FetchReplyEvent) Execute(c *Cluster) error {
	return c.handleFetchReply(e)
}
