package cluster

import "container/heap"

// EventHeap holds the undelivered messages and traversal starts of a run.
// Ordering: delivery time, then type priority, then event ID. Two runs with
// the same seed deliver in the same order.
type EventHeap struct {
	queue []Event
	// inFlight counts queued events per type
	inFlight map[EventType]int
}

// NewEventHeap creates an empty event heap.
func NewEventHeap() *EventHeap {
	h := &EventHeap{inFlight: make(map[EventType]int)}
	heap.Init(h)
	return h
}

// Len implements heap.Interface.
func (h *EventHeap) Len() int {
	return len(h.queue)
}

// Less implements heap.Interface.
func (h *EventHeap) Less(i, j int) bool {
	ei, ej := h.queue[i], h.queue[j]

	// Primary: delivery time
	if ei.Timestamp() != ej.Timestamp() {
		return ei.Timestamp() < ej.Timestamp()
	}

	// Secondary: a reply arriving at t resumes its waiters before a request
	// arriving at t is served
	if pi, pj := EventTypePriority[ei.Type()], EventTypePriority[ej.Type()]; pi != pj {
		return pi < pj
	}

	// Tertiary: scheduling order
	return ei.EventID() < ej.EventID()
}

// Swap implements heap.Interface.
func (h *EventHeap) Swap(i, j int) {
	h.queue[i], h.queue[j] = h.queue[j], h.queue[i]
}

// Push implements heap.Interface.
func (h *EventHeap) Push(x any) {
	e := x.(Event)
	h.queue = append(h.queue, e)
	h.inFlight[e.Type()]++
}

// Pop implements heap.Interface.
func (h *EventHeap) Pop() any {
	n := len(h.queue)
	e := h.queue[n-1]
	h.queue[n-1] = nil
	h.queue = h.queue[:n-1]
	h.inFlight[e.Type()]--
	return e
}

// Schedule queues an event for delivery at its timestamp.
func (h *EventHeap) Schedule(e Event) {
	heap.Push(h, e)
}

// PopNext removes and returns the next event to deliver, or nil when the
// run is quiet.
func (h *EventHeap) PopNext() Event {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(Event)
}

// InFlight returns how many events of type t are queued.
func (h *EventHeap) InFlight(t EventType) int {
	return h.inFlight[t]
}
