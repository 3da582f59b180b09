// Package trace records the fetch traffic of a run for later analysis.
// It stores plain data and depends on nothing else in the module.
package trace

// FetchRecord is one fetch request put on the wire.
type FetchRecord struct {
	Iteration   int
	Clock       int64
	RequesterPE int
	OwnerPE     int
	Key         uint64
	// Bytes is the encoded size, zero when messages are not encoded.
	Bytes int
}

// ReplyRecord is one fetch reply applied by its requester.
type ReplyRecord struct {
	Iteration   int
	Clock       int64
	RequesterPE int
	OwnerPE     int
	Key         uint64
	Nodes       int
	Particles   int
	Bytes       int
	// RoundTrip is the time between sending the request and applying the reply.
	RoundTrip int64
}
