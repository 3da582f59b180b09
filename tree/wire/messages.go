// Package wire defines the messages PEs exchange and their CBOR encoding.
package wire

import (
	"fmt"

	"github.com/paratreet/treecache/tree"
)

// FetchRequest asks the owner of Key for the subtree rooted there.
type FetchRequest struct {
	Key         tree.Key `cbor:"1,keyasint"`
	RequesterPE int      `cbor:"2,keyasint"`
}

// WireNode is a pointer-free node record. Nodes of a reply are listed in
// depth-first preorder starting with the requested key.
type WireNode struct {
	Key           tree.Key      `cbor:"1,keyasint"`
	Depth         int           `cbor:"2,keyasint"`
	ParticleCount int           `cbor:"3,keyasint"`
	Locality      tree.Locality `cbor:"4,keyasint"`
	// ChildKeys is empty for leaves and for frontier stubs.
	ChildKeys []tree.Key `cbor:"5,keyasint,omitempty"`
	// Owner is the PE that serves this node when fetched.
	Owner   int          `cbor:"6,keyasint"`
	Summary tree.Summary `cbor:"7,keyasint"`
	// ParticleOffset indexes FetchReply.Particles for non-empty leaves.
	ParticleOffset int `cbor:"8,keyasint,omitempty"`
}

// IsStub reports whether the record stands for an unexpanded subtree.
func (n *WireNode) IsStub() bool {
	return n.Locality.IsPlaceholder()
}

// FetchReply carries the subtree rooted at Key.
type FetchReply struct {
	Key       tree.Key        `cbor:"1,keyasint"`
	OwnerPE   int             `cbor:"2,keyasint"`
	Nodes     []WireNode      `cbor:"3,keyasint"`
	Particles []tree.Particle `cbor:"4,keyasint,omitempty"`
}

// Kind discriminates the payload of an Envelope.
type Kind uint8

const (
	KindFetchRequest Kind = iota + 1
	KindFetchReply
)

func (k Kind) String() string {
	switch k {
	case KindFetchRequest:
		return "FetchRequest"
	case KindFetchReply:
		return "FetchReply"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Envelope addresses one message between PEs.
type Envelope struct {
	Kind    Kind          `cbor:"1,keyasint"`
	From    int           `cbor:"2,keyasint"`
	To      int           `cbor:"3,keyasint"`
	Request *FetchRequest `cbor:"4,keyasint,omitempty"`
	Reply   *FetchReply   `cbor:"5,keyasint,omitempty"`
}

// NewRequestEnvelope wraps a request from one PE to another.
func NewRequestEnvelope(from, to int, req FetchRequest) Envelope {
	return Envelope{Kind: KindFetchRequest, From: from, To: to, Request: &req}
}

// NewReplyEnvelope wraps a reply from one PE to another.
func NewReplyEnvelope(from, to int, rep FetchReply) Envelope {
	return Envelope{Kind: KindFetchReply, From: from, To: to, Reply: &rep}
}

// Validate checks that the envelope's payload matches its kind.
func (e Envelope) Validate() error {
	switch e.Kind {
	case KindFetchRequest:
		if e.Request == nil || e.Reply != nil {
			return fmt.Errorf("envelope %v from PE %d: payload does not match kind", e.Kind, e.From)
		}
	case KindFetchReply:
		if e.Reply == nil || e.Request != nil {
			return fmt.Errorf("envelope %v from PE %d: payload does not match kind", e.Kind, e.From)
		}
	default:
		return fmt.Errorf("envelope from PE %d: unknown kind %v", e.From, e.Kind)
	}
	return nil
}
