package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paratreet/treecache/tree"
)

func sampleReply() FetchReply {
	leaf := []tree.Particle{{ID: 7, Key: 0b110, Mass: 2, Position: tree.Vec3{X: 1, Y: 2, Z: 3}}}
	return FetchReply{
		Key:     0b11,
		OwnerPE: 1,
		Nodes: []WireNode{
			{Key: 0b11, Depth: 1, ParticleCount: 1, Locality: tree.Internal,
				ChildKeys: []tree.Key{0b110, 0b111}, Owner: 1,
				Summary: tree.SummarizeParticles(leaf)},
			{Key: 0b110, Depth: 2, ParticleCount: 1, Locality: tree.Leaf, Owner: 1,
				Summary: tree.SummarizeParticles(leaf)},
			{Key: 0b111, Depth: 2, Locality: tree.RemoteEmptyLeaf, Owner: 1,
				Summary: tree.SummarizeParticles(nil)},
		},
		Particles: leaf,
	}
}

func TestCodec_ReplyRoundTrip(t *testing.T) {
	c, err := NewCodec()
	require.NoError(t, err)

	in := NewReplyEnvelope(1, 0, sampleReply())
	out, size, err := c.RoundTrip(in)
	require.NoError(t, err)

	assert.Positive(t, size)
	assert.Equal(t, KindFetchReply, out.Kind)
	require.NotNil(t, out.Reply)
	assert.Equal(t, in.Reply.Nodes[0].ChildKeys, out.Reply.Nodes[0].ChildKeys)
	assert.Equal(t, tree.RemoteEmptyLeaf, out.Reply.Nodes[2].Locality)
	assert.True(t, out.Reply.Nodes[2].Summary.Box.Empty(), "empty box survives encoding")
	assert.Equal(t, in.Reply.Particles[0].Position, out.Reply.Particles[0].Position)
}

func TestCodec_Deterministic(t *testing.T) {
	c, err := NewCodec()
	require.NoError(t, err)

	a, err := c.Encode(NewRequestEnvelope(0, 1, FetchRequest{Key: 0b1011, RequesterPE: 0}))
	require.NoError(t, err)
	b, err := c.Encode(NewRequestEnvelope(0, 1, FetchRequest{Key: 0b1011, RequesterPE: 0}))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCodec_RejectsMismatchedPayload(t *testing.T) {
	c, err := NewCodec()
	require.NoError(t, err)

	_, err = c.Encode(Envelope{Kind: KindFetchRequest, From: 2})
	assert.Error(t, err)

	_, err = c.Decode([]byte{0xff})
	assert.Error(t, err)
}

func TestWireNode_IsStub(t *testing.T) {
	assert.True(t, (&WireNode{Locality: tree.Remote}).IsStub())
	assert.False(t, (&WireNode{Locality: tree.Leaf}).IsStub())
}
