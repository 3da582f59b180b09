package cache

import (
	"errors"
	"fmt"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/wire"
)

// parsedNode is a validated reply record with its expanded children.
type parsedNode struct {
	rec      *wire.WireNode
	children []*parsedNode
}

// parseReply rebuilds the shape of a reply and checks it against its own
// declarations before anything touches the arena. With pes > 0 every stub
// owner must name one of the PEs [0, pes).
func parseReply(b tree.Branching, pes int, reply wire.FetchReply) (*parsedNode, error) {
	if len(reply.Nodes) == 0 {
		return nil, errors.New("reply has no nodes")
	}
	pos, leafParticles := 0, 0
	root, err := parseNode(b, pes, reply, &pos, reply.Key, &leafParticles)
	if err != nil {
		return nil, err
	}
	if root.rec.IsStub() {
		return nil, fmt.Errorf("requested node sent as %v stub", root.rec.Locality)
	}
	if pos != len(reply.Nodes) {
		return nil, fmt.Errorf("%d trailing records after subtree", len(reply.Nodes)-pos)
	}
	if leafParticles != len(reply.Particles) {
		return nil, fmt.Errorf("leaves hold %d particles, reply carries %d", leafParticles, len(reply.Particles))
	}
	return root, nil
}

func parseNode(b tree.Branching, pes int, reply wire.FetchReply, pos *int, want tree.Key, leafParticles *int) (*parsedNode, error) {
	if *pos >= len(reply.Nodes) {
		return nil, fmt.Errorf("reply truncated before %v", want)
	}
	rec := &reply.Nodes[*pos]
	*pos++
	if rec.Key != want {
		return nil, fmt.Errorf("record %v where %v was expected", rec.Key, want)
	}
	if rec.Depth != b.Depth(rec.Key) {
		return nil, fmt.Errorf("node %v declares depth %d", rec.Key, rec.Depth)
	}
	if rec.ParticleCount < 0 {
		return nil, fmt.Errorf("node %v declares %d particles", rec.Key, rec.ParticleCount)
	}
	if rec.Locality != tree.Internal && rec.Locality != tree.Boundary && len(rec.ChildKeys) != 0 {
		return nil, fmt.Errorf("%v node %v lists children", rec.Locality, rec.Key)
	}

	n := &parsedNode{rec: rec}
	switch rec.Locality {
	case tree.Internal, tree.Boundary:
		if len(rec.ChildKeys) != int(b) {
			return nil, fmt.Errorf("node %v lists %d children, want %d", rec.Key, len(rec.ChildKeys), b)
		}
		sum := 0
		for i, ck := range rec.ChildKeys {
			if ck != b.Child(rec.Key, i) {
				return nil, fmt.Errorf("child %d of %v has key %v", i, rec.Key, ck)
			}
			child, err := parseNode(b, pes, reply, pos, ck, leafParticles)
			if err != nil {
				return nil, err
			}
			sum += child.rec.ParticleCount
			n.children = append(n.children, child)
		}
		if sum != rec.ParticleCount {
			return nil, fmt.Errorf("node %v declares %d particles, children hold %d", rec.Key, rec.ParticleCount, sum)
		}
	case tree.Leaf, tree.EmptyLeaf:
		if rec.Locality == tree.EmptyLeaf && rec.ParticleCount != 0 {
			return nil, fmt.Errorf("empty leaf %v declares %d particles", rec.Key, rec.ParticleCount)
		}
		if rec.ParticleCount > 0 {
			end := rec.ParticleOffset + rec.ParticleCount
			if rec.ParticleOffset < 0 || end > len(reply.Particles) {
				return nil, fmt.Errorf("leaf %v particles [%d,%d) outside reply of %d",
					rec.Key, rec.ParticleOffset, end, len(reply.Particles))
			}
			*leafParticles += rec.ParticleCount
		}
	case tree.Remote, tree.RemoteLeaf, tree.RemoteAboveCacheRoot, tree.RemoteEmptyLeaf:
		if rec.Locality == tree.RemoteEmptyLeaf && rec.ParticleCount != 0 {
			return nil, fmt.Errorf("empty stub %v declares %d particles", rec.Key, rec.ParticleCount)
		}
		if rec.Owner < 0 {
			return nil, fmt.Errorf("stub %v has no owner", rec.Key)
		}
		if pes > 0 && rec.Owner >= pes {
			return nil, fmt.Errorf("stub %v owned by PE %d of %d", rec.Key, rec.Owner, pes)
		}
	default:
		return nil, fmt.Errorf("node %v has locality %v", rec.Key, rec.Locality)
	}
	return n, nil
}

// install writes a parsed reply into the arena. The root takes over the
// placeholder slot; everything else is appended. It returns the refs of
// all installed nodes, root first.
func (c *PartitionCache) install(slot tree.Ref, root *parsedNode, particles []tree.Particle) []tree.Ref {
	installed := []tree.Ref{slot}
	c.arena.Overwrite(slot, cachedNode(root.rec, particles))
	c.installChildren(slot, root, particles, &installed)
	return installed
}

func (c *PartitionCache) installChildren(parent tree.Ref, p *parsedNode, particles []tree.Particle, installed *[]tree.Ref) {
	if len(p.children) == 0 {
		return
	}
	refs := make([]tree.Ref, len(p.children))
	for i, child := range p.children {
		refs[i] = c.arena.Add(cachedNode(child.rec, particles))
		*installed = append(*installed, refs[i])
	}
	c.arena.SetChildren(parent, refs)
	for i, child := range p.children {
		c.installChildren(refs[i], child, particles, installed)
	}
}

// cachedNode retags an owner's record for the receiving PE.
func cachedNode(rec *wire.WireNode, particles []tree.Particle) tree.Node {
	res := tree.Resident{ParticleCount: rec.ParticleCount, Summary: rec.Summary}
	switch rec.Locality {
	case tree.Boundary:
		return tree.NewResidentNode(rec.Key, rec.Depth, tree.CachedBoundary, res)
	case tree.Internal:
		return tree.NewResidentNode(rec.Key, rec.Depth, tree.CachedRemote, res)
	case tree.Leaf:
		if rec.ParticleCount == 0 {
			return tree.NewResidentNode(rec.Key, rec.Depth, tree.EmptyLeaf, res)
		}
		end := rec.ParticleOffset + rec.ParticleCount
		res.Particles = particles[rec.ParticleOffset:end:end]
		return tree.NewResidentNode(rec.Key, rec.Depth, tree.CachedRemoteLeaf, res)
	case tree.EmptyLeaf:
		return tree.NewResidentNode(rec.Key, rec.Depth, tree.EmptyLeaf, res)
	}
	return tree.NewPlaceholderNode(rec.Key, rec.Depth, rec.Locality, rec.Owner, rec.ParticleCount)
}
