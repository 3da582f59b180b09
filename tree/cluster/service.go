package cluster

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/cache"
	"github.com/paratreet/treecache/tree/wire"
)

// RemoteService answers fetch requests for the nodes a PE owns. It reads
// from the PE's decomposition-time tree, never from the cache, so cached
// copies are never forwarded.
type RemoteService struct {
	pe         int
	arena      *tree.Arena
	replyDepth int
	served     int
}

// NewRemoteService serves from arena on behalf of pe.
func NewRemoteService(pe int, arena *tree.Arena, replyDepth int) *RemoteService {
	return &RemoteService{pe: pe, arena: arena, replyDepth: max(0, replyDepth)}
}

// Served returns the number of requests answered.
func (s *RemoteService) Served() int { return s.served }

// Serve builds the reply for req: the requested node and its descendants
// down to the reply depth in full, with the next level as stubs. Canopy
// nodes are shipped alone with stubs for their children.
func (s *RemoteService) Serve(req wire.FetchRequest) (wire.FetchReply, error) {
	r, ok := s.arena.Lookup(req.Key)
	if !ok || !s.arena.Node(r).IsResident() {
		return wire.FetchReply{}, &cache.ProtocolError{
			PE:     s.pe,
			Key:    req.Key,
			Kind:   cache.ErrNotOwner,
			Detail: fmt.Sprintf("requested by PE %d", req.RequesterPE),
		}
	}
	depth := s.replyDepth
	if s.arena.Node(r).Locality == tree.Boundary {
		depth = 0
	}
	reply := wire.FetchReply{Key: req.Key, OwnerPE: s.pe}
	s.appendNode(&reply, r, 0, depth)
	s.served++
	logrus.WithFields(logrus.Fields{"pe": s.pe, "key": req.Key, "requester": req.RequesterPE}).
		Debugf("served %d nodes, %d particles", len(reply.Nodes), len(reply.Particles))
	return reply, nil
}

// stubOf is the placeholder locality a requester gives one of our nodes.
func stubOf(loc tree.Locality) tree.Locality {
	switch loc {
	case tree.Leaf:
		return tree.RemoteLeaf
	case tree.EmptyLeaf:
		return tree.RemoteEmptyLeaf
	case tree.Boundary:
		return tree.RemoteAboveCacheRoot
	}
	return tree.Remote
}

func (s *RemoteService) appendNode(reply *wire.FetchReply, r tree.Ref, rel, depth int) {
	n := s.arena.Node(r)
	rec := wire.WireNode{
		Key:           n.Key,
		Depth:         n.Depth,
		ParticleCount: n.ParticleCount(),
		Summary:       n.Summary(),
	}
	switch {
	case !n.IsResident():
		rec.Locality = n.Locality
		rec.Owner = n.Owner()
		reply.Nodes = append(reply.Nodes, rec)
		return
	case rel > depth:
		rec.Locality = stubOf(n.Locality)
		rec.Owner = s.pe
		reply.Nodes = append(reply.Nodes, rec)
		return
	}
	rec.Locality = n.Locality
	rec.Owner = s.pe
	if ps := n.Particles(); len(ps) > 0 {
		rec.ParticleOffset = len(reply.Particles)
		// append copies, so the requester never aliases our particles.
		reply.Particles = append(reply.Particles, ps...)
	}
	for _, c := range n.Children {
		rec.ChildKeys = append(rec.ChildKeys, s.arena.Node(c).Key)
	}
	reply.Nodes = append(reply.Nodes, rec)
	for _, c := range n.Children {
		s.appendNode(reply, c, rel+1, depth)
	}
}
