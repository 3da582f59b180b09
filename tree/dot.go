package tree

import (
	"fmt"
	"io"
)

var dotColors = map[Locality]string{
	Invalid:              "firebrick1",
	Internal:             "darkolivegreen1",
	Leaf:                 "darkolivegreen3",
	EmptyLeaf:            "darksalmon",
	Boundary:             "darkkhaki",
	Remote:               "deepskyblue1",
	RemoteLeaf:           "dodgerblue4",
	RemoteEmptyLeaf:      "deeppink",
	RemoteAboveCacheRoot: "lightskyblue",
	CachedRemote:         "gold",
	CachedRemoteLeaf:     "goldenrod",
	CachedBoundary:       "khaki",
}

// WriteDot renders the arena as a Graphviz digraph.
func WriteDot(w io.Writer, a *Arena) error {
	if _, err := fmt.Fprintln(w, "digraph tree {"); err != nil {
		return err
	}
	var err error
	a.Walk(func(_ Ref, n *Node) bool {
		if err != nil {
			return false
		}
		color, ok := dotColors[n.Locality]
		if !ok {
			color = "black"
		}
		_, err = fmt.Fprintf(w, "  %d [label=\"%d, %d\", color=\"%s\", style=\"filled\"];\n",
			uint64(n.Key), uint64(n.Key), n.ParticleCount(), color)
		for _, c := range n.Children {
			if err != nil {
				break
			}
			_, err = fmt.Fprintf(w, "  %d -> %d;\n", uint64(n.Key), uint64(a.nodes[c].Key))
		}
		return true
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, "}")
	return err
}
