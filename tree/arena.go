package tree

import "fmt"

// Arena stores the nodes one PE knows about. Nodes refer to each other by
// Ref, so growing the arena never invalidates links. A *Node returned by
// Node is valid until the next Add.
//
// Everything added before Mark is persistent. Later additions and overwrites
// of persistent slots are undone by Rollback.
type Arena struct {
	branching Branching
	nodes     []Node
	root      Ref
	mark      int
	undo      []undoEntry
}

type undoEntry struct {
	ref  Ref
	node Node
}

// NewArena creates an empty arena for the given branching factor.
func NewArena(b Branching) *Arena {
	if !b.Valid() {
		panic(fmt.Sprintf("tree: unsupported branching factor %d", b))
	}
	return &Arena{branching: b, root: NoRef}
}

// Branching returns the arena's branching factor.
func (a *Arena) Branching() Branching { return a.branching }

// Len returns the number of live slots.
func (a *Arena) Len() int { return len(a.nodes) }

// Root returns the ref of the global root, or NoRef if none was set.
func (a *Arena) Root() Ref { return a.root }

// SetRoot designates r as the global root.
func (a *Arena) SetRoot(r Ref) { a.root = r }

// Node returns the node at r. Panics on an out-of-range ref.
func (a *Arena) Node(r Ref) *Node {
	if r < 0 || int(r) >= len(a.nodes) {
		panic(fmt.Sprintf("tree: ref %d out of range [0,%d)", r, len(a.nodes)))
	}
	return &a.nodes[r]
}

// Add appends n and returns its ref.
func (a *Arena) Add(n Node) Ref {
	a.nodes = append(a.nodes, n)
	return Ref(len(a.nodes) - 1)
}

// SetChildren links children under parent in child-index order.
func (a *Arena) SetChildren(parent Ref, children []Ref) {
	if len(children) != int(a.branching) {
		panic(fmt.Sprintf("tree: node %v given %d children, want %d",
			a.Node(parent).Key, len(children), a.branching))
	}
	for _, c := range children {
		a.nodes[c].Parent = parent
	}
	a.nodes[parent].Children = children
}

// Overwrite replaces the node at r with n, keeping r's parent link. The
// previous content of a persistent slot is restored by Rollback.
func (a *Arena) Overwrite(r Ref, n Node) {
	old := *a.Node(r)
	if int(r) < a.mark {
		a.undo = append(a.undo, undoEntry{ref: r, node: old})
	}
	n.Parent = old.Parent
	a.nodes[r] = n
}

// Mark makes every node currently in the arena persistent.
func (a *Arena) Mark() {
	a.mark = len(a.nodes)
	a.undo = a.undo[:0]
}

// Persistent returns the number of persistent slots.
func (a *Arena) Persistent() int { return a.mark }

// Rollback frees everything added since Mark and restores overwritten
// persistent slots. It returns the number of slots freed.
func (a *Arena) Rollback() int {
	for i := len(a.undo) - 1; i >= 0; i-- {
		u := a.undo[i]
		a.nodes[u.ref] = u.node
	}
	a.undo = a.undo[:0]
	freed := len(a.nodes) - a.mark
	for i := a.mark; i < len(a.nodes); i++ {
		a.nodes[i] = Node{}
	}
	a.nodes = a.nodes[:a.mark]
	return freed
}

// Find walks down from the node at from to the node with key, using the
// base-B digits of key below from's key. It fails when the path leaves the
// locally known tree or key is not below from.
func (a *Arena) Find(from Ref, key Key) (Ref, bool) {
	if from == NoRef {
		return NoRef, false
	}
	digits, ok := a.branching.Digits(a.Node(from).Key, key)
	if !ok {
		return NoRef, false
	}
	cur := from
	for _, d := range digits {
		n := &a.nodes[cur]
		if len(n.Children) == 0 {
			return NoRef, false
		}
		cur = n.Children[d]
	}
	return cur, true
}

// Lookup finds key starting from the root.
func (a *Arena) Lookup(key Key) (Ref, bool) {
	return a.Find(a.root, key)
}

// Deepest returns the deepest known node on the path from the root to key.
func (a *Arena) Deepest(key Key) Ref {
	if a.root == NoRef {
		return NoRef
	}
	digits, ok := a.branching.Digits(a.nodes[a.root].Key, key)
	if !ok {
		return NoRef
	}
	cur := a.root
	for _, d := range digits {
		n := &a.nodes[cur]
		if len(n.Children) == 0 {
			break
		}
		cur = n.Children[d]
	}
	return cur
}

// Walk visits every node reachable from the root in depth-first preorder.
// Returning false from fn skips that node's children.
func (a *Arena) Walk(fn func(Ref, *Node) bool) {
	if a.root == NoRef {
		return
	}
	stack := []Ref{a.root}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &a.nodes[r]
		if !fn(r, n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// KeyCounts returns how many reachable nodes carry each key.
func (a *Arena) KeyCounts() map[Key]int {
	counts := make(map[Key]int)
	a.Walk(func(_ Ref, n *Node) bool {
		counts[n.Key]++
		return true
	})
	return counts
}

// CheckShape verifies parent links, child keys and depths below r. It is
// meant for tests and the inspect command.
func (a *Arena) CheckShape() error {
	var err error
	a.Walk(func(r Ref, n *Node) bool {
		if err != nil {
			return false
		}
		if n.Depth != a.branching.Depth(n.Key) {
			err = fmt.Errorf("node %v at depth %d, want %d", n.Key, n.Depth, a.branching.Depth(n.Key))
			return false
		}
		if len(n.Children) != 0 && len(n.Children) != int(a.branching) {
			err = fmt.Errorf("node %v has %d children", n.Key, len(n.Children))
			return false
		}
		for i, c := range n.Children {
			child := &a.nodes[c]
			if child.Parent != r {
				err = fmt.Errorf("child %v of %v has parent ref %d, want %d", child.Key, n.Key, child.Parent, r)
				return false
			}
			if child.Key != a.branching.Child(n.Key, i) {
				err = fmt.Errorf("child %d of %v has key %v", i, n.Key, child.Key)
				return false
			}
		}
		return true
	})
	return err
}
