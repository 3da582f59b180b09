// Package traverse walks the locally known tree on behalf of local targets,
// suspending a branch at every non-resident node and replaying it once the
// cache has filled the node in.
package traverse

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/paratreet/treecache/tree"
	"github.com/paratreet/treecache/tree/cache"
)

// Store is the part of the partition cache a traversal needs.
type Store interface {
	Node(r tree.Ref) *tree.Node
	Root() tree.Ref
	RequestFetch(ctx cache.Context, owner int) error
}

// Stats counts the work one traversal did.
type Stats struct {
	Opens            int
	NodeInteractions int
	LeafInteractions int
	EmptySkipped     int
	Suspensions      int
	Resumes          int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Opens += o.Opens
	s.NodeInteractions += o.NodeInteractions
	s.LeafInteractions += o.LeafInteractions
	s.EmptySkipped += o.EmptySkipped
	s.Suspensions += o.Suspensions
	s.Resumes += o.Resumes
}

// item is one unit of pending work: walk source for target. Pair items
// belong to dual walks and may descend on both sides.
type item struct {
	source tree.Ref
	target tree.Ref
	pair   bool
}

type frontierKey struct {
	slot int
	key  tree.Key
}

type slotState struct {
	stacked   int
	suspended int
	done      bool
	// Up-and-down only: the ancestor whose subtree has been covered.
	top      tree.Ref
	released bool
}

func (s *slotState) state() State {
	switch {
	case s.done:
		return Done
	case s.stacked > 0:
		return Active
	}
	return Blocked
}

// Traversal is one walk of one mode over a PE's targets. A target slot is
// the arena ref of the target node. Traversals run on the PE's execution
// context and are not safe for concurrent use.
type Traversal struct {
	id      int
	mode    Mode
	store   Store
	visitor Visitor
	cell    CellVisitor
	ascend  Ascender
	self    bool
	targets []tree.Ref

	stack     []item
	slots     map[int]*slotState
	frontier  map[frontierKey]item
	remaining int
	started   bool
	stats     Stats
}

// New creates a traversal. For TopDown and UpAndDown the targets are the
// local bucket leaves; for DualTree they are the owned subtree roots.
func New(id int, mode Mode, store Store, v Visitor, targets []tree.Ref) *Traversal {
	t := &Traversal{
		id:       id,
		mode:     mode,
		store:    store,
		visitor:  v,
		self:     true,
		targets:  targets,
		slots:    make(map[int]*slotState),
		frontier: make(map[frontierKey]item),
	}
	if c, ok := v.(CellVisitor); ok {
		t.cell = c
	}
	if a, ok := v.(Ascender); ok {
		t.ascend = a
	}
	if p, ok := v.(SelfLeafPolicy); ok {
		t.self = p.CallSelfLeaf()
	}
	return t
}

// ID returns the traversal's id.
func (t *Traversal) ID() int { return t.id }

// Mode returns the traversal's mode.
func (t *Traversal) Mode() Mode { return t.mode }

// Stats returns the interaction counters.
func (t *Traversal) Stats() Stats { return t.stats }

// Visitor returns the visitor the traversal drives.
func (t *Traversal) Visitor() Visitor { return t.visitor }

// Done reports whether every target slot has finished.
func (t *Traversal) Done() bool {
	return t.started && t.remaining == 0 && len(t.stack) == 0 && len(t.frontier) == 0
}

// Blocked returns the number of suspended branches.
func (t *Traversal) Blocked() int { return len(t.frontier) }

// SlotState reports the progress of the target at slot.
func (t *Traversal) SlotState(slot tree.Ref) State {
	s, ok := t.slots[int(slot)]
	if !ok {
		if t.started {
			return Done
		}
		return Active
	}
	return s.state()
}

// Start seeds the walk and runs it until every branch is finished or
// suspended.
func (t *Traversal) Start() error {
	if t.started {
		return fmt.Errorf("traversal %d already started", t.id)
	}
	t.started = true
	root := t.store.Root()
	for _, target := range t.targets {
		switch t.mode {
		case TopDown:
			t.push(item{source: root, target: target})
		case UpAndDown:
			t.slot(target).top = target
			t.push(item{source: target, target: target})
		case DualTree:
			t.push(item{source: root, target: target, pair: true})
		default:
			return fmt.Errorf("traversal %d: unknown mode %v", t.id, t.mode)
		}
	}
	return t.run()
}

// Resume replays the branch suspended at ctx.Key for ctx.Slot from node.
func (t *Traversal) Resume(ctx cache.Context, node tree.Ref) error {
	fk := frontierKey{slot: ctx.Slot, key: ctx.Key}
	it, ok := t.frontier[fk]
	if !ok {
		return fmt.Errorf("traversal %d: no branch suspended for %v", t.id, ctx)
	}
	delete(t.frontier, fk)
	t.slot(it.target).suspended--
	t.stats.Resumes++
	it.source = node
	t.push(it)
	return t.run()
}

func (t *Traversal) slot(target tree.Ref) *slotState {
	s, ok := t.slots[int(target)]
	if !ok {
		s = &slotState{top: tree.NoRef}
		t.slots[int(target)] = s
		t.remaining++
	}
	return s
}

func (t *Traversal) push(it item) {
	s := t.slot(it.target)
	if s.done {
		// Dual walks can reach a target again from another source pair.
		s.done = false
		t.remaining++
	}
	s.stacked++
	t.stack = append(t.stack, it)
}

func (t *Traversal) run() error {
	for len(t.stack) > 0 {
		it := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		var err error
		if it.pair {
			err = t.stepPair(it)
		} else {
			err = t.step(it)
		}
		if err != nil {
			return err
		}
		s := t.slot(it.target)
		s.stacked--
		if s.stacked == 0 && s.suspended == 0 && !s.done {
			t.settle(it.target, s)
		}
	}
	return nil
}

// step walks one source node for one target.
func (t *Traversal) step(it item) error {
	n := t.store.Node(it.source)
	target := t.store.Node(it.target)
	switch {
	case n.Locality.IsEmpty():
		t.stats.EmptySkipped++
	case n.Locality.NeedsFetch():
		return t.suspend(it, n)
	case n.Locality.IsLeaf():
		if t.self || n.Key != target.Key {
			t.visitor.Leaf(n, target)
			t.stats.LeafInteractions++
		}
	case len(n.Children) > 0 && t.visitor.Open(n, target):
		t.stats.Opens++
		for i := len(n.Children) - 1; i >= 0; i-- {
			t.push(item{source: n.Children[i], target: it.target})
		}
	default:
		t.visitor.Node(n, target)
		t.stats.NodeInteractions++
	}
	return nil
}

// stepPair walks one (source, target) pair of a dual walk.
func (t *Traversal) stepPair(it item) error {
	src := t.store.Node(it.source)
	tgt := t.store.Node(it.target)
	switch {
	case tgt.Locality.IsEmpty() || src.Locality.IsEmpty():
		t.stats.EmptySkipped++
	case src.Locality.NeedsFetch():
		return t.suspend(it, src)
	case tgt.Locality.IsLeaf():
		t.push(item{source: it.source, target: it.target})
	case src.Locality.IsLeaf():
		t.eachTargetLeaf(it.target, func(leaf *tree.Node) {
			if t.self || src.Key != leaf.Key {
				t.visitor.Leaf(src, leaf)
				t.stats.LeafInteractions++
			}
		})
	case len(src.Children) > 0 && t.openPair(src, tgt):
		t.stats.Opens++
		for i := len(src.Children) - 1; i >= 0; i-- {
			for j := len(tgt.Children) - 1; j >= 0; j-- {
				t.push(item{source: src.Children[i], target: tgt.Children[j], pair: true})
			}
		}
	default:
		t.eachTargetLeaf(it.target, func(leaf *tree.Node) {
			t.visitor.Node(src, leaf)
			t.stats.NodeInteractions++
		})
	}
	return nil
}

func (t *Traversal) openPair(src, tgt *tree.Node) bool {
	if t.cell != nil {
		return t.cell.Cell(src, tgt)
	}
	return t.visitor.Open(src, tgt)
}

// eachTargetLeaf calls fn for every non-empty leaf at or below r. Target
// subtrees are owned, so every node below r is resident.
func (t *Traversal) eachTargetLeaf(r tree.Ref, fn func(*tree.Node)) {
	stack := []tree.Ref{r}
	for len(stack) > 0 {
		n := t.store.Node(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
		switch {
		case n.Locality.IsEmpty():
		case n.Locality.IsLeaf():
			fn(n)
		default:
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, n.Children[i])
			}
		}
	}
}

func (t *Traversal) suspend(it item, n *tree.Node) error {
	fk := frontierKey{slot: int(it.target), key: n.Key}
	if _, dup := t.frontier[fk]; dup {
		return fmt.Errorf("traversal %d: slot %d already suspended at %v", t.id, it.target, n.Key)
	}
	ctx := cache.Context{Traversal: t, Slot: int(it.target), Key: n.Key}
	if err := t.store.RequestFetch(ctx, n.Owner()); err != nil {
		return err
	}
	t.frontier[fk] = it
	t.slot(it.target).suspended++
	t.stats.Suspensions++
	return nil
}

// settle runs when a slot has no stacked or suspended work left. Up-and-down
// slots move their level barrier up; every other slot is finished.
func (t *Traversal) settle(target tree.Ref, s *slotState) {
	root := t.store.Root()
	if t.mode != UpAndDown || s.top == root || s.top == tree.NoRef {
		s.done = true
		t.remaining--
		return
	}
	parent := t.store.Node(s.top).Parent
	if !s.released && t.ascend != nil && !t.ascend.Ascend(t.store.Node(parent), t.store.Node(target)) {
		s.released = true
		logrus.Debugf("traversal %d: slot %d released below %v", t.id, target, t.store.Node(parent).Key)
		for top := s.top; top != root; top = t.store.Node(top).Parent {
			t.pushSiblings(top, target)
		}
		s.top = root
	} else {
		t.pushSiblings(s.top, target)
		s.top = parent
	}
	if s.stacked == 0 {
		t.settle(target, s)
	}
}

func (t *Traversal) pushSiblings(r, target tree.Ref) {
	parent := t.store.Node(t.store.Node(r).Parent)
	for i := len(parent.Children) - 1; i >= 0; i-- {
		if c := parent.Children[i]; c != r {
			t.push(item{source: c, target: target})
		}
	}
}
