package cache

import (
	"fmt"
	"sort"

	"github.com/paratreet/treecache/tree"
)

// Resumable is a traversal that can continue a suspended branch.
type Resumable interface {
	// Resume continues the branch ctx from node, which is now resident.
	Resume(ctx Context, node tree.Ref) error
}

// Context identifies one suspended branch: a traversal, the local target
// slot it works for, and the key it waits on.
type Context struct {
	Traversal Resumable
	Slot      int
	Key       tree.Key
}

func (c Context) String() string {
	return fmt.Sprintf("slot %d at %v", c.Slot, c.Key)
}

// Resumer parks suspended contexts by key until the cache fires them.
type Resumer struct {
	waiting map[tree.Key][]Context
	known   map[Context]struct{}
}

// NewResumer creates an empty resumer.
func NewResumer() *Resumer {
	return &Resumer{
		waiting: make(map[tree.Key][]Context),
		known:   make(map[Context]struct{}),
	}
}

// Await parks ctx under ctx.Key. A context waits in at most one place.
func (r *Resumer) Await(ctx Context) error {
	if _, dup := r.known[ctx]; dup {
		return fmt.Errorf("%w: %v", ErrDuplicateWait, ctx)
	}
	r.known[ctx] = struct{}{}
	r.waiting[ctx.Key] = append(r.waiting[ctx.Key], ctx)
	return nil
}

// Fire removes and returns every context waiting on key, in arrival order.
func (r *Resumer) Fire(key tree.Key) []Context {
	ctxs, ok := r.waiting[key]
	if !ok {
		return nil
	}
	delete(r.waiting, key)
	for _, c := range ctxs {
		delete(r.known, c)
	}
	return ctxs
}

// Waiting returns how many contexts wait on key.
func (r *Resumer) Waiting(key tree.Key) int {
	return len(r.waiting[key])
}

// Len returns the total number of parked contexts.
func (r *Resumer) Len() int {
	return len(r.known)
}

// Keys returns the keys with waiters in ascending order.
func (r *Resumer) Keys() []tree.Key {
	keys := make([]tree.Key, 0, len(r.waiting))
	for k := range r.waiting {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
