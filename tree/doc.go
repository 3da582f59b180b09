// Package tree holds the locality-tagged tree that every PE keeps: keys,
// nodes and the arena that stores them.
//
// # Reading Guide
//
//   - key.go: path-coded keys and branching-factor arithmetic
//   - locality.go: where a node's data lives relative to the local PE
//   - node.go: Node and its Resident | Placeholder payload
//   - arena.go: index-addressed storage with persistent and transient regions
//   - particle.go: particles and the mass summaries visitors consume
//
// # Architecture
//
// The cache (tree/cache) installs fetched subtrees into an Arena and rolls
// them back on reset. Traversals (tree/traverse) walk the arena by Ref.
// The runtimes in tree/cluster connect PEs by messages.
package tree
