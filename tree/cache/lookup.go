package cache

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"github.com/paratreet/treecache/tree"
)

// lookupCache remembers key -> slot for recently found resident nodes so
// repeated lookups skip the descent from the root. Entries are only ever
// resident slots, which do not move until reset.
type lookupCache struct {
	lru *freelru.LRU[tree.Key, tree.Ref]
}

func hashKey(k tree.Key) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(k))
	return uint32(xxhash.Sum64(b[:]))
}

func newLookupCache(size int) (*lookupCache, error) {
	if size <= 0 {
		return nil, nil
	}
	lru, err := freelru.New[tree.Key, tree.Ref](uint32(size), hashKey)
	if err != nil {
		return nil, fmt.Errorf("creating lookup cache of size %d: %w", size, err)
	}
	return &lookupCache{lru: lru}, nil
}

func (l *lookupCache) get(k tree.Key) (tree.Ref, bool) {
	if l == nil {
		return tree.NoRef, false
	}
	return l.lru.Get(k)
}

func (l *lookupCache) add(k tree.Key, r tree.Ref) {
	if l == nil {
		return
	}
	l.lru.Add(k, r)
}

func (l *lookupCache) purge() {
	if l == nil {
		return
	}
	l.lru.Purge()
}

func (l *lookupCache) len() int {
	if l == nil {
		return 0
	}
	return l.lru.Len()
}
