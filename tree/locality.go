package tree

import "fmt"

// Locality tags a node with where its data lives relative to the local PE.
type Locality uint8

const (
	Invalid Locality = iota

	// Resident: ancestor of, or inside, a subtree this PE owns.
	Internal
	Leaf
	EmptyLeaf
	Boundary

	// Placeholders: the subtree exists elsewhere and no data is resident.
	Remote
	RemoteLeaf
	RemoteEmptyLeaf
	RemoteAboveCacheRoot

	// Fetched copies of remote data, freed by the next cache reset.
	CachedRemote
	CachedRemoteLeaf
	CachedBoundary
)

var localityNames = map[Locality]string{
	Invalid:              "Invalid",
	Internal:             "Internal",
	Leaf:                 "Leaf",
	EmptyLeaf:            "EmptyLeaf",
	Boundary:             "Boundary",
	Remote:               "Remote",
	RemoteLeaf:           "RemoteLeaf",
	RemoteEmptyLeaf:      "RemoteEmptyLeaf",
	RemoteAboveCacheRoot: "RemoteAboveCacheRoot",
	CachedRemote:         "CachedRemote",
	CachedRemoteLeaf:     "CachedRemoteLeaf",
	CachedBoundary:       "CachedBoundary",
}

func (l Locality) String() string {
	if name, ok := localityNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Locality(%d)", uint8(l))
}

// IsResident reports whether a node tagged l carries data on this PE.
func IsResident(l Locality) bool {
	switch l {
	case Internal, Leaf, EmptyLeaf, Boundary, CachedRemote, CachedRemoteLeaf, CachedBoundary:
		return true
	}
	return false
}

// IsPlaceholder reports whether l marks a stub without data.
func (l Locality) IsPlaceholder() bool {
	switch l {
	case Remote, RemoteLeaf, RemoteEmptyLeaf, RemoteAboveCacheRoot:
		return true
	}
	return false
}

// IsCached reports whether l marks a fetched copy.
func (l Locality) IsCached() bool {
	return l == CachedRemote || l == CachedRemoteLeaf || l == CachedBoundary
}

// IsLeaf reports whether l marks a resident leaf, empty or not.
func (l Locality) IsLeaf() bool {
	return l == Leaf || l == EmptyLeaf || l == CachedRemoteLeaf
}

// IsEmpty reports whether l marks a subtree known to hold no particles.
func (l Locality) IsEmpty() bool {
	return l == EmptyLeaf || l == RemoteEmptyLeaf
}

// NeedsFetch reports whether reaching a node tagged l requires a remote fetch.
// RemoteEmptyLeaf does not: there is nothing to fetch.
func (l Locality) NeedsFetch() bool {
	return l == Remote || l == RemoteLeaf || l == RemoteAboveCacheRoot
}
