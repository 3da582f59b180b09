package cluster

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// PartitionedRNG hands out isolated, seeded random streams so that adding a
// consumer never perturbs the draws of another.
type PartitionedRNG struct {
	masterSeed int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a partitioned RNG for masterSeed.
func NewPartitionedRNG(masterSeed int64) *PartitionedRNG {
	return &PartitionedRNG{
		masterSeed: masterSeed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the stream for name, creating it on first use.
// Repeated calls with the same name return the same stream.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.deriveSeed(name)))
	p.subsystems[name] = rng
	return rng
}

// ForLink returns the jitter stream of the directed link from -> to.
func (p *PartitionedRNG) ForLink(from, to int) *rand.Rand {
	return p.ForSubsystem(fmt.Sprintf("link_%d_%d", from, to))
}

// deriveSeed is masterSeed XOR fnv64a(name), independent of call order.
func (p *PartitionedRNG) deriveSeed(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return p.masterSeed ^ int64(h.Sum64())
}

// Subsystem names.
const (
	SubsystemParticles = "particles"
)
