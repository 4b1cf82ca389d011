package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// RandomSource is the randomness capability an engine consumes.
// *rand.Rand satisfies it.
//
// Draws must be strictly sequential: a RandomSource is owned by exactly one
// engine at a time and is never shared across goroutines.
type RandomSource interface {
	Float64() float64 // uniform in [0, 1)
	Intn(n int) int   // uniform in [0, n)
}

// === SimulationKey ===

// SimulationKey identifies a reproducible ensemble of realizations.
// Two runs with the same SimulationKey and identical configuration draw
// identical random streams for every realization.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemFeatures is the stream for noise-based feature seeds shared by
	// all realizations of an ensemble.
	SubsystemFeatures = "features"

	// SubsystemRunIDs is the stream realization run identifiers are drawn from.
	SubsystemRunIDs = "run_ids"
)

// SubsystemRealization returns the subsystem name for realization i.
func SubsystemRealization(i int) string {
	return fmt.Sprintf("realization_%d", i)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName). Streams are
// independent of the order in which they are requested, so realization i
// always sees the same draws no matter how many workers run the ensemble.
//
// Thread-safety: NOT thread-safe. Derive every stream from one goroutine,
// then hand each *rand.Rand to exactly one engine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.SeedFor(name)))
	p.subsystems[name] = rng
	return rng
}

// ForRealization returns the stream owned by realization i.
func (p *PartitionedRNG) ForRealization(i int) *rand.Rand {
	return p.ForSubsystem(SubsystemRealization(i))
}

// SeedFor returns the derived seed of the named subsystem without creating
// or advancing its stream.
func (p *PartitionedRNG) SeedFor(name string) int64 {
	return int64(p.key) ^ fnv1a64(name)
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
