package epi

import (
	"fmt"
	"hash/fnv"

	"golang.org/x/exp/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible stochastic run.
// Two runs with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemTransition is the RNG subsystem for the daily Poisson
	// new-infection draws.
	SubsystemTransition = "transition"

	// SubsystemInflow is the RNG subsystem for external-inflow draws.
	// Only consumed when the inflow variant is simulated, so enabling or
	// disabling inflow never perturbs the transition stream.
	SubsystemInflow = "inflow"

	// SubsystemDeaths is the RNG subsystem for the Binomial death draws.
	SubsystemDeaths = "deaths"

	// SubsystemObservation is the RNG subsystem for the Binomial
	// case-observation draws.
	SubsystemObservation = "observation"

	// SubsystemInitialState is the RNG subsystem for sampling day-0
	// pipeline bins from their Poisson prior.
	SubsystemInitialState = "initial_state"
)

// SubsystemChain returns the subsystem name for sampler chain N.
// Each MCMC chain owns an isolated stream derived from the master seed.
func SubsystemChain(id int) string {
	return fmt.Sprintf("chain_%d", id)
}

// SubsystemReplicate returns the subsystem name for independent forward
// replicate N (prior predictive runs).
func SubsystemReplicate(id int) string {
	return fmt.Sprintf("replicate_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName). Each subsystem
// stream is therefore a pure function of (master seed, name), and draws on
// one stream never advance another.
//
// Thread-safety: NOT thread-safe. Concurrent consumers (replicates, chains)
// must each own their own PartitionedRNG.
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

	derivedSeed := uint64(p.key) ^ fnv1a64(name)
	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Derive returns a fresh PartitionedRNG whose key is derived from this
// one's key and the given name. Concurrent consumers (forward replicates,
// sampler chains) each take a derived instance so their subsystem streams
// stay isolated and reproducible.
func (p *PartitionedRNG) Derive(name string) *PartitionedRNG {
	return NewPartitionedRNG(SimulationKey(uint64(p.key) ^ fnv1a64(name)))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
