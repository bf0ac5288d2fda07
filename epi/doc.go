// Package epi provides the core age-structured epidemic state-space model.
//
// # Reading Guide
//
// Start with these three files to understand the model kernel:
//   - state.go: the infection-age pipeline (AgeStructuredState), trajectories,
//     parameters, and observed series
//   - simulator.go: the forward stochastic simulation (Simulate) and run summaries
//   - modelspec.go: the declarative probabilistic twin of the simulator
//     (priors, per-day conditionals, joint log-density)
//
// # Architecture
//
// The epi package defines the model and the sampler boundary; backends live in
// sub-packages:
//   - epi/mcmc/: default random-walk Metropolis backend for the Sampler interface
//
// The simulator and the model spec must stay mathematically consistent: every
// stochastic draw in Simulate has a matching conditional node in
// ModelSpec.Nodes, and LogJoint evaluates exactly those conditionals. The
// LatentStateInitializer (initializer.go) bridges the two by deriving a
// feasible SeedSpec from a simulated trajectory, and the InferenceDriver
// (driver.go) validates data/seed/spec agreement before handing off to a
// Sampler.
//
// # Key Interfaces
//
//   - Sampler: accepts a model spec, observed data, and a seed; returns
//     posterior chains. The MCMC engine is deliberately behind this boundary
//     so backends can be swapped without changing the statistical model.
//
// All randomness flows through PartitionedRNG (rng.go): one master seed,
// isolated per-subsystem streams, bit-identical runs for identical seeds.
package epi
