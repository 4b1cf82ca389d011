// Package sim provides the core kinetic Monte Carlo coalescence engine.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - triangle.go: LowerTriangle, the flat pair-weight store with a maintained
//     total and inverse-CDF search
//   - propensity.go: initial pair propensities from a softmax over scaled
//     feature distances (softmax.go holds the log-sum-exp)
//   - engine.go: the Gillespie step (time advance, event selection) and the
//     cluster merge transition
//
// # Architecture
//
// The sim package holds the single-realization core; drivers live in
// sub-packages:
//   - sim/ensemble/: independent realizations run in parallel
//   - sim/sink/: CSV and SQLite persistence of features and events
//   - sim/trace/: event trace recording and summary statistics
//
// # Key Interfaces
//
//   - RandomSource: uniform draws consumed by the engine (*rand.Rand fits)
//   - FeatureSource: produces the agents' initial feature vectors
package sim
