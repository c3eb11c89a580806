// Package dag executes a build as a graph of chains.
//
// It is split into:
//   - Immutable graph definition (TaskGraph): chains, their series edges and a
//     stable GraphHash
//   - Mutable execution state (ExecutionState): per-chain runtime status
//
// A parallel composition is a set of chains without edges between them; a
// series composition is a path of edges. The GraphHash is computed from chain
// definitions and canonicalized edges, so it does not depend on the order in
// which chains or edges were declared.
package dag
