// Package core runs asset chains.
//
// A chain reads a set of source files, passes them through an ordered list of
// transform units and writes the result under a destination directory. Every
// chain run follows the same flow:
//
//  1. Resolve source globs to a sorted AssetSet (content is read, metadata is not)
//  2. Compute the ChainHash from the chain definition and the resolved inputs
//  3. On a cache hit, replay the cached outputs and stop
//  4. Apply the units in order, write the outputs, cache them
//
// # Core Types
//
// Chain: one asset-class pipeline (sources, units, destination).
// Asset: one file in flight, addressed relative to its glob base.
// CacheEntry: the outputs of the last successful run of a ChainHash.
package core
