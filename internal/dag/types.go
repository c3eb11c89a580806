package dag

import "assetweaver/internal/core"

// GraphHash is the deterministic identity of a TaskGraph, computed from chain
// definitions and dependency structure only.
type GraphHash string

// ChainDefHash identifies a chain definition (sources, dest, units). It is
// distinct from core.ChainHash, which also covers input file contents.
type ChainDefHash string

// Edge is a series dependency: To starts only after From has written its
// outputs successfully.
type Edge struct {
	From string
	To   string
}

// ChainNode is an immutable node in the TaskGraph.
type ChainNode struct {
	Name           string
	Chain          core.Chain
	DefinitionHash ChainDefHash
	canonicalIndex int
}

// CanonicalIndex returns the node's position in the graph's canonical ordering.
func (n *ChainNode) CanonicalIndex() int { return n.canonicalIndex }

func (h GraphHash) String() string { return string(h) }

func (h ChainDefHash) String() string { return string(h) }
