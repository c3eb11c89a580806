package dag

import (
	"sort"
)

// ReadyChains returns the chains eligible to start, in deterministic order.
//
// A chain is ready iff it is PENDING and all its predecessors are COMPLETED or
// CACHED. The list is sorted by (topological depth, name). It does not mutate
// the graph or the state.
func ReadyChains(g *TaskGraph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	ready := make([]string, 0)
	for _, node := range g.nodes {
		st, ok := state[node.Name]
		if !ok || st != ChainPending {
			continue
		}

		depsOK := true
		for _, parentIdx := range g.incoming[node.canonicalIndex] {
			if !IsSuccessful(state[g.nodes[parentIdx].Name]) {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, node.Name)
		}
	}

	sortByDepth(g, ready)
	return ready
}

// sortByDepth orders names by (topological depth, name) in place.
func sortByDepth(g *TaskGraph, names []string) {
	sort.Slice(names, func(i, j int) bool {
		a, b := names[i], names[j]
		ad, _ := g.Depth(a)
		bd, _ := g.Depth(b)
		if ad != bd {
			return ad < bd
		}
		return a < b
	})
}
