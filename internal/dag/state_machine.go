package dag

import (
	"container/heap"
	"fmt"
)

// IsTerminal reports whether the state is terminal (finished).
func IsTerminal(s ChainState) bool {
	switch s {
	case ChainCompleted, ChainFailed, ChainSkipped, ChainCached:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the state satisfies dependents.
func IsSuccessful(s ChainState) bool {
	switch s {
	case ChainCompleted, ChainCached:
		return true
	default:
		return false
	}
}

// Transition performs a validated transition for a single chain.
//
// The caller supplies the expected prior state so races are observable. The
// state map is mutated if and only if the transition is valid.
func Transition(state ExecutionState, name string, from, to ChainState) error {
	cur, ok := state[name]
	if !ok {
		return fmt.Errorf("unknown chain in state: %q", name)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	state[name] = to
	return nil
}

func isAllowedTransition(from, to ChainState) bool {
	switch from {
	case ChainPending:
		return to == ChainRunning || to == ChainCached || to == ChainSkipped
	case ChainRunning:
		return to == ChainCompleted || to == ChainFailed
	default:
		return false
	}
}

// FailAndPropagate moves name from RUNNING to FAILED and transitively marks
// every pending dependent SKIPPED. It returns the newly skipped chains in
// canonical index order.
//
// A dependent that is already RUNNING is an invariant violation: it means a
// chain was started before its predecessor finished.
func FailAndPropagate(g *TaskGraph, state ExecutionState, name string) ([]string, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	node, ok := g.nodesByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown chain: %q", name)
	}

	cur, ok := state[name]
	if !ok {
		return nil, fmt.Errorf("unknown chain in state: %q", name)
	}
	if cur != ChainRunning && cur != ChainFailed {
		return nil, fmt.Errorf("cannot fail %q from state %s", name, cur)
	}
	if cur == ChainRunning {
		state[name] = ChainFailed
	}

	start := node.canonicalIndex
	visited := make([]bool, len(g.nodes))
	visited[start] = true

	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	var skipped []string
	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		dep := g.nodes[u].Name
		st, ok := state[dep]
		if !ok {
			return skipped, fmt.Errorf("missing state for %q", dep)
		}

		switch st {
		case ChainPending:
			state[dep] = ChainSkipped
			skipped = append(skipped, dep)
		case ChainRunning:
			return skipped, fmt.Errorf("invariant violation: downstream chain %q is RUNNING during failure propagation", dep)
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}

	return skipped, nil
}
