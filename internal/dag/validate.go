package dag

import (
	"container/heap"
)

// validateAcyclic rejects cycles using Kahn's algorithm. A cyclic series
// composition could never start, so it is reported with one witness path.
func (g *TaskGraph) validateAcyclic() error {
	order := g.topoOrderIndices()
	if len(order) == len(g.nodes) {
		return nil
	}
	return cycleError(g.cycleWitness(order))
}

// intMinHeap is the ready queue of the topological sort, by canonical index.
type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// topoOrderIndices releases chains in canonical-index order once all their
// predecessors are released. On a cyclic graph the result is short: chains on
// or behind a cycle are never released.
func (g *TaskGraph) topoOrderIndices() []int {
	waiting := append([]int(nil), g.indeg...)

	ready := &intMinHeap{}
	for i, n := range waiting {
		if n == 0 {
			*ready = append(*ready, i)
		}
	}
	heap.Init(ready)

	order := make([]int, 0, len(waiting))
	for ready.Len() > 0 {
		next := heap.Pop(ready).(int)
		order = append(order, next)
		for _, succ := range g.outgoing[next] {
			if waiting[succ]--; waiting[succ] == 0 {
				heap.Push(ready, succ)
			}
		}
	}
	return order
}

// cycleWitness returns one closed cycle (first name == last name) among the
// chains missing from a partial topological order, rotated to start at its
// lowest name.
//
// Every unreleased chain has an unreleased predecessor, so walking backwards
// from the lowest unreleased index, always through the lowest unreleased
// predecessor, must revisit a chain. The revisited stretch is the cycle.
func (g *TaskGraph) cycleWitness(released []int) []string {
	done := make([]bool, len(g.nodes))
	for _, idx := range released {
		done[idx] = true
	}

	start := -1
	for i := range done {
		if !done[i] {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	seenAt := map[int]int{}
	var walk []int
	cur := start
	for {
		if pos, ok := seenAt[cur]; ok {
			walk = append(walk[pos:], cur)
			break
		}
		seenAt[cur] = len(walk)
		walk = append(walk, cur)

		pred := -1
		for _, p := range g.incoming[cur] { // sorted ascending
			if !done[p] {
				pred = p
				break
			}
		}
		if pred < 0 {
			return nil
		}
		cur = pred
	}

	// The walk follows edges backwards; report them in dependency order,
	// starting from the lowest name.
	loop := make([]string, len(walk)-1)
	for i, idx := range walk[:len(walk)-1] {
		loop[len(loop)-1-i] = g.nodes[idx].Name
	}
	first := 0
	for i, name := range loop {
		if name < loop[first] {
			first = i
		}
	}
	names := append(append([]string{}, loop[first:]...), loop[:first]...)
	return append(names, names[0])
}
