package dag

import (
	"sort"

	"assetweaver/internal/core"
	"assetweaver/internal/trace"
)

// NodeResult is the outcome of running or replaying one chain.
type NodeResult struct {
	Hash core.ChainHash

	// Outputs are the project-relative paths the chain produced.
	Outputs []string

	// Changed are the outputs whose content changed on disk.
	Changed []string

	FromCache bool

	// Err is non-nil when the chain failed.
	Err error
}

// Failed reports whether the chain failed.
func (r *NodeResult) Failed() bool { return r != nil && r.Err != nil }

// GraphResult summarizes one execution of a graph.
type GraphResult struct {
	GraphHash GraphHash

	// FinalState is the terminal state of each chain.
	FinalState ExecutionState

	// ExecutionOrder lists the chains that were started (moved to RUNNING),
	// in (depth, name) order. Cached and skipped chains are not started.
	ExecutionOrder []string

	// Results holds the result of every chain that ran or was replayed.
	Results map[string]*NodeResult

	// Trace is the canonical decision trace; TraceHash is its digest.
	Trace     trace.ExecutionTrace
	TraceHash string
}

// Failed returns the names of failed chains, sorted.
func (r *GraphResult) Failed() []string {
	if r == nil {
		return nil
	}
	var out []string
	for name, st := range r.FinalState {
		if st == ChainFailed {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Succeeded reports whether every chain completed or was cached.
func (r *GraphResult) Succeeded() bool {
	if r == nil {
		return false
	}
	for _, st := range r.FinalState {
		if !IsSuccessful(st) {
			return false
		}
	}
	return true
}

// Changed returns every output that changed on disk during the run, sorted.
func (r *GraphResult) Changed() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, res := range r.Results {
		if res != nil {
			out = append(out, res.Changed...)
		}
	}
	sort.Strings(out)
	return out
}
