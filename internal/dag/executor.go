package dag

import (
	"context"
	"fmt"
	"sync"

	"assetweaver/internal/core"
	"assetweaver/internal/trace"
)

// ChainRunner executes a single chain.
//
// A chain failure is reported through NodeResult.Err. A non-nil error means an
// infrastructure problem (cancellation, an unusable cache) and aborts the
// whole graph.
type ChainRunner interface {
	// Probe checks whether the chain can be satisfied from cache and replays
	// it if so. If cached is true, result must be non-nil.
	Probe(ctx context.Context, chain core.Chain) (result *NodeResult, cached bool, err error)

	Run(ctx context.Context, chain core.Chain) (*NodeResult, error)
}

// NodeObserver is notified when a chain reaches a terminal state. Result is
// nil for SKIPPED chains. Calls are made one at a time from the goroutine
// driving the graph, never while the executor holds its lock.
type NodeObserver interface {
	OnChainTerminal(name string, state ChainState, result *NodeResult)
}

// Executor executes a TaskGraph once.
type Executor struct {
	Graph    *TaskGraph
	Runner   ChainRunner
	Observer NodeObserver

	mu       sync.Mutex
	state    ExecutionState
	recorder *trace.Recorder
}

// NewExecutor creates an executor with all nodes initialized to PENDING.
func NewExecutor(g *TaskGraph, runner ChainRunner) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}

	state := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		state[n.Name] = ChainPending
	}

	return &Executor{Graph: g, Runner: runner, state: state, recorder: trace.NewRecorder()}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make(ExecutionState, len(e.state))
	for k, v := range e.state {
		cp[k] = v
	}
	return cp
}

// terminal is a pending observer notification.
type terminal struct {
	name   string
	state  ChainState
	result *NodeResult
}

// run bookkeeping shared by RunSerial and RunParallel. Fields are guarded by
// e.mu.
type runLog struct {
	order   []string
	results map[string]*NodeResult
	notify  []terminal
}

func newRunLog(n int) *runLog {
	return &runLog{order: make([]string, 0, n), results: make(map[string]*NodeResult, n)}
}

// commitCached moves a probed chain to CACHED. Caller holds e.mu.
func (e *Executor) commitCached(log *runLog, name string, res *NodeResult) error {
	if err := Transition(e.state, name, ChainPending, ChainCached); err != nil {
		return err
	}
	log.results[name] = res
	trace.SafeRecord(e.recorder, trace.TraceEvent{Kind: trace.EventChainCached, Chain: name, Reason: trace.ReasonCacheHit})
	if len(res.Changed) > 0 {
		trace.SafeRecord(e.recorder, trace.TraceEvent{Kind: trace.EventOutputsRestored, Chain: name, Outputs: res.Changed})
	}
	log.notify = append(log.notify, terminal{name: name, state: ChainCached, result: res})
	return nil
}

// commitFinished moves a RUNNING chain to COMPLETED or FAILED, skipping its
// dependents on failure. Caller holds e.mu.
func (e *Executor) commitFinished(log *runLog, name string, res *NodeResult) error {
	log.results[name] = res

	if !res.Failed() {
		if err := Transition(e.state, name, ChainRunning, ChainCompleted); err != nil {
			return err
		}
		reason := trace.ReasonCacheMiss
		switch {
		case res.FromCache:
			reason = trace.ReasonCacheHit
		case !e.Graph.nodesByName[name].Chain.Cacheable():
			reason = trace.ReasonNotCacheable
		}
		trace.SafeRecord(e.recorder, trace.TraceEvent{Kind: trace.EventChainExecuted, Chain: name, Reason: reason})
		log.notify = append(log.notify, terminal{name: name, state: ChainCompleted, result: res})
		return nil
	}

	skipped, err := FailAndPropagate(e.Graph, e.state, name)
	if err != nil {
		return err
	}
	trace.SafeRecord(e.recorder, trace.TraceEvent{Kind: trace.EventChainFailed, Chain: name, Reason: trace.ReasonUnitFailed})
	log.notify = append(log.notify, terminal{name: name, state: ChainFailed, result: res})
	for _, s := range skipped {
		trace.SafeRecord(e.recorder, trace.TraceEvent{Kind: trace.EventChainSkipped, Chain: s, Reason: trace.ReasonUpstreamFailed, Cause: name})
		log.notify = append(log.notify, terminal{name: s, state: ChainSkipped})
	}
	return nil
}

// flush delivers pending notifications. Caller must not hold e.mu.
func (e *Executor) flush(log *runLog) {
	e.mu.Lock()
	pending := log.notify
	log.notify = nil
	e.mu.Unlock()

	if e.Observer == nil {
		return
	}
	for _, t := range pending {
		e.Observer.OnChainTerminal(t.name, t.state, t.result)
	}
}

func (e *Executor) finish(log *runLog) (*GraphResult, error) {
	e.flush(log)
	graphHash := e.Graph.Hash()
	tr := e.recorder.Trace(graphHash.String())
	traceHash, err := tr.Hash()
	if err != nil {
		return nil, fmt.Errorf("hashing trace: %w", err)
	}
	return &GraphResult{
		GraphHash:      graphHash,
		FinalState:     e.StateSnapshot(),
		ExecutionOrder: log.order,
		Results:        log.results,
		Trace:          tr,
		TraceHash:      traceHash,
	}, nil
}

// RunSerial executes one chain at a time.
//
// The next chain is always the first entry of ReadyChains, so the order is
// (depth, name). A failed chain skips its dependents; independent chains keep
// running.
func (e *Executor) RunSerial(ctx context.Context) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := newRunLog(len(e.Graph.nodes))

	for {
		e.flush(log)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution cancelled: %w", err)
		}

		e.mu.Lock()
		ready := ReadyChains(e.Graph, e.state)

		if len(ready) == 0 {
			allTerminal := true
			for _, st := range e.state {
				if !IsTerminal(st) {
					allTerminal = false
					break
				}
			}
			e.mu.Unlock()

			if allTerminal {
				return e.finish(log)
			}
			return nil, fmt.Errorf("no ready chains but graph not finished")
		}

		next := ready[0]
		chain := e.Graph.nodesByName[next].Chain

		probeRes, cached, err := e.Runner.Probe(ctx, chain)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("probing cache for %q: %w", next, err)
		}
		if cached {
			if probeRes == nil {
				e.mu.Unlock()
				return nil, fmt.Errorf("probing cache for %q: nil result", next)
			}
			err := e.commitCached(log, next, probeRes)
			e.mu.Unlock()
			if err != nil {
				return nil, err
			}
			continue
		}

		if err := Transition(e.state, next, ChainPending, ChainRunning); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		log.order = append(log.order, next)
		e.mu.Unlock()

		runRes, err := e.Runner.Run(ctx, chain)
		if err != nil {
			return nil, fmt.Errorf("executing %q: %w", next, err)
		}
		if runRes == nil {
			return nil, fmt.Errorf("executing %q: nil result", next)
		}

		e.mu.Lock()
		err = e.commitFinished(log, next, runRes)
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
}

type workItem struct {
	name  string
	chain core.Chain
}

type workResult struct {
	name   string
	result *NodeResult
	err    error
}

// RunParallel executes the graph with up to concurrency workers.
//
// Whenever a worker slot is free, the first entry of ReadyChains is started,
// so a chain waits only on its own predecessors. ExecutionOrder is reported in
// (depth, name) order and the trace is canonical, so both match RunSerial for
// any worker count. Chain work happens outside the lock.
func (e *Executor) RunParallel(ctx context.Context, concurrency int) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0")
	}

	// At most concurrency items are in flight, so neither channel blocks.
	workCh := make(chan workItem, concurrency)
	doneCh := make(chan workResult, concurrency)

	var wg sync.WaitGroup
	var stopOnce sync.Once
	stopWorkers := func() {
		stopOnce.Do(func() {
			close(workCh)
			wg.Wait()
		})
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				res, err := e.Runner.Run(ctx, w.chain)
				doneCh <- workResult{name: w.name, result: res, err: err}
			}
		}()
	}

	log := newRunLog(len(e.Graph.nodes))
	inFlight := 0

	// abort stops the workers without waiting on in-flight results: doneCh is
	// buffered to the worker count, so no worker blocks forever.
	abort := func(err error) (*GraphResult, error) {
		stopWorkers()
		return nil, err
	}

	for {
		e.mu.Lock()
		for inFlight < concurrency {
			ready := ReadyChains(e.Graph, e.state)
			if len(ready) == 0 {
				break
			}
			name := ready[0]
			chain := e.Graph.nodesByName[name].Chain

			res, cached, err := e.Runner.Probe(ctx, chain)
			if err != nil {
				e.mu.Unlock()
				return abort(fmt.Errorf("probing cache for %q: %w", name, err))
			}
			if cached {
				if res == nil {
					e.mu.Unlock()
					return abort(fmt.Errorf("probing cache for %q: nil result", name))
				}
				if err := e.commitCached(log, name, res); err != nil {
					e.mu.Unlock()
					return abort(err)
				}
				continue
			}

			if err := Transition(e.state, name, ChainPending, ChainRunning); err != nil {
				e.mu.Unlock()
				return abort(err)
			}
			log.order = append(log.order, name)
			inFlight++
			workCh <- workItem{name: name, chain: chain}
		}

		idle := inFlight == 0
		allTerminal := true
		if idle {
			for _, st := range e.state {
				if !IsTerminal(st) {
					allTerminal = false
					break
				}
			}
		}
		e.mu.Unlock()
		e.flush(log)

		if idle {
			if !allTerminal {
				return abort(fmt.Errorf("no ready chains but graph not finished"))
			}
			break
		}

		select {
		case <-ctx.Done():
			return abort(fmt.Errorf("execution cancelled: %w", ctx.Err()))
		case r := <-doneCh:
			if r.err != nil {
				return abort(fmt.Errorf("executing %q: %w", r.name, r.err))
			}
			if r.result == nil {
				return abort(fmt.Errorf("executing %q: nil result", r.name))
			}

			e.mu.Lock()
			if cur := e.state[r.name]; cur != ChainRunning {
				e.mu.Unlock()
				return abort(fmt.Errorf("completion for %q but state is %s", r.name, cur))
			}
			err := e.commitFinished(log, r.name, r.result)
			inFlight--
			e.mu.Unlock()
			if err != nil {
				return abort(err)
			}
		}
	}

	stopWorkers()
	sortByDepth(e.Graph, log.order)
	return e.finish(log)
}
