package state

import (
	"context"
	"errors"
	"sync"

	"assetweaver/internal/dag"
)

// RunRecorder records one run into a Store. It implements dag.NodeObserver
// so chain outcomes are written as they become terminal.
type RunRecorder struct {
	store *Store
	ctx   context.Context
	run   Run

	mu   sync.Mutex
	errs []error
}

// BeginRun starts a run in the store and returns a recorder bound to it.
func BeginRun(ctx context.Context, store *Store, task string, mode ExecutionMode, graphHash string) (*RunRecorder, error) {
	if store == nil {
		return nil, errors.New("state: store is required")
	}
	run, err := store.StartRun(ctx, task, mode, graphHash)
	if err != nil {
		return nil, err
	}
	return &RunRecorder{store: store, ctx: context.WithoutCancel(ctx), run: run}, nil
}

// Run returns the run as it was started.
func (r *RunRecorder) Run() Run { return r.run }

func (r *RunRecorder) OnChainTerminal(name string, st dag.ChainState, result *dag.NodeResult) {
	rec := ChainRecord{RunID: r.run.ID, Chain: name, State: string(st)}
	if result != nil {
		rec.Hash = result.Hash.String()
		rec.FromCache = result.FromCache
		rec.Changed = len(result.Changed)
		if result.Err != nil {
			rec.Error = result.Err.Error()
		}
	}
	if err := r.store.RecordChain(r.ctx, rec); err != nil {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	}
}

// Finish closes the run. runErr is the error that aborted the build, if any;
// otherwise the run failed when result reports a failed chain.
//
// Errors from recording individual chains are returned here.
func (r *RunRecorder) Finish(result *dag.GraphResult, runErr error) error {
	status := RunSucceeded
	var failure *Failure

	switch {
	case runErr != nil:
		status = RunAborted
		f, err := FailureFromError(runErr)
		if err != nil {
			return err
		}
		failure = &f
	case result != nil && !result.Succeeded():
		status = RunFailed
		failure = firstChainFailure(result)
	}

	err := r.store.FinishRun(r.ctx, r.run.ID, status, failure)

	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(append(r.errs, err)...)
}

func firstChainFailure(result *dag.GraphResult) *Failure {
	for _, name := range result.Failed() {
		res := result.Results[name]
		if res == nil || res.Err == nil {
			continue
		}
		f, err := FailureFromError(res.Err)
		if err != nil {
			continue
		}
		if f.Chain == "" {
			f.Chain = name
		}
		return &f
	}
	return &Failure{Class: FailureClassChain, Code: "ChainFailed", Message: "one or more chains failed"}
}
