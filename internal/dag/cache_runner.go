package dag

import (
	"context"
	"fmt"

	"assetweaver/internal/core"
)

// CacheAwareRunner adapts core.Runner to the graph executor.
//
// core.Runner does the work: resolving inputs, computing the ChainHash,
// replaying cached outputs on a hit, applying units and caching on a miss.
type CacheAwareRunner struct {
	Runner *core.Runner
}

func NewCacheAwareRunner(r *core.Runner) (*CacheAwareRunner, error) {
	if r == nil {
		return nil, fmt.Errorf("nil core runner")
	}
	return &CacheAwareRunner{Runner: r}, nil
}

func (r *CacheAwareRunner) Run(ctx context.Context, chain core.Chain) (*NodeResult, error) {
	res, err := r.Runner.Run(ctx, &chain)
	if err != nil {
		return nil, err
	}
	return toNodeResult(res), nil
}

func (r *CacheAwareRunner) Probe(ctx context.Context, chain core.Chain) (*NodeResult, bool, error) {
	if r == nil || r.Runner == nil {
		return nil, false, fmt.Errorf("nil core runner")
	}
	res, ok, err := r.Runner.Probe(ctx, &chain)
	if err != nil || !ok {
		return nil, false, err
	}
	return toNodeResult(res), true, nil
}

func toNodeResult(res *core.RunResult) *NodeResult {
	return &NodeResult{
		Hash:      res.Hash,
		Outputs:   res.Outputs,
		Changed:   res.Changed,
		FromCache: res.FromCache,
		Err:       res.Err,
	}
}
