package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"assetweaver/internal/logging"
)

// Runner executes chains with change detection.
//
// The execution flow:
//  1. Delete the chain's Remove paths
//  2. Resolve sources and compute the ChainHash
//  3. Cache hit: replay the outputs and return
//  4. Cache miss: apply the units, write the outputs, cache them
//
// A unit failure is a build failure, reported in RunResult.Err. The returned
// error is reserved for infrastructure problems (cancellation, an invalid
// chain definition) that should stop the whole build.
type Runner struct {
	// WorkingDir is the project root.
	WorkingDir string

	// Cache stores and retrieves chain outputs.
	Cache Cache

	// Resolver expands source patterns to files.
	Resolver *InputResolver

	// Hasher computes chain hashes.
	Hasher *ChainHasher

	// Replayer restores cached outputs.
	Replayer *Replayer

	Logger *zap.Logger
}

// NewRunner creates a Runner with the given project root and cache.
func NewRunner(workingDir string, cache Cache) *Runner {
	if cache == nil {
		cache = NopCache{}
	}
	return &Runner{
		WorkingDir: workingDir,
		Cache:      cache,
		Resolver:   NewInputResolver(workingDir),
		Hasher:     NewChainHasher(),
		Replayer:   NewReplayer(workingDir),
		Logger:     zap.NewNop(),
	}
}

// RunResult is the outcome of one chain run.
type RunResult struct {
	Hash ChainHash

	// Outputs are the project-relative paths the chain produced, sorted.
	Outputs []string

	// Changed are the outputs whose content changed on disk during this run.
	Changed []string

	// FromCache indicates the outputs were replayed from cache.
	FromCache bool

	// Removed lists the paths deleted by the chain's Remove step.
	Removed []string

	// Err is non-nil when the chain failed. It is always a *ChainError.
	Err error
}

// Failed reports whether the chain failed.
func (r *RunResult) Failed() bool { return r != nil && r.Err != nil }

// Probe reports whether the chain can be satisfied from cache and, if so,
// replays it. Chains with Remove paths never probe as cached.
func (r *Runner) Probe(ctx context.Context, chain *Chain) (*RunResult, bool, error) {
	if err := chain.validate(); err != nil {
		return nil, false, err
	}
	if !chain.Cacheable() {
		return nil, false, nil
	}

	inputs, err := r.Resolver.Resolve(chain.Sources)
	if err != nil {
		// Resolution problems surface as a chain failure when the chain runs.
		return nil, false, nil
	}
	if chain.Required && inputs.Len() == 0 {
		return nil, false, nil
	}

	hash := r.Hasher.ComputeHash(HashInput{Chain: chain, Inputs: inputs})
	res, ok, err := r.replayFromCache(chain, hash)
	if err != nil {
		return nil, false, err
	}
	return res, ok, nil
}

// Run executes the chain or replays it from cache.
func (r *Runner) Run(ctx context.Context, chain *Chain) (*RunResult, error) {
	if err := chain.validate(); err != nil {
		return nil, err
	}
	log := logging.Chain(r.logger(), chain.Name)

	res := &RunResult{}
	fail := func(unit string, err error) (*RunResult, error) {
		res.Err = &ChainError{Chain: chain.Name, Unit: unit, Err: err}
		return res, nil
	}

	removed, err := r.removePaths(chain.Remove)
	res.Removed = removed
	if err != nil {
		return fail("remove", err)
	}
	if len(chain.Sources) == 0 {
		return res, nil
	}

	inputs, err := r.Resolver.Resolve(chain.Sources)
	if err != nil {
		return fail("", fmt.Errorf("resolving inputs: %w", err))
	}
	if chain.Required && inputs.Len() == 0 {
		return fail("", fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(chain.Sources, ", ")))
	}

	hash := r.Hasher.ComputeHash(HashInput{Chain: chain, Inputs: inputs})
	res.Hash = hash

	if chain.Cacheable() {
		cached, ok, err := r.replayFromCache(chain, hash)
		if err != nil {
			return nil, err
		}
		if ok {
			cached.Removed = removed
			return cached, nil
		}
	}

	log.Debug("Applying units", zap.Int("inputs", inputs.Len()), zap.Int("units", len(chain.Units)))
	set := inputs
	for _, u := range chain.Units {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("chain %q cancelled: %w", chain.Name, err)
		}
		out, err := u.Apply(ctx, set)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("chain %q cancelled: %w", chain.Name, ctxErr)
			}
			return fail(u.Name(), err)
		}
		if out == nil {
			out = &AssetSet{}
		}
		set = out
	}

	entry, changed, err := r.writeOutputs(chain, set)
	res.Outputs = entryPaths(entry)
	res.Changed = changed
	if err != nil {
		return fail("write", err)
	}
	entry.Hash = hash

	if chain.Cacheable() {
		if err := r.Cache.Put(entry); err != nil {
			// The outputs are on disk; a missing cache entry only costs a rebuild.
			log.Warn("Caching chain outputs failed", zap.Error(err))
		}
	}
	return res, nil
}

func (r *Runner) replayFromCache(chain *Chain, hash ChainHash) (*RunResult, bool, error) {
	exists, err := r.Cache.Has(hash)
	if err != nil {
		return nil, false, fmt.Errorf("checking cache: %w", err)
	}
	if !exists {
		return nil, false, nil
	}

	entry, err := r.Cache.Get(hash)
	if err != nil {
		return nil, false, fmt.Errorf("retrieving cache entry: %w", err)
	}
	if entry == nil {
		// Evicted between Has and Get; treat as a miss.
		return nil, false, nil
	}

	replayed, err := r.Replayer.Replay(entry)
	if err != nil {
		return nil, false, fmt.Errorf("replaying cached outputs: %w", err)
	}

	res := &RunResult{
		Hash:      hash,
		Outputs:   replayed.Outputs,
		FromCache: true,
	}
	if len(replayed.Restored) > 0 {
		logging.Chain(r.logger(), chain.Name).Debug("Restored outputs from cache", zap.Int("restored", len(replayed.Restored)))
		res.Changed = replayed.Restored
	}
	return res, true, nil
}

// writeOutputs writes the final asset set and builds the cache entry.
func (r *Runner) writeOutputs(chain *Chain, set *AssetSet) (*CacheEntry, []string, error) {
	entry := &CacheEntry{Chain: chain.Name}
	byPath := make(map[string]int, set.Len())
	for _, a := range set.Assets {
		out := a.OutputPath(chain.Dest)
		if prev, dup := byPath[out]; dup {
			return entry, nil, fmt.Errorf("two assets map to output %q (%s, %s)",
				out, set.Assets[prev].Path, a.Path)
		}
		byPath[out] = len(entry.Outputs)
		entry.Outputs = append(entry.Outputs, CachedOutput{Path: out, Content: a.Content})
	}
	sort.Slice(entry.Outputs, func(i, j int) bool { return entry.Outputs[i].Path < entry.Outputs[j].Path })

	var changed []string
	for _, o := range entry.Outputs {
		written, err := writeIfChanged(r.WorkingDir, o.Path, o.Content)
		if err != nil {
			return entry, changed, fmt.Errorf("writing %q: %w", o.Path, err)
		}
		if written {
			changed = append(changed, o.Path)
		}
	}
	return entry, changed, nil
}

// removePaths deletes the given project-relative paths. Missing paths are
// not an error.
func (r *Runner) removePaths(paths []string) ([]string, error) {
	var removed []string
	for _, p := range paths {
		target, err := targetPath(r.WorkingDir, p)
		if err != nil {
			return removed, err
		}
		if target == filepath.Clean(r.WorkingDir) {
			return removed, fmt.Errorf("refusing to remove the project root")
		}
		if _, err := os.Lstat(target); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("stat %q: %w", p, err)
		}
		if err := os.RemoveAll(target); err != nil {
			return removed, fmt.Errorf("removing %q: %w", p, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func entryPaths(entry *CacheEntry) []string {
	if entry == nil {
		return nil
	}
	out := make([]string, len(entry.Outputs))
	for i, o := range entry.Outputs {
		out[i] = o.Path
	}
	return out
}
