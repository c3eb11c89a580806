package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"assetweaver/internal/config"
	"assetweaver/internal/core"
	"assetweaver/internal/dag"
	"assetweaver/internal/iconfont"
	"assetweaver/internal/lint"
	"assetweaver/internal/state"
	"assetweaver/internal/transform"
)

// ErrUnknownTask is returned for a task name the configuration does not
// define.
var ErrUnknownTask = errors.New("unknown task")

// Options configure a Pipeline. Zero values select the real
// implementations.
type Options struct {
	// Root is the project root. Empty means the current directory.
	Root string

	Logger *zap.Logger

	// Cache defaults to a FileCache under the configured cache directory.
	Cache core.Cache

	// Store records build history. Nil disables recording.
	Store *state.Store

	// Report receives the lint report. Nil discards it.
	Report io.Writer

	Transpiler    transform.Transpiler
	IconGenerator iconfont.Generator
	Linter        lint.Linter

	// Observers are notified of every terminal chain, after logging and
	// history recording.
	Observers []dag.NodeObserver
}

// Pipeline runs named tasks of one project.
type Pipeline struct {
	cfg    *config.Config
	root   string
	logger *zap.Logger
	cache  core.Cache
	store  *state.Store

	chains    map[string]core.Chain
	tasks     map[string]Task
	observers []dag.NodeObserver

	sass *transform.DartSass
}

// New assembles the chains and tasks of cfg.
func New(cfg *config.Config, opts Options) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	root := opts.Root
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg,
		root:      root,
		logger:    opts.Logger,
		cache:     opts.Cache,
		store:     opts.Store,
		observers: opts.Observers,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.cache == nil {
		p.cache = core.NewFileCache(filepath.Join(root, cfg.CacheDir))
	}

	exec := core.NewExecutor(root)
	env := core.PassthroughEnv(cfg.Tools.EnvPassthrough)

	deps := Deps{
		Root:          root,
		Transpiler:    opts.Transpiler,
		IconGenerator: opts.IconGenerator,
		IconCommandID: cfg.Icons.Command,
		Linter:        opts.Linter,
		LinterID:      cfg.Lint.Command,
		LintReport:    opts.Report,
	}
	if deps.Transpiler == nil {
		p.sass = transform.NewDartSass(cfg.Styles.SassBinary)
		deps.Transpiler = p.sass
	}
	if deps.IconGenerator == nil {
		gen, err := iconfont.NewCommandGenerator(cfg.Icons.Command, exec, env)
		if err != nil {
			return nil, err
		}
		deps.IconGenerator = gen
	}
	if deps.Linter == nil {
		deps.Linter = &lint.Stylelint{Command: cfg.Lint.Command, Executor: exec, Env: env}
	}

	p.chains, err = BuildChains(cfg, deps)
	if err != nil {
		return nil, err
	}
	p.tasks = Tasks(cfg)
	return p, nil
}

// Close stops the Dart Sass process if one was started.
func (p *Pipeline) Close() error {
	return p.sass.Close()
}

// Root returns the absolute project root.
func (p *Pipeline) Root() string { return p.root }

// Tasks returns the named tasks.
func (p *Pipeline) Tasks() map[string]Task { return p.tasks }

// Chain returns the chain definition by name.
func (p *Pipeline) Chain(name string) (core.Chain, bool) {
	c, ok := p.chains[name]
	return c, ok
}

// Graph compiles a task into its chain graph.
func (p *Pipeline) Graph(task Task) (*dag.TaskGraph, error) {
	names, edges, err := task.Step.Compile()
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", task.Name, err)
	}
	chains := make([]core.Chain, 0, len(names))
	for _, n := range names {
		c, ok := p.chains[n]
		if !ok {
			return nil, fmt.Errorf("task %q: chain %q is not enabled", task.Name, n)
		}
		chains = append(chains, c)
	}
	return dag.NewTaskGraph(chains, edges)
}

// Run executes the named task.
//
// A chain failure is reported in the result, not as an error; siblings keep
// running and series dependents are skipped. The error is reserved for
// problems that stop the whole task: an unknown task, an invalid graph,
// cancellation or cache corruption.
func (p *Pipeline) Run(ctx context.Context, name string) (*dag.GraphResult, error) {
	task, ok := p.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTask, name)
	}
	log := p.logger.With(zap.String("task", name))

	graph, err := p.Graph(task)
	if err != nil {
		return nil, err
	}

	cache := p.cache
	if task.Mode == state.ExecutionModeClean {
		cache = core.NopCache{}
	}
	runner := core.NewRunner(p.root, cache)
	runner.Logger = p.logger

	cacheRunner, err := dag.NewCacheAwareRunner(runner)
	if err != nil {
		return nil, err
	}
	executor, err := dag.NewExecutor(graph, cacheRunner)
	if err != nil {
		return nil, err
	}

	observers := append([]dag.NodeObserver{&logObserver{logger: log}}, p.observers...)
	var recorder *state.RunRecorder
	if p.store != nil {
		recorder, err = state.BeginRun(ctx, p.store, name, task.Mode, graph.Hash().String())
		if err != nil {
			log.Warn("Recording build history failed", zap.Error(err))
		} else {
			observers = append(observers, recorder)
		}
	}
	executor.Observer = multiObserver(observers)

	log.Info("Starting task", zap.String("steps", task.Step.String()))
	start := time.Now()
	result, runErr := executor.RunParallel(ctx, p.cfg.Concurrency)

	if recorder != nil {
		if err := recorder.Finish(result, runErr); err != nil {
			log.Warn("Recording build history failed", zap.Error(err))
		}
	}

	if runErr != nil {
		log.Error("Task aborted", zap.Error(runErr), zap.Duration("elapsed", time.Since(start)))
		return result, runErr
	}
	if failed := result.Failed(); len(failed) > 0 {
		log.Error("Task failed", zap.Strings("failed", failed), zap.Duration("elapsed", time.Since(start)))
	} else {
		log.Info("Task finished", zap.Int("changed", len(result.Changed())), zap.Duration("elapsed", time.Since(start)))
	}
	return result, nil
}
