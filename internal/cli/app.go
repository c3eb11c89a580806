package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"assetweaver/internal/config"
	"assetweaver/internal/logging"
	"assetweaver/internal/pipeline"
	"assetweaver/internal/state"
)

type globalFlags struct {
	config  string
	workDir string
	preset  string
	trace   string
	verbose bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	env   Env
	flags globalFlags

	workDir   string
	tracePath string
	logger    *zap.Logger
	ownLogger bool
	cfg       *config.Config
}

// setup resolves the work directory, builds the logger and loads the
// configuration.
func (a *app) setup() error {
	workDir := a.flags.workDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return invalidInvocationf("--workdir: %v", err)
	}
	info, err := os.Stat(workDir)
	if err != nil || !info.IsDir() {
		return invalidInvocationf("--workdir %q is not a directory", workDir)
	}
	a.workDir = workDir

	if strings.TrimSpace(a.flags.trace) != "" {
		if a.tracePath, err = resolveUnderWorkDir(workDir, a.flags.trace); err != nil {
			return err
		}
	}

	if a.env.Logger != nil {
		a.logger = a.env.Logger
	} else {
		a.logger, err = logging.New(logging.Options{Verbose: a.flags.verbose})
		if err != nil {
			return err
		}
		a.ownLogger = true
	}

	configPath, err := resolveUnderWorkDir(workDir, a.flags.config)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return &state.ConfigError{Err: err}
	}
	if a.flags.preset != "" {
		if err := cfg.ApplyPreset(a.flags.preset); err != nil {
			return invalidInvocationf("--preset: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return &state.ConfigError{Err: err}
	}
	a.cfg = cfg
	a.logger.Debug("Configuration loaded",
		zap.String("path", configPath),
		zap.String("preset", cfg.Preset),
		zap.String("workdir", workDir))
	return nil
}

func (a *app) close() {
	if a.logger != nil && a.ownLogger {
		_ = a.logger.Sync()
	}
}

func (a *app) openStore() (*state.Store, error) {
	return state.Open(filepath.Join(a.workDir, a.cfg.StateDB))
}

// newPipeline opens the build history and assembles the pipeline. The
// returned cleanup closes both.
func (a *app) newPipeline() (*pipeline.Pipeline, func(), error) {
	store, err := a.openStore()
	if err != nil {
		// History is a convenience; builds still run without it.
		a.logger.Warn("Build history unavailable", zap.Error(err))
		store = nil
	}

	opts := a.env.Pipeline
	opts.Root = a.workDir
	opts.Logger = a.logger
	opts.Store = store
	opts.Report = a.env.Stdout

	p, err := pipeline.New(a.cfg, opts)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, &state.ConfigError{Err: err}
	}
	cleanup := func() {
		if err := p.Close(); err != nil {
			a.logger.Warn("Stopping Dart Sass failed", zap.Error(err))
		}
		if store != nil {
			_ = store.Close()
		}
	}
	return p, cleanup, nil
}

// runTask runs one named task and writes the trace when requested.
func (a *app) runTask(ctx context.Context, task string) error {
	p, cleanup, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer cleanup()
	return a.runWith(ctx, p, task)
}

func (a *app) runWith(ctx context.Context, p *pipeline.Pipeline, task string) error {
	result, err := p.Run(ctx, task)
	if a.tracePath != "" && result != nil {
		if terr := writeTrace(a.tracePath, result); terr != nil {
			return errors.Join(err, fmt.Errorf("writing trace: %w", terr))
		}
	}
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownTask) {
			return invalidInvocationf("%v", err)
		}
		return err
	}
	if failed := result.Failed(); len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrChainsFailed, strings.Join(failed, ", "))
	}
	return nil
}
