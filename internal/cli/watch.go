package cli

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"assetweaver/internal/dag"
	"assetweaver/internal/devserver"
	"assetweaver/internal/pipeline"
	"assetweaver/internal/watch"
)

func watchCmd(a *app) *cobra.Command {
	var port int
	var noServe bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the default task, then rebuild on change and serve with live reload",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				if port < 0 || port > 65535 {
					return invalidInvocationf("--port out of range: %d", port)
				}
				a.cfg.Server.Port = port
			}
			return a.watch(cmd.Context(), !noServe)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "dev server port (default from config, 3000)")
	cmd.Flags().BoolVar(&noServe, "no-serve", false, "watch and rebuild without starting the dev server")
	return cmd
}

// watch builds once, then runs the watcher and the dev server side by side
// until ctx is done. A failed initial build does not stop watching.
func (a *app) watch(ctx context.Context, serve bool) error {
	p, cleanup, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.runWith(ctx, p, pipeline.TaskDefault); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if !errors.Is(err, ErrChainsFailed) {
			return err
		}
		a.logger.Warn("Initial build failed; watching for fixes", zap.Error(err))
	}

	var srv *devserver.Server
	if serve {
		srv, err = devserver.New(devserver.Options{
			Addr:        net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port)),
			BaseDir:     filepath.Join(a.workDir, a.cfg.Server.BaseDir),
			ProjectRoot: a.workDir,
			LiveReload:  a.cfg.Server.LiveReload,
			Logger:      a.logger.Named("devserver"),
		})
		if err != nil {
			return err
		}
	}

	w, err := a.newWatcher(p, srv)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	if srv != nil {
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	}
	return g.Wait()
}

func (a *app) newWatcher(p *pipeline.Pipeline, srv *devserver.Server) (*watch.Watcher, error) {
	tasks := p.Tasks()
	var bindings []watch.Binding
	for _, b := range a.cfg.Watch.Bindings {
		if _, ok := tasks[b.Chain]; !ok {
			a.logger.Debug("Skipping watch binding for disabled chain", zap.String("chain", b.Chain))
			continue
		}
		bindings = append(bindings, watch.Binding{Chain: b.Chain, Patterns: b.Patterns})
	}

	opts := watch.Options{
		Logger: a.logger.Named("watch"),
		Ignore: []string{a.cfg.Output},
	}
	if srv != nil {
		opts.Notifier = srv
	}
	rebuild := func(ctx context.Context, chain string) (*dag.GraphResult, error) {
		return p.Run(ctx, chain)
	}
	return watch.New(a.workDir, bindings, rebuild, opts)
}
