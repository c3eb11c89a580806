// Package cli implements the assetweaver command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"assetweaver/internal/pipeline"
)

// Env carries the process surroundings into the commands.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Logger replaces the logger built from --verbose.
	Logger *zap.Logger

	// Pipeline supplies stand-ins for the external tools. Root, Logger,
	// Store and Report are always set by the command.
	Pipeline pipeline.Options
}

// Run executes the command line args (without argv[0]) and returns the
// process exit code.
func Run(ctx context.Context, args []string, env Env) int {
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}

	a := &app{env: env}
	defer a.close()

	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(env.Stdout)
	cmd.SetErr(env.Stderr)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(env.Stderr, "error:", err)
	}
	return ExitCode(err)
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assetweaver",
		Short: "Build front-end assets: styles, scripts, markup, images, fonts and an icon font",
		Long: `assetweaver compiles Sass, bundles and minifies scripts, copies markup,
images and fonts, generates an icon font with its style fragment, lints
stylesheets and serves the result with live reload.

Without a subcommand it runs the default task.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTask(cmd.Context(), pipeline.TaskDefault)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.flags.config, "config", "assetweaver.yml", "configuration file, relative to the work directory")
	flags.StringVar(&a.flags.workDir, "workdir", "", "project directory (default: current directory)")
	flags.StringVar(&a.flags.preset, "preset", "", "pipeline variant: standard|fonts|clean")
	flags.StringVar(&a.flags.trace, "trace", "", "write the canonical build trace JSON to this file")
	flags.BoolVarP(&a.flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		taskCmd(a, pipeline.TaskBuild, "build", "Clean the output root and rebuild every asset without the cache"),
		taskCmd(a, pipeline.ChainLint, "lint", "Lint the stylesheets"),
		taskCmd(a, pipeline.ChainIcons, "icons", "Generate the icon font and its style fragment"),
		watchCmd(a),
		statusCmd(a),
		tasksCmd(a),
	)
	return cmd
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return invalidInvocationf("unexpected arguments: %q", args)
	}
	return nil
}

func taskCmd(a *app, task, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTask(cmd.Context(), task)
		},
	}
}
