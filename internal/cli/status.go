package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"assetweaver/internal/dag"
	"assetweaver/internal/state"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func statusCmd(a *app) *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded build and the outcome of each chain",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if history < 0 {
				return invalidInvocationf("--history must be >= 0")
			}
			return a.status(cmd, history)
		},
	}
	cmd.Flags().IntVar(&history, "history", 0, "also list this many recent runs")
	return cmd
}

func (a *app) status(cmd *cobra.Command, history int) error {
	out := cmd.OutOrStdout()
	dbPath := filepath.Join(a.workDir, a.cfg.StateDB)
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "no builds recorded yet")
		return nil
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	run, err := store.LatestRun(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintln(out, "no builds recorded yet")
		return nil
	}
	records, err := store.ChainRecords(ctx, run.ID)
	if err != nil {
		return err
	}
	printRun(out, *run, records)

	if history > 0 {
		runs, err := store.RecentRuns(ctx, history)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, headerStyle.Render("Recent runs"))
		for _, r := range runs {
			fmt.Fprintf(out, "  %s  %-10s %-9s %s\n",
				dimStyle.Render(r.StartedAt.Local().Format(time.DateTime)),
				r.Task, statusText(r.Status), dimStyle.Render(r.ID))
		}
	}
	return nil
}

func printRun(w io.Writer, run state.Run, records []state.ChainRecord) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Run:     "), run.ID)
	fmt.Fprintf(w, "%s %s (%s)\n", labelStyle.Render("Task:    "), run.Task, run.Mode)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Status:  "), statusText(run.Status))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Started: "), run.StartedAt.Local().Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Duration:"), run.Duration().Round(time.Millisecond))
	}
	if f := run.Failure; f != nil {
		where := string(f.Class)
		if f.Chain != "" {
			where += " " + f.Chain
		}
		fmt.Fprintf(w, "%s %s: %s\n", labelStyle.Render("Failure: "), where, f.Code)
	}
	if len(records) == 0 {
		return
	}

	width := len("chain")
	for _, rec := range records {
		if len(rec.Chain) > width {
			width = len(rec.Chain)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-*s  %-9s  %7s  %s\n", width, "chain", "state", "changed", "error")
	for _, rec := range records {
		msg := rec.Error
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		fmt.Fprintf(w, "  %-*s  %s  %7d  %s\n", width, rec.Chain, stateText(rec.State), rec.Changed, msg)
	}
}

func statusText(s state.RunStatus) string {
	text := fmt.Sprintf("%-9s", s)
	switch s {
	case state.RunSucceeded:
		return goodStyle.Render(text)
	case state.RunFailed, state.RunAborted:
		return badStyle.Render(text)
	default:
		return text
	}
}

func stateText(s string) string {
	text := fmt.Sprintf("%-9s", s)
	switch dag.ChainState(s) {
	case dag.ChainCompleted, dag.ChainCached:
		return goodStyle.Render(text)
	case dag.ChainFailed:
		return badStyle.Render(text)
	case dag.ChainSkipped:
		return dimStyle.Render(text)
	default:
		return text
	}
}
